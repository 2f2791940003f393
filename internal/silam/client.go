package silam

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cicconee/silam-pollen/internal/app"
	"github.com/cicconee/silam-pollen/internal/geometry"
	"github.com/cicconee/silam-pollen/internal/metrics"
)

// ProbeTimeout bounds a single availability probe.
const ProbeTimeout = 10 * time.Second

// ProbeVar is the variable requested by availability probes.
const ProbeVar = "POLI"

// maxBody caps how much of a response is read. Point responses for a
// two day window stay far below this.
const maxBody = 8 << 20

type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client talks to the SILAM THREDDS point service.
type Client struct {
	HTTP      HTTPDoer
	UserAgent string

	// Timeout bounds Probe and Fetch calls. ProbeTimeout is used when
	// zero.
	Timeout time.Duration

	// BaseURLs is the probe order of ProbeFirst. BaseURLs (the package
	// variable) is used when empty.
	BaseURLs []string

	Logger *slog.Logger
}

var DefaultClient = &Client{
	HTTP: &http.Client{
		Transport: pointTransport(),
		Timeout:   30 * time.Second,
	},
}

// pointTransport keeps a few idle connections to the THREDDS host, which
// serves every request of this package.
func pointTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 20
	t.MaxConnsPerHost = 10
	t.MaxIdleConnsPerHost = 10
	return t
}

func (c *Client) http() HTTPDoer {
	if c.HTTP == nil {
		return DefaultClient.HTTP
	}

	return c.HTTP
}

func (c *Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return ProbeTimeout
	}

	return c.Timeout
}

func (c *Client) baseURLs() []string {
	if len(c.BaseURLs) == 0 {
		return BaseURLs
	}

	return c.BaseURLs
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}

	return c.Logger
}

// Query selects what Fetch asks for.
type Query struct {
	// Vars are the requested variables.
	Vars []string

	// Window is the forecast length starting at the present time step.
	// Zero requests the present time step only.
	Window time.Duration
}

// PointURL builds the request URL of a point query against baseURL.
func PointURL(baseURL string, point geometry.Point, q Query) string {
	v := url.Values{}
	for _, name := range q.Vars {
		v.Add("var", name)
	}
	v.Set("latitude", geometry.FormatCoord(point.Lat()))
	v.Set("longitude", geometry.FormatCoord(point.Lon()))
	if q.Window > 0 {
		v.Set("time_start", "present")
		v.Set("time_duration", isoDuration(q.Window))
	} else {
		v.Set("time", "present")
	}
	v.Set("accept", "xml")

	return baseURL + "?" + v.Encode()
}

// isoDuration formats d as an ISO 8601 duration in whole hours.
func isoDuration(d time.Duration) string {
	hours := int(d / time.Hour)
	if hours < 1 {
		hours = 1
	}
	return fmt.Sprintf("PT%dH", hours)
}

func (c *Client) get(ctx context.Context, rawURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed creating GET request: %w", err)
	}

	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	res, err := c.http().Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to execute GET request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return res.StatusCode, nil, fmt.Errorf("failed reading response body: %w", err)
	}

	return res.StatusCode, body, nil
}

// Probe checks that baseURL answers a present-time POLI query for point
// with status 200. Any other status is returned as a
// *app.SILAMStatusCodeError holding the response text.
func (c *Client) Probe(ctx context.Context, baseURL string, point geometry.Point) (err error) {
	defer func() {
		metrics.ProbeTotal.WithLabelValues(string(VersionFromURL(baseURL)), metrics.Result(err)).Inc()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	status, body, err := c.get(ctx, PointURL(baseURL, point, Query{Vars: []string{ProbeVar}}))
	if err != nil {
		return err
	}

	if status != http.StatusOK {
		return &app.SILAMStatusCodeError{StatusCode: status, Body: string(body)}
	}

	return nil
}

// ProbeFirst probes the base URLs one after another and returns the
// first that answers with status 200. If none does, the error of the
// last probe is returned. Probes are never retried.
func (c *Client) ProbeFirst(ctx context.Context, point geometry.Point) (string, error) {
	var lastErr error
	for _, baseURL := range c.baseURLs() {
		err := c.Probe(ctx, baseURL, point)
		if err == nil {
			return baseURL, nil
		}

		c.logger().Debug("silam probe failed",
			"url", baseURL,
			"lat", point.RoundedLat(),
			"lon", point.RoundedLon(),
			"error", err)
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.New("no base urls configured")
	}

	return "", lastErr
}

// Fetch requests q at point from baseURL and returns the samples ordered
// by time.
func (c *Client) Fetch(ctx context.Context, baseURL string, point geometry.Point, q Query) ([]Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	status, body, err := c.get(ctx, PointURL(baseURL, point, q))
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		return nil, &app.SILAMStatusCodeError{StatusCode: status, Body: string(body)}
	}

	samples, err := parseSamples(body)
	if err != nil {
		return nil, fmt.Errorf("silam: %w", err)
	}

	return samples, nil
}

// ErrorText returns the text shown to a user for a failed probe: the
// response body for a bad status, otherwise the error message.
func ErrorText(err error) string {
	if err == nil {
		return ""
	}

	var statusErr *app.SILAMStatusCodeError
	if errors.As(err, &statusErr) {
		if statusErr.Body != "" {
			return statusErr.Body
		}
		return http.StatusText(statusErr.StatusCode)
	}

	return err.Error()
}
