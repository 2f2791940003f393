package app

import "fmt"

// SILAMStatusCodeError is an error that occurs when the SILAM point
// service returns a status code other than 200 for a request.
//
// The THREDDS server answers failures with a plain text or HTML body
// rather than a structured document, so the body is kept verbatim.
// It is the text shown to a user when a setup probe fails.
type SILAMStatusCodeError struct {
	StatusCode int
	Body       string
}

func (s *SILAMStatusCodeError) Error() string {
	return fmt.Sprintf("statusCode=%d, body=%s", s.StatusCode, s.Body)
}
