package admin

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cicconee/silam-pollen/internal/app"
	"github.com/cicconee/silam-pollen/internal/db"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	conn, err := db.Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	s := New([]byte("test-secret"), conn)
	s.Cost = bcrypt.MinCost
	return s
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var respErr *app.ServerResponseError
	require.ErrorAs(t, err, &respErr)
	status, _ := respErr.ServerErrorResponse()
	return status
}

func TestSignupLogin(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	require.NoError(t, s.Signup(ctx, "ana", "secret"))
	assert.Equal(t, http.StatusConflict, statusOf(t, s.Signup(ctx, "ana", "other")))
	assert.Equal(t, http.StatusUnprocessableEntity, statusOf(t, s.Signup(ctx, "", "secret")))
	assert.Equal(t, http.StatusUnprocessableEntity, statusOf(t, s.Signup(ctx, "bo", "")))

	// Signed up admins wait for approval.
	_, err := s.Login(ctx, "ana", "secret")
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))

	require.NoError(t, s.Ensure(ctx, "ana", "new-secret"))

	_, err = s.Login(ctx, "ana", "secret")
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))

	token, err := s.Login(ctx, "ana", "new-secret")
	require.NoError(t, err)

	account, err := s.Validate(ctx, token)
	require.NoError(t, err)
	assert.True(t, account.IsApproved())
	assert.NotEmpty(t, account.ID)
}

func TestLoginUnknownUser(t *testing.T) {
	s := newTestService(t)
	_, err := s.Login(context.Background(), "nobody", "x")
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))
}

func TestValidateRejectsBadTokens(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	require.NoError(t, s.Ensure(ctx, "root", "pw"))

	_, err := s.Validate(ctx, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))

	other := New([]byte("other-secret"), s.DB)
	other.Cost = bcrypt.MinCost
	token, err := other.Login(ctx, "root", "pw")
	require.NoError(t, err)
	_, err = s.Validate(ctx, token)
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "someone",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	tokenStr, err := expired.SignedString(s.Secret)
	require.NoError(t, err)
	_, err = s.Validate(ctx, tokenStr)
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))

	unknown := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "someone",
		"exp": time.Now().Add(time.Minute).Unix(),
	})
	tokenStr, err = unknown.SignedString(s.Secret)
	require.NoError(t, err)
	_, err = s.Validate(ctx, tokenStr)
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))
}

func TestSignupConcurrentSameUsername(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Signup(ctx, "ana", "secret")
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.Equal(t, http.StatusConflict, statusOf(t, err))
	}
	assert.Equal(t, 1, created)
}
