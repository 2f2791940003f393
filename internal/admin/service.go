// Package admin guards the administrative surface: zone upserts and entry
// removal. Admins sign up unapproved; the bootstrap admin from the
// configuration is always approved.
package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/cicconee/silam-pollen/internal/app"
)

// TokenTTL is how long an access token stays valid.
const TokenTTL = time.Hour

// PasswordCost is the bcrypt cost of stored password hashes.
const PasswordCost = 12

type Service struct {
	Secret []byte
	DB     *sql.DB

	// Cost is PasswordCost when zero.
	Cost int
}

func New(secret []byte, db *sql.DB) *Service {
	return &Service{
		Secret: secret,
		DB:     db,
	}
}

func (s *Service) cost() int {
	if s.Cost < bcrypt.MinCost {
		return PasswordCost
	}
	return s.Cost
}

// Signup will create a admin and store it into the database. A admin will only
// signup successfully if the username is not in use. New admins are not
// approved.
func (s *Service) Signup(ctx context.Context, username string, password string) error {
	admin := AdminEntity{Username: username}

	// Check if username is in use.
	taken, err := s.usernameTaken(ctx, admin.Username)
	if err != nil {
		return err
	}
	if taken {
		return usernameTakenError(admin.Username)
	}

	if err := admin.ValidateUsername(); err != nil {
		return fmt.Errorf("validating username: %w", err)
	}

	// SetPasswordHash will also validate the password.
	if err := admin.SetPasswordHash(password, s.cost()); err != nil {
		return fmt.Errorf("setting password hash: %w", err)
	}

	admin.ID = uuid.NewString()
	admin.Approved = false
	admin.CreatedAt = time.Now().UTC()

	if err := admin.Insert(ctx, s.DB); err != nil {
		// A concurrent signup may have taken the username after the check.
		if taken, _ := s.usernameTaken(ctx, admin.Username); taken {
			return usernameTakenError(admin.Username)
		}
		return fmt.Errorf("inserting admin (username=%s): %w", admin.Username, err)
	}

	return nil
}

func (s *Service) usernameTaken(ctx context.Context, username string) (bool, error) {
	existing := AdminEntity{Username: username}
	err := existing.SelectWhereUsername(ctx, s.DB)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("selecting admin (username=%s): %w", username, err)
	}
	return true, nil
}

func usernameTakenError(username string) error {
	return app.NewServerResponseError(
		fmt.Errorf("username %q in use", username),
		"Username is taken",
		http.StatusConflict)
}

// Ensure creates the approved admin username, or resets its password and
// approves it when it exists.
func (s *Service) Ensure(ctx context.Context, username string, password string) error {
	admin := AdminEntity{Username: username}
	if err := admin.ValidateUsername(); err != nil {
		return err
	}

	err := admin.SelectWhereUsername(ctx, s.DB)
	exists := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("selecting admin (username=%s): %w", admin.Username, err)
	}

	if err := admin.SetPasswordHash(password, s.cost()); err != nil {
		return fmt.Errorf("setting password hash: %w", err)
	}
	admin.Approved = true

	if exists {
		if err := admin.Update(ctx, s.DB); err != nil {
			return fmt.Errorf("updating admin (username=%s): %w", admin.Username, err)
		}
		return nil
	}

	admin.ID = uuid.NewString()
	admin.CreatedAt = time.Now().UTC()
	if err := admin.Insert(ctx, s.DB); err != nil {
		return fmt.Errorf("inserting admin (username=%s): %w", admin.Username, err)
	}

	return nil
}

// Login will get an Admin associated with the username. It then hashes
// the provided password and compares it to the password stored in the
// database. If the credentials are valid, and Admin has been approved,
// it will return an access token.
//
// This is the only way to get a admin access token.
func (s *Service) Login(ctx context.Context, username string, password string) (string, error) {
	admin := AdminEntity{Username: username}
	if err := admin.SelectWhereUsername(ctx, s.DB); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", app.NewServerResponseError(
				errors.New("admin not found"),
				"Invalid credentials",
				http.StatusUnauthorized)
		}
		return "", fmt.Errorf("selecting admin (username=%s): %w", admin.Username, err)
	}

	if !admin.CheckPasswordHash(password) {
		return "", app.NewServerResponseError(
			errors.New("invalid password"),
			"Invalid credentials",
			http.StatusUnauthorized)
	}

	if !admin.IsApproved() {
		return "", app.NewServerResponseError(
			errors.New("admin not approved"),
			"Your admin rights are under review",
			http.StatusUnauthorized)
	}

	token := jwt.New(jwt.SigningMethodHS256)
	claims := token.Claims.(jwt.MapClaims)
	claims["sub"] = admin.ID
	claims["exp"] = time.Now().Add(TokenTTL).Unix()

	tokenStr, err := token.SignedString(s.Secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}

	return tokenStr, nil
}

// Validate will parse and validate a token. If the token belongs to an
// admin, the admin account will be returned.
//
// Validate will not check if the admins account has been approved, this
// will be the callers responsibility.
func (s *Service) Validate(ctx context.Context, tokenStr string) (Account, error) {
	token, err := jwt.Parse(
		tokenStr,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return s.Secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return Account{}, app.NewServerResponseError(
			fmt.Errorf("parsing token: %w", err),
			"Please login",
			http.StatusUnauthorized)
	}

	// Only Login creates tokens, and it always sets MapClaims with a
	// string sub and an exp.
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Account{}, errors.New("could not get token claims")
	}

	if !claims.VerifyExpiresAt(time.Now().Unix(), true) {
		return Account{}, app.NewServerResponseError(
			errors.New("token is expired"),
			"Please login",
			http.StatusUnauthorized)
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Account{}, errors.New("missing sub claim")
	}

	// An admin with a valid token may have been deleted since login.
	admin := AdminEntity{ID: sub}
	if err := admin.Select(ctx, s.DB); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, app.NewServerResponseError(
				fmt.Errorf("admin not found (id=%s)", admin.ID),
				"Account not found",
				http.StatusUnauthorized)
		}

		return Account{}, fmt.Errorf("selecting admin: %w", err)
	}

	return admin.Account(), nil
}
