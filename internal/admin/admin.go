package admin

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/cicconee/silam-pollen/internal/app"
)

type Account struct {
	ID       string
	Approved bool
}

func (a *Account) IsApproved() bool {
	return a.Approved
}

type AdminEntity struct {
	ID           string
	Username     string
	PasswordHash string
	Approved     bool
	CreatedAt    time.Time
}

func (a *AdminEntity) ValidateUsername() error {
	if a.Username == "" {
		return app.NewServerResponseError(
			errors.New("empty username"),
			"Must provide a username",
			http.StatusUnprocessableEntity)
	}

	return nil
}

func (a *AdminEntity) SetPasswordHash(password string, cost int) error {
	if password == "" {
		return app.NewServerResponseError(
			errors.New("empty password"),
			"Must provide a password",
			http.StatusUnprocessableEntity)
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return err
	}

	a.PasswordHash = string(passwordHash)

	return nil
}

func (a *AdminEntity) CheckPasswordHash(p string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(p))
	return err == nil
}

func (a *AdminEntity) IsApproved() bool {
	return a.Approved
}

func (a *AdminEntity) Account() Account {
	return Account{
		ID:       a.ID,
		Approved: a.Approved,
	}
}

func (s *AdminEntity) Scan(scanner func(...any) error) error {
	return scanner(
		&s.ID,
		&s.Username,
		&s.PasswordHash,
		&s.Approved,
		&s.CreatedAt,
	)
}

func (s *AdminEntity) Select(ctx context.Context, db *sql.DB) error {
	query := `SELECT id, username, password_hash, approved, created_at
			  FROM admins WHERE id = $1`

	return s.Scan(db.QueryRowContext(ctx, query, s.ID).Scan)
}

func (s *AdminEntity) SelectWhereUsername(ctx context.Context, db *sql.DB) error {
	query := `SELECT id, username, password_hash, approved, created_at
			  FROM admins WHERE username = $1`

	return s.Scan(db.QueryRowContext(ctx, query, s.Username).Scan)
}

func (s *AdminEntity) Insert(ctx context.Context, db *sql.DB) error {
	query := `INSERT INTO admins(id, username, password_hash, approved, created_at)
			  VALUES($1, $2, $3, $4, $5)`

	_, err := db.ExecContext(ctx, query,
		s.ID,
		s.Username,
		s.PasswordHash,
		s.Approved,
		s.CreatedAt)

	return err
}

// Update writes the password hash and approval of this admin.
func (s *AdminEntity) Update(ctx context.Context, db *sql.DB) error {
	query := `UPDATE admins SET password_hash = $1, approved = $2 WHERE id = $3`

	_, err := db.ExecContext(ctx, query, s.PasswordHash, s.Approved, s.ID)
	return err
}
