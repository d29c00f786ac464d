package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// Service authenticates credentials and manages token lifecycle.
type Service struct {
	pool   *pgxpool.Pool
	tokens *TokenStore
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(pool *pgxpool.Pool, tokens *TokenStore, logger *slog.Logger) *Service {
	return &Service{pool: pool, tokens: tokens, logger: logger}
}

// Login verifies the credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *Principal, error) {
	var (
		p    Principal
		hash string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, password_hash FROM users WHERE email = $1 AND is_active = TRUE`, email).
		Scan(&p.UserID, &p.Email, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(ctx, p)
	if err != nil {
		return "", nil, err
	}
	s.logger.Info("login", slog.String("user_id", p.UserID.String()))
	return token, &p, nil
}

// Logout revokes the presented token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.tokens.Revoke(ctx, token)
}
