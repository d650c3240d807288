package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SigNoz/storefront-go-app/internal/db"
	"github.com/SigNoz/storefront-go-app/internal/metrics"
	"github.com/SigNoz/storefront-go-app/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserService keeps the local projection of authenticated users. Passwords
// and sign-up live with the identity provider; this only records who has
// shopped here and in which role.
type UserService struct {
	db      *db.DB
	metrics *metrics.AppMetrics
	logger  *zap.Logger
	now     Clock
}

func NewUserService(db *db.DB, m *metrics.AppMetrics, logger *zap.Logger) *UserService {
	return &UserService{db: db, metrics: m, logger: logger, now: utcNow}
}

// EnsureUser stores u, updating name and role when the id is already known.
// An empty id is replaced with a new uuid.
func (s *UserService) EnsureUser(ctx context.Context, u models.User) (*models.User, error) {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Name = strings.TrimSpace(u.Name)
	if u.Email == "" {
		return nil, invalidf("email is required")
	}
	switch u.Role {
	case "":
		u.Role = models.RoleCustomer
	case models.RoleCustomer, models.RoleAdmin:
	default:
		return nil, invalidf("unknown role %q", u.Role)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	existing, err := s.GetUser(ctx, u.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		start := time.Now()
		query := "INSERT INTO users (id, email, name, role, created_at) VALUES (?, ?, ?, ?, ?)"
		_, err = s.db.ExecContext(ctx, query, u.ID, u.Email, u.Name, u.Role, s.now())
		record(ctx, s.metrics, "INSERT", "users", query, start, err)
		if db.IsUniqueViolation(err) {
			return nil, invalidf("email %s is already registered", u.Email)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		s.logger.Info("user created", zap.String("user_id", u.ID), zap.String("role", u.Role))
	case err != nil:
		return nil, err
	case existing.Email != u.Email || existing.Name != u.Name || existing.Role != u.Role:
		start := time.Now()
		query := "UPDATE users SET email = ?, name = ?, role = ? WHERE id = ?"
		_, err = s.db.ExecContext(ctx, query, u.Email, u.Name, u.Role, u.ID)
		record(ctx, s.metrics, "UPDATE", "users", query, start, err)
		if db.IsUniqueViolation(err) {
			return nil, invalidf("email %s is already registered", u.Email)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update user: %w", err)
		}
	}
	return s.GetUser(ctx, u.ID)
}

// GetUser returns a user by ID
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.getBy(ctx, "id", id)
}

// GetUserByEmail returns a user by email
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getBy(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
}

func (s *UserService) getBy(ctx context.Context, column, value string) (*models.User, error) {
	start := time.Now()
	query := "SELECT id, email, name, role, created_at FROM users WHERE " + column + " = ?"
	var user models.User
	err := s.db.QueryRowContext(ctx, query, value).Scan(&user.ID, &user.Email, &user.Name, &user.Role, &user.CreatedAt)
	record(ctx, s.metrics, "SELECT", "users", query, start, err)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user", value)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}
