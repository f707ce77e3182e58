package tenants

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("tenants: not found")
	ErrInvalidArgument = errors.New("tenants: invalid argument")
)

// Repository is the persistence contract for tenant dial settings.
type Repository interface {
	Get(ctx context.Context, tenantID string) (Settings, error)
	Upsert(ctx context.Context, s Settings) error
	// ListDialEnabled returns every tenant with dialing switched on;
	// drives the pacer loop.
	ListDialEnabled(ctx context.Context) ([]Settings, error)
}

// Service reads tenant settings with fallback defaults.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// Get returns the tenant's settings, or Defaults when no row exists.
func (s *Service) Get(ctx context.Context, tenantID string) (Settings, error) {
	if tenantID == "" {
		return Settings{}, ErrInvalidArgument
	}
	set, err := s.repo.Get(ctx, tenantID)
	if errors.Is(err, ErrNotFound) {
		return Defaults(tenantID), nil
	}
	return set, err
}

func (s *Service) Upsert(ctx context.Context, set Settings) error {
	if set.TenantID == "" {
		return ErrInvalidArgument
	}
	if set.Speed <= 0 {
		set.Speed = 1.0
	}
	return s.repo.Upsert(ctx, set)
}

func (s *Service) ListDialEnabled(ctx context.Context) ([]Settings, error) {
	return s.repo.ListDialEnabled(ctx)
}

// Location implements the timezone source used by journey scheduling.
func (s *Service) Location(ctx context.Context, tenantID string) (*time.Location, error) {
	set, err := s.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return set.Location(), nil
}
