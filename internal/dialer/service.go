package dialer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/redis/go-redis/v9"

	"outreach-platform/pkg/utils"
)

// Service is the DID admin surface plus the call-events ingestion path.
type Service struct {
	repo  Repository
	rdb   *redis.Client
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, rdb *redis.Client, log *slog.Logger) *Service {
	return &Service{repo: repo, rdb: rdb, log: log, clock: time.Now}
}

// CreateDID registers an owned number. The phone is normalized to E.164.
// State is the number's two-letter US state; when blank it is derived
// from the area code so geographic selection can fall back to it.
func (s *Service) CreateDID(ctx context.Context, tenantID, phone, state string) (DID, error) {
	if tenantID == "" || strings.TrimSpace(phone) == "" {
		return DID{}, ErrInvalidArgument
	}
	parsed, err := phonenumbers.Parse(phone, "US")
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return DID{}, ErrInvalidArgument
	}
	e164 := phonenumbers.Format(parsed, phonenumbers.E164)

	state = strings.ToUpper(strings.TrimSpace(state))
	if state == "" {
		state = stateForAreaCode(areaCode(e164))
	} else if len(state) != 2 {
		return DID{}, ErrInvalidArgument
	}

	d := DID{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Phone:     e164,
		State:     state,
		IsActive:  true,
		CreatedAt: s.clock().UTC(),
	}
	if err := s.repo.CreateDID(ctx, d); err != nil {
		return DID{}, err
	}
	return d, nil
}

func (s *Service) ListDIDs(ctx context.Context, tenantID string) ([]DID, error) {
	if tenantID == "" {
		return nil, ErrInvalidArgument
	}
	return s.repo.ListDIDs(ctx, tenantID)
}

func (s *Service) SetDIDActive(ctx context.Context, tenantID, id string, active bool) error {
	return s.repo.SetDIDActive(ctx, tenantID, id, active)
}

func (s *Service) ListAttemptsByLead(ctx context.Context, tenantID, leadID string, limit int) ([]CallAttempt, error) {
	if tenantID == "" || leadID == "" {
		return nil, ErrInvalidArgument
	}
	return s.repo.ListAttemptsByLead(ctx, tenantID, leadID, limit)
}

// RecordCallEvent ingests a terminal call event from the PBX webhook:
// stores the outcome on the attempt and frees the tenant's in-flight
// slot taken at placement.
func (s *Service) RecordCallEvent(ctx context.Context, tenantID, providerCallID, outcome string) (CallAttempt, error) {
	if tenantID == "" || providerCallID == "" || outcome == "" {
		return CallAttempt{}, ErrInvalidArgument
	}
	a, err := s.repo.SetAttemptOutcome(ctx, tenantID, providerCallID, outcome, s.clock().UTC())
	if err != nil {
		return CallAttempt{}, err
	}
	if s.rdb != nil {
		if err := utils.ReleaseConcurrencyCap(ctx, s.rdb, inflightKey(tenantID)); err != nil {
			s.log.Warn("release in-flight cap failed", "tenant_id", tenantID, "error", err)
		}
	}
	return a, nil
}
