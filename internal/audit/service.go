package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Repository is append-only. No Update or Delete.
type Repository interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, limit, offset int) ([]Event, error)
}

// Service records admin actions. Audit is internal-only and best-effort:
// Record logs failures and returns them, callers decide whether to care.
type Service struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Action == "" || e.ActorID == "" || e.TargetID == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Record appends an admin action. details is marshalled into Metadata.
func (s *Service) Record(ctx context.Context, actor Actor, action Action, target TargetType, targetID, userID, message string, details map[string]any) error {
	var meta string
	if len(details) > 0 {
		b, err := json.Marshal(details)
		if err != nil {
			return err
		}
		meta = string(b)
	}
	err := s.Append(ctx, Event{
		Action:     action,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		IPAddress:  actor.IP,
		TargetType: target,
		TargetID:   targetID,
		UserID:     userID,
		Message:    message,
		Metadata:   meta,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "audit append failed",
			"action", action, "actor_id", actor.ID, "target_id", targetID, "err", err)
	}
	return err
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]Event, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}
