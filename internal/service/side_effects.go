package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/assignment-portal/internal/dto"
	"github.com/noah-isme/assignment-portal/internal/events"
)

// Collaborators bundles the best-effort side effects shared by the lifecycle
// and submission managers. Any field may be nil.
type Collaborators struct {
	Storage        FileStorage
	Activity       ActivityRecorder
	Events         events.Publisher
	Stats          StatsInvalidator
	Notifier       Notifier
	MaxUploadBytes int64
}

// sideEffects runs follow-up work after a committed change; failures are logged only.
type sideEffects struct {
	Collaborators
	logger zerolog.Logger
}

func (s sideEffects) record(ctx context.Context, entry ActivityEntry) {
	if s.Activity == nil {
		return
	}
	if _, err := s.Activity.Record(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("action", entry.Action).Msg("failed to record activity")
	}
}

func (s sideEffects) publish(ctx context.Context, event events.Event) {
	if s.Events == nil {
		return
	}
	s.Events.Publish(ctx, event)
}

func (s sideEffects) invalidateStats(ctx context.Context) {
	if s.Stats == nil {
		return
	}
	s.Stats.Invalidate(ctx)
}

func (s sideEffects) notify(ctx context.Context, payload dto.NotificationCreateRequest) {
	if s.Notifier == nil || payload.UserID == "" {
		return
	}
	if _, err := s.Notifier.Notify(ctx, payload); err != nil {
		s.logger.Warn().Err(err).Str("user_id", payload.UserID).Msg("failed to store notification")
	}
}

func (s sideEffects) removeBlob(ctx context.Context, ref string) {
	if s.Storage == nil || ref == "" {
		return
	}
	if err := s.Storage.Delete(ctx, ref); err != nil {
		s.logger.Warn().Err(err).Str("blob", ref).Msg("failed to delete blob")
	}
}
