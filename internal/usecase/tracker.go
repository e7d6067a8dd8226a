package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"conversation-tracker/internal/domain"
	"conversation-tracker/internal/repository"
)

// EventStore is the storage contract the tracker service drives. The
// repository Client satisfies it; tests substitute a stub.
type EventStore interface {
	ResolveWindow(ctx context.Context, senderID string, currentOnly bool) (domain.SessionWindow, error)
	StoredEvents(ctx context.Context, senderID string, window domain.SessionWindow) ([]domain.Event, error)
	Save(ctx context.Context, senderID string, events []domain.Event) (int, error)
	MigrateLegacyKey(ctx context.Context, senderID string) (int, error)
	SenderIDs(ctx context.Context) ([]string, error)
}

// TrackerService exposes the dialogue engine's ingress contract: persist a
// conversation's full event history, reconstruct it for the current session
// or across all sessions, and list known conversations.
type TrackerService struct {
	store EventStore
	log   *slog.Logger
}

func NewTrackerService(store EventStore) (*TrackerService, error) {
	if store == nil {
		return nil, errors.New("usecase: event store must not be nil")
	}
	return &TrackerService{store: store, log: slog.Default()}, nil
}

// Save persists whatever part of the supplied history is not yet durable.
// The sequence must be the conversation's complete ordered history; the
// caller serializes writers per conversation.
func (s *TrackerService) Save(ctx context.Context, senderID string, events []domain.Event) (int, error) {
	senderID = strings.TrimSpace(senderID)
	if senderID == "" {
		return 0, newError(ErrorInvalidInput, "empty_sender_id", nil)
	}
	appended, err := s.store.Save(ctx, senderID, events)
	if err != nil {
		return 0, newError(ErrorStorage, "save_failed", err)
	}
	return appended, nil
}

// Retrieve reconstructs the conversation scoped to its active session.
// Absence surfaces as ErrorNotFound.
func (s *TrackerService) Retrieve(ctx context.Context, senderID string) (*domain.Tracker, error) {
	return s.retrieve(ctx, senderID, true)
}

// RetrieveFull reconstructs the conversation across all sessions.
func (s *TrackerService) RetrieveFull(ctx context.Context, senderID string) (*domain.Tracker, error) {
	return s.retrieve(ctx, senderID, false)
}

func (s *TrackerService) retrieve(ctx context.Context, senderID string, currentOnly bool) (*domain.Tracker, error) {
	senderID = strings.TrimSpace(senderID)
	if senderID == "" {
		return nil, newError(ErrorInvalidInput, "empty_sender_id", nil)
	}

	events, err := s.readWindow(ctx, senderID, currentOnly)
	if errors.Is(err, repository.ErrNotFound) && repository.IsNumericKey(senderID) {
		// Nothing under the canonical key and the id looks like a legacy
		// numeric one: rewrite old records, then retry the read once.
		migrated, mErr := s.store.MigrateLegacyKey(ctx, senderID)
		if mErr != nil {
			return nil, newError(ErrorStorage, "legacy_migration_failed", mErr)
		}
		if migrated > 0 {
			s.log.Info("rewrote legacy conversation key",
				"sender_id", senderID, "records", migrated)
			events, err = s.readWindow(ctx, senderID, currentOnly)
		}
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrorNotFound, "unknown_conversation", err)
		}
		return nil, newError(ErrorStorage, "retrieve_failed", err)
	}

	return &domain.Tracker{SenderID: senderID, Events: events}, nil
}

func (s *TrackerService) readWindow(ctx context.Context, senderID string, currentOnly bool) ([]domain.Event, error) {
	window, err := s.store.ResolveWindow(ctx, senderID, currentOnly)
	if err != nil {
		return nil, err
	}
	return s.store.StoredEvents(ctx, senderID, window)
}

// Keys lists the conversation keys known to the store.
func (s *TrackerService) Keys(ctx context.Context) ([]string, error) {
	ids, err := s.store.SenderIDs(ctx)
	if err != nil {
		return nil, newError(ErrorStorage, "list_keys_failed", err)
	}
	return ids, nil
}
