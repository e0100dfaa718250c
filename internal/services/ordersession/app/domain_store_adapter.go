// Package server composes the ordersession HTTP surface over the domain
// service and its storage adapters.
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/lunchroll/internal/services/ordersession/domain"
	"github.com/louisbranch/lunchroll/internal/services/ordersession/storage"
)

// domainStoreAdapter bridges the storage records to the domain boundary and
// translates storage errors into domain error kinds.
type domainStoreAdapter struct {
	sessions     storage.SessionStore
	participants storage.ParticipantStore
}

func newDomainStoreAdapter(sessions storage.SessionStore, participants storage.ParticipantStore) *domainStoreAdapter {
	return &domainStoreAdapter{sessions: sessions, participants: participants}
}

func (a *domainStoreAdapter) GetSession(ctx context.Context, sessionID string) (domain.OrderSession, error) {
	if a == nil || a.sessions == nil {
		return domain.OrderSession{}, domain.ErrStoreNotConfigured
	}
	record, err := a.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return domain.OrderSession{}, mapStorageError(err)
	}
	return toDomainSession(record), nil
}

func (a *domainStoreAdapter) PutSession(ctx context.Context, session domain.OrderSession) error {
	if a == nil || a.sessions == nil {
		return domain.ErrStoreNotConfigured
	}
	return mapStorageError(a.sessions.PutSession(ctx, toStorageSession(session)))
}

func (a *domainStoreAdapter) ListActiveSessions(ctx context.Context, companyID string) ([]domain.OrderSession, error) {
	if a == nil || a.sessions == nil {
		return nil, domain.ErrStoreNotConfigured
	}
	records, err := a.sessions.ListActiveSessions(ctx, companyID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	sessions := make([]domain.OrderSession, 0, len(records))
	for _, record := range records {
		sessions = append(sessions, toDomainSession(record))
	}
	return sessions, nil
}

func (a *domainStoreAdapter) UpdateSessionStatus(ctx context.Context, sessionID string, from, to domain.SessionStatus, updatedAt time.Time) error {
	if a == nil || a.sessions == nil {
		return domain.ErrStoreNotConfigured
	}
	return mapStorageError(a.sessions.UpdateSessionStatus(ctx, sessionID, string(from), string(to), updatedAt))
}

func (a *domainStoreAdapter) UpdateSessionTimes(ctx context.Context, sessionID string, start, end, updatedAt time.Time) error {
	if a == nil || a.sessions == nil {
		return domain.ErrStoreNotConfigured
	}
	return mapStorageError(a.sessions.UpdateSessionTimes(ctx, sessionID, start, end, updatedAt))
}

func (a *domainStoreAdapter) DeleteSession(ctx context.Context, sessionID string) error {
	if a == nil || a.sessions == nil {
		return domain.ErrStoreNotConfigured
	}
	return mapStorageError(a.sessions.DeleteSession(ctx, sessionID))
}

func (a *domainStoreAdapter) UpsertParticipant(ctx context.Context, participant domain.Participant) error {
	if a == nil || a.participants == nil {
		return domain.ErrStoreNotConfigured
	}
	return mapStorageError(a.participants.UpsertParticipant(ctx, toStorageParticipant(participant)))
}

func (a *domainStoreAdapter) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	if a == nil || a.participants == nil {
		return nil, domain.ErrStoreNotConfigured
	}
	records, err := a.participants.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, mapStorageError(err)
	}
	participants := make([]domain.Participant, 0, len(records))
	for _, record := range records {
		participants = append(participants, toDomainParticipant(record))
	}
	return participants, nil
}

// mapStorageError keeps validation outcomes distinguishable from transient
// store failures: not-found and conflict pass through as domain kinds, and
// anything else surfaces as a store-unavailable error with detail.
func mapStorageError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return domain.ErrNotFound
	case errors.Is(err, storage.ErrConflict):
		return domain.ErrConflict
	default:
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
}

func toDomainSession(record storage.SessionRecord) domain.OrderSession {
	return domain.OrderSession{
		ID:                record.ID,
		CompanyID:         record.CompanyID,
		RestaurantName:    record.RestaurantName,
		RestaurantOptions: record.RestaurantOptions,
		StartTime:         record.StartTime,
		EndTime:           record.EndTime,
		Status:            domain.SessionStatus(record.Status),
		CreatedAt:         record.CreatedAt,
		UpdatedAt:         record.UpdatedAt,
	}
}

func toStorageSession(session domain.OrderSession) storage.SessionRecord {
	return storage.SessionRecord{
		ID:                session.ID,
		CompanyID:         session.CompanyID,
		RestaurantName:    session.RestaurantName,
		RestaurantOptions: session.RestaurantOptions,
		StartTime:         session.StartTime,
		EndTime:           session.EndTime,
		Status:            string(session.Status),
		CreatedAt:         session.CreatedAt,
		UpdatedAt:         session.UpdatedAt,
	}
}

func toDomainParticipant(record storage.ParticipantRecord) domain.Participant {
	return domain.Participant{
		SessionID:   record.SessionID,
		UserID:      record.UserID,
		UserName:    record.UserName,
		Status:      domain.ParticipantStatus(record.Status),
		PresetOrder: record.PresetOrder,
		UpdatedAt:   record.UpdatedAt,
	}
}

func toStorageParticipant(participant domain.Participant) storage.ParticipantRecord {
	return storage.ParticipantRecord{
		SessionID:   participant.SessionID,
		UserID:      participant.UserID,
		UserName:    participant.UserName,
		Status:      string(participant.Status),
		PresetOrder: participant.PresetOrder,
		UpdatedAt:   participant.UpdatedAt,
	}
}
