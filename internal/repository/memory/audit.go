package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"room_chat/internal/domain"
)

type auditRepository struct {
	s *Store
}

func (r *auditRepository) CreateLog(ctx context.Context, log *domain.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextAuditID++
	log.ID = r.s.nextAuditID
	stored := *log
	r.s.audit = append(r.s.audit, &stored)
	r.s.onRollback(ctx, func() {
		for i, l := range r.s.audit {
			if l == &stored {
				r.s.audit = append(r.s.audit[:i:i], r.s.audit[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (r *auditRepository) ListByRoom(ctx context.Context, roomID uuid.UUID, limit int) ([]*domain.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*domain.AuditLog
	for _, l := range r.s.audit {
		if l.RoomID != nil && *l.RoomID == roomID {
			entry := *l
			out = append(out, &entry)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EventTime.Equal(out[j].EventTime) {
			return out[i].EventTime.After(out[j].EventTime)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AuditLogs returns a snapshot of the audit trail.
func (s *Store) AuditLogs() []domain.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.AuditLog, len(s.audit))
	for i, l := range s.audit {
		out[i] = *l
	}
	return out
}
