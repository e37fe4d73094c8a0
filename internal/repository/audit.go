package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"room_chat/internal/domain"
	"room_chat/pkg/logger"
)

type AuditRepository interface {
	CreateLog(ctx context.Context, log *domain.AuditLog) error
	// ListByRoom returns the newest entries for a room first. audit_log has
	// no foreign key, so entries outlive the room they describe.
	ListByRoom(ctx context.Context, roomID uuid.UUID, limit int) ([]*domain.AuditLog, error)
}

type auditRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewAuditRepository(db *pgxpool.Pool, log logger.Logger) AuditRepository {
	return &auditRepository{db: db, log: log}
}

// CreateLog joins the caller's transaction when there is one, so an audit
// row never outlives a rolled back room change.
func (r *auditRepository) CreateLog(ctx context.Context, auditLog *domain.AuditLog) error {
	query := `
		INSERT INTO audit_log (event_time, actor_user_id, actor_role, room_id, event_type, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	err := conn(ctx, r.db).QueryRow(ctx, query,
		auditLog.EventTime, auditLog.ActorUserID, auditLog.ActorRole,
		auditLog.RoomID, auditLog.EventType, auditLog.Payload,
	).Scan(&auditLog.ID)
	if err != nil {
		r.log.Error("Audit insert failed", "error", err, "event_type", auditLog.EventType)
		return err
	}
	return nil
}

func (r *auditRepository) ListByRoom(ctx context.Context, roomID uuid.UUID, limit int) ([]*domain.AuditLog, error) {
	rows, err := conn(ctx, r.db).Query(ctx, `
		SELECT id, event_time, actor_user_id, actor_role, room_id, event_type, payload
		FROM audit_log
		WHERE room_id = $1
		ORDER BY event_time DESC, id DESC
		LIMIT $2
	`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		entry := &domain.AuditLog{}
		if err := rows.Scan(&entry.ID, &entry.EventTime, &entry.ActorUserID, &entry.ActorRole,
			&entry.RoomID, &entry.EventType, &entry.Payload); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
