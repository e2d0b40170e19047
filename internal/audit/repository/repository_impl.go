package repository

import (
	"context"

	"github.com/smallbiznis/payoutd/internal/audit/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// bookingTarget is the target type used for requests refused before a
// payout record exists.
const bookingTarget = "booking"

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Insert appends one entry. Audit rows are never updated.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	stmt := db.WithContext(ctx).Model(&domain.AuditLog{})

	for column, value := range map[string]string{
		"action":      filter.Action,
		"target_type": filter.TargetType,
		"target_id":   filter.TargetID,
		"actor_type":  filter.ActorType,
	} {
		if value != "" {
			stmt = stmt.Where(column+" = ?", value)
		}
	}

	// A booking trail covers refused requests, which target the booking, and
	// every payout action, which carries booking_id in metadata.
	if filter.BookingID != "" {
		stmt = stmt.Where(
			db.Where("target_type = ? AND target_id = ?", bookingTarget, filter.BookingID).
				Or(datatypes.JSONQuery("metadata").Equals(filter.BookingID, "booking_id")),
		)
	}

	if filter.StartAt != nil {
		stmt = stmt.Where("created_at >= ?", filter.StartAt.UTC())
	}
	if filter.EndAt != nil {
		stmt = stmt.Where("created_at <= ?", filter.EndAt.UTC())
	}
	if c := filter.Cursor; c != nil {
		stmt = stmt.Where("created_at < ? OR (created_at = ? AND id < ?)", c.CreatedAt, c.CreatedAt, c.ID)
	}

	stmt = stmt.Order("created_at DESC").Order("id DESC")
	if filter.Limit > 0 {
		// One extra row tells the caller whether another page exists.
		stmt = stmt.Limit(filter.Limit + 1)
	}

	var logs []*domain.AuditLog
	if err := stmt.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
