package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Account is the read-only view of a marketplace member.
type Account struct {
	ID               int64      `json:"id"`
	DisplayName      string     `json:"display_name"`
	Email            string     `json:"email"`
	CreatedAt        *time.Time `json:"created_at,omitempty"`
	ProfileUpdatedAt *time.Time `json:"profile_updated_at,omitempty"`
}

func (Account) TableName() string { return "accounts" }

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Account, error)
}
