package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

// APIKey stores a hashed credential bound to one authorization role.
type APIKey struct {
	ID         snowflake.ID   `gorm:"primaryKey"`
	KeyID      string         `gorm:"column:key_id;type:text;not null;uniqueIndex"`
	Name       string         `gorm:"type:text;not null"`
	Role       string         `gorm:"type:text;not null"`
	Scopes     pq.StringArray `gorm:"type:text[];not null"`
	KeyHash    string         `gorm:"column:key_hash;type:text;not null"`
	IsActive   bool           `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time      `gorm:"not null"`
	UpdatedAt  time.Time      `gorm:"not null"`
	LastUsedAt *time.Time     `gorm:"column:last_used_at"`
	RevokedAt  *time.Time     `gorm:"column:revoked_at"`
}

// TableName sets the database table name.
func (APIKey) TableName() string { return "api_keys" }
