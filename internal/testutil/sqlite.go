// Package testutil opens in-memory sqlite databases carrying the payoutd
// schema for package tests.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

var schema = []string{
	`CREATE TABLE accounts (
		id INTEGER PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		created_at DATETIME,
		profile_updated_at DATETIME
	)`,
	`CREATE TABLE bookings (
		id INTEGER PRIMARY KEY,
		vehicle_id INTEGER NOT NULL,
		owner_id INTEGER NOT NULL,
		renter_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		total_amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		paid_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE payouts (
		id INTEGER PRIMARY KEY,
		booking_id INTEGER NOT NULL,
		method TEXT NOT NULL,
		status TEXT NOT NULL,
		owner_id INTEGER,
		payee_id INTEGER NOT NULL,
		renter_id INTEGER NOT NULL,
		total_amount INTEGER NOT NULL,
		service_fee INTEGER NOT NULL DEFAULT 0,
		insurance_fee INTEGER NOT NULL DEFAULT 0,
		coupon_discount INTEGER NOT NULL DEFAULT 0,
		net_amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		payee_address TEXT NOT NULL,
		payee_address_type TEXT NOT NULL,
		reference TEXT,
		failure_reason TEXT,
		retryable BOOLEAN NOT NULL DEFAULT 1,
		risk_score INTEGER NOT NULL DEFAULT 0,
		risk_flags TEXT NOT NULL DEFAULT '[]',
		attempt_count INTEGER NOT NULL DEFAULT 0,
		refund_reason TEXT,
		review_note TEXT,
		reviewed_by TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		processed_at DATETIME,
		last_attempt_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_payouts_booking_active ON payouts (booking_id) WHERE status <> 'rejected'`,
	`CREATE TABLE payout_attempts (
		id INTEGER PRIMARY KEY,
		payout_id INTEGER NOT NULL,
		attempt_no INTEGER NOT NULL,
		idempotency_key TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		reference TEXT,
		failure_reason TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		UNIQUE (payout_id, attempt_no)
	)`,
	`CREATE TABLE payout_transitions (
		id INTEGER PRIMARY KEY,
		payout_id INTEGER NOT NULL,
		from_status TEXT,
		to_status TEXT NOT NULL,
		reason TEXT,
		actor TEXT NOT NULL,
		occurred_at DATETIME NOT NULL
	)`,
	`CREATE TABLE payee_locks (
		payee_id INTEGER PRIMARY KEY,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE api_keys (
		id INTEGER PRIMARY KEY,
		key_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		scopes TEXT NOT NULL DEFAULT '{}',
		key_hash TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		last_used_at DATETIME,
		revoked_at DATETIME
	)`,
	`CREATE TABLE audit_logs (
		id INTEGER PRIMARY KEY,
		actor_type TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		ip_address TEXT,
		user_agent TEXT,
		created_at DATETIME NOT NULL
	)`,
}

// OpenDB returns an isolated in-memory database with the full schema. Row
// locking clauses are stripped since sqlite serializes writers anyway.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:payoutd_test_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	db.Callback().Query().Before("gorm:query").Register("sqlite_strip_for_update", stripForUpdate)
	db.Callback().Row().Before("gorm:row").Register("sqlite_strip_for_update_row", stripForUpdate)
	db.Callback().Raw().Before("gorm:raw").Register("sqlite_strip_for_update_raw", stripForUpdate)

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func stripForUpdate(d *gorm.DB) {
	sql := d.Statement.SQL.String()
	if !strings.Contains(sql, "FOR UPDATE") {
		return
	}
	sql = strings.ReplaceAll(sql, "FOR UPDATE SKIP LOCKED", "")
	sql = strings.ReplaceAll(sql, "FOR UPDATE", "")
	d.Statement.SQL.Reset()
	d.Statement.SQL.WriteString(sql)
}
