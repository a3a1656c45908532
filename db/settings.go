package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// GetSetting returns a setting value and whether it exists
func (db *DB) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := db.conn.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting inserts or replaces a setting
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	return setSetting(ctx, db.conn, key, value)
}

// DeleteSetting removes a setting; a missing key is not an error
func (db *DB) DeleteSetting(ctx context.Context, key string) error {
	if _, err := db.conn.ExecContext(ctx, "DELETE FROM settings WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func setSetting(ctx context.Context, ex execer, key, value string) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// CooldownEnd returns the stored end of the quota cooldown, zero when unset
func (db *DB) CooldownEnd(ctx context.Context) (time.Time, error) {
	value, ok, err := db.GetSetting(ctx, KeyCooldownEnd)
	if err != nil || !ok {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cooldown value %q: %w", value, err)
	}
	return time.UnixMilli(ms), nil
}

// SetCooldownEnd stores the end of the quota cooldown; a zero time clears it
func (db *DB) SetCooldownEnd(ctx context.Context, end time.Time) error {
	if end.IsZero() {
		return db.DeleteSetting(ctx, KeyCooldownEnd)
	}
	return db.SetSetting(ctx, KeyCooldownEnd, strconv.FormatInt(end.UnixMilli(), 10))
}
