package remote

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgtype"

	"game-companion/model"
)

// ConversationRow stores one thread of one user. The nested parts of the
// record live in JSONB columns.
type ConversationRow struct {
	UserID    string       `gorm:"primaryKey;not null"`
	ID        string       `gorm:"primaryKey;not null"`
	Title     string       `gorm:"not null"`
	Messages  pgtype.JSONB `gorm:"type:jsonb;not null"`
	Insights  pgtype.JSONB `gorm:"type:jsonb"`
	Context   pgtype.JSONB `gorm:"type:jsonb"`
	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"index"`
}

// TableName overrides the gorm default
func (ConversationRow) TableName() string {
	return "conversations"
}

func setJSONB(dst *pgtype.JSONB, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return dst.Set(data)
}

// toRow converts a record into its row. A record without insights leaves the
// column NULL, so reads can tell it apart from an emptied tab list.
func toRow(userID string, rec model.Record) (*ConversationRow, error) {
	row := &ConversationRow{
		UserID:    userID,
		ID:        rec.ID,
		Title:     rec.Title,
		CreatedAt: rec.CreatedAt,
	}
	messages := rec.Messages
	if messages == nil {
		messages = []model.ChatMessage{}
	}
	if err := setJSONB(&row.Messages, messages); err != nil {
		return nil, fmt.Errorf("failed to encode messages of %s: %w", rec.ID, err)
	}
	if rec.Insights != nil {
		if err := setJSONB(&row.Insights, rec.Insights); err != nil {
			return nil, fmt.Errorf("failed to encode insights of %s: %w", rec.ID, err)
		}
	} else {
		row.Insights = pgtype.JSONB{Status: pgtype.Null}
	}
	if err := setJSONB(&row.Context, rec.Context); err != nil {
		return nil, fmt.Errorf("failed to encode context of %s: %w", rec.ID, err)
	}
	return row, nil
}

func fromRow(row ConversationRow) (model.Record, error) {
	rec := model.Record{
		ID:        row.ID,
		Title:     row.Title,
		CreatedAt: row.CreatedAt,
	}
	if row.Messages.Status == pgtype.Present {
		if err := row.Messages.AssignTo(&rec.Messages); err != nil {
			return rec, fmt.Errorf("failed to decode messages of %s: %w", row.ID, err)
		}
	}
	if row.Insights.Status == pgtype.Present {
		if err := row.Insights.AssignTo(&rec.Insights); err != nil {
			return rec, fmt.Errorf("failed to decode insights of %s: %w", row.ID, err)
		}
	}
	if row.Context.Status == pgtype.Present {
		if err := row.Context.AssignTo(&rec.Context); err != nil {
			return rec, fmt.Errorf("failed to decode context of %s: %w", row.ID, err)
		}
	}
	return rec, nil
}
