// Package insight manages the insight tabs attached to a conversation: the
// per-tab status machine, the content merge rules, genre templates and the
// batched content generation for freshly instantiated tabs.
package insight

import (
	"errors"
	"fmt"
	"time"

	"game-companion/model"
)

// LoadingSentinel is the content of a tab waiting for its first content
const LoadingSentinel = "Loading..."

var (
	ErrInvalidTransition = errors.New("invalid insight transition")
	ErrNotFound          = errors.New("insight not found")
	ErrDuplicate         = errors.New("insight already exists")
	ErrEmptyTitle        = errors.New("insight title is empty")
)

func invalid(ins model.Insight, to model.InsightStatus) error {
	return fmt.Errorf("%w: %s -> %s (%s)", ErrInvalidTransition, ins.Status, to, ins.ID)
}

// Request starts (or restarts) generation. It is the only way out of the
// error state. A tab that is already streaming cannot be requested again.
func Request(ins model.Insight, now time.Time) (model.Insight, error) {
	switch ins.Status {
	case model.StatusPlaceholder, model.StatusLoaded, model.StatusError, model.StatusLoading:
	default:
		return ins, invalid(ins, model.StatusLoading)
	}
	ins.Status = model.StatusLoading
	ins.Content = LoadingSentinel
	ins.LastUpdated = now
	return ins, nil
}

// Chunk appends streamed content. The first chunk replaces the sentinel.
func Chunk(ins model.Insight, chunk string, now time.Time) (model.Insight, error) {
	switch ins.Status {
	case model.StatusLoading:
		ins.Content = chunk
	case model.StatusStreaming:
		ins.Content += chunk
	default:
		return ins, invalid(ins, model.StatusStreaming)
	}
	ins.Status = model.StatusStreaming
	ins.LastUpdated = now
	return ins, nil
}

// Finish ends a stream
func Finish(ins model.Insight, now time.Time) (model.Insight, error) {
	if ins.Status != model.StatusStreaming {
		return ins, invalid(ins, model.StatusLoaded)
	}
	ins.Status = model.StatusLoaded
	ins.IsNew = true
	ins.LastUpdated = now
	return ins, nil
}

// Fill delivers complete content in one go, as a batch generation does
func Fill(ins model.Insight, content string, now time.Time) (model.Insight, error) {
	ins, err := Chunk(ins, content, now)
	if err != nil {
		return ins, err
	}
	return Finish(ins, now)
}

// Fail moves any state to error. A tab that never got content shows msg.
func Fail(ins model.Insight, msg string, now time.Time) model.Insight {
	if ins.Content == "" || ins.Content == LoadingSentinel || ins.Status == model.StatusLoading {
		ins.Content = msg
	}
	ins.Status = model.StatusError
	ins.LastUpdated = now
	return ins
}

// ApplyUpdate merges content delivered by an update directive. A sentinel or
// empty content is replaced, anything else is kept and the new content is
// appended after a blank line. The tab ends loaded and flagged as unread.
func ApplyUpdate(ins model.Insight, content string, now time.Time) model.Insight {
	if ins.Content == "" || ins.Content == LoadingSentinel {
		ins.Content = content
	} else {
		ins.Content = ins.Content + "\n\n" + content
	}
	ins.Status = model.StatusLoaded
	ins.IsNew = true
	ins.LastUpdated = now
	return ins
}
