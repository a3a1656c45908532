package session

import (
	"context"
	"time"

	"game-companion/model"
)

// Speaker reads hints aloud in hands-free mode
type Speaker interface {
	Speak(ctx context.Context, text string) error
	Cancel()
}

// TaskSink receives tasks detected in model responses
type TaskSink interface {
	Tasks(ctx context.Context, conversationID string, tasks []model.DetectedTask)
}

// Usage answers tier questions; authentication stays outside this package
type Usage interface {
	Pro() bool
}

// Saver receives every committed state
type Saver interface {
	Save(c model.Collection)
}

// CooldownStore persists the end of the quota cooldown across restarts
type CooldownStore interface {
	CooldownEnd(ctx context.Context) (time.Time, error)
	SetCooldownEnd(ctx context.Context, end time.Time) error
}

// StaticUsage is a fixed tier
type StaticUsage bool

// Pro reports whether the upgraded tier is active
func (u StaticUsage) Pro() bool {
	return bool(u)
}
