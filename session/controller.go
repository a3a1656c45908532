// Package session runs the chat flow on top of the pure reducer: it owns the
// conversation state, streams model responses into placeholders, and hands
// every committed state to the synchronizer.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"game-companion/chat"
	"game-companion/directive"
	"game-companion/insight"
	"game-companion/llm"
	"game-companion/model"
	"game-companion/utils"
)

var (
	ErrEmpty     = errors.New("message has no text and no images")
	ErrCooldown  = errors.New("generation is cooling down")
	ErrNoPending = errors.New("no pending insight modification")
)

const (
	errorPrefix = "Error: "
	quotaText   = "The AI is currently resting due to high traffic. Service will resume in about an hour."
)

// Options tunes a Controller; zero values pick the defaults
type Options struct {
	SystemPrompt string
	HistoryLimit int
	HandsFree    bool
	Cooldown     time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	// OnChunk receives the cleaned display text while a response streams.
	OnChunk func(messageID, text string)
	Now     func() time.Time
	NewID   func() string
}

// Deps are the collaborators of a Controller; only Provider is required
type Deps struct {
	Provider  llm.Provider
	Saver     Saver
	Cooldown  CooldownStore
	Generator *insight.Generator
	Speaker   Speaker
	Tasks     TaskSink
	Usage     Usage
	Logger    *utils.Logger
}

// Result describes a finished send
type Result struct {
	ConversationID string
	MessageID      string
	Text           string
	Cancelled      bool
	Outcome        chat.Outcome
}

// Controller serializes every state change behind one mutex; I/O happens
// outside of it.
type Controller struct {
	deps   Deps
	opts   Options
	logger *utils.Logger

	root   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	state       model.Collection
	cancels     map[string]context.CancelFunc
	pending     map[string]model.PendingInsightModification
	cooldownEnd time.Time
}

// New creates a Controller over an initial state
func New(deps Deps, initial model.Collection, opts Options) *Controller {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = time.Hour
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if deps.Usage == nil {
		deps.Usage = StaticUsage(false)
	}
	logger := deps.Logger
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	root, cancel := context.WithCancel(context.Background())
	return &Controller{
		deps:    deps,
		opts:    opts,
		logger:  logger,
		root:    root,
		cancel:  cancel,
		state:   initial.EnsureDefault(opts.Now()),
		cancels: map[string]context.CancelFunc{},
		pending: map[string]model.PendingInsightModification{},
	}
}

// Close cancels every in-flight generation and waits for background work
func (c *Controller) Close() {
	c.cancel()
	c.mu.Lock()
	for id, cancel := range c.cancels {
		cancel()
		delete(c.cancels, id)
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// State returns the current collection
func (c *Controller) State() model.Collection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Update applies fn to the state and saves the result
func (c *Controller) Update(fn func(model.Collection) (model.Collection, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := fn(c.state)
	if err != nil {
		return err
	}
	c.commitLocked(next)
	return nil
}

func (c *Controller) commitLocked(next model.Collection) {
	c.state = next
	if c.deps.Saver != nil {
		c.deps.Saver.Save(next)
	}
}

// RestoreCooldown reads a cooldown persisted by an earlier run
func (c *Controller) RestoreCooldown(ctx context.Context) error {
	if c.deps.Cooldown == nil {
		return nil
	}
	end, err := c.deps.Cooldown.CooldownEnd(ctx)
	if err != nil {
		return fmt.Errorf("failed to restore cooldown: %w", err)
	}
	c.mu.Lock()
	c.cooldownEnd = end
	c.mu.Unlock()
	return nil
}

// CooldownRemaining returns how long generation stays disabled
func (c *Controller) CooldownRemaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if left := c.cooldownEnd.Sub(c.opts.Now()); left > 0 {
		return left
	}
	return 0
}

func (c *Controller) setCooldown(end time.Time) {
	c.mu.Lock()
	changed := !c.cooldownEnd.Equal(end)
	c.cooldownEnd = end
	c.mu.Unlock()
	if !changed || c.deps.Cooldown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.root, 5*time.Second)
	defer cancel()
	if err := c.deps.Cooldown.SetCooldownEnd(ctx, end); err != nil {
		c.logger.Warn("Failed to persist cooldown: %v", err)
	}
}

// SendMessage sends to the active thread
func (c *Controller) SendMessage(ctx context.Context, text string, images []string) (Result, error) {
	return c.SendTo(ctx, c.State().ActiveID, text, images)
}

// SendTo sends a user message to a thread and blocks until the response is
// complete, failed or stopped. The user message and the placeholder are
// committed before any I/O.
func (c *Controller) SendTo(ctx context.Context, conversationID, text string, images []string) (Result, error) {
	if strings.TrimSpace(text) == "" && len(images) == 0 {
		return Result{}, ErrEmpty
	}
	if c.deps.Speaker != nil {
		c.deps.Speaker.Cancel()
	}

	user := model.ChatMessage{ID: c.opts.NewID(), Role: model.RoleUser, Text: text, Images: images}
	placeholder := model.ChatMessage{ID: c.opts.NewID(), Role: model.RoleModel, Text: insight.LoadingSentinel}
	res := Result{ConversationID: conversationID, MessageID: placeholder.ID}

	msgCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	next, err := chat.Begin(c.state, conversationID, user, placeholder, c.opts.Now())
	if err != nil {
		c.mu.Unlock()
		return res, err
	}
	c.commitLocked(next)
	c.cancels[placeholder.ID] = cancel
	conv := next.Conversations[conversationID]
	c.mu.Unlock()
	defer c.forget(placeholder.ID)

	if left := c.CooldownRemaining(); left > 0 {
		minutes := int(math.Ceil(left.Minutes()))
		err := fmt.Errorf("%w: try again in about %d minute(s)", ErrCooldown, minutes)
		c.failMessage(placeholder.ID, fmt.Sprintf("The AI is currently resting due to high traffic. Please try again in about %d minute(s).", minutes))
		return res, err
	}

	messages := buildMessages(c.opts.SystemPrompt, conv, user, c.opts.HistoryLimit, c.logger)
	raw, err := c.stream(msgCtx, placeholder.ID, messages)

	switch {
	case msgCtx.Err() != nil:
		c.markCancelled(placeholder.ID)
		res.Cancelled = true
		return res, nil
	case llm.IsQuotaError(err):
		c.setCooldown(c.opts.Now().Add(c.opts.Cooldown))
		c.failMessage(placeholder.ID, quotaText)
		return res, err
	case err != nil:
		c.failMessage(placeholder.ID, err.Error())
		return res, err
	case strings.TrimSpace(raw) == "":
		err := errors.New("empty response")
		c.failMessage(placeholder.ID, err.Error())
		return res, err
	}

	c.setCooldown(time.Time{})
	return c.complete(ctx, res, chat.Turn{
		SourceID:   conversationID,
		UserMsgID:  user.ID,
		ModelMsgID: placeholder.ID,
		Raw:        raw,
		HasImages:  len(images) > 0,
		Pro:        c.deps.Usage.Pro(),
		Log:        c.logger,
	})
}

// stream collects the raw response while mirroring its cleaned form into
// the placeholder
func (c *Controller) stream(ctx context.Context, msgID string, messages []llm.Message) (string, error) {
	ch, err := c.streamWithRetry(ctx, messages)
	if err != nil {
		return "", err
	}

	var raw strings.Builder
	for resp := range ch {
		if resp.Error != nil {
			return raw.String(), resp.Error
		}
		if resp.Content != "" {
			raw.WriteString(resp.Content)
			display := directive.Clean(raw.String())
			c.mu.Lock()
			if next, err := chat.SetMessageText(c.state, msgID, display); err == nil {
				c.commitLocked(next)
			}
			c.mu.Unlock()
			if c.opts.OnChunk != nil {
				c.opts.OnChunk(msgID, display)
			}
		}
		if resp.Done {
			break
		}
	}
	return raw.String(), ctx.Err()
}

// complete commits the finished turn. The message leaves the in-flight set
// under the same lock, so a later Stop cannot overwrite the reply.
func (c *Controller) complete(ctx context.Context, res Result, turn chat.Turn) (Result, error) {
	c.mu.Lock()
	if _, live := c.cancels[turn.ModelMsgID]; !live {
		// stopped between the last chunk and here
		c.mu.Unlock()
		res.Cancelled = true
		return res, nil
	}
	next, out, err := chat.Complete(c.state, turn, c.opts.Now())
	if err != nil {
		c.mu.Unlock()
		return res, err
	}
	delete(c.cancels, turn.ModelMsgID)
	c.commitLocked(next)
	if out.Pending != nil {
		c.pending[out.TargetID] = *out.Pending
	}
	target := next.Conversations[out.TargetID]
	c.mu.Unlock()

	res.ConversationID = out.TargetID
	res.Text = out.FinalText
	res.Outcome = out

	if len(out.Tasks) > 0 && c.deps.Tasks != nil {
		c.deps.Tasks.Tasks(ctx, out.TargetID, out.Tasks)
	}
	if len(out.PendingTabs) > 0 {
		c.generateTabs(target, out.PendingTabs)
	}
	if c.opts.HandsFree && c.deps.Speaker != nil {
		c.speak(out)
	}
	return res, nil
}

func (c *Controller) speak(out chat.Outcome) {
	text := out.Hint
	if text == "" {
		text = out.FinalText
	}
	if text == "" {
		return
	}
	c.wg.Add(1)
	utils.SafeGo(c.logger, "speak hint", func() {
		defer c.wg.Done()
		if err := c.deps.Speaker.Speak(c.root, text); err != nil && c.root.Err() == nil {
			c.logger.Warn("Failed to speak hint: %v", err)
		}
	})
}

// generateTabs fills freshly instantiated tabs in the background. Tabs the
// generator cannot produce end in the error state.
func (c *Controller) generateTabs(conv model.Conversation, tabs []insight.Tab) {
	if c.root.Err() != nil {
		return
	}
	c.wg.Add(1)
	utils.SafeGo(c.logger, "generate insight tabs", func() {
		defer c.wg.Done()
		var results map[string]insight.Generated
		if c.deps.Generator != nil {
			progress := 0
			if conv.Progress != nil {
				progress = *conv.Progress
			}
			ctx, cancel := context.WithTimeout(c.root, 2*time.Minute)
			defer cancel()
			var err error
			results, err = c.deps.Generator.Generate(ctx, conv.Title, conv.Genre, progress, tabs)
			if err != nil {
				c.logger.Warn("Failed to generate insights for %s: %v", conv.ID, err)
			}
		}
		err := c.Update(func(s model.Collection) (model.Collection, error) {
			return chat.Modify(s, conv.ID, func(cur model.Conversation) (model.Conversation, error) {
				return insight.FillBatch(cur, tabs, results, c.opts.Now()), nil
			})
		})
		if err != nil {
			c.logger.Warn("Dropping generated insights for %s: %v", conv.ID, err)
		}
	})
}

func (c *Controller) forget(msgID string) {
	c.mu.Lock()
	delete(c.cancels, msgID)
	c.mu.Unlock()
}

func (c *Controller) failMessage(msgID, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cancels, msgID)
	if next, err := chat.FailMessage(c.state, msgID, errors.New(text)); err == nil {
		c.commitLocked(next)
	}
}

func (c *Controller) markCancelled(msgID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if next, err := chat.CancelMessage(c.state, msgID); err == nil {
		c.commitLocked(next)
	}
}

// Stop aborts the generation of one message. Other messages keep streaming.
func (c *Controller) Stop(msgID string) bool {
	if c.deps.Speaker != nil {
		c.deps.Speaker.Cancel()
	}
	c.mu.Lock()
	cancel, ok := c.cancels[msgID]
	delete(c.cancels, msgID)
	c.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	c.markCancelled(msgID)
	return true
}

// InFlight lists the messages still generating
func (c *Controller) InFlight() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.cancels))
	for id := range c.cancels {
		ids = append(ids, id)
	}
	return ids
}

// Retry removes a failed or cancelled response with its prompt and sends the
// prompt again to the same thread
func (c *Controller) Retry(ctx context.Context, modelMsgID string) (Result, error) {
	c.mu.Lock()
	if _, busy := c.cancels[modelMsgID]; busy {
		c.mu.Unlock()
		return Result{}, fmt.Errorf("message %s is still generating", modelMsgID)
	}
	next, convID, user, err := chat.Retract(c.state, modelMsgID)
	if err != nil {
		c.mu.Unlock()
		return Result{}, err
	}
	c.commitLocked(next)
	c.mu.Unlock()

	return c.SendTo(ctx, convID, user.Text, user.Images)
}

// PendingModification returns the modification waiting in a thread
func (c *Controller) PendingModification(conversationID string) (model.PendingInsightModification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mod, ok := c.pending[conversationID]
	return mod, ok
}

// ConfirmModification applies or discards the pending modification of a thread
func (c *Controller) ConfirmModification(conversationID string, accept bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	mod, ok := c.pending[conversationID]
	if !ok {
		return ErrNoPending
	}
	delete(c.pending, conversationID)
	if !accept {
		return nil
	}
	next, err := chat.Modify(c.state, conversationID, func(conv model.Conversation) (model.Conversation, error) {
		return insight.ApplyModification(conv, mod, c.opts.Now())
	})
	if err != nil {
		return err
	}
	c.commitLocked(next)
	return nil
}

// Switch changes the active thread
func (c *Controller) Switch(id string) error {
	if c.deps.Speaker != nil {
		c.deps.Speaker.Cancel()
	}
	return c.Update(func(s model.Collection) (model.Collection, error) {
		return chat.Switch(s, id)
	})
}

// Reset aborts every generation and starts over with an empty default thread
func (c *Controller) Reset() {
	c.mu.Lock()
	for id, cancel := range c.cancels {
		cancel()
		delete(c.cancels, id)
	}
	c.pending = map[string]model.PendingInsightModification{}
	c.commitLocked(chat.Reset(c.opts.Now()))
	c.mu.Unlock()
}

// Restore replaces the state with a loaded collection; one without the
// default thread resets instead
func (c *Controller) Restore(loaded model.Collection) {
	restored, err := chat.Restore(loaded, c.opts.Now())
	if err != nil {
		c.logger.Warn("Restored history is unusable, resetting: %v", err)
		c.Reset()
		return
	}
	c.mu.Lock()
	c.commitLocked(restored)
	c.mu.Unlock()
}
