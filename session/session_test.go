package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"game-companion/chat"
	"game-companion/insight"
	"game-companion/llm"
	"game-companion/model"
	"game-companion/utils"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// scriptedProvider streams one scripted reply per call
type scriptedProvider struct {
	mu      sync.Mutex
	replies [][]string
	errs    []error
	hold    bool // keep the stream open until ctx ends
	calls   int
	last    []llm.Message
	chat    string
}

func (p *scriptedProvider) StreamChat(ctx context.Context, messages []llm.Message) (<-chan llm.StreamResponse, error) {
	p.mu.Lock()
	i := p.calls
	p.calls++
	p.last = messages
	var err error
	if i < len(p.errs) {
		err = p.errs[i]
	}
	var chunks []string
	if len(p.replies) > 0 {
		chunks = p.replies[min(i, len(p.replies)-1)]
	}
	hold := p.hold
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	ch := make(chan llm.StreamResponse)
	go func() {
		defer close(ch)
		for _, chunk := range chunks {
			select {
			case ch <- llm.StreamResponse{Content: chunk}:
			case <-ctx.Done():
				return
			}
		}
		if hold {
			<-ctx.Done()
			return
		}
		select {
		case ch <- llm.StreamResponse{Done: true}:
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

func (p *scriptedProvider) Chat(context.Context, []llm.Message) (string, error) {
	return p.chat, nil
}

func (p *scriptedProvider) Name() string          { return "scripted" }
func (p *scriptedProvider) Models() []string      { return nil }
func (p *scriptedProvider) ValidateConfig() error { return nil }

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *scriptedProvider) lastMessages() []llm.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

type countingSaver struct {
	mu    sync.Mutex
	saves int
	last  model.Collection
}

func (s *countingSaver) Save(c model.Collection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.last = c
}

type memoryCooldown struct {
	mu  sync.Mutex
	end time.Time
}

func (m *memoryCooldown) CooldownEnd(context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.end, nil
}

func (m *memoryCooldown) SetCooldownEnd(_ context.Context, end time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.end = end
	return nil
}

type recordingSpeaker struct {
	mu     sync.Mutex
	spoken []string
}

func (r *recordingSpeaker) Speak(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spoken = append(r.spoken, text)
	return nil
}

func (r *recordingSpeaker) Cancel() {}

type recordingTasks struct {
	mu    sync.Mutex
	tasks map[string][]model.DetectedTask
}

func (r *recordingTasks) Tasks(_ context.Context, id string, tasks []model.DetectedTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[id] = append(r.tasks[id], tasks...)
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("msg-%d", n)
	}
}

func newController(deps Deps, initial model.Collection, opts Options) *Controller {
	opts.Now = func() time.Time { return t0 }
	opts.NewID = sequentialIDs()
	opts.RetryBackoff = time.Millisecond
	return New(deps, initial, opts)
}

func TestSendPromotesScreenshotTurn(t *testing.T) {
	provider := &scriptedProvider{replies: [][]string{{
		"[OTAKON_GAME_ID: Elden Ring][OTAKON_CONF", "IDENCE: high]Go ", "left.",
	}}}
	saver := &countingSaver{}
	var chunks []string
	c := newController(Deps{Provider: provider, Saver: saver}, model.NewCollection(t0), Options{
		OnChunk: func(_, text string) { chunks = append(chunks, text) },
	})
	defer c.Close()

	img := utils.EncodeDataURL("image/png", []byte{1, 2, 3})
	res, err := c.SendMessage(context.Background(), "", []string{img})
	require.NoError(t, err)

	assert.Equal(t, "elden-ring", res.ConversationID)
	assert.Equal(t, "Go left.", res.Text)
	assert.True(t, res.Outcome.Promoted)
	assert.Equal(t, []string{"", "Go", "Go left."}, chunks)

	state := c.State()
	assert.Equal(t, "elden-ring", state.ActiveID)
	require.Len(t, state.Conversations["elden-ring"].Messages, 2)
	assert.Empty(t, state.Conversations[model.DefaultConversationID].Messages)

	last := provider.lastMessages()
	require.NotEmpty(t, last)
	assert.Equal(t, "system", last[0].Role)
	turn := last[len(last)-1]
	assert.Equal(t, screenshotPrompt, turn.Content)
	require.Len(t, turn.Attachments, 1)
	assert.Equal(t, "image/png", turn.Attachments[0].MimeType)

	saver.mu.Lock()
	defer saver.mu.Unlock()
	assert.Greater(t, saver.saves, 1)
	assert.Equal(t, "elden-ring", saver.last.ActiveID)
}

func TestSendRejectsEmpty(t *testing.T) {
	c := newController(Deps{Provider: &scriptedProvider{}}, model.NewCollection(t0), Options{})
	defer c.Close()

	_, err := c.SendMessage(context.Background(), "   ", nil)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestStopCancelsOnlyThatMessage(t *testing.T) {
	provider := &scriptedProvider{replies: [][]string{{"Thinking"}}, hold: true}
	c := newController(Deps{Provider: provider}, model.NewCollection(t0), Options{})
	defer c.Close()

	done := make(chan Result, 1)
	go func() {
		res, _ := c.SendMessage(context.Background(), "help", nil)
		done <- res
	}()

	require.Eventually(t, func() bool { return len(c.InFlight()) == 1 }, time.Second, time.Millisecond)
	id := c.InFlight()[0]
	assert.True(t, c.Stop(id))

	res := <-done
	assert.True(t, res.Cancelled)
	msgs := c.State().Conversations[model.DefaultConversationID].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.CancelledText, msgs[1].Text)
	assert.False(t, c.Stop(id))
}

// stoppingTasks presses Stop while the finished reply is handed off
type stoppingTasks struct {
	ctrl    *Controller
	stopped []bool
}

func (s *stoppingTasks) Tasks(context.Context, string, []model.DetectedTask) {
	s.stopped = append(s.stopped, s.ctrl.Stop("msg-2"))
}

func TestStopAfterCompletionKeepsReply(t *testing.T) {
	provider := &scriptedProvider{replies: [][]string{{
		`The haunted forest is dark. [SUGGESTIONS: ["How do I beat the boss?"]]`,
	}}}
	sink := &stoppingTasks{}
	c := newController(Deps{Provider: provider, Tasks: sink}, model.NewCollection(t0), Options{})
	defer c.Close()
	sink.ctrl = c

	res, err := c.SendMessage(context.Background(), "help", nil)
	require.NoError(t, err)
	require.NotEmpty(t, sink.stopped)

	assert.False(t, res.Cancelled)
	assert.NotContains(t, sink.stopped, true)
	assert.Empty(t, c.InFlight())
	msgs := c.State().Conversations[model.DefaultConversationID].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, res.Text, msgs[1].Text)
	assert.NotEqual(t, chat.CancelledText, msgs[1].Text)
}

func TestQuotaErrorStartsCooldown(t *testing.T) {
	provider := &scriptedProvider{errs: []error{&llm.QuotaError{Provider: "gemini", Err: errors.New("429")}}}
	store := &memoryCooldown{}
	c := newController(Deps{Provider: provider, Cooldown: store}, model.NewCollection(t0), Options{})
	defer c.Close()

	_, err := c.SendMessage(context.Background(), "hi", nil)
	require.True(t, llm.IsQuotaError(err))

	msgs := c.State().Conversations[model.DefaultConversationID].Messages
	assert.Equal(t, errorPrefix+quotaText, msgs[1].Text)
	assert.Equal(t, t0.Add(time.Hour), store.end)
	assert.Equal(t, time.Hour, c.CooldownRemaining())

	_, err = c.SendMessage(context.Background(), "again", nil)
	assert.ErrorIs(t, err, ErrCooldown)
	msgs = c.State().Conversations[model.DefaultConversationID].Messages
	assert.Contains(t, msgs[3].Text, "60 minute(s)")
	assert.Equal(t, 1, provider.callCount(), "cooling down skips the provider")
}

func TestRestoreCooldown(t *testing.T) {
	store := &memoryCooldown{end: t0.Add(10 * time.Minute)}
	c := newController(Deps{Provider: &scriptedProvider{}, Cooldown: store}, model.NewCollection(t0), Options{})
	defer c.Close()

	require.NoError(t, c.RestoreCooldown(context.Background()))
	assert.Equal(t, 10*time.Minute, c.CooldownRemaining())
}

func TestRetryResendsPrompt(t *testing.T) {
	provider := &scriptedProvider{
		errs:    []error{errors.New("bad request")},
		replies: [][]string{{"Try the lever."}},
	}
	c := newController(Deps{Provider: provider}, model.NewCollection(t0), Options{MaxRetries: 2})
	defer c.Close()

	first, err := c.SendMessage(context.Background(), "stuck", nil)
	require.Error(t, err)
	assert.Equal(t, 1, provider.callCount(), "non-network errors are not retried")

	res, err := c.Retry(context.Background(), first.MessageID)
	require.NoError(t, err)
	assert.Equal(t, "Try the lever.", res.Text)

	msgs := c.State().Conversations[model.DefaultConversationID].Messages
	require.Len(t, msgs, 2)
	assert.Equal(t, "stuck", msgs[0].Text)
	assert.Equal(t, "Try the lever.", msgs[1].Text)
}

func TestTransientErrorsAreRetried(t *testing.T) {
	provider := &scriptedProvider{
		errs:    []error{errors.New("dial tcp: connection refused")},
		replies: [][]string{{"ok"}},
	}
	c := newController(Deps{Provider: provider}, model.NewCollection(t0), Options{MaxRetries: 2})
	defer c.Close()

	res, err := c.SendMessage(context.Background(), "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, 2, provider.callCount())
}

func gameCollection() model.Collection {
	c := model.NewCollection(t0)
	game := model.NewConversation("elden-ring", "Elden Ring", t0)
	game, _ = insight.Instantiate(game, "Action RPG", false, t0)
	game, _ = insight.Overwrite(game, insight.DiaryID, "", "Met Melina.", t0)
	progress := 20
	game.Progress = &progress
	game.Inventory = []string{"Flask", "Torch"}
	c.Conversations[game.ID] = game
	c.Order = append(c.Order, game.ID)
	c.ActiveID = game.ID
	return c
}

func TestPendingModificationNeedsConfirmation(t *testing.T) {
	provider := &scriptedProvider{replies: [][]string{{
		`[OTAKON_INSIGHT_MODIFY_PENDING: {"id": "otaku-diary", "title": "Diary", "content": "Rewritten."}]Want me to rewrite your diary?`,
	}}}
	c := newController(Deps{Provider: provider}, gameCollection(), Options{})
	defer c.Close()

	res, err := c.SendMessage(context.Background(), "clean up my diary", nil)
	require.NoError(t, err)
	assert.Equal(t, "elden-ring", res.ConversationID)

	mod, ok := c.PendingModification("elden-ring")
	require.True(t, ok)
	assert.Equal(t, "otaku-diary", mod.ID)
	assert.Equal(t, "Met Melina.", c.State().Conversations["elden-ring"].Insights[insight.DiaryID].Content)

	require.NoError(t, c.ConfirmModification("elden-ring", true))
	assert.Equal(t, "Rewritten.", c.State().Conversations["elden-ring"].Insights[insight.DiaryID].Content)
	assert.ErrorIs(t, c.ConfirmModification("elden-ring", true), ErrNoPending)
}

func TestContextNotesReachTheModel(t *testing.T) {
	provider := &scriptedProvider{replies: [][]string{{"Sure."}}}
	c := newController(Deps{Provider: provider}, gameCollection(), Options{})
	defer c.Close()

	_, err := c.SendMessage(context.Background(), "what next?", nil)
	require.NoError(t, err)

	last := provider.lastMessages()
	turn := last[len(last)-1].Content
	assert.Contains(t, turn, "[META_INVENTORY: Flask, Torch]")
	assert.Contains(t, turn, "[META_GAME_PROGRESS: 20]")
	assert.True(t, strings.HasSuffix(turn, "what next?"))
}

func TestHistorySkipsCancelledRepliesAndNotices(t *testing.T) {
	conv := model.Conversation{ID: model.DefaultConversationID, Messages: []model.ChatMessage{
		{ID: "m1", Role: model.RoleUser, Text: "Where is the key?"},
		{ID: "m2", Role: model.RoleModel, Text: chat.CancelledText},
		{ID: "m3", Role: model.RoleUser, Text: "Is this Hades?"},
		{ID: "m4", Role: model.RoleModel, Text: "Probably."},
		{ID: "m4-notice", Role: model.RoleModel, Text: "Send a screenshot to confirm."},
		{ID: "m5", Role: model.RoleModel, Text: errorPrefix + "boom"},
	}}
	user := model.ChatMessage{ID: "m6", Role: model.RoleUser, Text: "thanks"}

	msgs := buildMessages("sys", conv, user, 0, utils.NewNopLogger())
	var contents []string
	for _, m := range msgs {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"sys", "Where is the key?", "Is this Hades?", "Probably.", "thanks"}, contents)
}

func TestHandsFreeSpeaksHintAndReportsTasks(t *testing.T) {
	provider := &scriptedProvider{replies: [][]string{{
		`[HINT_START]Use the torch.[HINT_END] The haunted forest is dark. [SUGGESTIONS: ["How do I beat the boss?"]]`,
	}}}
	speaker := &recordingSpeaker{}
	sink := &recordingTasks{tasks: map[string][]model.DetectedTask{}}
	c := newController(Deps{Provider: provider, Speaker: speaker, Tasks: sink}, model.NewCollection(t0), Options{HandsFree: true})

	_, err := c.SendMessage(context.Background(), "help", nil)
	require.NoError(t, err)
	c.Close()

	assert.Equal(t, []string{"Use the torch."}, speaker.spoken)
	assert.NotEmpty(t, sink.tasks[model.DefaultConversationID])
}

func TestProTierGeneratesTabsInBackground(t *testing.T) {
	provider := &scriptedProvider{
		replies: [][]string{{"[GAME_ID: Elden Ring][CONFIDENCE: high][GENRE: Action RPG]Welcome."}},
		chat:    `{"story_so_far": {"title": "Story So Far", "content": "You arrived in the Lands Between."}}`,
	}
	gen, err := insight.NewGenerator(provider, 8, utils.NewNopLogger())
	require.NoError(t, err)
	c := newController(Deps{Provider: provider, Generator: gen, Usage: StaticUsage(true)}, model.NewCollection(t0), Options{})

	res, err := c.SendMessage(context.Background(), "I just started", nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.Outcome.PendingTabs)
	c.Close()

	game := c.State().Conversations["elden-ring"]
	assert.Equal(t, "You arrived in the Lands Between.", game.Insights["story_so_far"].Content)
	for _, tab := range res.Outcome.PendingTabs {
		status := game.Insights[tab.ID].Status
		assert.NotEqual(t, model.StatusLoading, status, tab.ID)
	}
}

func TestRestoreWithoutDefaultResets(t *testing.T) {
	c := newController(Deps{Provider: &scriptedProvider{}}, gameCollection(), Options{})
	defer c.Close()

	c.Restore(model.Collection{Conversations: map[string]model.Conversation{}})
	assert.Equal(t, []string{model.DefaultConversationID}, c.State().Order)
}
