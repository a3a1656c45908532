package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"game-companion/chat"
	"game-companion/insight"
	"game-companion/model"
	"game-companion/session"
	"game-companion/utils"
)

const replHelp = `Commands:
  /threads              list threads
  /switch <id>          show another thread
  /pin <id>, /unpin <id>
  /delete <id>          delete a thread and its stored copies
  /shot <file> [text]   send a screenshot, optionally with a question
  /stop                 stop every response still generating
  /retry                resend the last prompt of this thread
  /confirm, /reject     answer a pending insight change
  /tabs                 list the insight tabs of this thread
  /tab <id>             print one insight tab
  /search <query>       search the message history
  /stats                show storage statistics
  /reset                forget every thread
  /quit                 leave
Anything else is sent as a message.`

func newChatCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat (default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), flags)
		},
	}
}

// printer writes streamed text incrementally. The cleaned text of a stream
// may shrink while a tag is being hidden; only growth is printed.
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	printed map[string]string
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out, printed: map[string]string{}}
}

func (p *printer) chunk(msgID, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.printed[msgID]
	if !strings.HasPrefix(text, last) {
		return
	}
	fmt.Fprint(p.out, text[len(last):])
	p.printed[msgID] = text
}

func (p *printer) done(msgID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.printed, msgID)
	fmt.Fprintln(p.out)
}

func (p *printer) line(format string, v ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", v...)
}

// consoleSpeaker prints hints in hands-free mode; the terminal has no voice
type consoleSpeaker struct {
	p *printer
}

func (s consoleSpeaker) Speak(_ context.Context, text string) error {
	s.p.line("🔊 %s", text)
	return nil
}

func (consoleSpeaker) Cancel() {}

type consoleTasks struct {
	p *printer
}

func (s consoleTasks) Tasks(_ context.Context, conversationID string, tasks []model.DetectedTask) {
	for _, t := range tasks {
		s.p.line("  ☐ [%s] %s", t.Category, t.Title)
	}
}

func runChat(ctx context.Context, flags *rootFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(flags)
	if err != nil {
		return err
	}
	defer a.Close()

	name, pc, err := a.config.ActiveProvider()
	if err != nil {
		return err
	}
	provider, err := newProvider(ctx, name, pc)
	if err != nil {
		return err
	}
	a.logger.Info("%s provider initialized successfully", name)

	generator, err := insight.NewGenerator(provider, 0, a.logger)
	if err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "> ",
		HistoryFile:       filepath.Join(a.config.Data.Dir, "history"),
		InterruptPrompt:   "^C",
		EOFPrompt:         "/quit",
		HistorySearchFold: true,
		Stdin:             readline.NewCancelableStdin(os.Stdin),
		Stdout:            os.Stdout,
		Stderr:            os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	out := newPrinter(rl.Stdout())
	ctrl := session.New(session.Deps{
		Provider:  provider,
		Saver:     a.sync,
		Cooldown:  a.db,
		Generator: generator,
		Speaker:   consoleSpeaker{out},
		Tasks:     consoleTasks{out},
		Usage:     session.StaticUsage(a.config.Session.Pro),
		Logger:    a.logger,
	}, model.NewCollection(time.Now()), session.Options{
		HistoryLimit: a.config.Session.HistoryLimit,
		HandsFree:    a.config.Session.HandsFree,
		Cooldown:     a.config.Session.Cooldown(),
		MaxRetries:   3,
		OnChunk:      out.chunk,
	})
	defer ctrl.Close()

	if err := ctrl.RestoreCooldown(ctx); err != nil {
		a.logger.Warn("%v", err)
	}
	loaded, err := a.load(ctx)
	if err != nil {
		return err
	}
	ctrl.Restore(loaded)

	r := &repl{app: a, ctrl: ctrl, out: out}
	active, _ := ctrl.State().Active()
	out.line("Game Companion v%s, %s. Type /help for commands.", version, provider.Name())
	out.line("Thread: %s", active.Title)

	for {
		input, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(input) == 0 {
				break
			}
			continue
		} else if errors.Is(err, io.EOF) {
			break
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "/quit" || input == "/exit" {
			break
		}
		if strings.HasPrefix(input, "/") {
			r.command(ctx, input)
			continue
		}
		r.send(ctx, input, nil)
	}

	r.wg.Wait()
	out.line("Goodbye!")
	return nil
}

type repl struct {
	app  *app
	ctrl *session.Controller
	out  *printer
	wg   sync.WaitGroup
}

// send runs one turn in the background so the prompt stays usable
func (r *repl) send(ctx context.Context, text string, images []string) {
	r.wg.Add(1)
	utils.SafeGo(r.app.logger, "send message", func() {
		defer r.wg.Done()
		res, err := r.ctrl.SendMessage(ctx, text, images)
		if res.MessageID != "" {
			r.out.done(res.MessageID)
		}
		switch {
		case err != nil:
			r.out.line("Error: %v", err)
		case res.Cancelled:
			r.out.line("%s", chat.CancelledText)
		}
		for _, notice := range notices(r.ctrl.State(), res) {
			r.out.line("ℹ %s", notice)
		}
		if res.Outcome.Promoted {
			r.out.line("→ moved to thread %q", res.ConversationID)
		}
		if res.Outcome.Pending != nil {
			r.out.line("The companion wants to change tab %q. /confirm or /reject.", res.Outcome.Pending.ID)
		}
	})
}

// notices returns the system messages a turn left behind in its thread
func notices(c model.Collection, res session.Result) []string {
	conv, ok := c.Get(res.ConversationID)
	if !ok {
		return nil
	}
	var out []string
	for _, m := range conv.Messages {
		if m.ID == res.MessageID+chat.NoticeSuffix {
			out = append(out, m.Text)
		}
	}
	return out
}

func (r *repl) command(ctx context.Context, input string) {
	fields := strings.Fields(input)
	cmd, args := fields[0], fields[1:]
	arg := strings.TrimSpace(strings.TrimPrefix(input, cmd))

	var err error
	switch cmd {
	case "/help":
		r.out.line("%s", replHelp)
	case "/threads":
		printThreads(r.out, r.ctrl.State())
	case "/switch":
		err = r.ctrl.Switch(arg)
		if err == nil {
			r.printThread()
		}
	case "/pin", "/unpin":
		err = r.ctrl.Update(func(c model.Collection) (model.Collection, error) {
			return chat.Pin(c, arg, cmd == "/pin")
		})
	case "/delete":
		err = r.ctrl.Update(func(c model.Collection) (model.Collection, error) {
			return chat.Delete(c, arg)
		})
		if err == nil {
			err = r.app.sync.Delete(ctx, arg)
		}
	case "/shot":
		if len(args) == 0 {
			err = errors.New("usage: /shot <file> [text]")
			break
		}
		var img string
		img, err = utils.LoadScreenshot(args[0])
		if err == nil {
			r.send(ctx, strings.Join(args[1:], " "), []string{img})
		}
	case "/stop":
		for _, id := range r.ctrl.InFlight() {
			r.ctrl.Stop(id)
		}
	case "/retry":
		id, ok := lastModelMessage(r.ctrl.State())
		if !ok {
			err = errors.New("nothing to retry")
			break
		}
		r.wg.Add(1)
		utils.SafeGo(r.app.logger, "retry message", func() {
			defer r.wg.Done()
			res, err := r.ctrl.Retry(ctx, id)
			if res.MessageID != "" {
				r.out.done(res.MessageID)
			}
			if err != nil {
				r.out.line("Error: %v", err)
			}
		})
	case "/confirm", "/reject":
		active, _ := r.ctrl.State().Active()
		err = r.ctrl.ConfirmModification(active.ID, cmd == "/confirm")
	case "/tabs":
		active, _ := r.ctrl.State().Active()
		for _, ins := range model.OrderedInsights(active) {
			r.out.line("  %-24s %-10s %s", ins.ID, ins.Status, ins.Title)
		}
	case "/tab":
		active, _ := r.ctrl.State().Active()
		var ins model.Insight
		ins, err = insight.Get(active, arg)
		if err == nil {
			r.out.line("## %s\n\n%s", ins.Title, ins.Content)
			err = r.ctrl.Update(func(c model.Collection) (model.Collection, error) {
				return chat.Modify(c, active.ID, func(conv model.Conversation) (model.Conversation, error) {
					return insight.MarkRead(conv, arg)
				})
			})
		}
	case "/search":
		err = printSearch(ctx, r.out, r.app, arg, "")
	case "/stats":
		err = printStats(ctx, r.out, r.app)
	case "/reset":
		r.ctrl.Reset()
	default:
		err = fmt.Errorf("unknown command %s, try /help", cmd)
	}
	if err != nil {
		r.out.line("Error: %v", err)
	}
}

func (r *repl) printThread() {
	active, ok := r.ctrl.State().Active()
	if !ok {
		return
	}
	r.out.line("Thread: %s", active.Title)
	start := 0
	if len(active.Messages) > 6 {
		start = len(active.Messages) - 6
	}
	for _, m := range active.Messages[start:] {
		r.out.line("[%s] %s", m.Role, m.Text)
	}
}

// lastModelMessage finds the newest model message of the active thread
func lastModelMessage(c model.Collection) (string, bool) {
	active, ok := c.Active()
	if !ok {
		return "", false
	}
	for i := len(active.Messages) - 1; i >= 0; i-- {
		if active.Messages[i].Role == model.RoleModel {
			return active.Messages[i].ID, true
		}
	}
	return "", false
}
