package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"game-companion/model"
	"game-companion/utils"
)

func newThreadsCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "threads",
		Short: "List stored threads in display order",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.load(cmd.Context())
			if err != nil {
				return err
			}
			printThreads(newPrinter(cmd.OutOrStdout()), c)
			return nil
		},
	}
}

func printThreads(p *printer, c model.Collection) {
	for _, conv := range c.Sorted() {
		marker := " "
		if conv.ID == c.ActiveID {
			marker = "*"
		}
		pin := ""
		if conv.IsPinned {
			pin = " 📌"
		}
		progress := ""
		if conv.Progress != nil {
			progress = fmt.Sprintf(" %d%%", *conv.Progress)
		}
		p.line("%s %-28s %-30s %3d msgs%s%s", marker, conv.ID, conv.Title, len(conv.Messages), progress, pin)
	}
}

func newExportCommand(flags *rootFlags) *cobra.Command {
	var (
		format string
		output string
		thread string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export threads to JSON or Markdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.load(cmd.Context())
			if err != nil {
				return err
			}

			exportFormat := utils.ExportFormat(format)
			if exportFormat != utils.FormatJSON && exportFormat != utils.FormatMarkdown {
				return fmt.Errorf("unknown export format %q", format)
			}
			if thread == "" && exportFormat == utils.FormatMarkdown {
				return fmt.Errorf("markdown export needs --thread")
			}

			title := "all_threads"
			var conv model.Conversation
			if thread != "" {
				var ok bool
				if conv, ok = c.Get(thread); !ok {
					return fmt.Errorf("thread %q not found", thread)
				}
				title = conv.Title
			}
			if output == "" {
				dir, err := utils.GetDefaultExportPath()
				if err != nil {
					return err
				}
				output = filepath.Join(dir, utils.GenerateExportFilename(title, exportFormat))
			}

			switch {
			case thread == "":
				err = utils.ExportAllConversations(c, output)
			case exportFormat == utils.FormatMarkdown:
				err = utils.ExportConversationToMarkdown(conv, output)
			default:
				err = utils.ExportConversationToJSON(conv, output)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(utils.FormatJSON), "json or markdown")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file")
	cmd.Flags().StringVarP(&thread, "thread", "t", "", "Export a single thread")
	return cmd
}

func newImportCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import threads from a JSON export; existing ids are replaced",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := utils.ImportConversations(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.load(cmd.Context())
			if err != nil {
				return err
			}
			next := c.Clone()
			for _, rec := range records {
				next.Conversations[rec.ID] = model.FromRecord(rec)
			}
			next = next.EnsureDefault(time.Now())
			a.sync.Save(next)
			if err := a.sync.Flush(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d thread(s)\n", len(records))
			return nil
		},
	}
}

func newSearchCommand(flags *rootFlags) *cobra.Command {
	var thread string
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the stored message history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()
			return printSearch(cmd.Context(), newPrinter(cmd.OutOrStdout()), a, args[0], thread)
		},
	}
	cmd.Flags().StringVarP(&thread, "thread", "t", "", "Only search one thread")
	return cmd
}

func printSearch(ctx context.Context, p *printer, a *app, query, thread string) error {
	if query == "" {
		return fmt.Errorf("empty query")
	}
	results, err := a.db.SearchMessagesWithFilters(ctx, query, thread, "", 20)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		p.line("No matches.")
		return nil
	}
	for _, r := range results {
		p.line("%-24s [%s] %s", r.ConversationID, r.Role, r.Snippet)
	}
	return nil
}

func newStatsCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show storage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(flags)
			if err != nil {
				return err
			}
			defer a.Close()
			return printStats(cmd.Context(), newPrinter(cmd.OutOrStdout()), a)
		},
	}
}

func printStats(ctx context.Context, p *printer, a *app) error {
	stats, err := a.db.GetStats()
	if err != nil {
		return err
	}
	p.line("Threads:   %d", stats.ConversationCount)
	p.line("Messages:  %d", stats.MessageCount)
	p.line("Backups:   %d", stats.BackupCount)
	p.line("DB size:   %.1f KB", float64(stats.DBSizeBytes)/1024)

	threads, err := a.db.GetThreadStats(ctx)
	if err != nil {
		return err
	}
	for _, t := range threads {
		p.line("  %-28s %4d (%d user, %d model)", t.ConversationID, t.Messages, t.UserMessages, t.ModelMessages)
	}

	s := a.sync.Stats()
	p.line("Sync:      %d cycles, %d dropped, %d suppressed, %d local / %d remote failures",
		s.Cycles, s.Dropped, s.Suppressed, s.LocalFailures, s.RemoteFailures)
	return nil
}
