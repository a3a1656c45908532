package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"game-companion/model"
)

// ExportFormat represents the export format
type ExportFormat string

const (
	FormatJSON     ExportFormat = "json"
	FormatMarkdown ExportFormat = "markdown"
)

const exportVersion = "1.0"

// ExportFile is the JSON document written by the exporters
type ExportFile struct {
	Metadata      map[string]string `json:"metadata"`
	Conversations []model.Record    `json:"conversations"`
}

func exportMetadata(count int) map[string]string {
	return map[string]string{
		"export_version": exportVersion,
		"export_date":    time.Now().Format(time.RFC3339),
		"app_name":       "Game Companion",
		"total_count":    fmt.Sprintf("%d", count),
	}
}

// ExportConversationToJSON exports a single conversation to JSON format
func ExportConversationToJSON(conv model.Conversation, path string) error {
	return writeExport(path, []model.Record{model.ToRecord(conv)})
}

// ExportAllConversations exports every thread, in display order, to one JSON file
func ExportAllConversations(c model.Collection, path string) error {
	return writeExport(path, model.SnapshotOf(c).Records)
}

func writeExport(path string, records []model.Record) error {
	file := ExportFile{
		Metadata:      exportMetadata(len(records)),
		Conversations: records,
	}

	// Marshal to JSON with indentation
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// ImportConversations reads an export file back. Records without an id or
// without messages are skipped.
func ImportConversations(path string) ([]model.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var file ExportFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	if file.Conversations == nil {
		return nil, fmt.Errorf("invalid export: missing conversations array")
	}

	records := make([]model.Record, 0, len(file.Conversations))
	for _, rec := range file.Conversations {
		if rec.ID == "" || len(rec.Messages) == 0 {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// ExportConversationToMarkdown exports a single conversation, its context and
// its insight tabs to Markdown
func ExportConversationToMarkdown(conv model.Conversation, path string) error {
	if err := os.WriteFile(path, []byte(RenderMarkdown(conv)), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// RenderMarkdown renders a conversation as a Markdown document
func RenderMarkdown(conv model.Conversation) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# %s\n\n", conv.Title))
	if conv.Genre != "" {
		sb.WriteString(fmt.Sprintf("**Genre**: %s\n\n", conv.Genre))
	}
	if conv.Progress != nil {
		sb.WriteString(fmt.Sprintf("**Progress**: %d%%\n\n", *conv.Progress))
	}
	if conv.ActiveObjective != nil {
		state := "in progress"
		if conv.ActiveObjective.IsCompleted {
			state = "done"
		}
		sb.WriteString(fmt.Sprintf("**Objective**: %s (%s)\n\n", conv.ActiveObjective.Description, state))
	}
	if len(conv.Inventory) > 0 {
		sb.WriteString(fmt.Sprintf("**Inventory**: %s\n\n", strings.Join(conv.Inventory, ", ")))
	}
	sb.WriteString(fmt.Sprintf("**Created**: %s\n\n", conv.CreatedAt.Format("2006-01-02 15:04:05")))
	sb.WriteString("---\n\n")

	// Messages
	for i, msg := range conv.Messages {
		roleName := "You"
		if msg.Role == model.RoleModel {
			roleName = "Companion"
		}
		sb.WriteString(fmt.Sprintf("## %s\n\n", roleName))
		if n := len(msg.Images); n > 0 {
			sb.WriteString(fmt.Sprintf("*%d screenshot(s) attached*\n\n", n))
		}
		sb.WriteString(msg.Text)
		sb.WriteString("\n\n")

		// Separator (except for last message)
		if i < len(conv.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	// Insights
	if tabs := model.OrderedInsights(conv); len(tabs) > 0 {
		sb.WriteString("\n---\n\n# Insights\n\n")
		for _, ins := range tabs {
			sb.WriteString(fmt.Sprintf("## %s\n\n%s\n\n", ins.Title, ins.Content))
		}
	}

	// Footer
	sb.WriteString("\n---\n\n")
	sb.WriteString(fmt.Sprintf("*Exported: %s*\n", time.Now().Format("2006-01-02 15:04:05")))

	return sb.String()
}

// GenerateExportFilename generates a filename for export
func GenerateExportFilename(title string, format ExportFormat) string {
	// Sanitize title for filename
	sanitized := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|' {
			return '_'
		}
		return r
	}, title)

	// Truncate if too long
	if len(sanitized) > 50 {
		sanitized = sanitized[:50]
	}

	// Add timestamp and extension
	timestamp := time.Now().Format("20060102_150405")
	ext := string(format)
	if format == FormatMarkdown {
		ext = "md"
	}

	return fmt.Sprintf("%s_%s.%s", sanitized, timestamp, ext)
}

// GetDefaultExportPath returns the default export directory
func GetDefaultExportPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	exportDir := filepath.Join(homeDir, "Documents", "GameCompanion_Exports")

	// Create directory if it doesn't exist
	if err := os.MkdirAll(exportDir, 0755); err != nil {
		return "", err
	}

	return exportDir, nil
}
