package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/harun/chanbridge/pkg/session"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var sessionsFormat string

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List channel sessions",
	Long: `List the agent session bound to each channel.
Output is a table on a terminal and tab-separated text otherwise.`,
	RunE: runSessions,
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear <channel-id>",
	Short: "Forget the session bound to a channel",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsClear,
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsFormat, "format", "", "output format (table, plain, json); default depends on the terminal")
	sessionsCmd.AddCommand(sessionsClearCmd)
	rootCmd.AddCommand(sessionsCmd)
}

type sessionRow struct {
	Channel     string    `json:"channel"`
	ProjectPath string    `json:"project_path"`
	SessionID   string    `json:"session_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func openStore() (*session.FileStore, error) {
	quietLogs()
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return session.NewFileStore(cfg.DataDir)
}

func runSessions(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	sessions, err := store.ListSessions(context.Background())
	if err != nil {
		return err
	}

	rows := make([]sessionRow, 0, len(sessions))
	for channel, sess := range sessions {
		rows = append(rows, sessionRow{
			Channel:     channel,
			ProjectPath: sess.ProjectPath,
			SessionID:   sess.SessionID,
			CreatedAt:   sess.CreatedAt,
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Channel < rows[j].Channel })

	out := cmd.OutOrStdout()
	format := sessionsFormat
	if format == "" {
		format = "plain"
		if isTerminal(out) {
			format = "table"
		}
	}

	return writeSessions(out, rows, format)
}

func runSessionsClear(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}

	channel := args[0]
	if _, err := store.GetSession(context.Background(), channel); err != nil {
		return fmt.Errorf("no session for channel %s: %w", channel, err)
	}
	if err := store.DeleteSession(context.Background(), channel); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Session for %s cleared\n", channel)
	return nil
}

func writeSessions(w io.Writer, rows []sessionRow, format string) error {
	switch strings.ToLower(format) {
	case "table":
		writeSessionsTable(w, rows)
		return nil
	case "plain":
		return writeSessionsPlain(w, rows)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeSessionsPlain(w io.Writer, rows []sessionRow) error {
	for _, r := range rows {
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Channel, r.ProjectPath, r.SessionID, r.CreatedAt.Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return nil
}

func writeSessionsTable(w io.Writer, rows []sessionRow) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateHeader = true
	tw.Style().Format.Header = text.FormatDefault
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignCenter, WidthMax: 60},
		{Number: 3, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 4, Align: text.AlignCenter, AlignHeader: text.AlignCenter},
	})
	tw.AppendHeader(table.Row{"Channel", "Project", "Session ID", "Created"})

	for _, r := range rows {
		tw.AppendRow(table.Row{r.Channel, r.ProjectPath, r.SessionID, r.CreatedAt.Local().Format(time.DateTime)})
	}
	if len(rows) == 0 {
		tw.AppendRow(table.Row{"-", "(no sessions)", "-", "-"})
	}

	_ = tw.Render()
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
