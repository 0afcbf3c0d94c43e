package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/samsaffron/tierchat/internal/session"
	"github.com/samsaffron/tierchat/internal/ui"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage chat sessions",
	Long: `List, show, rename, and delete chat sessions, and grade their messages.

Messages graded below a session's context threshold are kept but no longer
sent to the model.

Examples:
  tierchat sessions                       # List recent sessions
  tierchat sessions show <id>
  tierchat sessions grade <id> <message-id> 0
  tierchat sessions threshold <id> 1`,
	RunE: runSessionsList, // Default to list
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session's messages",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsNameCmd = &cobra.Command{
	Use:     "name <id> <name>",
	Aliases: []string{"rename"},
	Short:   "Set a custom name for a session",
	Args:    cobra.ExactArgs(2),
	RunE:    runSessionsName,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

var sessionsThresholdCmd = &cobra.Command{
	Use:   "threshold <id> [n]",
	Short: "Show or set the context threshold of a session",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runSessionsThreshold,
}

var sessionsGradeCmd = &cobra.Command{
	Use:   "grade <id> <message-id> <grade>",
	Short: "Set the relevance grade of a message",
	Args:  cobra.ExactArgs(3),
	RunE:  runSessionsGrade,
}

// Flags
var (
	sessionsLimit int
	sessionsJSON  bool
)

func init() {
	sessionsListCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "Maximum number of sessions to list")
	sessionsShowCmd.Flags().BoolVar(&sessionsJSON, "json", false, "Output as JSON")

	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsNameCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.AddCommand(sessionsThresholdCmd)
	sessionsCmd.AddCommand(sessionsGradeCmd)

	rootCmd.AddCommand(sessionsCmd)
}

func getSessionStore() (session.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if !cfg.Session.Enabled {
		return nil, errors.New("session storage is disabled in config")
	}

	return session.NewStore(session.Config{
		Enabled: cfg.Session.Enabled,
		Path:    cfg.Session.Path,
	})
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	store, err := getSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	summaries, err := store.List(context.Background(), session.ListOptions{Limit: sessionsLimit})
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(summaries) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}

	fmt.Printf("%-36s %-30s %4s %5s %-11s %s\n", "ID", "SUMMARY", "MSGS", "THRSH", "TOKENS", "AGE")
	fmt.Println(strings.Repeat("-", 100))

	for _, s := range summaries {
		summary := s.Summary
		if s.Name != "" {
			summary = s.Name
		}
		fmt.Printf("%-36s %-30s %4d %5d %-11s %s\n",
			s.ID, ui.Truncate(summary, 30), s.MessageCount, s.Threshold,
			ui.FormatTokens(s.InputTokens, s.OutputTokens), ui.FormatRelativeTime(s.UpdatedAt))
	}

	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	store, err := getSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	sess, err := store.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	if sess == nil {
		return fmt.Errorf("session %s not found", args[0])
	}
	messages, err := store.LoadMessages(ctx, sess.ID)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}

	if sessionsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*session.Session
			Messages []session.Message `json:"messages"`
		}{sess, messages})
	}

	styles := ui.NewStyles(os.Stdout)
	title := sess.Summary
	if sess.Name != "" {
		title = sess.Name
	}
	fmt.Println(styles.Title.Render(title))
	fmt.Println(styles.Muted.Render(fmt.Sprintf("%s | threshold %d | created %s",
		sess.ID, sess.Threshold, ui.FormatRelativeTime(sess.CreatedAt))))
	for _, m := range messages {
		header := fmt.Sprintf("#%d %s grade %d", m.ID, m.Role, m.Grade)
		if m.Tier != "" {
			header += " [" + m.Tier + "]"
		}
		if m.Grade < sess.Threshold {
			header += " (excluded)"
		}
		fmt.Println()
		fmt.Println(styles.Bold.Render(header))
		fmt.Println(m.Content)
	}
	return nil
}

func runSessionsName(cmd *cobra.Command, args []string) error {
	store, err := getSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Rename(context.Background(), args[0], args[1]); err != nil {
		return sessionError(args[0], err)
	}
	fmt.Printf("Session %s named %q\n", args[0], strings.TrimSpace(args[1]))
	return nil
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	store, err := getSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Delete(context.Background(), args[0]); err != nil {
		return sessionError(args[0], err)
	}
	fmt.Printf("Deleted session %s\n", args[0])
	return nil
}

func runSessionsThreshold(cmd *cobra.Command, args []string) error {
	store, err := getSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	if len(args) == 1 {
		threshold, err := store.LoadContextThreshold(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(threshold)
		return nil
	}

	n, err := strconv.Atoi(args[1])
	if err != nil || n < 0 {
		return fmt.Errorf("invalid threshold %q: must be a non-negative integer", args[1])
	}
	if err := store.SetContextThreshold(ctx, args[0], n); err != nil {
		return sessionError(args[0], err)
	}
	fmt.Printf("Session %s threshold set to %d\n", args[0], n)
	return nil
}

func runSessionsGrade(cmd *cobra.Command, args []string) error {
	messageID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid message id %q", args[1])
	}
	grade, err := strconv.Atoi(args[2])
	if err != nil || grade < 0 {
		return fmt.Errorf("invalid grade %q: must be a non-negative integer", args[2])
	}

	store, err := getSessionStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SetGrade(context.Background(), args[0], messageID, grade); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return fmt.Errorf("message %d not found in session %s", messageID, args[0])
		}
		return err
	}
	fmt.Printf("Message %d graded %d\n", messageID, grade)
	return nil
}

func sessionError(id string, err error) error {
	if errors.Is(err, session.ErrNotFound) {
		return fmt.Errorf("session %s not found", id)
	}
	return err
}
