package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samsaffron/tierchat/internal/session"
	"github.com/samsaffron/tierchat/internal/signal"
	"github.com/samsaffron/tierchat/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	askSession string
	askTier    string
	askModel   string
	askImages  []string
	askQuiet   bool
)

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Send one message and stream the reply",
	Long: `Send one message and stream the reply to stdout.

Without --session a new session is started; its id is printed to stderr so
the conversation can be continued. Pass "-" (or pipe input) to read the
message from stdin.

Examples:
  tierchat ask "what's the weather like?"
  tierchat ask --session abc123 "and tomorrow?"
  tierchat ask --tier premium "review this proof" < proof.md
  tierchat ask --image chart.png "what does this show?"`,
	Args: cobra.ArbitraryArgs,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askSession, "session", "S", "", "Continue the session with this id")
	askCmd.Flags().StringVar(&askTier, "tier", "", "Force a tier (cheap, mid, premium) instead of routing")
	askCmd.Flags().StringVarP(&askModel, "model", "m", "", "Override the model for the forced tier (mid when routing)")
	askCmd.Flags().StringArrayVarP(&askImages, "image", "i", nil, "Attach an image (repeatable)")
	askCmd.Flags().BoolVarP(&askQuiet, "quiet", "q", false, "Hide routing and tool status lines")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	text, err := readMessage(args, os.Stdin)
	if err != nil {
		return err
	}
	media, err := loadImages(askImages)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.ApplyOverrides(askTier, askModel)
	if err := cfg.Validate(); err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.requireAPIKey(); err != nil {
		return err
	}

	sessionID := askSession
	if sessionID == "" {
		sessionID = session.NewID()
	}
	conv := a.conversation(sessionID)

	ctx, stop := signal.NotifyContext(context.Background())
	defer stop()

	stderrTTY := term.IsTerminal(int(os.Stderr.Fd()))
	stats := ui.NewSessionStats()
	printer := ui.NewPrinter(os.Stdout, os.Stderr, stats)
	printer.ShowStatus = !askQuiet && stderrTTY

	msg, err := conv.Send(ctx, text, media, printer)
	if err != nil {
		return err
	}
	stats.AddTurn(msg)
	stats.Finalize()

	styles := ui.NewStyles(os.Stderr)
	if showStats {
		fmt.Fprintln(os.Stderr, styles.Muted.Render(stats.Render()))
	}
	if askSession == "" && stderrTTY && cfg.Session.Enabled {
		fmt.Fprintln(os.Stderr, styles.Muted.Render("session: "+sessionID))
	}
	return nil
}

// readMessage joins args, or reads stdin when the only arg is "-" or no args
// are given and stdin is not a terminal.
func readMessage(args []string, stdin *os.File) (string, error) {
	if (len(args) == 1 && args[0] == "-") || (len(args) == 0 && !term.IsTerminal(int(stdin.Fd()))) {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if len(args) == 0 {
		return "", errors.New("no message given")
	}
	return strings.Join(args, " "), nil
}
