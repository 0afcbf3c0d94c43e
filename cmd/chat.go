package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/samsaffron/tierchat/internal/conversation"
	"github.com/samsaffron/tierchat/internal/session"
	"github.com/samsaffron/tierchat/internal/signal"
	"github.com/samsaffron/tierchat/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	chatSession string
	chatTier    string
	chatModel   string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat",
	Long: `Start an interactive chat. Each line is one turn.

Commands:
  /threshold <n>   only send messages graded n or higher to the model
  /session         print the session id
  /quit            leave the chat

Ctrl-C cancels the reply in progress.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatSession, "session", "S", "", "Resume the session with this id")
	chatCmd.Flags().StringVar(&chatTier, "tier", "", "Force a tier (cheap, mid, premium) instead of routing")
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "Override the model for the forced tier (mid when routing)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.ApplyOverrides(chatTier, chatModel)
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

	sessionID := chatSession
	if sessionID == "" {
		sessionID = session.NewID()
	}
	r := &repl{
		app:   a,
		conv:  a.conversation(sessionID),
		in:    os.Stdin,
		out:   os.Stdout,
		tty:   term.IsTerminal(int(os.Stdin.Fd())),
		stats: ui.NewSessionStats(),
	}
	return r.run()
}

type repl struct {
	app   *app
	conv  *conversation.Conversation
	in    io.Reader
	out   io.Writer
	tty   bool
	stats *ui.SessionStats
}

func (r *repl) run() error {
	styles := ui.NewStyles(os.Stderr)
	if r.tty {
		fmt.Fprintln(os.Stderr, styles.Muted.Render("session "+r.conv.SessionID()+" (/quit to leave)"))
	}

	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		if r.tty {
			fmt.Fprint(r.out, styles.Tier.Render("> "))
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		done, err := r.command(line)
		if err != nil {
			fmt.Fprintln(os.Stderr, styles.FormatResult(false, err.Error()))
			continue
		}
		if done {
			break
		}
	}

	r.stats.Finalize()
	if showStats && r.stats.TurnCount > 0 {
		fmt.Fprintln(os.Stderr, styles.Muted.Render(r.stats.Render()))
	}
	return scanner.Err()
}

// command handles local slash commands and otherwise runs a turn. It reports
// whether the chat should end.
func (r *repl) command(line string) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	switch name {
	case "/quit", "/exit":
		return true, nil
	case "/session":
		fmt.Fprintln(r.out, r.conv.SessionID())
		return false, nil
	case "/threshold":
		n, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil || n < 0 {
			return false, errors.New("usage: /threshold <n>, n >= 0")
		}
		if err := r.app.store.SetContextThreshold(context.Background(), r.conv.SessionID(), n); err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return false, errors.New("send a message before setting the threshold")
			}
			return false, err
		}
		fmt.Fprintf(r.out, "threshold set to %d\n", n)
		return false, nil
	}
	return false, r.turn(line)
}

func (r *repl) turn(text string) error {
	ctx, stop := signal.NotifyContext(context.Background())
	defer stop()

	printer := ui.NewPrinter(r.out, os.Stderr, r.stats)
	printer.ShowStatus = r.tty
	msg, err := r.conv.Send(ctx, text, nil, printer)
	if err != nil {
		if ctx.Err() != nil {
			return errors.New("cancelled")
		}
		return err
	}
	r.stats.AddTurn(msg)
	return nil
}
