package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/samsaffron/tierchat/internal/secrets"
	"github.com/samsaffron/tierchat/internal/ui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage API keys in the OS keychain",
	Long: `Store and remove API keys in the OS keychain. Keys are read from the
keychain first, then from the environment (ANTHROPIC_API_KEY, TAVILY_API_KEY,
or a .env file in the working directory).

Examples:
  tierchat secrets                          # Show which keys are configured
  tierchat secrets set anthropic_api_key    # Prompts for the value
  tierchat secrets delete search_api_key`,
	RunE: runSecretsStatus,
}

var secretsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which keys are configured and where they come from",
	RunE:  runSecretsStatus,
}

var secretsSetCmd = &cobra.Command{
	Use:       "set <name>",
	Short:     "Store a key in the keychain",
	Args:      cobra.ExactArgs(1),
	ValidArgs: secrets.Known(),
	RunE:      runSecretsSet,
}

var secretsDeleteCmd = &cobra.Command{
	Use:       "delete <name>",
	Short:     "Remove a key from the keychain",
	Args:      cobra.ExactArgs(1),
	ValidArgs: secrets.Known(),
	RunE:      runSecretsDelete,
}

func init() {
	secretsCmd.AddCommand(secretsStatusCmd)
	secretsCmd.AddCommand(secretsSetCmd)
	secretsCmd.AddCommand(secretsDeleteCmd)
	rootCmd.AddCommand(secretsCmd)
}

func newSecretResolver() (*secrets.Resolver, error) {
	if err := secrets.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return secrets.NewResolver(secrets.NewKeyringStore()), nil
}

func runSecretsStatus(cmd *cobra.Command, args []string) error {
	resolver, err := newSecretResolver()
	if err != nil {
		return err
	}
	styles := ui.NewStyles(os.Stdout)
	for _, name := range secrets.Known() {
		_, origin := resolver.Resolve(name)
		switch origin {
		case secrets.OriginNone:
			fmt.Printf("%-20s %s\n", name, styles.FormatResult(false, "not set (or set "+secrets.EnvName(name)+")"))
		default:
			fmt.Printf("%-20s %s\n", name, styles.FormatResult(true, string(origin)))
		}
	}
	return nil
}

func runSecretsSet(cmd *cobra.Command, args []string) error {
	name := strings.ToLower(args[0])
	if !slices.Contains(secrets.Known(), name) {
		return fmt.Errorf("unknown secret %q (want one of %s)", name, strings.Join(secrets.Known(), ", "))
	}

	value, err := readSecret(name)
	if err != nil {
		return err
	}
	if value == "" {
		return errors.New("empty value, nothing stored")
	}

	resolver, err := newSecretResolver()
	if err != nil {
		return err
	}
	if err := resolver.Set(name, value); err != nil {
		return fmt.Errorf("failed to store %s: %w", name, err)
	}
	fmt.Printf("Stored %s in the keychain\n", name)
	return nil
}

// readSecret prompts without echo on a terminal, otherwise reads one line of stdin.
func readSecret(name string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprintf(os.Stderr, "%s: ", name)
		data, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read value: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read value: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func runSecretsDelete(cmd *cobra.Command, args []string) error {
	name := strings.ToLower(args[0])
	resolver, err := newSecretResolver()
	if err != nil {
		return err
	}
	if err := resolver.Delete(name); err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	fmt.Printf("Removed %s from the keychain\n", name)
	if _, origin := resolver.Resolve(name); origin == secrets.OriginEnv {
		fmt.Printf("%s is still set in the environment\n", secrets.EnvName(name))
	}
	return nil
}
