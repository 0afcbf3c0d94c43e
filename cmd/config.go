package cmd

import (
	"fmt"
	"os"

	"github.com/samsaffron/tierchat/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage tierchat configuration",
	Long: `View or create your tierchat configuration.

Every key can also be set through the environment as TIERCHAT_<SECTION>_<KEY>,
e.g. TIERCHAT_ROUTER_POLICY=legacy-three-tier.

Examples:
  tierchat config                     # show effective config
  tierchat config init                # write a starter config file
  tierchat config path                # print the config file path`,
	RunE: configShow, // Default to show
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	RunE:  configInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print configuration file path",
	RunE:  configPath,
}

var configInitForce bool

func init() {
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "Overwrite an existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func configShow(cmd *cobra.Command, args []string) error {
	configPath, err := config.GetConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	if _, err := loadConfig(); err != nil {
		return err
	}

	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Printf("# %s\n\n", used)
	} else {
		fmt.Printf("# No config file (using defaults)\n")
		fmt.Printf("# Create one with: tierchat config init (%s)\n\n", configPath)
	}

	out, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	_, err = os.Stdout.Write(out)
	return err
}

func configInit(cmd *cobra.Command, args []string) error {
	path, err := config.GetConfigPath()
	if err != nil {
		return err
	}
	if config.Exists() && !configInitForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func configPath(cmd *cobra.Command, args []string) error {
	path, err := config.GetConfigPath()
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}
