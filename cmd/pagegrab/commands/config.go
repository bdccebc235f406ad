package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/PageGrab/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the PageGrab config file",
	Long: `Inspect and edit the YAML config file. Settings are grouped into
server, capture (selection threshold, clear delay, format, policy, output
directory), render (timeout, DPI, workers, layout) and preview sections.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	Long: `Print every setting as the running process would see it, with
PAGEGRAB_* environment overrides applied on top of the file.`,
	Example: `  pagegrab config show
  PAGEGRAB_CAPTURE_FORMAT=jpeg pagegrab config show --format json`,
	RunE: runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Change one setting and save the file",
	Long: `Change one setting and save the file. Nested keys use dots. The value
is parsed as the type the key already holds, so durations take Go syntax
(750ms, 1m30s) and the result is validated before it is written.`,
	Example: `  # Pick the page with the largest overlap
  pagegrab config set capture.policy max_overlap

  # Give slow documents more time
  pagegrab config set render.timeout 90s`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print one setting",
	Long:  `Print one setting by its dotted key, environment overrides included.`,
	Example: `  pagegrab config get render.timeout
  pagegrab config get capture.output_dir`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print where the config file lives",
	RunE:  runConfigPath,
}

var formatFlag string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configPathCmd)

	configShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "yaml", "output format (yaml or json)")
}

func openConfig() (*config.Manager, error) {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return configMgr, nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configMgr, err := openConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch formatFlag {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(configMgr.Get())
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(configMgr.Get())
	default:
		return fmt.Errorf("unsupported format %q, want yaml or json", formatFlag)
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	configMgr, err := openConfig()
	if err != nil {
		return err
	}
	if err := configMgr.Set(args[0], args[1]); err != nil {
		return err
	}

	v := configMgr.GetViper()
	fmt.Fprintf(cmd.OutOrStdout(), "%s = %v (saved to %s)\n", args[0], v.Get(args[0]), configMgr.GetConfigPath())
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	configMgr, err := openConfig()
	if err != nil {
		return err
	}

	v := configMgr.GetViper()
	if !v.IsSet(args[0]) {
		return fmt.Errorf("configuration key not found: %s", args[0])
	}
	fmt.Fprintln(cmd.OutOrStdout(), v.Get(args[0]))
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configMgr, err := openConfig()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), configMgr.GetConfigPath())
	return nil
}
