package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func init() {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the config file",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the resolved settings to the config file",
		Long: "Write the current settings (defaults, environment and flags applied) to the config file. " +
			"An existing file is left alone unless --force is given.",
		Args: cobra.NoArgs,
		Run:  runConfigInit,
	}
	initCmd.Flags().Bool("force", false, "Overwrite an existing config file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved settings as YAML",
		Args:  cobra.NoArgs,
		Run:   runConfigShow,
	}

	cmd.AddCommand(initCmd, showCmd)
	RootCmd.AddCommand(cmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	force, _ := cmd.Flags().GetBool("force")
	path, err := initConfig(force)
	if err != nil {
		exitErr("config init", err)
	}
	fmt.Printf(`{"ok":true,"path":%q}`+"\n", path)
}

// initConfig saves the resolved settings to the config file and returns its path.
func initConfig(force bool) (string, error) {
	path := configFile()
	if _, err := os.Stat(path); err == nil && !force {
		return "", fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if err := cfg.Save(path); err != nil {
		return "", err
	}
	return path, nil
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		exitErr("marshal config", err)
	}
	fmt.Print(string(b))
}
