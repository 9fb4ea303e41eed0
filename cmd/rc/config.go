// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/invowk/rc/internal/config"
)

// newConfigCommand creates the `rc config` command tree.
func newConfigCommand(app *App, g *globalFlags) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage rc configuration",
		Long: `Manage rc configuration.

Settings are read, lowest precedence first, from:
  - the user file: rc/` + config.FileName + ` below the platform config directory
    (~/.config on Linux, ~/Library/Application Support on macOS, %APPDATA% on Windows)
  - the "rc" key of the project's package.json
  - the project's ` + config.FileName + ` (or the file passed with --config)
  - ` + config.EnvPrefix + `_* environment variables (RC_LOG_FULL=true)
Command-line flags override all of them.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.showConfig(cmd, g)
		},
	})

	var global, force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file with the defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir := g.projectDir(cmd)
			if global {
				var err error
				if dir, err = config.ConfigDir(); err != nil {
					return err
				}
			}
			path, err := config.WriteFile(dir, config.DefaultConfig(), force)
			if err != nil {
				return err
			}
			fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("Created"), path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&global, "global", false, "write the user configuration instead of the project one")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cfgCmd.AddCommand(initCmd)

	return cfgCmd
}

func (a *App) showConfig(cmd *cobra.Command, g *globalFlags) error {
	loaded, err := a.Config.Load(cmd.Context(), config.LoadOptions{
		ProjectDir:     g.projectDir(cmd),
		ConfigFilePath: g.configFile,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(a.stdout, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(a.stdout)
	if len(loaded.Sources) == 0 {
		fmt.Fprintf(a.stdout, "%s: %s\n", CmdStyle.Render("Sources"), SubtitleStyle.Render("(using defaults)"))
	} else {
		fmt.Fprintf(a.stdout, "%s:\n", CmdStyle.Render("Sources"))
		for _, s := range loaded.Sources {
			fmt.Fprintf(a.stdout, "  - %s\n", s)
		}
	}
	fmt.Fprintln(a.stdout)
	fmt.Fprint(a.stdout, config.GenerateCUE(loaded.Config))
	return nil
}
