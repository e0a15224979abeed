package cli

import (
	"fmt"

	"github.com/dmitrijs2005/docsync/internal/client/config"
	"github.com/spf13/cobra"
)

func newConfigCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the docsync configuration",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:         "init [path]",
		Short:       "Write a starter config file from the current settings",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipSetup: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "docsync.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteFile(path, *app.cfg, force); err != nil {
				return err
			}
			fmt.Fprintf(app.out, "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}
