package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/docsync/internal/client/config"
	"github.com/dmitrijs2005/docsync/internal/common"
	"github.com/spf13/cobra"
)

// skipSetup marks commands that run without a loaded configuration.
const skipSetup = "docsync/skip-setup"

// NewRootCommand builds the docsync command tree.
func NewRootCommand(opts Options) *cobra.Command {
	app := newApp(opts)
	var (
		configFile string
		stats      bool
	)

	root := &cobra.Command{
		Use:   "docsync",
		Short: "Edit records of a shared JSON document safely",
		Long: `docsync edits single records of a JSON document kept in a remote
repository. Every edit reads the current document, changes only the named
fields of one record, verifies the result and writes it conditioned on the
version it read, retrying when someone else wrote first.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := config.NewViper()
			for flag, key := range config.FlagKeys {
				if f := cmd.Flags().Lookup(flag); f != nil {
					if err := v.BindPFlag(key, f); err != nil {
						return err
					}
				}
			}
			if cmd.Annotations[skipSetup] != "" {
				configFile = ""
			}
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			app.setConfig(cfg)
			if stats {
				app.enableStats()
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.printStats()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (JSON or YAML)")
	pf.String("api-url", "", "store API root")
	pf.String("owner", "", "repository owner")
	pf.String("repo", "", "repository name")
	pf.String("branch", "", "branch holding the document")
	pf.String("path", "", "document path inside the repository")
	pf.Int("max-retries", 0, "retries after write conflicts")
	pf.Bool("verify-after-write", false, "read the document back after writing")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: text or json")
	pf.BoolVar(&stats, "stats", false, "print operation counters to stderr on exit")

	root.AddCommand(
		newGetCommand(app),
		newListCommand(app),
		newUpdateCommand(app),
		newDeleteCommand(app),
		newUploadCommand(app),
		newAttachCommand(app),
		newScanCommand(app),
		newConfigCommand(app),
	)
	return root
}

// Execute runs the command tree with args and returns the process exit
// code.
func Execute(ctx context.Context, args []string, opts Options) int {
	root := NewRootCommand(opts)
	root.SetArgs(args)
	if opts.Out != nil {
		root.SetOut(opts.Out)
	}
	if opts.Err != nil {
		root.SetErr(opts.Err)
	}
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintf(root.ErrOrStderr(), "docsync: %v\n", err)
	if hint := hintFor(err); hint != "" {
		fmt.Fprintln(root.ErrOrStderr(), hint)
	}
	return common.ExitCode(err)
}

func hintFor(err error) string {
	switch common.Classify(err) {
	case common.ClassRetryLater:
		return "the document is being edited concurrently; try again in a moment"
	case common.ClassBug:
		return "nothing was written; please report this with the log output"
	}
	if errors.Is(err, common.ErrTokenExpired) {
		return "the access token has expired; obtain a new one"
	}
	return ""
}
