package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/docsync/internal/logging"
	"github.com/dmitrijs2005/docsync/internal/server/auth"
	"github.com/dmitrijs2005/docsync/internal/server/config"
	"github.com/spf13/cobra"
)

// NewRootCommand builds the docstore command tree. Logs go to stderr, token
// output to out.
func NewRootCommand(out, stderr io.Writer) *cobra.Command {
	var configFile string

	load := func(cmd *cobra.Command) (*config.Config, error) {
		v := config.NewViper()
		for flag, key := range config.FlagKeys {
			if f := cmd.Flags().Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
		return config.Load(v, configFile)
	}

	root := &cobra.Command{
		Use:           "docstore",
		Short:         "Reference document store speaking the repository contents API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (JSON or YAML)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the gRPC health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			logger := logging.New(stderr, "json", cfg.LogLevel)

			app, err := NewApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.Run(cmd.Context())
		},
	}
	f := serve.Flags()
	f.String("http-addr", "", "HTTP API listen address")
	f.String("grpc-addr", "", "gRPC health listen address, empty to disable")
	f.String("backend", "", "storage backend: memory, sqlite or postgres")
	f.String("database-dsn", "", "sqlite file or postgres DSN")
	f.Int64("inline-limit", 0, "largest document served inline, in bytes")
	f.String("public-url", "", "external base URL used in download links")
	f.String("seed-file", "", "JSON document committed on start when absent")
	f.String("log-level", "", "log level: debug, info, warn, error")
	f.Float64("rate-limit", 0, "requests per second allowed per caller, 0 disables")

	var (
		subject string
		scope   string
		ttl     time.Duration
	)
	token := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token signed with the configured secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("ttl") {
				ttl = cfg.TokenTTL
			}
			tok, err := auth.GenerateToken(subject, auth.Scope(scope), []byte(cfg.SecretKey), ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, tok)
			return err
		},
	}
	token.Flags().StringVar(&subject, "subject", "docsync", "token subject")
	token.Flags().StringVar(&scope, "scope", string(auth.ScopeWrite), "token scope: read or write")
	token.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, 0 for no expiry (default token_ttl)")

	root.AddCommand(serve, token)
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	root := NewRootCommand(os.Stdout, os.Stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "docstore: %v\n", err)
		return 1
	}
	return 0
}
