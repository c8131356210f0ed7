package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/oncosaferx/edge/internal/hasura"
	"github.com/oncosaferx/edge/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	endpoint string
	manifest string
	source   string
	dryRun   bool
	logLevel string
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "hasura-bootstrap",
		Short: "Track tables and relationships in Hasura",
		Long: `Applies a YAML manifest of tables and relationships to a Hasura instance.
Existing metadata is exported first and only missing entries are created, so
the command can be re-run safely. The admin secret is read from
HASURA_ADMIN_SECRET (a .env file in the working directory is honoured).`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts, out)
		},
	}

	cmd.Flags().StringVar(&opts.endpoint, "endpoint", envOr("HASURA_ENDPOINT", hasura.DefaultEndpoint), "Hasura metadata API URL")
	cmd.Flags().StringVarP(&opts.manifest, "manifest", "f", "config/hasura.yaml", "path to the table/relationship manifest")
	cmd.Flags().StringVar(&opts.source, "source", "", "override the manifest's database source name")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print the plan without changing metadata")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "log level")

	return cmd
}

func run(ctx context.Context, opts *options, out io.Writer) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	logger, err := logging.New(opts.logLevel, "console")
	if err != nil {
		return err
	}
	defer logger.Sync()

	secret := os.Getenv("HASURA_ADMIN_SECRET")
	if secret == "" {
		logger.Warn("HASURA_ADMIN_SECRET is not set; requests are sent without an admin secret")
	}

	m, err := hasura.LoadManifest(opts.manifest)
	if err != nil {
		return err
	}
	if opts.source != "" {
		m.Source = opts.source
	}

	client := hasura.NewClient(opts.endpoint, secret, logger)
	report, err := client.Apply(ctx, m, opts.dryRun)
	if report != nil {
		verb := "applied"
		if opts.dryRun {
			verb = "would apply"
		}
		for _, s := range report.Applied {
			fmt.Fprintf(out, "%s: %s\n", verb, s)
		}
		for _, s := range report.Skipped {
			fmt.Fprintf(out, "skipped: %s\n", s)
		}
	}
	if err != nil {
		logger.Error("bootstrap failed", zap.Error(err))
		return err
	}
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
