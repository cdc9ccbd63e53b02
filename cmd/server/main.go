package main

import (
	"context"
	"os"

	"loancounselor-backend/internal/config"
	"loancounselor-backend/internal/logging"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	logging.Setup("info", "console")
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("FATAL: command failed")
		os.Exit(1)
	}
}

// annotationNoModel marks subcommands that never call the model provider.
const annotationNoModel = "no-model"

// rootOptions are shared by every subcommand.
type rootOptions struct {
	envFiles []string
	cfg      *config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	serve := newServeCmd(opts)

	root := &cobra.Command{
		Use:           "loan-counselor",
		Short:         "Education loan counselor agent backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			load := config.LoadConfig
			if cmd.Annotations[annotationNoModel] == "true" {
				load = config.LoadIntegrationConfig
			}
			cfg, err := load(opts.envFiles...)
			if err != nil {
				return err
			}
			logging.Setup(cfg.LogLevel, cfg.LogFormat)
			opts.cfg = cfg
			return nil
		},
		// Running the binary without a subcommand starts the server.
		RunE: serve.RunE,
	}
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv file(s) to load before reading the environment (default .env)")
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(serve, newLendersCmd(opts), newAskCmd(opts), newCheckCmd(opts))
	return root
}
