package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"pdf_rag/internal/app"
	"pdf_rag/internal/config"
	"pdf_rag/internal/logging"
	"pdf_rag/internal/server"
)

// flagEnv maps persistent flags to the environment variables they override.
var flagEnv = map[string]string{
	"documents": "DOCUMENTS_DIR",
	"data":      "DATA_DIR",
	"logs":      "LOGS_DIR",
	"embedder":  "EMBEDDER",
	"top-k":     "TOP_K",
	"log-level": "LOG_LEVEL",
	"addr":      "HTTP_ADDR",
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pdf_rag",
		Short:         "Retrieve relevant passages from a folder of PDF documents",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := root.PersistentFlags()
	flags.String("documents", "", "Source documents directory (DOCUMENTS_DIR)")
	flags.String("data", "", "Directory for the index and chunk store (DATA_DIR)")
	flags.String("logs", "", "Directory for per-document chunk logs (LOGS_DIR)")
	flags.String("embedder", "", "Embedder: ollama, openai or hash (EMBEDDER)")
	flags.Int("top-k", 0, "Number of passages to return (TOP_K)")
	flags.String("log-level", "", "Log level (LOG_LEVEL)")

	root.AddCommand(newServeCmd(), newIngestCmd(), newQueryCmd())
	return root
}

// setup applies flags to the environment, loads .env and the config, and
// builds the logger. Flags win over .env because godotenv never overrides.
func setup(cmd *cobra.Command) (*config.Config, arbor.ILogger, error) {
	for name, env := range flagEnv {
		f := cmd.Flags().Lookup(name)
		if f != nil && f.Changed {
			os.Setenv(env, f.Value.String())
		}
	}

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(cfg), nil
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve POST /ask over HTTP; SIGHUP reloads the index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Init(ctx); err != nil {
				logger.Error().Err(err).Msg("Index and chunk store are inconsistent, run ingest again")
				return err
			}

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			defer signal.Stop(hup)
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case <-hup:
						logger.Info().Msg("SIGHUP received, reloading index")
						_ = a.Reload(ctx)
					}
				}
			}()

			return server.New(cfg.HTTPAddr, a, logger).Run(ctx)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (HTTP_ADDR)")
	return cmd
}

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Rebuild the chunk store and vector index from the documents directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.Ingest(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d documents, %d skipped, %d pages, %d chunks in %s\n",
				report.RunID, report.Documents, report.Skipped, report.Pages, report.Chunks, report.Duration)
			return nil
		},
	}
}

func newQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query [question...]",
		Short: "Run one query, or read questions from stdin when none is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Init(ctx); err != nil {
				return err
			}

			if len(args) > 0 {
				return a.Ask(ctx, strings.Join(args, " "), cmd.OutOrStdout())
			}
			return a.Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
