package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/webvoice/access-assistant/internal/action"
	"github.com/webvoice/access-assistant/internal/browser"
	"github.com/webvoice/access-assistant/internal/cache"
	"github.com/webvoice/access-assistant/internal/config"
	"github.com/webvoice/access-assistant/internal/dataset"
	"github.com/webvoice/access-assistant/internal/llm"
	"github.com/webvoice/access-assistant/internal/record"
	"github.com/webvoice/access-assistant/internal/scrape"
	"github.com/webvoice/access-assistant/internal/server"
	"github.com/webvoice/access-assistant/internal/session"
	"github.com/webvoice/access-assistant/internal/speech"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "assistant",
		Short:         "Web accessibility assistant: scrape pages, run action plans, collect training data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newScrapeCmd(), newExecuteCmd(), newRecordCmd(), newMergeCmd())
	return root
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			ctx, stop := signalContext()
			defer stop()

			store, err := cache.NewStore(cfg.CacheDir, log.With().Str("comp", "cache").Logger())
			if err != nil {
				return err
			}

			launcher, err := browser.NewLauncher(cfg.Headless)
			if err != nil {
				return err
			}
			defer launcher.Close()

			manager := session.NewManager(cfg.Headless, log.With().Str("comp", "session").Logger())

			srv := server.New(server.Options{
				Logger:    log.With().Str("comp", "http").Logger(),
				Scraper:   &server.LauncherScraper{Launcher: launcher, ScrollSteps: cfg.ScrapeScrollSteps, Timeout: cfg.ScrapeTimeout},
				Executor:  server.NewLauncherExecutor(launcher, log.With().Str("comp", "executor").Logger()),
				Suggester: llm.NewOllama(cfg.OllamaHost, cfg.OllamaModel, log.With().Str("comp", "llm").Logger()),
				Sessions:  manager,
				Recorder:  record.New(log.With().Str("comp", "record").Logger()),
				Cache:     store,
				Speaker:   speech.NewCommand(cfg.SpeechCommand, log.With().Str("comp", "speech").Logger()),
				ManualDir: cfg.ManualDataDir,
				AutoDir:   cfg.AutoLabelsDir,
			})

			httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: srv.Router()}
			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.ListenAddr).Msg("listening")
				errCh <- httpSrv.ListenAndServe()
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			}

			log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("http shutdown")
			}
			manager.Shutdown(shutdownCtx)
			return nil
		},
	}
}

func newScrapeCmd() *cobra.Command {
	var scrollSteps int
	cmd := &cobra.Command{
		Use:   "scrape <url>",
		Short: "Scrape a page and print its interactive elements as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			ctx, stop := signalContext()
			defer stop()

			if scrollSteps < 0 {
				scrollSteps = cfg.ScrapeScrollSteps
			}

			launcher, err := browser.NewLauncher(cfg.Headless)
			if err != nil {
				return err
			}
			defer launcher.Close()

			snap, err := scrape.Page(ctx, launcher, args[0], scrollSteps)
			if err != nil {
				return err
			}

			if store, err := cache.NewStore(cfg.CacheDir, log.With().Str("comp", "cache").Logger()); err == nil {
				store.Put(args[0], snap)
			}
			return printJSON(snap)
		},
	}
	cmd.Flags().IntVar(&scrollSteps, "scroll-steps", -1, "scroll passes (default from SCRAPE_SCROLL_STEPS)")
	return cmd
}

func newExecuteCmd() *cobra.Command {
	var actionsFile, query string
	cmd := &cobra.Command{
		Use:   "execute <url>",
		Short: "Run an action sequence from a JSON file against a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			ctx, stop := signalContext()
			defer stop()

			data, err := os.ReadFile(actionsFile)
			if err != nil {
				return fmt.Errorf("read actions: %w", err)
			}
			var actions []action.Spec
			if err := json.Unmarshal(data, &actions); err != nil {
				return fmt.Errorf("parse actions: %w", err)
			}
			actions, err = action.Normalize(actions)
			if err != nil {
				return err
			}

			launcher, err := browser.NewLauncher(cfg.Headless)
			if err != nil {
				return err
			}
			defer launcher.Close()

			executor := action.NewExecutor(log.With().Str("comp", "executor").Logger())
			report, err := executor.Execute(ctx, launcher, args[0], actions, query, action.Hooks{})
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
	cmd.Flags().StringVar(&actionsFile, "actions", "", "path to JSON file with the action sequence")
	cmd.Flags().StringVar(&query, "query", "", "the user request the sequence answers")
	_ = cmd.MarkFlagRequired("actions")
	return cmd
}

func newRecordCmd() *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "record <url>",
		Short: "Open a visible browser and record manual actions as training data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			ctx, stop := signalContext()
			defer stop()

			recorder := record.New(log.With().Str("comp", "record").Logger())
			actions, err := recorder.Record(ctx, args[0], record.ConsoleStop(os.Stdin, os.Stdout))
			if err != nil {
				return err
			}

			if err := os.MkdirAll(cfg.ManualDataDir, 0o755); err != nil {
				return err
			}
			rec := dataset.ManualRecord{
				URL:            args[0],
				UserQuery:      query,
				OriginalScrape: json.RawMessage(`{}`),
				CorrectActions: actions,
			}
			data, err := json.MarshalIndent(rec, "", "  ")
			if err != nil {
				return err
			}
			name := fmt.Sprintf("%s/session_%s.json", cfg.ManualDataDir, time.Now().Format("20060102_150405"))
			if err := os.WriteFile(name, data, 0o644); err != nil {
				return err
			}
			log.Info().Str("file", name).Int("actions", len(actions)).Msg("recording saved")
			return nil
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "the user request these actions answer")
	return cmd
}

func newMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge",
		Short: "Merge manual recordings and confirmed labels into one JSONL dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			stats, err := dataset.Merge(cfg.ManualDataDir, cfg.AutoLabelsDir, cfg.MergedOutput, log.With().Str("comp", "dataset").Logger())
			if err != nil {
				return err
			}
			fmt.Printf("Manual dataset entries: %d\n", stats.Manual)
			fmt.Printf("Automatic dataset entries (correct only): %d\n", stats.Auto)
			fmt.Printf("Total merged entries: %d\n", stats.Total)
			fmt.Printf("Merged dataset written to %s\n", cfg.MergedOutput)
			return nil
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
