package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"aegis/config"
	"aegis/handlers"
	"aegis/logging"
)

const version = "1.0.0"

func main() {
	v := viper.New()
	config.SetDefaults(v)

	rootCmd := &cobra.Command{
		Use:     "aegis",
		Short:   "Market crash and misinformation correlation service",
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			config.LoadEnv(logging.New(v.GetString("log_level")))
		},
	}

	rootCmd.PersistentFlags().String("db", "aegis.db", "Path to the sqlite database")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("simulate", false, "Use synthetic prices and news")
	_ = v.BindPFlag("db_path", rootCmd.PersistentFlags().Lookup("db"))
	_ = v.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("simulation", rootCmd.PersistentFlags().Lookup("simulate"))

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the war-room API and, when tickers are configured, surveillance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(v)
		},
	}
	serveCmd.Flags().Int("port", 8090, "HTTP port")
	serveCmd.Flags().String("tickers", "", "Comma-separated tickers to watch")
	_ = v.BindPFlag("port", serveCmd.Flags().Lookup("port"))
	_ = v.BindPFlag("tickers", serveCmd.Flags().Lookup("tickers"))

	scanCmd := &cobra.Command{
		Use:   "scan <ticker>...",
		Short: "Run one detection pass and print the outcomes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(v, func(ctx context.Context, a *app) (any, error) {
				outs := make([]any, 0, len(args))
				for _, t := range args {
					out, err := a.pipeline.ProcessTicker(ctx, t)
					if err != nil {
						return nil, fmt.Errorf("scan %s: %w", t, err)
					}
					outs = append(outs, out)
				}
				return outs, nil
			})
		},
	}

	simulateCmd := &cobra.Command{
		Use:   "simulate [ticker]",
		Short: "Inject a synthetic crash and run the pipeline",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticker := "DEMO.NS"
			if len(args) == 1 {
				ticker = args[0]
			}
			return withApp(v, func(ctx context.Context, a *app) (any, error) {
				return a.pipeline.Simulate(ctx, ticker)
			})
		},
	}

	evaluateCmd := &cobra.Command{
		Use:   "evaluate <event_id>",
		Short: "Evaluate the impact of the latest deployed response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(v, func(ctx context.Context, a *app) (any, error) {
				return a.impact.Evaluate(ctx, args[0])
			})
		},
	}

	rootCmd.AddCommand(serveCmd, scanCmd, simulateCmd, evaluateCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withApp builds the service, runs fn until it returns or the process is
// interrupted, and prints the result as JSON.
func withApp(v *viper.Viper, fn func(context.Context, *app) (any, error)) error {
	cfg := config.Load(v)
	log := logging.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := fn(ctx, a)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runServe(v *viper.Viper) error {
	cfg := config.Load(v)
	log := logging.New(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer a.Close()

	router := handlers.NewRouter(a.handler(), log)
	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if len(cfg.Tickers) > 0 {
		log.WithField("tickers", cfg.Tickers).Info("Starting surveillance")
		a.pipeline.Surveil(ctx, cfg.Tickers)
	}

	// Запуск сервера
	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		cancel()
		a.pipeline.Wait()
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.pipeline.Wait()

	log.Info("Server stopped")
	return nil
}
