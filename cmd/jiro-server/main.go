package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/Gidwell/jiro/internal/bootstrap"
	"github.com/Gidwell/jiro/internal/config"
	"github.com/Gidwell/jiro/internal/observability"
	"github.com/Gidwell/jiro/internal/server"
)

var (
	configFile string
	debugMode  bool
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "jiro-server",
		Short:         "Jiro tutor service HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	rootCmd.Flags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug mode")
	return rootCmd
}

func run(ctx context.Context) error {
	app := bootstrap.New()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loadConfig() > %w", err)
	}
	logCloser := bootstrap.SetupLogger(cfg.Logging, debugMode)
	app.AddShutdownHook("logger", func(context.Context) error { return logCloser.Close() })

	if cfg.OpenAI.APIKey == "" {
		return errors.New("OPENAI_API_KEY environment variable is required")
	}
	if cfg.ElevenLabs.APIKey == "" || cfg.ElevenLabs.VoiceID == "" {
		return errors.New("ELEVENLABS_API_KEY and ELEVENLABS_VOICE_ID environment variables are required")
	}

	shutdownTracer, err := observability.InitTracer(cfg.Observability.ServiceName, cfg.Observability.JaegerEndpoint)
	if err != nil {
		return fmt.Errorf("observability.InitTracer() > %w", err)
	}
	app.AddShutdownHook("tracer", shutdownTracer)

	components, err := bootstrap.Build(cfg)
	if err != nil {
		return fmt.Errorf("bootstrap.Build() > %w", err)
	}
	handler, err := newHandler(cfg, components)
	if err != nil {
		return errors.Join(err, components.Close())
	}
	app.AddShutdownHook("components", func(context.Context) error { return components.Close() })
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	app.AddShutdownHook("http server", srv.Shutdown)

	return app.Run(ctx, func(ctx context.Context) error {
		components.Start(ctx)
		slog.Default().Info("starting server", "addr", srv.Addr, "database", cfg.Database.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
}

func newHandler(cfg *config.Config, components *bootstrap.Components) (http.Handler, error) {
	tutorHandler, err := server.NewTutorHandler(components.Tutor, cfg.Server.TurnsPerMinute)
	if err != nil {
		return nil, fmt.Errorf("server.NewTutorHandler() > %w", err)
	}
	router := server.NewRouter(server.RouterConfig{
		Tutor:          tutorHandler,
		DB:             components.DB,
		Gatherer:       components.Metrics.Registry,
		AllowedOrigins: cfg.Server.CORS.AllowedOrigins,
	})
	return h2c.NewHandler(router, &http2.Server{}), nil
}

func loadConfig() (*config.Config, error) {
	loader, err := config.NewConfigLoader(configFile)
	if err != nil {
		return nil, fmt.Errorf("config.NewConfigLoader() > %w", err)
	}
	return loader.Load()
}
