package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Gidwell/jiro/internal/audiostore"
	"github.com/Gidwell/jiro/internal/config"
	"github.com/Gidwell/jiro/internal/conversation"
	"github.com/Gidwell/jiro/internal/curriculum"
	"github.com/Gidwell/jiro/internal/database"
	"github.com/Gidwell/jiro/internal/eventstream"
	"github.com/Gidwell/jiro/internal/eventstream/kafka"
	"github.com/Gidwell/jiro/internal/eventstream/nop"
	"github.com/Gidwell/jiro/internal/inference/openai"
	"github.com/Gidwell/jiro/internal/jobs"
	"github.com/Gidwell/jiro/internal/learner"
	"github.com/Gidwell/jiro/internal/learning"
	"github.com/Gidwell/jiro/internal/observability"
	"github.com/Gidwell/jiro/internal/session"
	"github.com/Gidwell/jiro/internal/turn"
	"github.com/Gidwell/jiro/internal/tutor"
	"github.com/Gidwell/jiro/internal/voice/elevenlabs"
)

// Stores is the persistence half of the graph. The CLI reports only need
// this much.
type Stores struct {
	DB       *sqlx.DB
	Gateway  *database.Gateway
	Learners *learner.Store
	Bank     *learning.Bank
	Turns    *conversation.Repository
}

// OpenStores connects to the configured database and builds the stores on
// top of it. Migrations run first when the configuration asks for it.
func OpenStores(cfg *config.Config, metrics *Metrics) (*Stores, error) {
	db, dialect, err := database.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("database.Open > %w", err)
	}
	if cfg.Database.MigrateOnStart {
		if err := database.MigrateUp(db, dialect); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("database.MigrateUp > %w", err)
		}
	}

	var opts []database.Option
	if metrics != nil {
		opts = append(opts, database.WithInstrument(observability.NewGatewayInstrument(metrics.Metrics)))
	}
	gateway, err := database.NewGateway(db, dialect, opts...)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database.NewGateway > %w", err)
	}

	return &Stores{
		DB:       db,
		Gateway:  gateway,
		Learners: learner.NewStore(gateway, learner.DefaultsFromConfig(cfg.Learner)),
		Bank:     learning.NewBank(gateway, cfg.Scheduler),
		Turns:    conversation.NewRepository(gateway),
	}, nil
}

func (s *Stores) Close() error {
	return s.DB.Close()
}

// Metrics couples the instruments with the registry they live in.
type Metrics struct {
	*observability.Metrics
	Registry *prometheus.Registry
}

func NewMetrics(cfg config.ObservabilityConfig) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Metrics{
		Metrics:  observability.NewMetrics(cfg.MetricsNamespace, reg),
		Registry: reg,
	}
}

// Components is the complete object graph of the tutor.
type Components struct {
	*Stores
	Config       *config.Config
	Metrics      *Metrics
	Sessions     *session.Manager
	Planner      *curriculum.Planner
	Publisher    eventstream.Publisher
	Audio        audiostore.Store
	Pool         *jobs.Pool
	Deliverer    *jobs.Deliverer
	Orchestrator *turn.Orchestrator
	Tutor        *tutor.Service
}

// Build wires every component from cfg. Nothing is started; Start launches
// the background loops.
func Build(cfg *config.Config) (*Components, error) {
	metrics := NewMetrics(cfg.Observability)
	stores, err := OpenStores(cfg, metrics)
	if err != nil {
		return nil, err
	}
	c := &Components{
		Stores:  stores,
		Config:  cfg,
		Metrics: metrics,
	}
	if err := c.build(); err != nil {
		return nil, errors.Join(err, c.Close())
	}
	return c, nil
}

func (c *Components) build() error {
	cfg := c.Config

	seed, err := curriculum.LoadSeed(cfg.Curriculum.SeedFile)
	if err != nil {
		return fmt.Errorf("curriculum.LoadSeed > %w", err)
	}
	c.Planner = curriculum.NewPlanner(seed, c.Bank)

	c.Publisher, err = NewPublisher(cfg.EventStream)
	if err != nil {
		return err
	}
	c.Audio, err = audiostore.New(cfg.AudioStore)
	if err != nil {
		return fmt.Errorf("audiostore.New > %w", err)
	}

	client := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.RetryAttempts, openai.WithBaseURL(cfg.OpenAI.BaseURL))
	speech := elevenlabs.NewClient(cfg.ElevenLabs)

	c.Sessions = session.NewManager(cfg.Session.IdleTimeout)
	c.Sessions.SetExpireHook(func(s session.Snapshot) {
		c.Metrics.ActiveSessions.Set(float64(c.Sessions.ActiveCount()))
	})

	settings := jobs.SettingsFromConfig(cfg.Jobs)
	handlers := map[jobs.Kind]jobs.Handler{
		jobs.KindLearnerModel:       jobs.NewModelUpdater(c.Gateway, c.Learners, c.Bank, c.Turns, settings),
		jobs.KindSummarization:      jobs.NewSummarizer(c.Gateway, c.Learners, c.Turns, client, settings),
		jobs.KindQuestionGeneration: jobs.NewQuestionGenerator(c.Gateway, c.Bank, c.Learners, c.Planner, client, settings),
	}
	c.Pool, err = jobs.NewPool(cfg.Jobs, handlers, jobs.WithObserver(func(kind jobs.Kind, result string) {
		c.Metrics.JobRuns.WithLabelValues(string(kind), result).Inc()
	}))
	if err != nil {
		return fmt.Errorf("jobs.NewPool > %w", err)
	}
	c.Deliverer = jobs.NewDeliverer(c.Learners, c.Bank, jobs.LogNotifier{}, settings)

	c.Orchestrator = turn.NewOrchestrator(turn.Dependencies{
		Gateway:     c.Gateway,
		Learners:    c.Learners,
		Bank:        c.Bank,
		Turns:       c.Turns,
		Sessions:    c.Sessions,
		Planner:     c.Planner,
		Client:      client,
		Transcriber: speech,
		Synthesizer: speech,
		Audio:       c.Audio,
		Publisher:   c.Publisher,
		Jobs:        c.Pool,
		Metrics:     c.Metrics.Metrics,
		Tracer:      observability.Tracer(),
		Profile:     elevenlabs.DefaultProfile(cfg.ElevenLabs),
	}, cfg.Turn)

	c.Tutor = tutor.NewService(tutor.Dependencies{
		Gateway:      c.Gateway,
		Learners:     c.Learners,
		Bank:         c.Bank,
		Turns:        c.Turns,
		Sessions:     c.Sessions,
		Orchestrator: c.Orchestrator,
		Audio:        c.Audio,
	})
	return nil
}

// Start launches the session janitor, the job sweeper and the prompt
// deliverer. They stop when ctx is done.
func (c *Components) Start(ctx context.Context) {
	c.Sessions.StartJanitor(ctx, c.Config.Session.JanitorInterval)
	c.Pool.StartSweeper(ctx, c.Config.Jobs.SweepInterval, c.Learners.ListIDs)
	c.Deliverer.Start(ctx, time.Minute)
	go c.trackSessions(ctx, c.Config.Session.JanitorInterval)
}

func (c *Components) trackSessions(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Metrics.ActiveSessions.Set(float64(c.Sessions.ActiveCount()))
		}
	}
}

// Close drains the job pool before releasing the publisher and the
// database. It is safe on a partially built graph.
func (c *Components) Close() error {
	var errs []error
	if c.Pool != nil {
		c.Pool.Close()
	}
	if c.Publisher != nil {
		if err := c.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if c.Stores != nil {
		if err := c.Stores.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// NewPublisher selects the event stream backend.
func NewPublisher(cfg config.EventStreamConfig) (eventstream.Publisher, error) {
	switch cfg.Backend {
	case "", "none":
		return nop.NewPublisher(), nil
	case "kafka":
		publisher, err := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, fmt.Errorf("kafka.NewPublisher > %w", err)
		}
		slog.Default().Info("publishing turns to kafka", "topic", cfg.KafkaTopic)
		return publisher, nil
	default:
		return nil, fmt.Errorf("unsupported event stream backend %q", cfg.Backend)
	}
}
