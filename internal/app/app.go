package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xhs-agent/internal/agent/discovery"
	"github.com/xhs-agent/internal/agent/replier"
	"github.com/xhs-agent/internal/agent/workflow"
	"github.com/xhs-agent/internal/ai"
	"github.com/xhs-agent/internal/config"
	"github.com/xhs-agent/internal/metrics"
	"github.com/xhs-agent/internal/models"
	"github.com/xhs-agent/internal/safety"
	"github.com/xhs-agent/internal/scoring"
	"github.com/xhs-agent/internal/sender"
	"github.com/xhs-agent/internal/source"
	"github.com/xhs-agent/internal/source/file"
	"github.com/xhs-agent/internal/source/page"
	"github.com/xhs-agent/internal/source/rss"
	"github.com/xhs-agent/internal/storage"
	"github.com/xhs-agent/internal/storage/jsonl"
	"github.com/xhs-agent/internal/storage/sqlite"
	"github.com/xhs-agent/internal/tracker"
	"github.com/xhs-agent/pkg/logger"
	"github.com/xhs-agent/pkg/ratelimit"
)

// Options tune how the application is assembled
type Options struct {
	// Unattended forces staging since nobody can answer a confirmation prompt
	Unattended bool
	// In and Out are used by the confirmation prompt, default to stdin and stdout
	In  io.Reader
	Out io.Writer
	// SkipLLM builds only the stores and the gate, for status and report commands
	SkipLLM bool
}

// App holds every wired component of the agent
type App struct {
	Config  *config.Config
	Log     *logger.Logger
	Limiter *ratelimit.MultiLimiter
	Metrics *metrics.Metrics

	Store   *jsonl.Store
	DB      *sqlite.Repository
	Tracker *tracker.SheetsTracker
	Sink    storage.Sink
	History storage.History

	Events *safety.EventLog
	Gate   *safety.Gate

	Notifier sender.Notifier
	Pages    *page.Source
	Sources  *source.Manager

	Discovery *discovery.Agent
	Replier   *replier.Agent
	Runner    *workflow.Runner
}

// New opens the stores, replays today's safety events and wires the pipeline.
// Store and workspace failures are fatal.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*App, error) {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	a := &App{
		Config:  cfg,
		Log:     log,
		Limiter: ratelimit.NewPerMinute(cfg.RateLimit.LLMRequestsPerMinute, cfg.RateLimit.PlatformRequestsPerMinute),
	}

	m, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}
	a.Metrics = m

	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if err := a.buildGate(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Notify.Telegram.Enabled {
		a.Notifier = sender.NewTelegram(cfg.Notify.Telegram, a.Limiter)
	}

	a.buildSources()

	if opts.SkipLLM {
		return a, nil
	}
	if err := a.buildPipeline(opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) openStores(ctx context.Context) error {
	cfg := a.Config
	if err := cfg.EnsureWorkspace(); err != nil {
		return err
	}

	store, err := jsonl.New(jsonl.Layout{
		Topics:       cfg.WorkspaceDir(cfg.Workspace.HotTopicsDir),
		Analysis:     cfg.WorkspaceDir(cfg.Workspace.AnalysisDir),
		Replies:      cfg.WorkspaceDir(cfg.Workspace.ContentDir),
		Logs:         cfg.WorkspaceDir(cfg.Workspace.LogsDir),
		SaveTopics:   cfg.Workspace.SaveTopics,
		SaveAnalysis: cfg.Workspace.SaveAnalysis,
		SaveReplies:  cfg.Workspace.SaveReplies,
	}, a.Log)
	if err != nil {
		return fmt.Errorf("open workspace store: %w", err)
	}
	a.Store = store
	sinks := storage.Multi{store}
	a.History = store

	if cfg.Database.Enabled {
		db, err := sqlite.New(cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		a.DB = db
		sinks = append(sinks, db)
		a.History = db
	}

	if cfg.Tracker.Enabled {
		t, err := tracker.NewSheetsTracker(ctx, cfg.Tracker, a.Log)
		if err != nil {
			return fmt.Errorf("failed to connect to Google Sheets: %w", err)
		}
		if err := t.Initialize(ctx); err != nil {
			return fmt.Errorf("failed to initialize tracker: %w", err)
		}
		a.Tracker = t
		sinks = append(sinks, t)
	}

	a.Sink = sinks
	return nil
}

func (a *App) buildGate(ctx context.Context) error {
	stores := safety.MultiStore{}
	if a.DB != nil {
		stores = append(stores, a.DB)
	}
	stores = append(stores, a.Store)

	a.Events = safety.NewEventLog(stores, a.Log)
	n, err := a.Events.Load(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("load safety events: %w", err)
	}
	a.Log.Debug().Int("events", n).Msg("Replayed today's safety events")

	a.Gate = safety.NewGate(a.Config.Safety, a.Events, a.Log)
	a.Gate.OnDecision(a.Metrics.GateDecision)
	a.Events.Subscribe(a.Metrics.ObserveEvent)
	return nil
}

func (a *App) buildSources() {
	cfg := a.Config.Sources
	a.Pages = page.New(cfg.Page, nil, a.Limiter, a.Log)
	a.Sources = source.NewManager(a.Log)

	if cfg.Page.Enabled {
		a.Sources.Register(a.Pages)
	}
	if cfg.RSS.Enabled {
		for _, src := range rss.NewMultiple(cfg.RSS, a.Limiter, a.Log) {
			a.Sources.Register(src)
		}
	}
	if cfg.File.Enabled {
		a.Sources.Register(file.New(cfg.File, a.Log))
	}
}

func (a *App) buildPipeline(opts Options) error {
	cfg := a.Config

	llm, err := ai.New(cfg, a.Limiter, a.Log)
	if err != nil {
		return err
	}
	llm.OnRetry(a.Metrics.LLMRetry)

	extractor := scoring.NewExtractor(a.Log)
	extractor.OnFallback(func(kind string) {
		a.Metrics.ExtractionFallback(kind)
		a.Events.Append(context.Background(), models.SafetyEvent{
			EventType: models.EventExtraction,
			Message:   "model output for " + kind + " parsed with fallback",
			Severity:  models.SeverityWarning,
		})
	})

	analyzer := ai.NewAnalyzer(llm, extractor, a.Log)
	writer := ai.NewReplyWriter(llm, extractor, cfg.Content, a.Log)

	mode := cfg.Content.SendMode
	if opts.Unattended && mode == sender.MethodConfirm {
		a.Log.Warn().Msg("Confirmation needs a terminal, staging replies instead")
		mode = sender.MethodStage
	}
	snd := sender.New(mode,
		sender.NewConfirmer(opts.In, opts.Out, cfg.Content.ConfirmTimeout, a.Notifier, a.Log),
		sender.NewStager(a.Notifier, a.Log),
	)

	a.Discovery = discovery.NewAgent(a.Sources, analyzer, a.Sink, cfg.Sources.MaxTopics, cfg.Content.AnalysisSpacing, a.Log)
	a.Replier = replier.NewAgent(writer, a.Gate, a.Events, safety.NewPacer(cfg.Safety), snd, a.Sink, a.History, a.Log)
	a.Runner = workflow.NewRunner(a.Discovery, a.Replier, a.Gate, a.Events, cfg.Content.TopN, workflow.Options{
		Notes:      a.Pages,
		Metrics:    a.Metrics,
		ReportsDir: cfg.WorkspaceDir(cfg.Workspace.ReportsDir),
	}, a.Log)
	return nil
}

// Report renders today's report from the workspace: ranked analyses, reply sets,
// reply records and the safety report
func (a *App) Report(ctx context.Context, now time.Time) (workflow.Report, error) {
	analyses, err := a.Store.Analyses(ctx, now)
	if err != nil {
		return workflow.Report{}, fmt.Errorf("load analyses: %w", err)
	}
	sets, err := a.Store.ReplySets(ctx, now)
	if err != nil {
		return workflow.Report{}, fmt.Errorf("load reply sets: %w", err)
	}
	y, mo, d := now.Date()
	records, err := a.History.ListReplyRecords(ctx, storage.ReplyFilter{Since: time.Date(y, mo, d, 0, 0, 0, 0, now.Location())})
	if err != nil {
		return workflow.Report{}, fmt.Errorf("load reply records: %w", err)
	}
	return workflow.Report{
		Date:         now,
		Ranked:       scoring.Rank(analyses),
		Sets:         sets,
		Records:      records,
		SafetyReport: a.Gate.Report(now),
	}, nil
}

// Close releases the database connection
func (a *App) Close() {
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Warn().Err(err).Msg("Failed to close database")
		}
	}
}
