package robin

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/sproutbotics/robin/pkg/display"
	"github.com/sproutbotics/robin/pkg/llm"
	"github.com/sproutbotics/robin/pkg/logging"
	"github.com/sproutbotics/robin/pkg/metrics"
	"github.com/sproutbotics/robin/pkg/observers"
	"github.com/sproutbotics/robin/pkg/pipeline"
	"github.com/sproutbotics/robin/pkg/redact"
	"github.com/sproutbotics/robin/pkg/runner"
	"github.com/sproutbotics/robin/pkg/turn"
)

// Engine assembles the turn controller, the stage pipeline, the display
// hub, and the configured providers into one runnable unit. Operator
// input reaches it through Dispatch; displays connect to the hub.
type Engine struct {
	cfg        Config
	controller *turn.Controller
	orch       *pipeline.Orchestrator
	hub        *display.Hub
	history    *llm.History
	providers  *ProviderRegistry
	runner     *runner.LifecycleRunner
	asyncObs   *metrics.AsyncObserver
	audioClose func() error
	ctx        context.Context
	cancel     context.CancelFunc
	log        *slog.Logger
}

type EngineOptions struct {
	Config Config
	// Providers overrides the default registry, for callers that
	// register their own vendors. Nil means DefaultRegistry().
	Providers *ProviderRegistry
	// Logger overrides the process-wide logger built from
	// Config.Logging.
	Logger *slog.Logger
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = logging.InitLogger(cfg.Logging)
	}
	redact.SetEnabled(cfg.Privacy.RedactPII)

	logger.Info("robin_init",
		slog.String("environment", cfg.Environment),
		slog.String("stt_provider", cfg.Providers.STT.Provider),
		slog.String("llm_provider", cfg.Providers.LLM.Provider),
		slog.String("tts_provider", cfg.Providers.TTS.Provider),
		slog.String("audio_provider", cfg.Providers.Audio.Provider),
	)

	obsList := []metrics.Observer{
		observers.NewLatencyObserver(logger),
		observers.NewLoggerObserver(logger),
		observers.NewPrometheusObserver(),
	}
	var timeline *observers.TimelineObserver
	var cost *observers.CostObserver
	if dir := strings.TrimSpace(cfg.Observability.ArtifactsDir); dir != "" {
		if cfg.Observability.RetentionDays > 0 {
			_, _ = observers.PurgeArtifacts(dir, time.Duration(cfg.Observability.RetentionDays)*24*time.Hour)
		}
		timeline = observers.NewTimelineObserver(dir)
		cost = observers.NewCostObserver(dir)
		obsList = append(obsList, timeline, cost)
	}
	var sink metrics.Observer = observers.NewMultiObserver(obsList...)
	if rate := cfg.Observability.SampleRate; rate > 0 && rate < 1 {
		sink = metrics.NewSamplingObserver(sink, rate)
	}
	asyncObs := metrics.NewAsyncObserver(sink, cfg.Observability.EventBuffer)

	providers := opts.Providers
	if providers == nil {
		providers = DefaultRegistry()
	}

	transcriber, err := providers.BuildSTT(cfg.Providers.STT.Provider, cfg)
	if err != nil {
		asyncObs.Close()
		return nil, fmt.Errorf("build stt: %w", err)
	}
	responder, err := providers.BuildLLM(cfg.Providers.LLM.Provider, cfg)
	if err != nil {
		asyncObs.Close()
		return nil, fmt.Errorf("build llm: %w", err)
	}
	if breaker, ok := responder.(*llm.CircuitBreakerResponder); ok {
		breaker.SetObserver(asyncObs)
	}
	synth, err := providers.BuildTTS(cfg.Providers.TTS.Provider, cfg)
	if err != nil {
		asyncObs.Close()
		return nil, fmt.Errorf("build tts: %w", err)
	}
	devices, err := providers.BuildAudio(cfg.Providers.Audio.Provider, cfg)
	if err != nil {
		asyncObs.Close()
		return nil, fmt.Errorf("build audio: %w", err)
	}

	history := llm.NewHistory(cfg.Conversation.SystemPrompt, cfg.Conversation.MaxHistory)

	controller := turn.NewController(turn.ControllerOptions{
		Observer: asyncObs,
		Logger:   logger,
	})
	orch := pipeline.New(pipeline.Options{
		Capture:   devices.Capture,
		STT:       transcriber,
		Responder: responder,
		History:   history,
		TTS:       synth,
		Player:    devices.Player,
		Observer:  asyncObs,
		Logger:    logger,
		Config: pipeline.Config{
			SampleRate:   cfg.Audio.SampleRate,
			StageTimeout: cfg.Turn.StageTimeout(),
			Silence:      cfg.Turn.SilenceDetector(),
		},
	})
	controller.BindPipeline(orch)
	orch.Bind(controller)

	hub := display.New(cfg.Display, display.Options{
		Dispatcher: controller,
		Observer:   asyncObs,
		Logger:     logger,
	})
	controller.AddListener(hub)

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		cfg:        cfg,
		controller: controller,
		orch:       orch,
		hub:        hub,
		history:    history,
		providers:  providers,
		asyncObs:   asyncObs,
		audioClose: devices.Close,
		ctx:        ctx,
		cancel:     cancel,
		log:        logging.NewComponentLogger(logger, "engine"),
	}

	hooks := runner.Hooks{
		OnStart: func() {
			e.log.Info("engine_ready",
				slog.String("addr", cfg.Display.Addr),
				slog.String("ws_path", cfg.Display.WebsocketPath))
		},
		OnStop: func() {
			asyncObs.Close()
			if timeline != nil {
				_ = timeline.Close()
			}
			if cost != nil {
				_ = cost.Close()
			}
			e.log.Info("shutdown", slog.Int("goroutines", runtime.NumGoroutine()))
		},
	}
	drainer := runner.DrainerFunc(func() error {
		// Abort tears down any in-flight turn; ignored when idle.
		controller.Dispatch(turn.Abort())
		_ = hub.Stop()
		if e.audioClose != nil {
			return e.audioClose()
		}
		return nil
	})
	e.runner = runner.NewLifecycleRunner(drainer, hooks, 10*time.Second)

	return e, nil
}

// Start brings up the display server and the lifecycle runner and
// returns immediately. The engine stops when ctx is cancelled or Stop
// is called.
func (e *Engine) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := e.hub.Start(e.ctx); err != nil {
		return err
	}
	go func() {
		_ = e.runner.Run(ctx)
	}()
	return nil
}

func (e *Engine) Stop() error {
	if e.cancel != nil {
		e.cancel()
	}
	return e.runner.Stop()
}

// Dispatch forwards a trigger to the turn controller.
func (e *Engine) Dispatch(tr turn.Trigger) (turn.StateEvent, bool) {
	return e.controller.Dispatch(tr)
}

// Current returns the latest emitted StateEvent.
func (e *Engine) Current() turn.StateEvent {
	return e.controller.Current()
}

func (e *Engine) Controller() *turn.Controller { return e.controller }

func (e *Engine) Hub() *display.Hub { return e.hub }

func (e *Engine) History() *llm.History { return e.history }

func (e *Engine) Config() Config { return e.cfg }
