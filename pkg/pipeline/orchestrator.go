package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sproutbotics/robin/pkg/adapters/stt"
	"github.com/sproutbotics/robin/pkg/adapters/tts"
	"github.com/sproutbotics/robin/pkg/audio"
	"github.com/sproutbotics/robin/pkg/errorsx"
	"github.com/sproutbotics/robin/pkg/llm"
	"github.com/sproutbotics/robin/pkg/logging"
	"github.com/sproutbotics/robin/pkg/metrics"
	"github.com/sproutbotics/robin/pkg/redact"
	"github.com/sproutbotics/robin/pkg/turn"
)

var (
	errEmptyTranscript = errors.New("empty transcript")
	errEmptyReply      = errors.New("empty reply")
	errNoActiveRun     = errors.New("no active run for turn")
)

// Dispatcher is the inbound side of the turn state machine.
type Dispatcher interface {
	Dispatch(tr turn.Trigger) (turn.StateEvent, bool)
}

type Config struct {
	SampleRate   int
	StageTimeout time.Duration
	Silence      audio.SilenceDetectorConfig
}

type Options struct {
	Capture   audio.Capture
	STT       stt.Transcriber
	Responder llm.Responder
	History   *llm.History
	TTS       tts.Synthesizer
	Player    audio.Player
	Observer  metrics.Observer
	Logger    *slog.Logger
	Config    Config
}

// Orchestrator runs the stages of one conversational turn: capture until
// silence or stop, transcribe the buffered utterance, generate a reply,
// synthesize it, play it. Stage completions are reported to the state
// machine through Dispatch, tagged with the Turn they belong to; turns
// cancelled mid-flight stop at the next stage boundary.
type Orchestrator struct {
	capture    audio.Capture
	transcribe stt.Transcriber
	responder  llm.Responder
	history    *llm.History
	synth      tts.Synthesizer
	player     audio.Player
	dispatcher Dispatcher
	obs        metrics.Observer
	log        *slog.Logger
	cfg        Config

	mu     sync.Mutex
	active *turnRun
}

// turnRun carries the cancellation scope of one turn through its stage
// goroutines.
type turnRun struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
}

func New(opts Options) *Orchestrator {
	obs := opts.Observer
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	base := opts.Logger
	if base == nil {
		base = slog.Default()
	}
	cfg := opts.Config
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 30 * time.Second
	}
	return &Orchestrator{
		capture:    opts.Capture,
		transcribe: opts.STT,
		responder:  opts.Responder,
		history:    opts.History,
		synth:      opts.TTS,
		player:     opts.Player,
		obs:        obs,
		log:        logging.NewComponentLogger(base, "pipeline"),
		cfg:        cfg,
	}
}

var _ turn.Pipeline = (*Orchestrator)(nil)

// Bind attaches the dispatcher after construction. The engine wires the
// controller and the orchestrator to each other, so one of the two
// references is bound late.
func (o *Orchestrator) Bind(d Dispatcher) {
	o.mu.Lock()
	o.dispatcher = d
	o.mu.Unlock()
}

// StartListening opens the capture device and arms the silence detector
// for the new turn. Called synchronously from Dispatch; a returned error
// fails the turn before it produces any audio.
func (o *Orchestrator) StartListening(t *turn.Turn) error {
	ctx, cancel := context.WithCancel(context.Background())
	run := &turnRun{id: t.ID, ctx: ctx, cancel: cancel}

	o.mu.Lock()
	if prev := o.active; prev != nil {
		prev.cancel()
	}
	o.active = run
	o.mu.Unlock()

	if err := o.capture.Start(ctx); err != nil {
		o.finish(run)
		return err
	}

	det := audio.NewSilenceDetector(o.cfg.Silence, func() {
		if ctx.Err() != nil {
			return
		}
		o.dispatch(turn.SilenceDetected())
	}, o.log)
	go det.Watch(ctx, o.capture.Samples())
	return nil
}

// BeginProcessing stops capture, takes the buffered utterance, and hands
// it to the transcription stage. The capture stop happens synchronously
// so the device is released before the thinking state settles.
func (o *Orchestrator) BeginProcessing(t *turn.Turn) error {
	run := o.current(t.ID)
	if run == nil {
		return errNoActiveRun
	}

	pcm, err := o.capture.Stop()
	if err != nil {
		o.finish(run)
		return err
	}
	t.Audio = pcm
	o.observe("capture_stopped", t.ID, map[string]any{
		"audio_seconds": audio.Duration(pcm, o.cfg.SampleRate).Seconds(),
	}, 0)

	go o.runSTT(run, t)
	return nil
}

// BeginGeneration hands the transcript to the reply stage.
func (o *Orchestrator) BeginGeneration(t *turn.Turn) {
	run := o.current(t.ID)
	if run == nil {
		return
	}
	go o.runLLM(run, t)
}

// BeginSpeaking hands the reply to synthesis and playback.
func (o *Orchestrator) BeginSpeaking(t *turn.Turn) {
	run := o.current(t.ID)
	if run == nil {
		return
	}
	go o.runSpeech(run, t)
}

// CancelTurn tears down the named turn's stages. Capture and playback
// watch the run context and release the device on cancellation.
func (o *Orchestrator) CancelTurn(turnID string) {
	o.mu.Lock()
	run := o.active
	if run != nil && run.id == turnID {
		o.active = nil
	} else {
		run = nil
	}
	o.mu.Unlock()
	if run != nil {
		run.cancel()
	}
}

func (o *Orchestrator) runSTT(run *turnRun, t *turn.Turn) {
	ctx, cancel := context.WithTimeout(run.ctx, o.cfg.StageTimeout)
	defer cancel()

	start := time.Now()
	text, err := o.transcribe.Transcribe(ctx, t.Audio)
	if err != nil {
		o.fail(run, t.ID, turn.StageSTT, errorsx.Wrap(err, errorsx.ReasonSTT))
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		o.fail(run, t.ID, turn.StageSTT, errorsx.Wrap(errEmptyTranscript, errorsx.ReasonSTT))
		return
	}
	// Student speech enters the observability stream redacted; every sink
	// downstream (logs, timelines) sees the same sanitized text.
	o.observeProvider("stt_done", t.ID, o.transcribe.Name(), map[string]any{
		"transcript": redact.Text(text),
	}, sinceMs(start))
	o.complete(run, turn.TranscriptionComplete(t.ID, text))
}

func (o *Orchestrator) runLLM(run *turnRun, t *turn.Turn) {
	ctx, cancel := context.WithTimeout(run.ctx, o.cfg.StageTimeout)
	defer cancel()

	start := time.Now()
	messages := o.snapshotHistory(t.Transcript)
	resp, err := o.responder.Respond(ctx, messages)
	if err != nil {
		o.fail(run, t.ID, turn.StageLLM, errorsx.Wrap(err, errorsx.ReasonLLM))
		return
	}
	reply := strings.TrimSpace(resp.Text)
	if reply == "" {
		o.fail(run, t.ID, turn.StageLLM, errorsx.Wrap(errEmptyReply, errorsx.ReasonLLM))
		return
	}
	if o.history != nil {
		o.history.Commit(t.Transcript, reply)
	}
	o.observeProvider("llm_done", t.ID, o.responder.Name(), map[string]any{
		"tokens": resp.Usage.TotalTokens,
		"reply":  redact.Text(reply),
	}, sinceMs(start))
	o.complete(run, turn.ReplyComplete(t.ID, reply))
}

func (o *Orchestrator) runSpeech(run *turnRun, t *turn.Turn) {
	ctx, cancel := context.WithTimeout(run.ctx, o.cfg.StageTimeout)
	start := time.Now()
	pcm, err := o.synth.Synthesize(ctx, t.Reply)
	cancel()
	if err != nil {
		o.fail(run, t.ID, turn.StageTTS, errorsx.Wrap(err, errorsx.ReasonTTS))
		return
	}
	o.observeProvider("tts_done", t.ID, o.synth.Name(), map[string]any{
		"audio_seconds": audio.Duration(pcm, o.cfg.SampleRate).Seconds(),
	}, sinceMs(start))

	// Playback is bounded by the audio length, not the stage timeout.
	playStart := time.Now()
	if err := o.player.Play(run.ctx, pcm); err != nil {
		o.fail(run, t.ID, turn.StagePlayback, errorsx.Wrap(err, errorsx.ReasonPlayback))
		return
	}
	o.observe("playback_done", t.ID, nil, sinceMs(playStart))
	o.complete(run, turn.PlaybackComplete(t.ID))
	o.finish(run)
}

func (o *Orchestrator) snapshotHistory(userText string) []llm.Message {
	if o.history != nil {
		return o.history.Snapshot(userText)
	}
	return []llm.Message{{Role: llm.RoleUser, Content: userText}}
}

// current returns the active run when it matches the given turn.
func (o *Orchestrator) current(turnID string) *turnRun {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil && o.active.id == turnID {
		return o.active
	}
	return nil
}

// finish releases the run's cancellation scope and drops it from the
// active slot if it is still there.
func (o *Orchestrator) finish(run *turnRun) {
	run.cancel()
	o.mu.Lock()
	if o.active == run {
		o.active = nil
	}
	o.mu.Unlock()
}

// complete reports a stage result unless the run was cancelled while the
// stage was in flight.
func (o *Orchestrator) complete(run *turnRun, tr turn.Trigger) {
	if run.ctx.Err() != nil {
		o.log.Debug("completion_dropped",
			slog.String("trigger", tr.Kind.String()),
			slog.String("turn_id", tr.TurnID))
		return
	}
	o.dispatch(tr)
}

func (o *Orchestrator) fail(run *turnRun, turnID string, stage turn.Stage, err error) {
	if run.ctx.Err() != nil {
		o.log.Debug("stage_cancelled",
			slog.String("stage", stage.String()),
			slog.String("turn_id", turnID))
		o.finish(run)
		return
	}
	o.finish(run)
	o.dispatch(turn.StageFailed(turnID, stage, err))
}

func (o *Orchestrator) dispatch(tr turn.Trigger) {
	o.mu.Lock()
	d := o.dispatcher
	o.mu.Unlock()
	if d != nil {
		d.Dispatch(tr)
	}
}

func (o *Orchestrator) observe(name, turnID string, fields map[string]any, value float64) {
	o.obs.RecordEvent(metrics.MetricsEvent{
		Name:   name,
		Time:   time.Now(),
		Value:  value,
		Tags:   map[string]string{"turn_id": turnID},
		Fields: fields,
	})
}

func (o *Orchestrator) observeProvider(name, turnID, provider string, fields map[string]any, value float64) {
	o.obs.RecordEvent(metrics.MetricsEvent{
		Name:   name,
		Time:   time.Now(),
		Value:  value,
		Tags:   map[string]string{"turn_id": turnID, "provider": provider},
		Fields: fields,
	})
}

func sinceMs(start time.Time) float64 {
	return float64(time.Since(start).Milliseconds())
}
