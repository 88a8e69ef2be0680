package turn

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sproutbotics/robin/pkg/errorsx"
	"github.com/sproutbotics/robin/pkg/logging"
	"github.com/sproutbotics/robin/pkg/metrics"
	"github.com/sproutbotics/robin/pkg/redact"
)

// Pipeline is the controller's outbound side: stage work initiated by a
// transition. StartListening and BeginProcessing may do prompt
// synchronous work (starting and stopping capture); everything slow runs
// in goroutines that report back through Dispatch with the Turn ID they
// belong to.
type Pipeline interface {
	StartListening(t *Turn) error
	BeginProcessing(t *Turn) error
	BeginGeneration(t *Turn)
	BeginSpeaking(t *Turn)
	CancelTurn(turnID string)
}

type ControllerOptions struct {
	Pipeline Pipeline
	Observer metrics.Observer
	Logger   *slog.Logger
}

// Controller owns the turn state machine. Dispatch is the only mutator of
// the state; every trigger source (operator input, silence detector,
// pipeline completions) funnels through it and is serialized by one
// mutex.
type Controller struct {
	mu        sync.Mutex
	state     State
	seq       uint64
	turn      *Turn
	snapshot  StateEvent
	listeners []EventListener
	pipeline  Pipeline
	obs       metrics.Observer
	log       *slog.Logger
}

func NewController(opts ControllerOptions) *Controller {
	obs := opts.Observer
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	base := opts.Logger
	if base == nil {
		base = slog.Default()
	}
	return &Controller{
		state:    StateIdle,
		snapshot: StateEvent{State: StateIdle},
		pipeline: opts.Pipeline,
		obs:      obs,
		log:      logging.NewComponentLogger(base, "turn_controller"),
	}
}

// BindPipeline attaches the pipeline after construction. The engine wires
// the controller and the orchestrator to each other, so one of the two
// references is bound late.
func (c *Controller) BindPipeline(p Pipeline) {
	c.mu.Lock()
	c.pipeline = p
	c.mu.Unlock()
}

// AddListener registers a listener for emitted StateEvents.
func (c *Controller) AddListener(l EventListener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, l)
	c.mu.Unlock()
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns the latest emitted StateEvent. Before any transition it
// is {idle, "", 0}.
func (c *Controller) Current() StateEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Dispatch applies one trigger. It returns the resulting StateEvent and
// whether the trigger was applied; a trigger with no defined transition
// for the current state is ignored and the unchanged snapshot is
// returned.
func (c *Controller) Dispatch(tr Trigger) (StateEvent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyLocked(tr)
}

func (c *Controller) applyLocked(tr Trigger) (StateEvent, bool) {
	if tr.isCompletion() && (c.turn == nil || c.turn.ID != tr.TurnID) {
		c.log.Debug("stale_completion_discarded",
			slog.String("trigger", tr.Kind.String()),
			slog.String("turn_id", tr.TurnID))
		return c.snapshot, false
	}

	switch {
	case c.state == StateIdle && tr.Kind == TriggerStartTurn:
		t := NewTurn()
		c.turn = t
		ev := c.emitLocked(StateListening, "")
		c.observe("turn_started", map[string]string{"turn_id": t.ID}, nil, 0)
		if c.pipeline != nil {
			if err := c.pipeline.StartListening(t); err != nil {
				return c.failLocked(StageCapture, errorsx.Wrap(err, errorsx.ReasonCaptureStart))
			}
		}
		return ev, true

	case c.state == StateListening && (tr.Kind == TriggerStopTurn || tr.Kind == TriggerSilenceDetected):
		t := c.turn
		ev := c.emitLocked(StateThinking, "")
		if tr.Kind == TriggerSilenceDetected {
			c.observe("silence_detected", map[string]string{"turn_id": t.ID}, nil, 0)
		}
		if c.pipeline != nil {
			if err := c.pipeline.BeginProcessing(t); err != nil {
				return c.failLocked(StageCapture, errorsx.Wrap(err, errorsx.ReasonCaptureStop))
			}
		}
		return ev, true

	case c.state == StateThinking && tr.Kind == TriggerTranscriptionComplete:
		c.turn.Transcript = tr.Text
		ev := c.emitLocked(StateThinking, tr.Text)
		if c.pipeline != nil {
			c.pipeline.BeginGeneration(c.turn)
		}
		return ev, true

	case c.state == StateThinking && tr.Kind == TriggerReplyComplete:
		c.turn.Reply = tr.Text
		ev := c.emitLocked(StateSpeaking, tr.Text)
		if c.pipeline != nil {
			c.pipeline.BeginSpeaking(c.turn)
		}
		return ev, true

	case (c.state == StateThinking || c.state == StateSpeaking) && tr.Kind == TriggerStageFailed:
		return c.failLocked(tr.Stage, tr.Err)

	case c.state == StateSpeaking && tr.Kind == TriggerPlaybackComplete:
		turnID := c.turn.ID
		c.turn = nil
		ev := c.emitLocked(StateIdle, "")
		c.observe("turn_finished", map[string]string{"turn_id": turnID, "outcome": "completed"}, nil, 0)
		return ev, true

	case tr.Kind == TriggerAbort && c.state != StateIdle:
		t := c.turn
		c.turn = nil
		if c.pipeline != nil && t != nil {
			c.pipeline.CancelTurn(t.ID)
		}
		ev := c.emitLocked(StateIdle, "")
		if t != nil {
			c.observe("turn_finished", map[string]string{"turn_id": t.ID, "outcome": "aborted"}, nil, 0)
		}
		return ev, true

	default:
		c.log.Debug("trigger_ignored",
			slog.String("trigger", tr.Kind.String()),
			slog.String("state", c.state.String()))
		return c.snapshot, false
	}
}

func (c *Controller) failLocked(stage Stage, err error) (StateEvent, bool) {
	turnID := ""
	if c.turn != nil {
		turnID = c.turn.ID
	}
	c.turn = nil
	errText := ""
	if err != nil {
		errText = err.Error()
	}
	c.log.Warn("stage_failed",
		slog.String("turn_id", turnID),
		slog.String("stage", stage.String()),
		slog.String("reason", string(errorsx.Reason(err))),
		slog.String("error", errText))
	ev := c.emitLocked(StateIdle, FailureText(stage))
	c.observe("turn_finished", map[string]string{
		"turn_id": turnID,
		"outcome": "failed",
		"stage":   stage.String(),
	}, nil, 0)
	return ev, true
}

// emitLocked assigns the next sequence number, updates the snapshot, and
// notifies listeners in order. The trigger switch only requests targets
// present in the transition table.
func (c *Controller) emitLocked(to State, text string) StateEvent {
	from := c.state
	if !transitionValid(from, to) {
		c.log.Error("transition_rejected",
			slog.String("error", (&InvalidTransitionError{From: from, To: to}).Error()))
		return c.snapshot
	}
	c.state = to
	c.seq++
	ev := StateEvent{State: to, Text: text, Sequence: c.seq}
	c.snapshot = ev
	for _, l := range c.listeners {
		l.OnStateEvent(ev)
	}
	tags := map[string]string{"from": from.wire(), "to": to.wire()}
	if c.turn != nil {
		tags["turn_id"] = c.turn.ID
	}
	if from != to {
		c.observe("state_changed", tags, nil, 0)
	}
	c.log.Debug("state_event",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.Uint64("sequence", ev.Sequence),
		slog.String("text", redact.Text(text)))
	return ev
}

func (c *Controller) observe(name string, tags map[string]string, fields map[string]any, value float64) {
	c.obs.RecordEvent(metrics.MetricsEvent{
		Name:   name,
		Time:   time.Now(),
		Value:  value,
		Tags:   tags,
		Fields: fields,
	})
}

func (tr Trigger) isCompletion() bool {
	switch tr.Kind {
	case TriggerTranscriptionComplete, TriggerReplyComplete, TriggerPlaybackComplete, TriggerStageFailed:
		return true
	default:
		return false
	}
}
