package observers

import (
	"encoding/json"
	"errors"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sproutbotics/robin/pkg/metrics"
)

// CostSummary is the billable usage of one turn: seconds of audio sent
// to STT, seconds of synthesized speech, and LLM tokens.
type CostSummary struct {
	TurnID        string  `json:"turn_id"`
	STTAudioSec   float64 `json:"stt_audio_seconds"`
	TTSAudioSec   float64 `json:"tts_audio_seconds"`
	LLMTokenCount int     `json:"llm_tokens"`
	RecordedAtUTC string  `json:"recorded_at_utc"`
}

// CostObserver accumulates usage per turn and writes one
// <turn_id>.cost.json summary per turn at Close.
type CostObserver struct {
	dir string

	mu    sync.Mutex
	usage map[string]*CostSummary
}

func NewCostObserver(dir string) *CostObserver {
	return &CostObserver{dir: dir, usage: make(map[string]*CostSummary)}
}

func (o *CostObserver) RecordEvent(ev metrics.MetricsEvent) {
	if strings.TrimSpace(o.dir) == "" {
		return
	}
	turnID := ev.Tags["turn_id"]
	if turnID == "" {
		return
	}
	switch ev.Name {
	case "capture_stopped", "tts_done":
		sec := numField(ev.Fields, "audio_seconds")
		if sec <= 0 {
			return
		}
		o.apply(turnID, func(c *CostSummary) {
			if ev.Name == "capture_stopped" {
				c.STTAudioSec += sec
			} else {
				c.TTSAudioSec += sec
			}
		})
	case "llm_done":
		tokens := int(numField(ev.Fields, "tokens"))
		if tokens <= 0 {
			return
		}
		o.apply(turnID, func(c *CostSummary) { c.LLMTokenCount += tokens })
	}
}

func (o *CostObserver) apply(turnID string, fn func(*CostSummary)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	c := o.usage[turnID]
	if c == nil {
		c = &CostSummary{TurnID: turnID}
		o.usage[turnID] = c
	}
	fn(c)
}

// Close writes the accumulated summaries, one file per turn.
func (o *CostObserver) Close() error {
	if strings.TrimSpace(o.dir) == "" {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.usage) == 0 {
		return nil
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return err
	}
	stamp := time.Now().UTC().Format(time.RFC3339)
	var errs error
	for _, id := range slices.Sorted(maps.Keys(o.usage)) {
		c := o.usage[id]
		c.RecordedAtUTC = stamp
		b, err := json.MarshalIndent(c, "", "  ")
		if err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		path := filepath.Join(o.dir, sanitizeID(id)+".cost.json")
		if err := os.WriteFile(path, b, 0o644); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

// numField reads a numeric field regardless of how the producer typed it.
func numField(fields map[string]any, key string) float64 {
	switch v := fields[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

var _ metrics.Observer = (*CostObserver)(nil)
