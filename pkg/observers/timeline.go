package observers

import (
	"encoding/json"
	"errors"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sproutbotics/robin/pkg/metrics"
)

// TimelineObserver writes every event of a turn to its own JSONL file
// under dir, named <turn_id>.jsonl. Files stay open until Close so a
// turn's trace lands in order.
type TimelineObserver struct {
	dir string

	mu      sync.Mutex
	writers map[string]*timelineFile
}

type timelineFile struct {
	f   *os.File
	enc *json.Encoder
}

type timelineEvent struct {
	Time   time.Time         `json:"time"`
	Event  string            `json:"event"`
	TurnID string            `json:"turn_id"`
	Tags   map[string]string `json:"tags,omitempty"`
	Fields map[string]any    `json:"fields,omitempty"`
}

func NewTimelineObserver(dir string) *TimelineObserver {
	return &TimelineObserver{dir: dir, writers: make(map[string]*timelineFile)}
}

func (o *TimelineObserver) RecordEvent(ev metrics.MetricsEvent) {
	if strings.TrimSpace(o.dir) == "" {
		return
	}
	turnID := ev.Tags["turn_id"]
	if turnID == "" {
		return
	}
	entry := timelineEvent{
		Time:   ev.Time.UTC(),
		Event:  ev.Name,
		TurnID: turnID,
		Tags:   maps.Clone(ev.Tags),
		Fields: maps.Clone(ev.Fields),
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	w := o.writerLocked(turnID)
	if w == nil {
		return
	}
	_ = w.enc.Encode(entry)
}

func (o *TimelineObserver) writerLocked(id string) *timelineFile {
	name := sanitizeID(id)
	if name == "" {
		return nil
	}
	if w, ok := o.writers[name]; ok {
		return w
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(o.dir, name+".jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil
	}
	w := &timelineFile{f: f, enc: json.NewEncoder(f)}
	o.writers[name] = w
	return w
}

// Close closes every open turn file.
func (o *TimelineObserver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var errs error
	for _, w := range o.writers {
		errs = errors.Join(errs, w.f.Close())
	}
	o.writers = make(map[string]*timelineFile)
	return errs
}

// sanitizeID keeps turn ids filesystem-safe; anything outside the uuid
// alphabet becomes an underscore.
func sanitizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
			r == '-' || r == '_' || r == '.' {
			return r
		}
		return '_'
	}, id)
}

var _ metrics.Observer = (*TimelineObserver)(nil)
