package metrics

import "sync"

// SamplingObserver forwards a fixed fraction of the event stream to its
// inner observer. Rate 1 forwards everything, rate 0 nothing. Selection
// is deterministic: the kept positions are the same on every run.
type SamplingObserver struct {
	inner Observer
	rate  float64

	mu     sync.Mutex
	credit float64
}

func NewSamplingObserver(inner Observer, rate float64) *SamplingObserver {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	return &SamplingObserver{inner: inner, rate: rate}
}

func (s *SamplingObserver) RecordEvent(ev MetricsEvent) {
	if s.rate >= 1 {
		s.inner.RecordEvent(ev)
		return
	}
	if s.rate <= 0 {
		return
	}
	s.mu.Lock()
	s.credit += s.rate
	keep := s.credit >= 1
	if keep {
		s.credit--
	}
	s.mu.Unlock()
	if keep {
		s.inner.RecordEvent(ev)
	}
}
