package elevenlabs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sproutbotics/robin/pkg/resilience"
)

func TestSynthesizeReturnsPCM(t *testing.T) {
	type captured struct {
		path   string
		query  string
		apiKey string
		body   convertRequest
	}
	var got captured

	audio := []byte{0x01, 0x02, 0x03, 0x04}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.query = r.URL.RawQuery
		got.apiKey = r.Header.Get("xi-api-key")
		if err := json.NewDecoder(r.Body).Decode(&got.body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write(audio)
	}))
	defer srv.Close()

	s := New(Config{APIKey: "key", BaseURL: srv.URL, Voice: "adam", SampleRate: 16000})
	pcm, err := s.Synthesize(context.Background(), "Hello there! ")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(pcm) != string(audio) {
		t.Fatalf("pcm = %v, want %v", pcm, audio)
	}
	if got.path != "/text-to-speech/pNInz6obpgDQGcFmaJgB" {
		t.Fatalf("path = %q", got.path)
	}
	if got.query != "output_format=pcm_16000" {
		t.Fatalf("query = %q", got.query)
	}
	if got.apiKey != "key" {
		t.Fatalf("api key = %q", got.apiKey)
	}
	if got.body.Text != "Hello there!" {
		t.Fatalf("text = %q", got.body.Text)
	}
	if got.body.ModelID != "eleven_multilingual_v2" {
		t.Fatalf("model = %q", got.body.ModelID)
	}
	if got.body.VoiceSettings.Stability != 0.5 || got.body.VoiceSettings.SimilarityBoost != 0.8 {
		t.Fatalf("voice settings = %+v", got.body.VoiceSettings)
	}
}

func TestSynthesizePassesRawVoiceID(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte{0x00})
	}))
	defer srv.Close()

	s := New(Config{APIKey: "key", BaseURL: srv.URL, Voice: "customVoice123"})
	if _, err := s.Synthesize(context.Background(), "hi"); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if path != "/text-to-speech/customVoice123" {
		t.Fatalf("path = %q", path)
	}
}

func TestSynthesizeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusBadGateway)
			return
		}
		w.Write([]byte{0x0a, 0x0b})
	}))
	defer srv.Close()

	s := New(Config{APIKey: "key", BaseURL: srv.URL, MaxRetries: 2})
	pcm, err := s.Synthesize(context.Background(), "hi")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(pcm) != 2 {
		t.Fatalf("pcm length = %d", len(pcm))
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("calls = %d, want 2", n)
	}
}

func TestSynthesizeRateLimited(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := New(Config{APIKey: "key", BaseURL: srv.URL, MaxRetries: 3})
	_, err := s.Synthesize(context.Background(), "hi")
	if !resilience.IsRateLimit(err) {
		t.Fatalf("error = %v, want rate limit", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}
}

func TestSynthesizeEmptyText(t *testing.T) {
	s := New(Config{APIKey: "key"})
	if _, err := s.Synthesize(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestSynthesizeEmptyAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(Config{APIKey: "key", BaseURL: srv.URL})
	if _, err := s.Synthesize(context.Background(), "hi"); err == nil {
		t.Fatal("expected error for empty audio body")
	}
}
