package whisper

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sproutbotics/robin/pkg/resilience"
)

func testPCM(n int) []byte {
	pcm := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(i%4096))
	}
	return pcm
}

func TestTranscribeUploadsWAV(t *testing.T) {
	type captured struct {
		path     string
		auth     string
		model    string
		language string
		filename string
		payload  []byte
	}
	var got captured

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.auth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		got.model = r.FormValue("model")
		got.language = r.FormValue("language")
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			got.filename = header.Filename
			got.payload, _ = io.ReadAll(file)
			file.Close()
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "  what is photosynthesis  "})
	}))
	defer srv.Close()

	pcm := testPCM(16000)
	tr := New(Config{APIKey: "key", BaseURL: srv.URL, SampleRate: 16000, Channels: 1})
	text, err := tr.Transcribe(context.Background(), pcm)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "what is photosynthesis" {
		t.Fatalf("text = %q", text)
	}
	if got.path != "/audio/transcriptions" {
		t.Fatalf("path = %q", got.path)
	}
	if got.auth != "Bearer key" {
		t.Fatalf("auth = %q", got.auth)
	}
	if got.model != "whisper-1" || got.language != "en" {
		t.Fatalf("model = %q language = %q", got.model, got.language)
	}
	if got.filename != "audio.wav" {
		t.Fatalf("filename = %q", got.filename)
	}
	if len(got.payload) != 44+len(pcm) {
		t.Fatalf("payload length = %d, want %d", len(got.payload), 44+len(pcm))
	}
	if string(got.payload[0:4]) != "RIFF" || string(got.payload[8:12]) != "WAVE" {
		t.Fatal("payload is not a WAV container")
	}
	if rate := binary.LittleEndian.Uint32(got.payload[24:28]); rate != 16000 {
		t.Fatalf("sample rate = %d", rate)
	}
	if ch := binary.LittleEndian.Uint16(got.payload[22:24]); ch != 1 {
		t.Fatalf("channels = %d", ch)
	}
	if bits := binary.LittleEndian.Uint16(got.payload[34:36]); bits != 16 {
		t.Fatalf("bits per sample = %d", bits)
	}
	if size := binary.LittleEndian.Uint32(got.payload[40:44]); int(size) != len(pcm) {
		t.Fatalf("data size = %d, want %d", size, len(pcm))
	}
}

func TestTranscribeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "temporarily overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"text": "hello"})
	}))
	defer srv.Close()

	tr := New(Config{APIKey: "key", BaseURL: srv.URL, MaxRetries: 2})
	text, err := tr.Transcribe(context.Background(), testPCM(160))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "hello" {
		t.Fatalf("text = %q", text)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("calls = %d, want 2", n)
	}
}

func TestTranscribeDoesNotRetryRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tr := New(Config{APIKey: "key", BaseURL: srv.URL, MaxRetries: 3})
	_, err := tr.Transcribe(context.Background(), testPCM(160))
	if !resilience.IsRateLimit(err) {
		t.Fatalf("error = %v, want rate limit", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}
}

func TestTranscribeDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "audio too short", http.StatusBadRequest)
	}))
	defer srv.Close()

	tr := New(Config{APIKey: "key", BaseURL: srv.URL, MaxRetries: 3})
	_, err := tr.Transcribe(context.Background(), testPCM(160))
	if err == nil || !strings.Contains(err.Error(), "audio too short") {
		t.Fatalf("error = %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}
}

func TestTranscribeEmptyAudio(t *testing.T) {
	tr := New(Config{APIKey: "key"})
	if _, err := tr.Transcribe(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty audio")
	}
}
