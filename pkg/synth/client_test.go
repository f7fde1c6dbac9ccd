package synth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSynthesize(t *testing.T) {
	audio := make([]byte, 6400)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("bad request payload: %v", err)
		}
		if payload["text"] != "hello" {
			t.Errorf("got text %q, want hello", payload["text"])
		}
		if payload["audio_encoding"] != "pcm16" {
			t.Errorf("got encoding %q, want pcm16", payload["audio_encoding"])
		}
		if payload["language_code"] != "hu-HU" {
			t.Errorf("got language %q, want hu-HU", payload["language_code"])
		}
		if payload["voice_name"] != "anna" {
			t.Errorf("got voice %q, want anna", payload["voice_name"])
		}

		w.Header().Set("X-Sample-Rate", "24000")
		w.Write(audio)
	}))
	defer srv.Close()

	c, err := NewClient(WithURL(srv.URL), WithVoice("anna"), WithLanguage("hu-HU"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	result, err := c.Synthesize(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(result.Audio) != len(audio) {
		t.Errorf("got %d audio bytes, want %d", len(result.Audio), len(audio))
	}
	if result.SampleRate != 24000 {
		t.Errorf("got sample rate %d, want 24000 from header", result.SampleRate)
	}
	if result.Voice != "anna" {
		t.Errorf("got voice %q, want anna", result.Voice)
	}
}

func TestSynthesizeSampleRateFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 320))
	}))
	defer srv.Close()

	c, err := NewClient(WithURL(srv.URL), WithSampleRate(16000))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	result, err := c.Synthesize(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if result.SampleRate != 16000 {
		t.Errorf("got sample rate %d, want configured 16000", result.SampleRate)
	}
}

func TestSynthesizeEmptyText(t *testing.T) {
	c, err := NewClient(WithURL("http://localhost:1"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if _, err := c.Synthesize(context.Background(), "   "); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("got %v, want ErrEmptyText", err)
	}
}

func TestSynthesizeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"bad key"}`))
	}))
	defer srv.Close()

	c, err := NewClient(WithURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = c.Synthesize(context.Background(), "hello")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %v, want *APIError", err)
	}
	if !apiErr.IsUnauthorized() {
		t.Errorf("got status %d, want 401", apiErr.StatusCode)
	}
	if apiErr.Message != "bad key" {
		t.Errorf("got message %q, want %q", apiErr.Message, "bad key")
	}
}

func TestSynthesizeHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 320))
	}))
	defer srv.Close()

	c, err := NewClient(WithURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Synthesize(ctx, "hello"); err == nil {
		t.Fatal("Synthesize ignored cancelled context")
	}
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(); !errors.Is(err, ErrNoURL) {
		t.Fatalf("got %v, want ErrNoURL", err)
	}
}

func TestMockProviderSizesAudioToText(t *testing.T) {
	m := &MockProvider{}
	result, err := m.Synthesize(context.Background(), "abcd")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(result.Audio) != 4*3200 {
		t.Errorf("got %d bytes, want %d", len(result.Audio), 4*3200)
	}
	if d := result.Duration(); d <= 0 {
		t.Errorf("got duration %v, want positive", d)
	}
}
