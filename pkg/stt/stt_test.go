package stt

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *ElevenLabs {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewElevenLabs(WithAPIKey("test-key"), WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewElevenLabs: %v", err)
	}
	return p
}

func TestNewElevenLabsRequiresKey(t *testing.T) {
	if _, err := NewElevenLabs(); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestTranscribeForm(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/speech-to-text" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "test-key" {
			t.Error("missing api key header")
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.FormValue("model_id"); got != "scribe_v1" {
			t.Errorf("expected scribe_v1, got %q", got)
		}
		if got := r.FormValue("language_code"); got != "ja" {
			t.Errorf("expected ja, got %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "webm-bytes" {
			t.Errorf("unexpected audio %q", data)
		}
		if header.Filename != "recording.webm" {
			t.Errorf("unexpected filename %q", header.Filename)
		}

		io.WriteString(w, `{"text":"こんにちは","language_code":"ja","alignment":{"chars":["こ"]}}`)
	})

	res, err := p.Transcribe(context.Background(), &Audio{Data: []byte("webm-bytes")})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "こんにちは" {
		t.Errorf("unexpected text %q", res.Text)
	}
	if string(res.Alignment) != `{"chars":["こ"]}` {
		t.Errorf("alignment should pass through, got %s", res.Alignment)
	}
}

func TestTranscribeWithoutAlignment(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"text":"hi","alignment":null,"words":[{"text":"hi","start":0,"end":0.4}]}`)
	})

	res, err := p.Transcribe(context.Background(), &Audio{Data: []byte{1}})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(res.Alignment) != 0 && string(res.Alignment) != "null" {
		t.Errorf("words must not stand in for alignment, got %s", res.Alignment)
	}
}

func TestTranscribeAPIError(t *testing.T) {
	calls := 0
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, "unsupported format")
	})

	_, err := p.Transcribe(context.Background(), &Audio{Data: []byte{1}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != 422 || apiErr.Message != "unsupported format" {
		t.Errorf("unexpected error %+v", apiErr)
	}
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
}

func TestTranscribeNoAudio(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("provider should not be called")
	})
	if _, err := p.Transcribe(context.Background(), &Audio{}); !errors.Is(err, ErrNoAudio) {
		t.Errorf("expected ErrNoAudio, got %v", err)
	}
}

func TestTranscribeTransportError(t *testing.T) {
	p, err := NewElevenLabs(WithAPIKey("k"), WithBaseURL("http://127.0.0.1:1"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Transcribe(context.Background(), &Audio{Data: []byte{1}})
	var provErr *ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
}
