package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-voicechat/internal/config"
	"github.com/teslashibe/go-voicechat/pkg/inference"
	"github.com/teslashibe/go-voicechat/pkg/metrics"
	"github.com/teslashibe/go-voicechat/pkg/stt"
	"github.com/teslashibe/go-voicechat/pkg/tts"
)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	s := New(config.Default(), append([]Option{WithRegistry(metrics.NewRegistry())}, opts...)...)
	t.Cleanup(s.Sessions().Close)
	return s
}

func do(t *testing.T, s *Server, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, body
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func audioRequest(t *testing.T, path string, audio []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("audio", "recording.webm")
	require.NoError(t, err)
	_, err = part.Write(audio)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func errorBody(t *testing.T, body []byte) map[string]string {
	t.Helper()
	var m map[string]string
	require.NoError(t, json.Unmarshal(body, &m), string(body))
	return m
}

func TestTTSUnconfigured(t *testing.T) {
	s := newTestServer(t)

	resp, body := do(t, s, jsonRequest(http.MethodPost, "/tts", `{"text":"こんにちは"}`))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, map[string]string{"error": "API key not configured"}, errorBody(t, body))
}

func TestTTSMissingText(t *testing.T) {
	s := newTestServer(t, WithTTS(tts.NewMock()))

	resp, body := do(t, s, jsonRequest(http.MethodPost, "/tts", `{"text":""}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Text is required", errorBody(t, body)["error"])
}

func TestChatMissingMessage(t *testing.T) {
	s := newTestServer(t, WithChat(inference.NewMock("unused")))

	resp, body := do(t, s, jsonRequest(http.MethodPost, "/chat", `{}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Message is required", errorBody(t, body)["error"])
}

func TestWhitespaceInputIsForwarded(t *testing.T) {
	s := newTestServer(t, WithChat(inference.NewMock("ok")), WithTTS(tts.NewMock()))

	resp, body := do(t, s, jsonRequest(http.MethodPost, "/chat", `{"message":"  "}`))
	assert.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = do(t, s, jsonRequest(http.MethodPost, "/tts", `{"text":" "}`))
	assert.Equal(t, http.StatusOK, resp.StatusCode, string(body))
}

func TestMalformedBody(t *testing.T) {
	s := newTestServer(t)

	resp, body := do(t, s, jsonRequest(http.MethodPost, "/chat", `{"message":`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid request body", errorBody(t, body)["error"])
}

func TestVoicesFallbackWhenUnconfigured(t *testing.T) {
	s := newTestServer(t)

	resp, body := do(t, s, httptest.NewRequest(http.MethodGet, "/voices", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out VoicesResponse
	require.NoError(t, json.Unmarshal(body, &out))
	var ids []string
	for _, v := range out.Voices {
		ids = append(ids, v.VoiceID)
		assert.Equal(t, "premade", v.Category)
	}
	assert.Equal(t, []string{
		"pNInz6obpgDQGcFmaJgB",
		"EXAVITQu4vr4xnSDxMaL",
		"ErXwobaYiN019PkySvjV",
		"VR6AewLTigWG4xSOukaG",
	}, ids)
}

func TestSTTMissingAudio(t *testing.T) {
	s := newTestServer(t, WithSTT(stt.NewMock("x")))

	req := httptest.NewRequest(http.MethodPost, "/stt", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=nothing")
	resp, body := do(t, s, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Audio file is required", errorBody(t, body)["error"])
}

func TestSTTUnconfigured(t *testing.T) {
	s := newTestServer(t)

	resp, body := do(t, s, audioRequest(t, "/stt", []byte("webm")))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "API key not configured", errorBody(t, body)["error"])
}

// elevenLabsStub fakes the speech endpoints.
func elevenLabsStub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "xi-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.URL.Path == "/speech-to-text":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "scribe_v1", r.FormValue("model_id"))
			assert.Equal(t, "ja", r.FormValue("language_code"))
			f, _, err := r.FormFile("file")
			require.NoError(t, err)
			data, _ := io.ReadAll(f)
			if string(data) == "fail" {
				w.WriteHeader(http.StatusInternalServerError)
				io.WriteString(w, "boom")
				return
			}
			io.WriteString(w, `{"text":"hello","language_code":"ja"}`)

		case strings.HasPrefix(r.URL.Path, "/text-to-speech/"):
			assert.Equal(t, "audio/mpeg", r.Header.Get("Accept"))
			var payload struct {
				Text          string `json:"text"`
				ModelID       string `json:"model_id"`
				VoiceSettings struct {
					Stability       float64 `json:"stability"`
					SimilarityBoost float64 `json:"similarity_boost"`
				} `json:"voice_settings"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "eleven_multilingual_v2", payload.ModelID)
			assert.Equal(t, 0.5, payload.VoiceSettings.Stability)
			assert.Equal(t, 0.5, payload.VoiceSettings.SimilarityBoost)
			w.Header().Set("X-Voice", strings.TrimPrefix(r.URL.Path, "/text-to-speech/"))
			w.Header().Set("Content-Type", "audio/mpeg")
			w.Write([]byte{1, 2, 3})

		case r.URL.Path == "/voices":
			io.WriteString(w, `{"voices":[{"voice_id":"v1","name":"One","category":"cloned"}]}`)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// openAIStub fakes chat completions and records the last request.
type openAIStub struct {
	*httptest.Server
	mu   sync.Mutex
	last map[string]any
	fail bool
}

func newOpenAIStub(t *testing.T, reply string) *openAIStub {
	t.Helper()
	stub := &openAIStub{}
	stub.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		stub.mu.Lock()
		stub.last = body
		fail := stub.fail
		stub.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if fail {
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"error":{"message":"Rate limit reached","type":"requests"}}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 5, "completion_tokens": 2, "total_tokens": 7},
		})
	}))
	t.Cleanup(stub.Close)
	return stub
}

func (s *openAIStub) lastRequest() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func configuredServer(t *testing.T, reply string) (*Server, *openAIStub) {
	t.Helper()
	el := elevenLabsStub(t)
	oa := newOpenAIStub(t, reply)

	cfg := config.Default()
	cfg.ElevenLabs.APIKey = "xi-test"
	cfg.ElevenLabs.BaseURL = el.URL
	cfg.OpenAI.APIKey = "sk-test"
	cfg.OpenAI.BaseURL = oa.URL

	s, err := NewFromConfig(cfg, nil, metrics.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(s.Sessions().Close)
	return s, oa
}

func TestSTTRoundTrip(t *testing.T) {
	s, _ := configuredServer(t, "")

	resp, body := do(t, s, audioRequest(t, "/stt", []byte("webm-bytes")))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"text":"hello","alignment":null}`, string(body))
}

func TestSTTProviderFailure(t *testing.T) {
	s, _ := configuredServer(t, "")

	resp, body := do(t, s, audioRequest(t, "/api/stt", []byte("fail")))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, map[string]string{
		"error":   "Failed to convert speech to text",
		"details": "ElevenLabs API error: 500 - boom",
	}, errorBody(t, body))
}

func TestTTSRoundTrip(t *testing.T) {
	s, _ := configuredServer(t, "")

	resp, body := do(t, s, jsonRequest(http.MethodPost, "/tts", `{"text":"こんにちは"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, "3", resp.Header.Get("Content-Length"))
	assert.Equal(t, []byte{1, 2, 3}, body)
}

func TestTTSVoiceStaysInPath(t *testing.T) {
	var mu sync.Mutex
	var gotPath, gotQuery string
	el := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotPath, gotQuery = r.URL.EscapedPath(), r.URL.RawQuery
		mu.Unlock()
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte{1})
	}))
	defer el.Close()

	cfg := config.Default()
	cfg.ElevenLabs.APIKey = "xi-test"
	cfg.ElevenLabs.BaseURL = el.URL
	s, err := NewFromConfig(cfg, nil, metrics.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(s.Sessions().Close)

	resp, _ := do(t, s, jsonRequest(http.MethodPost, "/tts", `{"text":"hi","voice":"x?output_format=pcm_16000"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/text-to-speech/x%3Foutput_format=pcm_16000", gotPath)
	assert.Empty(t, gotQuery)
}

func TestVoicesFromProvider(t *testing.T) {
	s, _ := configuredServer(t, "")

	resp, body := do(t, s, httptest.NewRequest(http.MethodGet, "/api/voices", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"voices":[{"voice_id":"v1","name":"One","category":"cloned"}]}`, string(body))
}

func TestChatRoundTrip(t *testing.T) {
	s, oa := configuredServer(t, "hi there")

	resp, body := do(t, s, jsonRequest(http.MethodPost, "/chat", `{"message":"hello","history":[]}`))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out ChatResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "hi there", out.Response)
	assert.Equal(t, []inference.Message{
		inference.NewUserMessage("hello"),
		inference.NewAssistantMessage("hi there"),
	}, out.UpdatedHistory)

	sent := oa.lastRequest()
	assert.Equal(t, "gpt-4o-mini", sent["model"])
	assert.EqualValues(t, 150, sent["max_tokens"])
	assert.InDelta(t, 0.7, sent["temperature"], 1e-9)
	msgs, ok := sent["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, config.DefaultSystemPrompt, msgs[0].(map[string]any)["content"])
	assert.Equal(t, "hello", msgs[1].(map[string]any)["content"])
}

func TestChatFallbackReply(t *testing.T) {
	s, _ := configuredServer(t, "")

	resp, body := do(t, s, jsonRequest(http.MethodPost, "/chat", `{"message":"hello"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out ChatResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, config.DefaultFallbackReply, out.Response)
}

func TestChatProviderFailure(t *testing.T) {
	s, oa := configuredServer(t, "")
	oa.mu.Lock()
	oa.fail = true
	oa.mu.Unlock()

	resp, body := do(t, s, jsonRequest(http.MethodPost, "/chat", `{"message":"hello"}`))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	e := errorBody(t, body)
	assert.Equal(t, "Failed to get response from AI", e["error"])
	assert.Equal(t, "Rate limit reached", e["details"])
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, WithTTS(tts.NewMock()))

	resp, body := do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","stt":false,"tts":true,"chat":false}`, string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	do(t, s, httptest.NewRequest(http.MethodGet, "/voices", nil))
	resp, body = do(t, s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "voicechat_http_requests_total")
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t)
	resp, body := do(t, s, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, errorBody(t, body), "error")
}

func TestChatContextError(t *testing.T) {
	p := inference.NewMock("")
	p.ChatFunc = func(ctx context.Context, _ *inference.ChatRequest) (*inference.ChatResponse, error) {
		return nil, context.DeadlineExceeded
	}
	s := newTestServer(t, WithChat(p))

	resp, body := do(t, s, jsonRequest(http.MethodPost, "/chat", `{"message":"hi"}`))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Failed to get response from AI", errorBody(t, body)["error"])
}
