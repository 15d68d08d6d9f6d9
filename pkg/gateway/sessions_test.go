package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-voicechat/pkg/conversation"
	"github.com/teslashibe/go-voicechat/pkg/inference"
	"github.com/teslashibe/go-voicechat/pkg/session"
	"github.com/teslashibe/go-voicechat/pkg/stt"
	"github.com/teslashibe/go-voicechat/pkg/tts"
)

func createSession(t *testing.T, s *Server) string {
	t.Helper()
	resp, body := do(t, s, httptest.NewRequest(http.MethodPost, "/api/sessions", nil))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	require.NotEmpty(t, out.ID)
	return out.ID
}

func mockedServer(t *testing.T, chat *inference.Mock) *Server {
	t.Helper()
	return newTestServer(t,
		WithSTT(stt.NewMock("hello")),
		WithChat(chat),
		WithTTS(tts.WithAudio([]byte{1, 2, 3})),
	)
}

func TestSessionVoiceTurn(t *testing.T) {
	s := mockedServer(t, inference.NewMock("hi there"))
	id := createSession(t, s)

	resp, body := do(t, s, audioRequest(t, "/api/sessions/"+id+"/turns", []byte("webm")))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out TurnResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "hello", out.User.Text)
	assert.Equal(t, "hi there", out.Assistant.Text)
	assert.Equal(t, "/api/sessions/"+id+"/audio?v=1", out.AudioURL)
	assert.Len(t, out.State.Transcript, 2)

	resp, body = do(t, s, httptest.NewRequest(http.MethodGet, out.AudioURL, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []byte{1, 2, 3}, body)
	assert.Equal(t, "audio/mpeg", resp.Header.Get("Content-Type"))
}

func TestSessionTextTurnAndHistory(t *testing.T) {
	chat := inference.NewMock("ok")
	s := mockedServer(t, chat)
	id := createSession(t, s)

	for _, msg := range []string{"one", "two"} {
		resp, body := do(t, s, jsonRequest(http.MethodPost, "/api/sessions/"+id+"/turns", `{"message":"`+msg+`"}`))
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	}

	// system + one + ok + two
	assert.Len(t, chat.LastRequest().Messages, 4)

	resp, body := do(t, s, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st session.State
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Len(t, st.Transcript, 4)

	resp, _ = do(t, s, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id+"/transcript", nil))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	sess, err := s.Sessions().Get(id)
	require.NoError(t, err)
	assert.Empty(t, sess.State().Transcript)
}

func TestSessionTurnFailures(t *testing.T) {
	s := newTestServer(t, WithSTT(stt.WithError(&stt.APIError{StatusCode: 503, Message: "busy"})))
	id := createSession(t, s)

	resp, body := do(t, s, audioRequest(t, "/api/sessions/"+id+"/turns", []byte("webm")))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, map[string]string{
		"error":   "Failed to convert speech to text",
		"details": "ElevenLabs API error: 503 - busy",
	}, errorBody(t, body))

	sess, err := s.Sessions().Get(id)
	require.NoError(t, err)
	st := sess.State()
	assert.Empty(t, st.Transcript)
	require.NotNil(t, st.Error)
	assert.Equal(t, "Failed to convert speech to text", st.Error.Message)

	// Chat is not configured on this server.
	resp, body = do(t, s, jsonRequest(http.MethodPost, "/api/sessions/"+id+"/turns", `{"message":"hi"}`))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "API key not configured", errorBody(t, body)["error"])
	assert.Len(t, sess.State().Transcript, 1)

	resp, body = do(t, s, jsonRequest(http.MethodPost, "/api/sessions/"+id+"/turns", `{"message":"  "}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Message is required", errorBody(t, body)["error"])
}

func TestSessionTurnInProgress(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	chat := inference.NewMock("")
	chat.ChatFunc = func(ctx context.Context, req *inference.ChatRequest) (*inference.ChatResponse, error) {
		close(entered)
		<-release
		return &inference.ChatResponse{Message: inference.NewAssistantMessage("late")}, nil
	}
	s := mockedServer(t, chat)
	id := createSession(t, s)

	done := make(chan int, 1)
	go func() {
		resp, err := s.App().Test(jsonRequest(http.MethodPost, "/api/sessions/"+id+"/turns", `{"message":"first"}`), -1)
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first turn never reached the chat provider")
	}

	resp, body := do(t, s, jsonRequest(http.MethodPost, "/api/sessions/"+id+"/turns", `{"message":"second"}`))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Turn already in progress", errorBody(t, body)["error"])

	resp, _ = do(t, s, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id+"/transcript", nil))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	close(release)
	assert.Equal(t, http.StatusOK, <-done)

	sess, err := s.Sessions().Get(id)
	require.NoError(t, err)
	turns := sess.State().Transcript
	require.Len(t, turns, 2)
	assert.Equal(t, conversation.SpeakerUser, turns[0].Speaker)
	assert.Equal(t, conversation.SpeakerAssistant, turns[1].Speaker)
}

func TestSessionSpeakAndDictate(t *testing.T) {
	s := mockedServer(t, inference.NewMock("unused"))
	id := createSession(t, s)

	resp, body := do(t, s, jsonRequest(http.MethodPost, "/api/sessions/"+id+"/speak", `{"text":"読んで","voice":"bella"}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []byte{1, 2, 3}, body)

	resp, body = do(t, s, audioRequest(t, "/api/sessions/"+id+"/dictate", []byte("webm")))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"text":"hello"}`, string(body))

	sess, err := s.Sessions().Get(id)
	require.NoError(t, err)
	assert.Equal(t, "hello", sess.State().Text)
	assert.Empty(t, sess.State().Transcript)

	resp, _ = do(t, s, jsonRequest(http.MethodPut, "/api/sessions/"+id+"/recording", `{"recording":true}`))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, sess.State().Recording)

	resp, _ = do(t, s, jsonRequest(http.MethodPut, "/api/sessions/"+id+"/text", `{"text":"draft"}`))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "draft", sess.State().Text)
}

func TestSessionNotFound(t *testing.T) {
	s := newTestServer(t)

	resp, body := do(t, s, httptest.NewRequest(http.MethodGet, "/api/sessions/missing", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Session not found", errorBody(t, body)["error"])

	id := createSession(t, s)
	resp, body = do(t, s, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/audio", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "No audio available", errorBody(t, body)["error"])

	resp, _ = do(t, s, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id, nil))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = do(t, s, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+id, nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionWebsocketRequiresUpgrade(t *testing.T) {
	s := newTestServer(t)
	id := createSession(t, s)

	resp, _ := do(t, s, httptest.NewRequest(http.MethodGet, "/ws/sessions/"+id, nil))
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}
