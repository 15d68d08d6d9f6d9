package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-voicechat/pkg/capture"
	"github.com/teslashibe/go-voicechat/pkg/conversation"
	"github.com/teslashibe/go-voicechat/pkg/hub"
	"github.com/teslashibe/go-voicechat/pkg/inference"
)

func mockFactory(m *conversation.Mock) Factory {
	return func(hooks conversation.Hooks, n conversation.Notifier) *conversation.Orchestrator {
		return conversation.New(m,
			conversation.WithTranscriber(m),
			conversation.WithSynthesizer(m),
			conversation.WithHooks(hooks),
			conversation.WithNotifier(n),
		)
	}
}

// eventConn collects text frames written by the hub client.
type eventConn struct {
	mu     sync.Mutex
	frames []string
	binary [][]byte
	closed chan struct{}
	once   sync.Once
}

func newEventConn() *eventConn { return &eventConn{closed: make(chan struct{})} }

func (c *eventConn) SetReadLimit(int64) {}
func (c *eventConn) SetReadDeadline(time.Time) error { return nil }
func (c *eventConn) SetWriteDeadline(time.Time) error { return nil }
func (c *eventConn) SetPongHandler(func(appData string) error) {}
func (c *eventConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("closed")
}
func (c *eventConn) WriteMessage(mt int, data []byte) error {
	c.mu.Lock()
	if mt == websocket.BinaryMessage {
		c.binary = append(c.binary, data)
	} else {
		c.frames = append(c.frames, string(data))
	}
	c.mu.Unlock()
	return nil
}
func (c *eventConn) audio() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.binary...)
}
func (c *eventConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}
func (c *eventConn) events(t *testing.T) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, f := range c.frames {
		if f == "" {
			continue
		}
		var e Event
		require.NoError(t, json.Unmarshal([]byte(f), &e))
		out = append(out, e)
	}
	return out
}

func TestCreateAndGet(t *testing.T) {
	store := NewStore(mockFactory(conversation.NewMock("", "hi", nil)))
	defer store.Close()

	sess := store.Create()
	assert.Len(t, sess.ID(), 36)
	assert.Equal(t, 1, store.Len())

	got, err := store.Get(sess.ID())
	require.NoError(t, err)
	assert.Same(t, sess, got)

	_, err = store.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStateFollowsTurn(t *testing.T) {
	m := conversation.NewMock("hello", "hi there", []byte{1, 2, 3})
	store := NewStore(mockFactory(m))
	defer store.Close()
	sess := store.Create()

	_, err := sess.RunAudio(context.Background(), capture.Blob{Data: []byte{1}})
	require.NoError(t, err)

	st := sess.State()
	require.Len(t, st.Transcript, 2)
	assert.Equal(t, "hello", st.Transcript[0].Text)
	assert.Equal(t, "hi there", st.Transcript[1].Text)
	assert.False(t, st.Transcribing)
	assert.False(t, st.Generating)
	assert.Equal(t, "/api/sessions/"+sess.ID()+"/audio?v=1", st.AudioURL)
	assert.Nil(t, st.Error)
	assert.Equal(t, []byte{1, 2, 3}, sess.LatestSpeech().Audio)
}

func TestNoticeSetsErrorUntilNextAction(t *testing.T) {
	m := conversation.NewMock("", "", nil)
	m.RespondFunc = func(context.Context, string, []inference.Message) (string, error) {
		return "", errors.New("chat down")
	}
	store := NewStore(mockFactory(m))
	defer store.Close()
	sess := store.Create()

	_, err := sess.RunText(context.Background(), "hello")
	require.Error(t, err)
	st := sess.State()
	require.NotNil(t, st.Error)
	assert.Equal(t, conversation.StageRespond, st.Error.Stage)
	assert.Len(t, st.Transcript, 1)

	m.RespondFunc = func(context.Context, string, []inference.Message) (string, error) {
		return "ok", nil
	}
	_, err = sess.RunText(context.Background(), "again")
	require.NoError(t, err)
	assert.Nil(t, sess.State().Error)
}

func TestRejectedRequestKeepsNotice(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	m := conversation.NewMock("", "", nil)
	m.RespondFunc = func(context.Context, string, []inference.Message) (string, error) {
		close(entered)
		<-release
		return "ok", nil
	}
	store := NewStore(mockFactory(m))
	defer store.Close()
	sess := store.Create()

	done := make(chan error, 1)
	go func() {
		_, err := sess.RunText(context.Background(), "first")
		done <- err
	}()
	<-entered

	notice := conversation.Notice{Stage: conversation.StageSynthesize, Message: "Failed to generate speech"}
	sess.Notify(notice)

	_, err := sess.RunText(context.Background(), "second")
	assert.ErrorIs(t, err, conversation.ErrTurnInProgress)
	assert.ErrorIs(t, sess.Clear(), conversation.ErrTurnInProgress)
	require.NotNil(t, sess.State().Error)
	assert.Equal(t, notice, *sess.State().Error)

	close(release)
	require.NoError(t, <-done)
}

func TestDictateAndClear(t *testing.T) {
	m := conversation.NewMock("dictated", "reply", nil)
	store := NewStore(mockFactory(m))
	defer store.Close()
	sess := store.Create()

	_, err := sess.Dictate(context.Background(), capture.Blob{Data: []byte{1}})
	require.NoError(t, err)
	assert.Equal(t, "dictated", sess.State().Text)

	_, err = sess.RunText(context.Background(), sess.State().Text)
	require.NoError(t, err)
	assert.Empty(t, sess.State().Text)

	require.NoError(t, sess.Clear())
	assert.Empty(t, sess.State().Transcript)

	sess.SetRecording(true)
	assert.True(t, sess.State().Recording)
}

func TestEventsReachSubscribers(t *testing.T) {
	store := NewStore(mockFactory(conversation.NewMock("", "hi", []byte{7, 8})))
	defer store.Close()
	sess := store.Create()

	snap, err := json.Marshal(sess.Snapshot())
	require.NoError(t, err)
	conn := newEventConn()
	client := hub.NewClient(sess.Hub(), conn, hub.NewJSONMessage(snap))
	require.NotNil(t, client)
	go client.Run()

	_, err = sess.RunText(context.Background(), "hello")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		events := conn.events(t)
		if len(events) == 0 {
			return false
		}
		last := events[len(events)-1]
		return last.State != nil && len(last.State.Transcript) == 2 && !last.State.Generating
	}, 2*time.Second, 10*time.Millisecond)

	events := conn.events(t)
	assert.Equal(t, EventState, events[0].Type)
	assert.Empty(t, events[0].State.Transcript)

	sawGenerating := false
	for _, e := range events {
		if e.State != nil && e.State.Generating {
			sawGenerating = true
		}
	}
	assert.True(t, sawGenerating)
	assert.Equal(t, [][]byte{{7, 8}}, conn.audio())
	assert.NotEmpty(t, events[len(events)-1].State.AudioURL)
	conn.Close()
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	store := NewStore(mockFactory(conversation.NewMock("", "", nil)), WithTTL(time.Minute))
	defer store.Close()

	old := store.Create()
	fresh := store.Create()

	now := time.Now()
	store.now = func() time.Time { return now.Add(2 * time.Minute) }
	fresh.mu.Lock()
	fresh.lastSeen = now.Add(2 * time.Minute)
	fresh.mu.Unlock()

	assert.Equal(t, 1, store.Sweep())
	_, err := store.Get(old.ID())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(fresh.ID())
	assert.NoError(t, err)

	select {
	case <-old.Hub().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("evicted session hub still running")
	}
}

func TestDelete(t *testing.T) {
	store := NewStore(mockFactory(conversation.NewMock("", "", nil)))
	sess := store.Create()

	require.NoError(t, store.Delete(sess.ID()))
	assert.ErrorIs(t, store.Delete(sess.ID()), ErrNotFound)
	assert.Zero(t, store.Len())
}

func TestStateJSON(t *testing.T) {
	store := NewStore(mockFactory(conversation.NewMock("", "", nil)))
	defer store.Close()
	sess := store.Create()

	data, err := json.Marshal(sess.State())
	require.NoError(t, err)
	s := string(data)
	for _, key := range []string{`"text"`, `"recording"`, `"transcribing"`, `"generating"`, `"transcript"`} {
		assert.True(t, strings.Contains(s, key), key)
	}
	assert.NotContains(t, s, `"audioUrl"`)
}
