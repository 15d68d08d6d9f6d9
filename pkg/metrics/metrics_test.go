package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordHTTPRequest(t *testing.T) {
	httpRequestsTotal.Reset()

	RecordHTTPRequest("/tts", 200)
	RecordHTTPRequest("/tts", 200)
	RecordHTTPRequest("/tts", 500)

	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/tts", "200")); got != 2 {
		t.Errorf("expected 2 ok requests, got %f", got)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/tts", "500")); got != 1 {
		t.Errorf("expected 1 failed request, got %f", got)
	}
}

func TestObserveProvider(t *testing.T) {
	providerRequestDuration.Reset()

	ObserveProvider("elevenlabs", "tts", 200*time.Millisecond, nil)
	ObserveProvider("elevenlabs", "tts", time.Second, errors.New("boom"))

	if count := testutil.CollectAndCount(providerRequestDuration); count != 2 {
		t.Errorf("expected 2 series, got %d", count)
	}
}

func TestTurnsAndSessions(t *testing.T) {
	turnsTotal.Reset()

	RecordTurn("completed")
	RecordTurn("completed")
	RecordTurn("respond_failed")
	if got := testutil.ToFloat64(turnsTotal.WithLabelValues("completed")); got != 2 {
		t.Errorf("expected 2 completed turns, got %f", got)
	}

	before := testutil.ToFloat64(sessionsActive)
	SessionOpened()
	SessionOpened()
	SessionClosed()
	if got := testutil.ToFloat64(sessionsActive); got != before+1 {
		t.Errorf("expected gauge %f, got %f", before+1, got)
	}
}

func TestHandlerExposition(t *testing.T) {
	RecordVoiceFallback()
	reg := NewRegistry()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "voicechat_voice_catalog_fallbacks_total") {
		t.Error("expected voicechat metrics in exposition")
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("expected Go runtime metrics in exposition")
	}
}
