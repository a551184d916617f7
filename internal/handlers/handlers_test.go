package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"frameworks/lookout/internal/alarm"
	"frameworks/lookout/internal/realtime"
	"frameworks/lookout/internal/store"
	"frameworks/lookout/pkg/api/lookout"
	"frameworks/lookout/pkg/clients/monitor"
	"frameworks/lookout/pkg/clock"
	"frameworks/lookout/pkg/speech"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSpeaker struct {
	spoken []string
}

func (f *fakeSpeaker) Available() bool { return true }

func (f *fakeSpeaker) Speak(_ context.Context, u speech.Utterance) error {
	f.spoken = append(f.spoken, u.Text)
	return nil
}

func (f *fakeSpeaker) Cancel() {}

type fakeConn struct{ state realtime.State }

func (f fakeConn) State() realtime.State    { return f.state }
func (f fakeConn) URL() string              { return "ws://monitor.local/ws/realtime" }
func (f fakeConn) NextDelay() time.Duration { return 4 * time.Second }

type fakeAcker struct {
	err   error
	calls []int64
}

func (f *fakeAcker) Acknowledge(_ context.Context, id int64) (lookout.AckResponse, error) {
	f.calls = append(f.calls, id)
	if f.err != nil {
		return lookout.AckResponse{}, f.err
	}
	return lookout.AckResponse{AlertID: id, Status: lookout.AlertStatusAcknowledged}, nil
}

type fixture struct {
	router  *gin.Engine
	engine  *alarm.Engine
	clock   *clock.Manual
	speaker *fakeSpeaker
	deps    Deps
	acker   *fakeAcker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := logrustest.NewNullLogger()
	clk := clock.NewManual(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	sp := &fakeSpeaker{}
	history := alarm.NewHistory(10)
	engine := alarm.New(alarm.Options{Clock: clk, Speaker: sp, Logger: logger, OnNotify: history.Record})
	t.Cleanup(engine.Close)

	acker := &fakeAcker{}
	deps := Deps{
		Engine:        engine,
		Connection:    fakeConn{state: realtime.StateReconnectScheduled},
		Channels:      store.NewChannels(),
		Alerts:        store.NewAlerts(),
		Acknowledger:  acker,
		History:       history,
		SpeechBackend: "command",
		Logger:        logger,
	}
	h := NewLookoutHandlers(deps)

	r := gin.New()
	h.Register(r)
	r.NoRoute(h.HandleNotFound)
	return &fixture{router: r, engine: engine, clock: clk, speaker: sp, deps: deps, acker: acker}
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequestWithContext(context.Background(), method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestStatus(t *testing.T) {
	f := newFixture(t)
	f.deps.Channels.Update(lookout.ChannelStatus{ChannelID: "c1"})
	f.deps.Alerts.Add(lookout.Alert{ID: 1, Status: lookout.AlertStatusActive})
	f.engine.Submit(alarm.FaultEvent{ChannelID: "c1", FaultType: lookout.FaultSilent})
	f.clock.Advance(alarm.DefaultAggregationWindow)

	w := f.do("GET", "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	st := decode[lookout.StatusResponse](t, w)
	require.True(t, st.Speech.Enabled)
	require.True(t, st.Speech.Available)
	require.Equal(t, "command", st.Speech.Backend)
	require.Equal(t, 1, st.Suppression.Entries)
	require.Equal(t, 1, st.Suppression.Emitted)
	require.Equal(t, "reconnect_scheduled", st.Realtime.State)
	require.False(t, st.Realtime.Connected)
	require.Equal(t, "4s", st.Realtime.NextDelay)
	require.Equal(t, 1, st.Channels)
	require.Equal(t, 1, st.ActiveAlerts)
	require.Len(t, st.Notifications, 1)
	require.Equal(t, []string{"c1"}, st.Notifications[0].Channels)
}

func TestSpeechToggle(t *testing.T) {
	f := newFixture(t)

	w := f.do("PUT", "/speech", map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, w.Code)
	require.False(t, decode[lookout.SpeechToggleResponse](t, w).Enabled)
	require.False(t, f.engine.Enabled())

	require.Equal(t, alarm.OutcomeMuted, f.engine.Submit(alarm.FaultEvent{ChannelID: "c1", FaultType: "SILENT"}))

	w = f.do("PUT", "/speech", map[string]bool{"enabled": true})
	require.True(t, decode[lookout.SpeechToggleResponse](t, w).Enabled)

	w = f.do("PUT", "/speech", map[string]string{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSpeechTest(t *testing.T) {
	f := newFixture(t)

	w := f.do("POST", "/speech/test", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[lookout.SpeechTestResponse](t, w)
	require.True(t, resp.Spoken)
	require.Equal(t, []string{alarm.TestPhrase}, f.speaker.spoken)

	f.engine.Configure(false)
	w = f.do("POST", "/speech/test", nil)
	require.False(t, decode[lookout.SpeechTestResponse](t, w).Spoken)
}

func TestSuppressionReset(t *testing.T) {
	f := newFixture(t)
	f.engine.Submit(alarm.FaultEvent{ChannelID: "c1", FaultType: "SILENT"})
	f.engine.Submit(alarm.FaultEvent{ChannelID: "c2", FaultType: "SILENT"})

	w := f.do("POST", "/suppression/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(2), decode[map[string]any](t, w)["cleared"])
	require.Equal(t, 0, f.engine.Stats().SuppressionSize)
	require.Equal(t, 2, f.engine.Stats().Pending, "pending batch survives a reset")
}

// racingEngine reports a stale suppression size, as if Submit ran between a
// Stats read and the reset.
type racingEngine struct {
	*alarm.Engine
}

func (r racingEngine) Stats() alarm.Stats {
	st := r.Engine.Stats()
	st.SuppressionSize += 7
	return st
}

func TestSuppressionResetReportsWhatItCleared(t *testing.T) {
	f := newFixture(t)
	f.engine.Submit(alarm.FaultEvent{ChannelID: "c1", FaultType: "FROZEN"})

	deps := f.deps
	deps.Engine = racingEngine{Engine: f.engine}
	r := gin.New()
	NewLookoutHandlers(deps).Register(r)

	req := httptest.NewRequest(http.MethodPost, "/suppression/reset", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(1), decode[map[string]any](t, w)["cleared"])
	require.Zero(t, f.engine.ResetSuppression(), "nothing left to clear")
}

func TestChannelsAndOverview(t *testing.T) {
	f := newFixture(t)
	f.deps.Channels.Batch([]lookout.ChannelStatus{
		{ChannelID: "b", SortOrder: 2, Status: lookout.StatusAlarm},
		{ChannelID: "a", SortOrder: 1, Status: lookout.StatusNormal},
	})

	chs := decode[[]lookout.ChannelStatus](t, f.do("GET", "/channels", nil))
	require.Len(t, chs, 2)
	require.Equal(t, "a", chs[0].ChannelID)

	ov := decode[lookout.OverviewStats](t, f.do("GET", "/overview", nil))
	require.Equal(t, lookout.OverviewStats{Normal: 1, Alarm: 1, Total: 2}, ov)
}

func TestAlertsFilter(t *testing.T) {
	f := newFixture(t)
	f.deps.Alerts.Add(lookout.Alert{ID: 1, Status: lookout.AlertStatusActive})
	f.deps.Alerts.Add(lookout.Alert{ID: 2, Status: lookout.AlertStatusResolved})
	f.deps.Alerts.Add(lookout.Alert{ID: 3, Status: lookout.AlertStatusActive})

	all := decode[[]lookout.Alert](t, f.do("GET", "/alerts", nil))
	require.Len(t, all, 3)

	active := decode[[]lookout.Alert](t, f.do("GET", "/alerts?status=ACTIVE", nil))
	require.Len(t, active, 2)
	require.Equal(t, int64(3), active[0].ID)

	limited := decode[[]lookout.Alert](t, f.do("GET", "/alerts?limit=1", nil))
	require.Len(t, limited, 1)

	require.Equal(t, http.StatusBadRequest, f.do("GET", "/alerts?status=bogus", nil).Code)
}

func TestAck(t *testing.T) {
	f := newFixture(t)

	w := f.do("POST", "/alerts/12/ack", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, int64(12), decode[lookout.AckResponse](t, w).AlertID)
	require.Equal(t, []int64{12}, f.acker.calls)

	require.Equal(t, http.StatusBadRequest, f.do("POST", "/alerts/abc/ack", nil).Code)

	f.acker.err = errors.New("connection refused")
	require.Equal(t, http.StatusBadGateway, f.do("POST", "/alerts/12/ack", nil).Code)

	f.acker.err = &monitor.APIError{StatusCode: http.StatusNotFound, Path: "/api/v1/alerts/12/ack"}
	require.Equal(t, http.StatusNotFound, f.do("POST", "/alerts/12/ack", nil).Code)
}

func TestNotFound(t *testing.T) {
	f := newFixture(t)
	w := f.do("GET", "/nope", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, decode[lookout.ErrorResponse](t, w).Error, "/nope")
}
