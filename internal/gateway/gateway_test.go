package gateway

import (
	"encoding/json"
	"testing"

	"go.uber.org/zap"

	"github.com/quietmask/maskd/internal/config"
	"github.com/quietmask/maskd/internal/datachannel"
	"github.com/quietmask/maskd/internal/device"
	"github.com/quietmask/maskd/internal/session"
	"github.com/quietmask/maskd/internal/therapy"
)

func testConfig() *config.Config {
	return &config.Config{
		STUNServers:         []string{"stun:stun.l.google.com:19302"},
		MaxSessions:         4,
		AutoStopSec:         1800,
		DefaultFrequencyHz:  4000,
		DefaultVolume:       0.5,
		ICEGatherTimeoutSec: 1,
	}
}

func newTestSession(t *testing.T) *session.Session {
	t.Helper()
	logger := zap.NewNop()
	renderer := device.NewRenderer(logger)
	ctrl := therapy.New(renderer, logger, therapy.Options{
		FrequencyHz: 4000,
		Volume:      0.5,
	})
	sess := session.New("s1", ctrl, renderer, logger)
	t.Cleanup(sess.Stop)
	return sess
}

func envelope(t *testing.T, msgType string, payload interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	env, err := json.Marshal(datachannel.Envelope{
		Type:      msgType,
		SessionID: "s1",
		Payload:   json.RawMessage(raw),
	})
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func TestCommandRouterDrivesController(t *testing.T) {
	gw := NewForTest(testConfig(), zap.NewNop())
	sess := newTestSession(t)
	router := gw.newCommandRouter(sess)
	ctrl := sess.Controller

	if err := router.Dispatch(envelope(t, "therapy.start", datachannel.CommandStart{Sound: "rain"})); err != nil {
		t.Fatal(err)
	}
	if !ctrl.Playing() {
		t.Fatal("therapy not playing after start command")
	}
	if ctrl.Sound().String() != "rain" {
		t.Errorf("sound = %s, want rain", ctrl.Sound())
	}

	if err := router.Dispatch(envelope(t, "therapy.frequency", datachannel.CommandFrequency{FrequencyHz: 6000})); err != nil {
		t.Fatal(err)
	}
	if got := ctrl.Frequency(); got != 6000 {
		t.Errorf("frequency = %d, want 6000", got)
	}

	if err := router.Dispatch(envelope(t, "therapy.volume", datachannel.CommandVolume{Volume: 0.9})); err != nil {
		t.Fatal(err)
	}
	if got := ctrl.Volume(); got != 0.9 {
		t.Errorf("volume = %v, want 0.9", got)
	}

	if err := router.Dispatch(envelope(t, "therapy.sound", datachannel.CommandSound{Sound: "wave"})); err != nil {
		t.Fatal(err)
	}
	if ctrl.Sound().String() != "wave" {
		t.Errorf("sound = %s after switch, want wave", ctrl.Sound())
	}
	if !ctrl.Playing() {
		t.Error("switch stopped playback")
	}

	if err := router.Dispatch(envelope(t, "therapy.stop", struct{}{})); err != nil {
		t.Fatal(err)
	}
	if ctrl.Playing() {
		t.Error("therapy still playing after stop command")
	}
}

func TestToggleCommand(t *testing.T) {
	gw := NewForTest(testConfig(), zap.NewNop())
	sess := newTestSession(t)
	router := gw.newCommandRouter(sess)

	if err := router.Dispatch(envelope(t, "therapy.toggle", datachannel.CommandStart{Sound: "forest"})); err != nil {
		t.Fatal(err)
	}
	if !sess.Controller.Playing() {
		t.Fatal("toggle did not start therapy")
	}
	if err := router.Dispatch(envelope(t, "therapy.toggle", datachannel.CommandStart{Sound: "forest"})); err != nil {
		t.Fatal(err)
	}
	if sess.Controller.Playing() {
		t.Error("second toggle did not stop therapy")
	}
}

func TestTestToneCommands(t *testing.T) {
	gw := NewForTest(testConfig(), zap.NewNop())
	sess := newTestSession(t)
	router := gw.newCommandRouter(sess)

	if err := router.Dispatch(envelope(t, "testtone.start", struct{}{})); err != nil {
		t.Fatal(err)
	}
	if !sess.Controller.State().TestTonePlaying {
		t.Fatal("test tone not playing after start command")
	}
	if err := router.Dispatch(envelope(t, "testtone.stop", struct{}{})); err != nil {
		t.Fatal(err)
	}
	if sess.Controller.State().TestTonePlaying {
		t.Error("test tone still playing after stop command")
	}
}

func TestCreateSessionRejectedAtCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSessions = 0
	gw := NewForTest(cfg, zap.NewNop())

	if _, err := gw.CreateSession("over-cap"); err != ErrSessionLimit {
		t.Fatalf("err = %v, want ErrSessionLimit", err)
	}
}

func TestDeleteSessionIdempotent(t *testing.T) {
	gw := NewForTest(testConfig(), zap.NewNop())
	sess := newTestSession(t)

	if err := gw.Register(sess); err != nil {
		t.Fatal(err)
	}

	gw.DeleteSession(sess.ID)
	if _, ok := gw.Get(sess.ID); ok {
		t.Fatal("session still registered after delete")
	}
	gw.DeleteSession(sess.ID) // second delete must be a no-op
}

func TestSetAnswerUnknownSession(t *testing.T) {
	gw := NewForTest(testConfig(), zap.NewNop())
	if err := gw.SetAnswer("nope", "v=0"); err != ErrSessionNotFound {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}
