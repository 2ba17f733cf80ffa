package handler

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/quietmask/maskd/internal/config"
	"github.com/quietmask/maskd/internal/device"
	"github.com/quietmask/maskd/internal/gateway"
	"github.com/quietmask/maskd/internal/session"
	"github.com/quietmask/maskd/internal/synth"
	"github.com/quietmask/maskd/internal/therapy"
)

func testServer(t *testing.T, maxSessions int) (*httptest.Server, *gateway.Gateway) {
	t.Helper()
	cfg := &config.Config{
		STUNServers:         []string{"stun:stun.l.google.com:19302"},
		MaxSessions:         maxSessions,
		AutoStopSec:         1800,
		DefaultFrequencyHz:  4000,
		DefaultVolume:       0.5,
		ICEGatherTimeoutSec: 1,
	}
	gw := gateway.NewForTest(cfg, zap.NewNop())
	h := NewHandlers(gw, zap.NewNop())

	r := chi.NewRouter()
	r.Get("/healthz", h.Health)
	r.Mount("/v1", h.Routes())

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	t.Cleanup(gw.Shutdown)
	return srv, gw
}

func registerSession(t *testing.T, gw *gateway.Gateway, id string) *session.Session {
	t.Helper()
	logger := zap.NewNop()
	renderer := device.NewRenderer(logger)
	ctrl := therapy.New(renderer, logger, therapy.Options{
		FrequencyHz: 4000,
		Volume:      0.5,
	})
	sess := session.New(id, ctrl, renderer, logger)
	if err := gw.Register(sess); err != nil {
		t.Fatal(err)
	}
	return sess
}

func doJSON(t *testing.T, method, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader([]byte(`{}`))
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var decoded map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestUnknownSessionIs404(t *testing.T) {
	srv, _ := testServer(t, 4)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/v1/sessions/nope/state", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t, 4)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
}

func TestTherapyLifecycle(t *testing.T) {
	srv, gw := testServer(t, 4)
	registerSession(t, gw, "s1")
	base := srv.URL + "/v1/sessions/s1"

	resp, state := doJSON(t, http.MethodPost, base+"/therapy/start", map[string]string{"sound": "rain"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start status = %d, want 200", resp.StatusCode)
	}
	if state["therapyPlaying"] != true {
		t.Fatal("therapyPlaying false after start")
	}
	if state["sound"] != "rain" {
		t.Errorf("sound = %v, want rain", state["sound"])
	}

	resp, _ = doJSON(t, http.MethodPost, base+"/therapy/start", map[string]string{"sound": "rain"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second start status = %d, want 409", resp.StatusCode)
	}

	resp, state = doJSON(t, http.MethodPut, base+"/therapy/frequency", map[string]int{"frequencyHz": 99999})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("frequency status = %d, want 200", resp.StatusCode)
	}
	if state["frequencyHz"] != float64(16000) {
		t.Errorf("frequencyHz = %v, want clamped 16000", state["frequencyHz"])
	}

	resp, state = doJSON(t, http.MethodPut, base+"/therapy/sound", map[string]string{"sound": "temple"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sound status = %d, want 200", resp.StatusCode)
	}
	if state["sound"] != "temple" || state["therapyPlaying"] != true {
		t.Errorf("live switch state = %v", state)
	}

	resp, state = doJSON(t, http.MethodPost, base+"/therapy/stop", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status = %d, want 200", resp.StatusCode)
	}
	if state["therapyPlaying"] != false {
		t.Error("therapyPlaying true after stop")
	}
}

func TestToggleEndpoint(t *testing.T) {
	srv, gw := testServer(t, 4)
	registerSession(t, gw, "s1")
	base := srv.URL + "/v1/sessions/s1"

	_, state := doJSON(t, http.MethodPost, base+"/therapy/toggle", map[string]string{"sound": "night"})
	if state["therapyPlaying"] != true {
		t.Fatal("toggle did not start therapy")
	}
	_, state = doJSON(t, http.MethodPost, base+"/therapy/toggle", map[string]string{"sound": "night"})
	if state["therapyPlaying"] != false {
		t.Fatal("second toggle did not stop therapy")
	}
}

func TestSnapshotEndpoint(t *testing.T) {
	srv, gw := testServer(t, 4)
	sess := registerSession(t, gw, "s1")
	base := srv.URL + "/v1/sessions/s1"

	resp, _ := doJSON(t, http.MethodGet, base+"/snapshot", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("snapshot status = %d while stopped, want 204", resp.StatusCode)
	}

	if err := sess.Controller.StartTherapy(synth.Rain); err != nil {
		t.Fatal(err)
	}

	// give the render loop time to produce the first analyser window
	var resp *http.Response
	var body map[string]interface{}
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, body = doJSON(t, http.MethodGet, base+"/snapshot", nil)
		if resp.StatusCode == http.StatusOK || time.Now().After(deadline) {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("snapshot status = %d while playing, want 200", resp.StatusCode)
	}
	data, err := base64.StdEncoding.DecodeString(body["data"].(string))
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != device.AnalyserWindow {
		t.Errorf("snapshot window = %d bytes, want %d", len(data), device.AnalyserWindow)
	}
}

func TestTestToneEndpoints(t *testing.T) {
	srv, gw := testServer(t, 4)
	registerSession(t, gw, "s1")
	base := srv.URL + "/v1/sessions/s1"

	_, state := doJSON(t, http.MethodPost, base+"/testtone/start", nil)
	if state["testTonePlaying"] != true {
		t.Fatal("testTonePlaying false after start")
	}
	_, state = doJSON(t, http.MethodPost, base+"/testtone/stop", nil)
	if state["testTonePlaying"] != false {
		t.Fatal("testTonePlaying true after stop")
	}
}

func TestDeleteSessionEndpoint(t *testing.T) {
	srv, gw := testServer(t, 4)
	registerSession(t, gw, "s1")

	resp, _ := doJSON(t, http.MethodDelete, srv.URL+"/v1/sessions/s1/", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}
	if gw.SessionCount() != 0 {
		t.Error("session still registered after delete")
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/v1/sessions/s1/state", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("state status = %d after delete, want 404", resp.StatusCode)
	}
}

func TestCreateRejectedAtCapacity(t *testing.T) {
	srv, _ := testServer(t, 0)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/v1/sessions", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("create status = %d at capacity, want 503", resp.StatusCode)
	}
}
