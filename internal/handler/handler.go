// Package handler exposes the therapy session API over HTTP. Every control
// endpoint is also reachable over the WebRTC data channel; HTTP exists for
// the initial signaling handshake and for clients without a channel.
package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/quietmask/maskd/internal/gateway"
	"github.com/quietmask/maskd/internal/session"
	"github.com/quietmask/maskd/internal/stream"
	"github.com/quietmask/maskd/internal/synth"
	"github.com/quietmask/maskd/internal/therapy"
)

// Handlers holds dependencies for the HTTP API.
type Handlers struct {
	gw     *gateway.Gateway
	logger *zap.Logger
}

// NewHandlers creates handlers over a gateway.
func NewHandlers(gw *gateway.Gateway, logger *zap.Logger) *Handlers {
	return &Handlers{gw: gw, logger: logger}
}

// Routes mounts every session endpoint on a fresh router.
func (h *Handlers) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{sessionId}", func(r chi.Router) {
		r.Delete("/", h.DeleteSession)
		r.Post("/webrtc/answer", h.PostWebRTCAnswer)
		r.Get("/state", h.GetState)
		r.Get("/snapshot", h.GetSnapshot)
		r.Get("/stream", h.GetStream)
		r.Post("/therapy/start", h.StartTherapy)
		r.Post("/therapy/stop", h.StopTherapy)
		r.Post("/therapy/toggle", h.ToggleTherapy)
		r.Put("/therapy/frequency", h.PutFrequency)
		r.Put("/therapy/volume", h.PutVolume)
		r.Put("/therapy/sound", h.PutSound)
		r.Post("/testtone/start", h.StartTestTone)
		r.Post("/testtone/stop", h.StopTestTone)
	})
	return r
}

// Health handles GET /healthz.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": h.gw.SessionCount(),
	})
}

// CreateSession handles POST /v1/sessions. Generates a session id, builds
// the WebRTC session and returns the SDP offer for the browser to answer.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	id := uuid.New().String()

	sdp, err := h.gw.CreateSession(id)
	if err != nil {
		if errors.Is(err, gateway.ErrSessionLimit) {
			writeError(w, http.StatusServiceUnavailable, "session limit reached")
			return
		}
		h.logger.Error("create session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "session setup failed")
		return
	}

	writeJSON(w, http.StatusCreated, struct {
		SessionID  string             `json:"sessionId"`
		SDPOffer   string             `json:"sdpOffer"`
		ICEServers []webrtc.ICEServer `json:"iceServers"`
	}{
		SessionID:  id,
		SDPOffer:   sdp,
		ICEServers: h.gw.ICEServers(),
	})
}

// PostWebRTCAnswer handles POST /v1/sessions/{sessionId}/webrtc/answer.
func (h *Handlers) PostWebRTCAnswer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")

	var req struct {
		SDPAnswer string `json:"sdpAnswer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SDPAnswer == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.gw.SetAnswer(id, req.SDPAnswer); err != nil {
		if errors.Is(err, gateway.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Warn("set answer", zap.String("session", id), zap.Error(err))
		writeError(w, http.StatusBadRequest, "answer rejected")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteSession handles DELETE /v1/sessions/{sessionId}.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	h.gw.DeleteSession(chi.URLParam(r, "sessionId"))
	w.WriteHeader(http.StatusNoContent)
}

// GetState handles GET /v1/sessions/{sessionId}/state.
func (h *Handlers) GetState(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Controller.State())
}

// GetSnapshot handles GET /v1/sessions/{sessionId}/snapshot. Returns the
// analyser window base64-encoded, or 204 when therapy is not playing.
func (h *Handlers) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	data := sess.Controller.VisualizationSnapshot()
	if data == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Data string `json:"data"`
	}{Data: base64.StdEncoding.EncodeToString(data)})
}

// GetStream handles GET /v1/sessions/{sessionId}/stream: chunked MP3 for
// clients without WebRTC.
func (h *Handlers) GetStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	stream.ServeMP3(h.logger, sess.Broadcaster, w, r)
}

// StartTherapy handles POST /v1/sessions/{sessionId}/therapy/start.
func (h *Handlers) StartTherapy(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Sound string `json:"sound"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := sess.Controller.StartTherapy(synth.ParseTexture(req.Sound)); err != nil {
		if errors.Is(err, therapy.ErrAlreadyPlaying) {
			writeError(w, http.StatusConflict, "therapy already playing")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess.Controller.State())
}

// StopTherapy handles POST /v1/sessions/{sessionId}/therapy/stop.
func (h *Handlers) StopTherapy(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.Controller.StopTherapy()
	writeJSON(w, http.StatusOK, sess.Controller.State())
}

// ToggleTherapy handles POST /v1/sessions/{sessionId}/therapy/toggle.
func (h *Handlers) ToggleTherapy(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Sound string `json:"sound"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess.Controller.ToggleTherapy(synth.ParseTexture(req.Sound))
	writeJSON(w, http.StatusOK, sess.Controller.State())
}

// PutFrequency handles PUT /v1/sessions/{sessionId}/therapy/frequency.
// Out-of-range values are clamped, not rejected.
func (h *Handlers) PutFrequency(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		FrequencyHz int `json:"frequencyHz"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess.Controller.SetFrequency(req.FrequencyHz)
	writeJSON(w, http.StatusOK, sess.Controller.State())
}

// PutVolume handles PUT /v1/sessions/{sessionId}/therapy/volume.
func (h *Handlers) PutVolume(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Volume float64 `json:"volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess.Controller.SetVolume(req.Volume)
	writeJSON(w, http.StatusOK, sess.Controller.State())
}

// PutSound handles PUT /v1/sessions/{sessionId}/therapy/sound: selects a
// texture, switching it in live when therapy is playing.
func (h *Handlers) PutSound(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Sound string `json:"sound"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess.Controller.SelectSound(synth.ParseTexture(req.Sound))
	writeJSON(w, http.StatusOK, sess.Controller.State())
}

// StartTestTone handles POST /v1/sessions/{sessionId}/testtone/start.
func (h *Handlers) StartTestTone(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.Controller.PlayTestTone()
	writeJSON(w, http.StatusOK, sess.Controller.State())
}

// StopTestTone handles POST /v1/sessions/{sessionId}/testtone/stop.
func (h *Handlers) StopTestTone(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.Controller.StopTestTone()
	writeJSON(w, http.StatusOK, sess.Controller.State())
}

// session resolves the URL's session id, writing a 404 when unknown.
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, ok := h.gw.Get(chi.URLParam(r, "sessionId"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
