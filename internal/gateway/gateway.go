// Package gateway manages the session registry and the WebRTC plumbing
// around each therapy session.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/quietmask/maskd/internal/config"
	"github.com/quietmask/maskd/internal/datachannel"
	"github.com/quietmask/maskd/internal/device"
	"github.com/quietmask/maskd/internal/metrics"
	"github.com/quietmask/maskd/internal/session"
	"github.com/quietmask/maskd/internal/synth"
	"github.com/quietmask/maskd/internal/therapy"
)

var (
	// ErrSessionNotFound is returned for operations on unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionLimit is returned when the registry is at capacity.
	ErrSessionLimit = errors.New("session limit reached")
)

// Gateway owns the WebRTC API and the registry of live sessions.
type Gateway struct {
	cfg    *config.Config
	api    *webrtc.API
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// New creates a Gateway with the Opus codec registered and a NACK responder
// interceptor configured.
func New(cfg *config.Config, logger *zap.Logger) (*Gateway, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   device.SampleRate,
			Channels:    device.Channels,
			SDPFmtpLine: "minptime=10;useinbandfec=1",
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register opus codec: %w", err)
	}

	ir := &interceptor.Registry{}
	responder, err := nack.NewResponderInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack responder: %w", err)
	}
	ir.Add(responder)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
	)

	return newGateway(cfg, api, logger), nil
}

// NewForTest creates a Gateway without a WebRTC API. CreateSession is not
// usable; sessions are built and registered directly by tests.
func NewForTest(cfg *config.Config, logger *zap.Logger) *Gateway {
	return newGateway(cfg, nil, logger)
}

func newGateway(cfg *config.Config, api *webrtc.API, logger *zap.Logger) *Gateway {
	return &Gateway{
		cfg:      cfg,
		api:      api,
		logger:   logger,
		sessions: make(map[string]*session.Session),
	}
}

// SessionCount returns the current number of active sessions.
func (gw *Gateway) SessionCount() int {
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	return len(gw.sessions)
}

// Register adds a built session to the registry, enforcing the cap.
func (gw *Gateway) Register(sess *session.Session) error {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if len(gw.sessions) >= gw.cfg.MaxSessions {
		metrics.SessionsRejectedTotal.Inc()
		return ErrSessionLimit
	}
	gw.sessions[sess.ID] = sess
	metrics.SessionsCreatedTotal.Inc()
	metrics.ActiveSessions.Inc()
	return nil
}

// Get looks up a session by id.
func (gw *Gateway) Get(id string) (*session.Session, bool) {
	gw.mu.RLock()
	defer gw.mu.RUnlock()
	sess, ok := gw.sessions[id]
	return sess, ok
}

// ICEServers returns the configured STUN servers as WebRTC config objects.
func (gw *Gateway) ICEServers() []webrtc.ICEServer {
	urls := make([]string, len(gw.cfg.STUNServers))
	copy(urls, gw.cfg.STUNServers)
	return []webrtc.ICEServer{{URLs: urls}}
}

// CreateSession builds a full session: renderer, controller, PeerConnection
// with an outbound Opus track and a server-created "commands" data channel.
// Returns the SDP offer string for the browser to answer.
func (gw *Gateway) CreateSession(id string) (string, error) {
	gw.mu.RLock()
	count := len(gw.sessions)
	gw.mu.RUnlock()
	if count >= gw.cfg.MaxSessions {
		metrics.SessionsRejectedTotal.Inc()
		return "", ErrSessionLimit
	}

	logger := gw.logger.With(zap.String("session", id))

	renderer := device.NewRenderer(gw.logger)
	ctrl := therapy.New(renderer, logger, therapy.Options{
		FrequencyHz: gw.cfg.DefaultFrequencyHz,
		Volume:      gw.cfg.DefaultVolume,
		AutoStopSec: gw.cfg.AutoStopSec,
	})
	sess := session.New(id, ctrl, renderer, gw.logger)

	pc, err := gw.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: gw.ICEServers(),
	})
	if err != nil {
		sess.Stop()
		return "", fmt.Errorf("create peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: device.SampleRate,
			Channels:  device.Channels,
		},
		"audio-out",
		"maskd",
	)
	if err != nil {
		pc.Close()
		sess.Stop()
		return "", fmt.Errorf("create audio track: %w", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		pc.Close()
		sess.Stop()
		return "", fmt.Errorf("add audio track: %w", err)
	}

	sess.SetPeerConnection(pc, track)

	// data channel is created before CreateOffer so SCTP lands in the SDP
	ordered := true
	dc, err := pc.CreateDataChannel("commands", &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		pc.Close()
		sess.Stop()
		return "", fmt.Errorf("create data channel: %w", err)
	}
	sess.SetDataChannel(dc)

	router := gw.newCommandRouter(sess)
	sess.SetRouter(router)

	dc.OnOpen(func() {
		logger.Info("data channel opened")
		sess.SendState()
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if err := router.Dispatch(msg.Data); err != nil {
			logger.Warn("dispatch error", zap.Error(err))
		}
	})

	ctrl.OnAutoStop(func() {
		sess.SendEvent("therapy.autostop", datachannel.EventAutoStop{
			AfterSeconds: gw.cfg.AutoStopSec,
		})
		sess.SendState()
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		logger.Info("ICE state", zap.String("state", state.String()))
		if state == webrtc.ICEConnectionStateFailed ||
			state == webrtc.ICEConnectionStateDisconnected ||
			state == webrtc.ICEConnectionStateClosed {
			gw.DeleteSession(id)
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		sess.Stop()
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		sess.Stop()
		return "", fmt.Errorf("set local description: %w", err)
	}

	gatherDone := webrtc.GatheringCompletePromise(pc)
	select {
	case <-gatherDone:
	case <-time.After(time.Duration(gw.cfg.ICEGatherTimeoutSec) * time.Second):
		logger.Warn("ICE gathering timed out, proceeding with partial candidates")
	}

	sdp := pc.LocalDescription().SDP

	if err := gw.Register(sess); err != nil {
		pc.Close()
		sess.Stop()
		return "", err
	}

	sess.StartStreaming()

	logger.Info("session created", zap.Int("sdpLen", len(sdp)))
	return sdp, nil
}

// SetAnswer applies the browser's SDP answer to the session's PeerConnection.
func (gw *Gateway) SetAnswer(id, sdpAnswer string) error {
	sess, ok := gw.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	return sess.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdpAnswer,
	})
}

// DeleteSession tears down a session and removes it from the registry.
func (gw *Gateway) DeleteSession(id string) {
	gw.mu.Lock()
	sess, ok := gw.sessions[id]
	if ok {
		delete(gw.sessions, id)
	}
	gw.mu.Unlock()

	if ok && sess != nil {
		sess.Stop()
		metrics.ActiveSessions.Dec()
		gw.logger.Info("session deleted", zap.String("session", id))
	}
}

// Shutdown stops all sessions.
func (gw *Gateway) Shutdown() {
	gw.mu.Lock()
	sessions := make(map[string]*session.Session, len(gw.sessions))
	for k, v := range gw.sessions {
		sessions[k] = v
	}
	gw.sessions = make(map[string]*session.Session)
	gw.mu.Unlock()

	for _, sess := range sessions {
		sess.Stop()
	}
	metrics.ActiveSessions.Set(0)

	gw.logger.Info("gateway shutdown complete")
}

// newCommandRouter wires the therapy protocol onto a fresh router. Every
// command ends with a state push so the page always renders server truth.
func (gw *Gateway) newCommandRouter(sess *session.Session) *datachannel.Router {
	router := datachannel.NewRouter(gw.logger)
	ctrl := sess.Controller

	router.Register("therapy.start", func(_, _ string, payload json.RawMessage) error {
		var cmd datachannel.CommandStart
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return err
		}
		if err := ctrl.StartTherapy(synth.ParseTexture(cmd.Sound)); err != nil {
			gw.sendError(sess, "ALREADY_PLAYING", err.Error())
		}
		sess.SendState()
		return nil
	})

	router.Register("therapy.stop", func(_, _ string, _ json.RawMessage) error {
		ctrl.StopTherapy()
		sess.SendState()
		return nil
	})

	router.Register("therapy.toggle", func(_, _ string, payload json.RawMessage) error {
		var cmd datachannel.CommandStart
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return err
		}
		ctrl.ToggleTherapy(synth.ParseTexture(cmd.Sound))
		sess.SendState()
		return nil
	})

	router.Register("therapy.sound", func(_, _ string, payload json.RawMessage) error {
		var cmd datachannel.CommandSound
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return err
		}
		ctrl.SelectSound(synth.ParseTexture(cmd.Sound))
		sess.SendState()
		return nil
	})

	router.Register("therapy.frequency", func(_, _ string, payload json.RawMessage) error {
		var cmd datachannel.CommandFrequency
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return err
		}
		ctrl.SetFrequency(cmd.FrequencyHz)
		sess.SendState()
		return nil
	})

	router.Register("therapy.volume", func(_, _ string, payload json.RawMessage) error {
		var cmd datachannel.CommandVolume
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return err
		}
		ctrl.SetVolume(cmd.Volume)
		sess.SendState()
		return nil
	})

	router.Register("testtone.start", func(_, _ string, _ json.RawMessage) error {
		ctrl.PlayTestTone()
		sess.SendState()
		return nil
	})

	router.Register("testtone.stop", func(_, _ string, _ json.RawMessage) error {
		ctrl.StopTestTone()
		sess.SendState()
		return nil
	})

	return router
}

// sendError pushes an error event over the data channel.
func (gw *Gateway) sendError(sess *session.Session, code, message string) {
	sess.SendEvent("error", datachannel.EventError{
		Code:    code,
		Message: message,
	})
}
