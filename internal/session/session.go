// Package session ties one browser connection to its therapy controller,
// render device and WebRTC transport.
package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/zap"

	"github.com/quietmask/maskd/internal/audio"
	"github.com/quietmask/maskd/internal/datachannel"
	"github.com/quietmask/maskd/internal/device"
	"github.com/quietmask/maskd/internal/metrics"
	"github.com/quietmask/maskd/internal/stream"
	"github.com/quietmask/maskd/internal/therapy"
)

const opusBitrate = 128000

// Session holds per-connection state: the controller driving the graph,
// the renderer producing frames, and the WebRTC handles delivering them.
type Session struct {
	ID          string
	Controller  *therapy.Controller
	Renderer    *device.Renderer
	Broadcaster *stream.Broadcaster

	logger *zap.Logger

	pc     *webrtc.PeerConnection
	track  *webrtc.TrackLocalStaticSample
	dc     *webrtc.DataChannel
	router *datachannel.Router

	stopOnce sync.Once
	stopped  chan struct{}
}

// New creates a session around an already-constructed controller/renderer
// pair. Transport handles are attached afterwards by the gateway.
func New(id string, ctrl *therapy.Controller, renderer *device.Renderer, logger *zap.Logger) *Session {
	return &Session{
		ID:          id,
		Controller:  ctrl,
		Renderer:    renderer,
		Broadcaster: stream.NewBroadcaster(),
		logger:      logger.With(zap.String("session", id)),
		stopped:     make(chan struct{}),
	}
}

// SetPeerConnection attaches the WebRTC connection and its outbound track.
func (s *Session) SetPeerConnection(pc *webrtc.PeerConnection, track *webrtc.TrackLocalStaticSample) {
	s.pc = pc
	s.track = track
}

// SetDataChannel attaches the command/event channel.
func (s *Session) SetDataChannel(dc *webrtc.DataChannel) {
	s.dc = dc
}

// SetRouter attaches the command router.
func (s *Session) SetRouter(r *datachannel.Router) {
	s.router = r
}

// Router returns the attached command router.
func (s *Session) Router() *datachannel.Router {
	return s.router
}

// SetRemoteDescription applies the browser's SDP answer.
func (s *Session) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return s.pc.SetRemoteDescription(desc)
}

// SendEvent marshals payload into an envelope and sends it over the data
// channel. Dropped silently when the channel is not open yet.
func (s *Session) SendEvent(evtType string, payload interface{}) {
	if s.dc == nil || s.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("marshal event payload", zap.Error(err))
		return
	}
	env, err := json.Marshal(datachannel.Envelope{
		Type:      evtType,
		SessionID: s.ID,
		Timestamp: time.Now().UnixMilli(),
		Payload:   json.RawMessage(raw),
	})
	if err != nil {
		return
	}
	if err := s.dc.SendText(string(env)); err != nil {
		s.logger.Warn("send event", zap.String("type", evtType), zap.Error(err))
	}
}

// SendState pushes the current controller state to the browser.
func (s *Session) SendState() {
	st := s.Controller.State()
	s.SendEvent("therapy.state", datachannel.EventState{
		FrequencyHz:     st.FrequencyHz,
		Volume:          st.Volume,
		Sound:           st.Sound,
		TestTonePlaying: st.TestTonePlaying,
		TherapyPlaying:  st.TherapyPlaying,
		ElapsedSeconds:  st.ElapsedSeconds,
	})
}

// StartStreaming launches the broadcaster over the renderer's frames and,
// when a track is attached, the Opus encode loop feeding it.
func (s *Session) StartStreaming() {
	go s.Broadcaster.Run(s.Renderer.Frames())
	if s.track != nil {
		go s.encodeLoop()
	}
}

// encodeLoop pulls frames, Opus-encodes and writes them to the track.
func (s *Session) encodeLoop() {
	listener := s.Broadcaster.Subscribe()
	defer s.Broadcaster.Unsubscribe(listener)

	enc, err := audio.NewEncoder(device.SampleRate, device.Channels, opusBitrate)
	if err != nil {
		s.logger.Error("opus encoder init", zap.Error(err))
		return
	}

	bufs := audio.AcquireFrameBuffers()
	defer audio.ReleaseFrameBuffers(bufs)

	s.logger.Info("audio stream started")
	defer s.logger.Info("audio stream ended")

	for {
		select {
		case <-s.stopped:
			return
		case <-listener.Done():
			return
		case frame, ok := <-listener.C:
			if !ok {
				return
			}
			data, err := enc.Encode(frame, bufs.OpusBuf)
			if err != nil {
				metrics.EncodeErrorsTotal.Inc()
				s.logger.Warn("opus encode", zap.Error(err))
				continue
			}
			if err := s.track.WriteSample(media.Sample{
				Data:     data,
				Duration: device.FrameDuration,
			}); err != nil {
				s.logger.Info("track write ended", zap.Error(err))
				return
			}
		}
	}
}

// Stop tears the session down: controller, graph, transport. Idempotent
// and safe when transport handles were never attached.
func (s *Session) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)

		s.Controller.Close() // stops therapy, closes the renderer

		if s.dc != nil {
			s.dc.Close()
		}
		if s.pc != nil {
			s.pc.Close()
		}
		s.logger.Info("session stopped")
	})
}
