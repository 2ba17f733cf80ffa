// Package therapy implements the masking session controller: one state
// record per session, the processing-graph lifecycle around it, and the
// auto-stop timer.
package therapy

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/quietmask/maskd/internal/device"
	"github.com/quietmask/maskd/internal/metrics"
	"github.com/quietmask/maskd/internal/synth"
)

const (
	// MinFrequencyHz and MaxFrequencyHz bound the notch/test-tone frequency.
	MinFrequencyHz = 250
	MaxFrequencyHz = 16000

	// NotchQ is the fixed narrowness of the masking notch.
	NotchQ = 30.0
	// TherapyGain is the fixed gain of the therapy chain.
	TherapyGain = 0.7
	// TestToneGain is the fixed gain of the test tone chain.
	TestToneGain = 0.3

	// DefaultAutoStopSec stops therapy after 30 minutes.
	DefaultAutoStopSec = 1800
)

// ErrAlreadyPlaying is returned by StartTherapy when therapy is running.
// Callers wanting toggle semantics use ToggleTherapy.
var ErrAlreadyPlaying = errors.New("therapy already playing")

// State is a snapshot of the session for the UI to render from.
type State struct {
	FrequencyHz     int     `json:"frequencyHz"`
	Volume          float64 `json:"volume"`
	Sound           string  `json:"sound"`
	TestTonePlaying bool    `json:"testTonePlaying"`
	TherapyPlaying  bool    `json:"therapyPlaying"`
	ElapsedSeconds  int     `json:"elapsedSeconds"`
	Degraded        bool    `json:"degraded,omitempty"`
}

// Options configure a new Controller.
type Options struct {
	FrequencyHz int
	Volume      float64
	AutoStopSec int

	// Now overrides the wall clock (tests). Defaults to time.Now.
	Now func() time.Time
	// Rand seeds synthesis. Defaults to a time-seeded source.
	Rand *rand.Rand
}

// Controller owns one therapy session: the current parameters, the live
// processing graph and the auto-stop timer. All operations are serialized
// on an internal mutex; every stop path is an idempotent no-op when the
// corresponding resource was never created.
type Controller struct {
	logger *zap.Logger
	dev    device.Device
	now    func() time.Time
	rng    *rand.Rand

	mu       sync.Mutex
	degraded bool

	freq   int
	volume float64
	sound  synth.Texture

	// long-lived output stage; SetVolume targets this
	masterGain device.Gain

	// test tone pair, lazily created, reused across runs
	testOsc     device.Oscillator
	testGain    device.Gain
	testPlaying bool

	// therapy triple; filter and gain survive a live switch, the source
	// never does
	source      device.BufferSource
	filter      device.NotchFilter
	therapyGain device.Gain
	playing     bool

	startedAt     time.Time
	autoStopSec   int
	autoStopFired bool
	onAutoStop    func()
	timerStop     chan struct{}
}

// New creates a controller over dev. A device start failure degrades the
// controller to a silent no-op state rather than erroring: parameters are
// still tracked, playback operations do nothing.
func New(dev device.Device, logger *zap.Logger, opts Options) *Controller {
	if opts.FrequencyHz == 0 {
		opts.FrequencyHz = 4000
	}
	if opts.AutoStopSec == 0 {
		opts.AutoStopSec = DefaultAutoStopSec
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	c := &Controller{
		logger:      logger,
		dev:         dev,
		now:         opts.Now,
		rng:         opts.Rand,
		freq:        clampFrequency(opts.FrequencyHz),
		volume:      clampVolume(opts.Volume),
		sound:       synth.WhiteNoise,
		autoStopSec: opts.AutoStopSec,
	}

	if err := dev.Start(); err != nil {
		// reported once; afterwards everything is a quiet no-op
		logger.Warn("audio device unavailable, session degraded", zap.Error(err))
		c.degraded = true
		return c
	}

	c.masterGain = dev.NewGain(c.volume)
	dev.Connect(c.masterGain, dev.Sink())
	return c
}

// OnAutoStop registers the single callback invoked when the auto-stop
// threshold is reached.
func (c *Controller) OnAutoStop(fn func()) {
	c.mu.Lock()
	c.onAutoStop = fn
	c.mu.Unlock()
}

// Degraded reports whether the device failed to start.
func (c *Controller) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// State returns a snapshot of the session.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		FrequencyHz:     c.freq,
		Volume:          c.volume,
		Sound:           c.sound.String(),
		TestTonePlaying: c.testPlaying,
		TherapyPlaying:  c.playing,
		ElapsedSeconds:  c.elapsedLocked(),
		Degraded:        c.degraded,
	}
}

func (c *Controller) elapsedLocked() int {
	if !c.playing {
		return 0
	}
	return int(c.now().Sub(c.startedAt).Seconds())
}

func clampFrequency(f int) int {
	if f < MinFrequencyHz {
		return MinFrequencyHz
	}
	if f > MaxFrequencyHz {
		return MaxFrequencyHz
	}
	return f
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SetFrequency clamps f to [250, 16000] and retunes any live test tone
// oscillator and therapy notch filter.
func (c *Controller) SetFrequency(f int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.freq = clampFrequency(f)
	if c.testPlaying && c.testOsc != nil {
		c.testOsc.SetFrequency(float64(c.freq))
	}
	if c.playing && c.filter != nil {
		c.filter.SetFrequency(float64(c.freq))
	}
}

// Frequency returns the current notch frequency in Hz.
func (c *Controller) Frequency() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freq
}

// SetVolume clamps v to [0, 1] and applies it to the output gain stage.
func (c *Controller) SetVolume(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = clampVolume(v)
	if c.masterGain != nil {
		c.masterGain.SetGain(c.volume)
	}
}

// Volume returns the current output volume.
func (c *Controller) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// SelectSound updates the current texture. When therapy is playing the new
// texture is switched in live: only the source is replaced, the filter and
// gain stay, and the session timer keeps running.
func (c *Controller) SelectSound(tex synth.Texture) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sound = tex
	if c.playing {
		c.switchSourceLocked(tex)
	}
}

// Sound returns the currently selected texture.
func (c *Controller) Sound() synth.Texture {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sound
}

// PlayTestTone starts a sine at the current frequency, independent of the
// therapy graph. No-op on a degraded device.
func (c *Controller) PlayTestTone() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.degraded || c.testPlaying {
		return
	}
	if c.testOsc == nil {
		c.testOsc = c.dev.NewOscillator()
		c.testGain = c.dev.NewGain(TestToneGain)
		c.dev.Connect(c.testOsc, c.testGain)
		c.dev.Connect(c.testGain, c.masterGain)
	}
	c.testOsc.SetFrequency(float64(c.freq))
	c.testOsc.Start()
	c.testPlaying = true
	metrics.TestTonePlaying.Inc()
	c.logger.Info("test tone started", zap.Int("frequencyHz", c.freq))
}

// StopTestTone stops the test tone. Safe to call when none is playing.
func (c *Controller) StopTestTone() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.testPlaying {
		return
	}
	if c.testOsc != nil {
		c.testOsc.Stop()
	}
	c.testPlaying = false
	metrics.TestTonePlaying.Dec()
	c.logger.Info("test tone stopped")
}

// StartTherapy synthesizes a buffer for tex and starts looped, notch-
// filtered playback, resetting the session timer. Returns ErrAlreadyPlaying
// when therapy is running; use ToggleTherapy for toggle semantics. No-op on
// a degraded device.
func (c *Controller) StartTherapy(tex synth.Texture) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.degraded {
		return nil
	}
	if c.playing {
		return ErrAlreadyPlaying
	}

	c.sound = tex
	c.buildChainLocked(tex)
	c.playing = true
	c.startedAt = c.now()
	c.autoStopFired = false

	c.timerStop = make(chan struct{})
	go c.runTimer(c.timerStop)

	metrics.TherapyPlaying.Inc()
	c.logger.Info("therapy started",
		zap.String("sound", tex.String()),
		zap.Int("frequencyHz", c.freq),
	)
	return nil
}

// buildChainLocked wires source→filter→gain→master, creating the filter and
// therapy gain lazily so a later switch can reuse them.
func (c *Controller) buildChainLocked(tex synth.Texture) {
	buf := synth.Generate(tex, tex.Duration(), device.SampleRate, c.rng)
	c.source = c.dev.NewBufferSource(buf)

	if c.filter == nil {
		c.filter = c.dev.NewNotchFilter(float64(c.freq), NotchQ)
		c.therapyGain = c.dev.NewGain(TherapyGain)
		c.dev.Connect(c.filter, c.therapyGain)
		c.dev.Connect(c.therapyGain, c.masterGain)
	}
	c.filter.SetFrequency(float64(c.freq))
	c.dev.Connect(c.source, c.filter)
	c.source.Start()
}

// switchSourceLocked swaps the audible texture without touching the timer:
// the old source is stopped and released, the filter and gain are reused so
// the transition does not click.
func (c *Controller) switchSourceLocked(tex synth.Texture) {
	if c.source != nil {
		c.source.Stop()
		c.dev.Disconnect(c.source, c.filter)
		c.source = nil
	}

	buf := synth.Generate(tex, tex.Duration(), device.SampleRate, c.rng)
	c.source = c.dev.NewBufferSource(buf)
	c.dev.Connect(c.source, c.filter)
	c.source.Start()

	c.logger.Info("therapy sound switched", zap.String("sound", tex.String()))
}

// StopTherapy stops playback and releases the source, filter and gain
// handles. Idempotent: stopping when nothing plays is a no-op.
func (c *Controller) StopTherapy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTherapyLocked()
}

func (c *Controller) stopTherapyLocked() {
	if !c.playing {
		return
	}

	if c.timerStop != nil {
		close(c.timerStop)
		c.timerStop = nil
	}

	// teardown proceeds through every handle even if one is already gone
	if c.source != nil {
		c.source.Stop()
		c.dev.Disconnect(c.source, c.filter)
		c.source = nil
	}
	if c.filter != nil {
		c.dev.Disconnect(c.filter, c.therapyGain)
	}
	if c.therapyGain != nil {
		c.dev.Disconnect(c.therapyGain, c.masterGain)
	}
	c.filter = nil
	c.therapyGain = nil

	c.playing = false
	metrics.TherapyPlaying.Dec()
	c.logger.Info("therapy stopped")
}

// ToggleTherapy starts therapy with tex, or stops it if it is playing.
// Returns the resulting playing state.
func (c *Controller) ToggleTherapy(tex synth.Texture) bool {
	c.mu.Lock()
	playing := c.playing
	c.mu.Unlock()

	if playing {
		c.StopTherapy()
		return false
	}
	_ = c.StartTherapy(tex)
	return c.Playing()
}

// Playing reports whether therapy is running.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// VisualizationSnapshot returns the analyser's latest time-domain window,
// or nil when therapy is not playing. Safe to call once per rendered frame.
func (c *Controller) VisualizationSnapshot() []byte {
	c.mu.Lock()
	playing := c.playing
	c.mu.Unlock()
	if !playing {
		return nil
	}
	return c.dev.Analyser().Snapshot()
}

// Close stops everything and releases the device.
func (c *Controller) Close() {
	c.StopTherapy()
	c.StopTestTone()
	c.dev.Close()
}

// runTimer advances the session clock once per second until stopped.
func (c *Controller) runTimer(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// tick checks the auto-stop threshold. At the threshold therapy stops and
// the registered callback fires, exactly once per run.
func (c *Controller) tick() {
	c.mu.Lock()
	if !c.playing || c.autoStopFired {
		c.mu.Unlock()
		return
	}
	if c.elapsedLocked() < c.autoStopSec {
		c.mu.Unlock()
		return
	}
	c.autoStopFired = true
	cb := c.onAutoStop
	c.stopTherapyLocked()
	c.mu.Unlock()

	metrics.AutoStopsTotal.Inc()
	c.logger.Info("therapy auto-stopped", zap.Int("afterSec", c.autoStopSec))
	if cb != nil {
		cb()
	}
}
