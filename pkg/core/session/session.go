// Package session orchestrates one live roleplay conversation: it owns
// the mic capture pipeline, the remote agent channel, the playback
// chain, the transcript reconciler and the recorder, and exposes the
// whole thing behind an explicit state machine.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sparring-ai/sparring/pkg/channel"
	"github.com/sparring-ai/sparring/pkg/core/ambience"
	"github.com/sparring-ai/sparring/pkg/core/audio"
	"github.com/sparring-ai/sparring/pkg/core/capture"
	"github.com/sparring-ai/sparring/pkg/core/playback"
	"github.com/sparring-ai/sparring/pkg/core/recorder"
	"github.com/sparring-ai/sparring/pkg/core/transcript"
	"github.com/sparring-ai/sparring/pkg/scenario"
)

// State is the session lifecycle state.
type State string

const (
	// Disconnected is the idle state, before Connect and after a clean
	// Disconnect.
	Disconnected State = "disconnected"
	// Connecting covers resource acquisition and the remote handshake.
	Connecting State = "connecting"
	// Connected is the live conversation.
	Connected State = "connected"
	// Errored is a terminal failure; Reason carries the cause.
	Errored State = "error"
)

// DefaultMeterInterval is how often the volume meters refresh.
const DefaultMeterInterval = 33 * time.Millisecond

// DefaultMaxInsights bounds the retained agent insight list.
const DefaultMaxInsights = 4

// Insight is one observation the agent logged about the user via the
// insight tool.
type Insight struct {
	Text string    `json:"text"`
	Type string    `json:"type"`
	Mood string    `json:"mood,omitempty"`
	At   time.Time `json:"at"`
}

// Marker is a user-placed bookmark on the session timeline.
type Marker struct {
	ID     string        `json:"id"`
	Label  string        `json:"label,omitempty"`
	At     time.Time     `json:"at"`
	Offset time.Duration `json:"offset"`
}

// Config carries everything a session needs to run one scenario.
// Zero-valued formats fall back to the standard 16 kHz capture and
// 24 kHz playback configurations.
type Config struct {
	Scenario     scenario.Scenario
	InputFormat  audio.Config
	OutputFormat audio.Config
	// InputDevice selects the capture device; empty means platform
	// default.
	InputDevice string
	// RecordingDir is where the WAV artifact lands. Empty disables
	// recording.
	RecordingDir string
	// Threshold seeds the VAD gate; Calibrate overrides it.
	Threshold     float64
	MeterInterval time.Duration
	MaxInsights   int
	Logger        *slog.Logger
}

// Speaker is the playback sink. Reset discards buffered audio on
// interruption.
type Speaker interface {
	Write(p []byte) (int, error)
	Reset() error
	Close() error
}

// Deps are the session's injectable edges. Zero-valued fields get the
// real implementations: ffmpeg mic capture, ffplay playback, and a
// wall-clock playback timeline.
type Deps struct {
	Dialer      channel.Dialer
	OpenMic     func(deviceID string, format audio.Config) (capture.Source, error)
	OpenSpeaker func(deviceID string, format audio.Config) (Speaker, error)
	Clock       playback.Clock
}

func (d *Deps) fillDefaults() error {
	if d.Dialer == nil {
		return errors.New("session requires a channel dialer")
	}
	if d.OpenMic == nil {
		d.OpenMic = func(deviceID string, format audio.Config) (capture.Source, error) {
			return capture.OpenFFmpegSource(deviceID, format)
		}
	}
	if d.OpenSpeaker == nil {
		// ffplay always plays the system default output; device routing
		// goes through the platform mixer.
		d.OpenSpeaker = func(_ string, format audio.Config) (Speaker, error) {
			return playback.OpenFFplaySpeaker(format)
		}
	}
	if d.Clock == nil {
		d.Clock = playback.NewRealClock()
	}
	return nil
}

// Session runs one live conversation. A Session value is single-use:
// Connect at most once, then Disconnect. All accessors are safe from
// any goroutine.
type Session struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
	id     string

	inAnalyser  *audio.Analyser
	outAnalyser *audio.Analyser
	trans       *transcript.Reconciler
	amb         *ambience.Generator

	mu        sync.Mutex
	state     State
	reason    string
	startedAt time.Time
	mic       capture.Source
	pipeline  *capture.Pipeline
	ch        channel.Channel
	sched     *playback.Scheduler
	mixer     *playback.Mixer
	speaker   *switchableSpeaker
	rec       *recorder.Recorder
	artifact  *recorder.Artifact
	threshold float64
	markers   []Marker
	insights  []Insight
	mood      string

	inputVol  atomic.Uint32
	outputVol atomic.Uint32

	meterQuit chan struct{}
	meterDone chan struct{}
	eventDone chan struct{}
}

// New creates a session for one scenario. It acquires no resources
// until Connect.
func New(cfg Config, deps Deps) (*Session, error) {
	if err := deps.fillDefaults(); err != nil {
		return nil, err
	}
	if cfg.InputFormat == (audio.Config{}) {
		cfg.InputFormat = audio.DefaultInput()
	}
	if cfg.OutputFormat == (audio.Config{}) {
		cfg.OutputFormat = audio.DefaultOutput()
	}
	if cfg.MeterInterval <= 0 {
		cfg.MeterInterval = DefaultMeterInterval
	}
	if cfg.MaxInsights <= 0 {
		cfg.MaxInsights = DefaultMaxInsights
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:         cfg,
		deps:        deps,
		logger:      logger.With("scenario", cfg.Scenario.ID),
		id:          uuid.NewString(),
		inAnalyser:  audio.NewAnalyser(256),
		outAnalyser: audio.NewAnalyser(512),
		trans:       transcript.NewReconciler(),
		amb:         ambience.NewGenerator(),
		state:       Disconnected,
		threshold:   cfg.Threshold,
	}, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reason explains the Errored state; empty otherwise.
func (s *Session) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Calibrate listens to the mic and derives a VAD threshold from the
// ambient noise floor. Call before Connect. A mic failure leaves the
// previous threshold untouched.
func (s *Session) Calibrate(ctx context.Context, cal capture.CalibrationConfig) (float64, error) {
	mic, err := s.deps.OpenMic(s.cfg.InputDevice, s.cfg.InputFormat)
	if err != nil {
		return 0, fmt.Errorf("open mic for calibration: %w", err)
	}
	defer mic.Close()

	threshold, err := capture.Calibrate(ctx, mic, s.cfg.InputFormat, cal)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.threshold = threshold
	if s.pipeline != nil {
		s.pipeline.SetThreshold(threshold)
	}
	s.mu.Unlock()
	s.logger.Info("mic calibrated", "threshold", threshold)
	return threshold, nil
}

// Connect acquires the mic, the speaker and the remote channel, wires
// the audio and event paths, and transitions to Connected. Any failure
// rolls everything back and leaves the session in Errored with the
// cause in Reason.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Disconnected {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot connect from state %q", state)
	}
	s.state = Connecting
	s.reason = ""
	s.mu.Unlock()
	s.logger.Info("session connecting", "session", s.id)

	if err := s.connect(ctx); err != nil {
		s.teardown()
		s.mu.Lock()
		if s.state == Connecting {
			s.state = Errored
			s.reason = err.Error()
		}
		s.mu.Unlock()
		s.logger.Error("session connect failed", "error", err)
		return err
	}

	// Guarded transition: a Disconnect issued while still connecting
	// wins. Everything acquired so far is released and the state the
	// concurrent caller set stands.
	s.mu.Lock()
	if s.state != Connecting {
		state := s.state
		s.mu.Unlock()
		s.teardown()
		s.logger.Warn("connect aborted", "state", state)
		return fmt.Errorf("connect aborted: session moved to %q", state)
	}
	s.state = Connected
	s.startedAt = time.Now()
	pipeline := s.pipeline
	mixer := s.mixer
	ch := s.ch
	sched := s.sched
	meterQuit := make(chan struct{})
	meterDone := make(chan struct{})
	eventDone := make(chan struct{})
	s.meterQuit = meterQuit
	s.meterDone = meterDone
	s.eventDone = eventDone
	go s.eventLoop(ch, sched, eventDone)
	go s.meterLoop(meterQuit, meterDone)
	s.mu.Unlock()

	// Frames flow only once the state is Connected.
	if err := pipeline.Start(); err != nil {
		err = fmt.Errorf("start capture: %w", err)
		s.fail(err.Error())
		return err
	}
	mixer.Start()
	s.logger.Info("session connected", "session", s.id)
	return nil
}

// connect acquires and wires every resource but starts nothing; the
// capture and mixer loops launch only after the guarded state
// transition in Connect.
func (s *Session) connect(ctx context.Context) error {
	mic, err := s.deps.OpenMic(s.cfg.InputDevice, s.cfg.InputFormat)
	if err != nil {
		return fmt.Errorf("open mic: %w", err)
	}
	s.mu.Lock()
	s.mic = mic
	s.mu.Unlock()

	spk, err := s.deps.OpenSpeaker("", s.cfg.OutputFormat)
	if err != nil {
		return fmt.Errorf("open speaker: %w", err)
	}
	speaker := &switchableSpeaker{current: spk}
	s.mu.Lock()
	s.speaker = speaker
	s.mu.Unlock()

	ch, err := s.deps.Dialer.Dial(ctx, channel.ConnectOptions{
		Persona:          s.cfg.Scenario.Persona,
		Voice:            s.cfg.Scenario.Voice,
		InputSampleRate:  s.cfg.InputFormat.SampleRate,
		OutputSampleRate: s.cfg.OutputFormat.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("dial channel: %w", err)
	}
	s.mu.Lock()
	s.ch = ch
	s.mu.Unlock()

	// Recording failure degrades the session, never fails it.
	var rec *recorder.Recorder
	if s.cfg.RecordingDir != "" {
		rec = recorder.NewRecorder(s.cfg.InputFormat, s.cfg.OutputFormat, s.cfg.RecordingDir, s.logger)
		if err := rec.Start(); err != nil {
			s.logger.Warn("recording unavailable", "error", err)
			rec = nil
		}
	}

	s.amb.Init(s.cfg.OutputFormat.SampleRate)
	s.amb.Start(s.cfg.Scenario.Ambience)

	sched := playback.NewScheduler(s.deps.Clock, s.cfg.OutputFormat.SampleRate, s.logger)

	var tap func([]float32)
	if rec != nil {
		tap = rec.AddOutput
	}
	mixer := playback.NewMixer(sched, s.amb, s.outAnalyser, tap, speaker, s.cfg.OutputFormat.SampleRate, s.logger)

	pipeline := capture.NewPipeline(mic, s.inAnalyser, capture.SinkFunc(ch.SendFrame), s.logger)
	if rec != nil {
		pipeline.SetFrameTap(rec.AddMic)
	}

	s.mu.Lock()
	s.rec = rec
	s.sched = sched
	s.mixer = mixer
	s.pipeline = pipeline
	pipeline.SetThreshold(s.threshold)
	s.mu.Unlock()
	return nil
}

// eventLoop consumes the channel's inbound events until the stream
// ends. A remote close or error transitions the session state.
func (s *Session) eventLoop(ch channel.Channel, sched *playback.Scheduler, done chan struct{}) {
	defer close(done)
	for ev := range ch.Events() {
		switch ev := ev.(type) {
		case *channel.OpenEvent:

		case *channel.AudioChunkEvent:
			sched.Enqueue(audio.SamplesFromBytes(ev.PCM))

		case *channel.TranscriptEvent:
			role := transcript.RoleAgent
			if ev.Source == channel.SourceUser {
				role = transcript.RoleUser
			}
			s.trans.AppendPartial(role, ev.Text)

		case *channel.TurnCompleteEvent:
			s.trans.SealTurn()

		case *channel.InterruptedEvent:
			s.handleInterruption(sched)

		case *channel.ToolCallEvent:
			s.handleToolCall(ch, ev)

		case *channel.ClosedEvent:
			s.logger.Info("channel closed", "reason", ev.Reason)
			go s.Disconnect()
			return

		case *channel.ErrorEvent:
			s.logger.Error("channel failed", "reason", ev.Reason)
			go s.fail(ev.Reason)
			return
		}
	}
}

// handleInterruption flushes everything queued for playback and seals
// the agent's cut-off utterance. The user's in-flight partial stays.
func (s *Session) handleInterruption(sched *playback.Scheduler) {
	sched.Interrupt()
	s.trans.SealRole(transcript.RoleAgent, transcript.InterruptionMarker)

	s.mu.Lock()
	speaker := s.speaker
	s.mu.Unlock()
	if speaker != nil {
		if err := speaker.Reset(); err != nil {
			s.logger.Warn("speaker reset failed", "error", err)
		}
	}
}

func (s *Session) handleToolCall(ch channel.Channel, ev *channel.ToolCallEvent) {
	if ev.Name != "log_insight" {
		s.logger.Warn("unexpected tool call", "tool", ev.Name)
		if err := ch.SendToolResult(ev.ID, ev.Name, map[string]any{"error": "unknown tool"}); err != nil {
			s.logger.Warn("tool result send failed", "error", err)
		}
		return
	}

	ins := Insight{At: time.Now()}
	if v, ok := ev.Args["text"].(string); ok {
		ins.Text = v
	}
	if v, ok := ev.Args["type"].(string); ok {
		ins.Type = v
	}
	if v, ok := ev.Args["mood"].(string); ok {
		ins.Mood = v
	}

	s.mu.Lock()
	s.insights = append(s.insights, ins)
	if n := len(s.insights); n > s.cfg.MaxInsights {
		s.insights = s.insights[n-s.cfg.MaxInsights:]
	}
	if ins.Mood != "" {
		s.mood = ins.Mood
	}
	s.mu.Unlock()
	s.logger.Debug("insight logged", "type", ins.Type, "mood", ins.Mood)

	if err := ch.SendToolResult(ev.ID, ev.Name, map[string]any{"result": "mood_updated"}); err != nil {
		s.logger.Warn("tool result send failed", "error", err)
	}
}

// meterLoop refreshes the 0-255 volume meters while connected.
func (s *Session) meterLoop(quit, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.MeterInterval)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
			s.inputVol.Store(meterLevel(s.inAnalyser))
			s.outputVol.Store(meterLevel(s.outAnalyser))
		}
	}
}

func meterLevel(a *audio.Analyser) uint32 {
	v := a.MeanMagnitude()
	if v < 0 {
		v = 0
	} else if v > 255 {
		v = 255
	}
	return uint32(v)
}

// fail tears the session down into the Errored state.
func (s *Session) fail(reason string) {
	s.mu.Lock()
	if s.state == Disconnected || s.state == Errored {
		s.mu.Unlock()
		return
	}
	s.state = Errored
	s.reason = reason
	s.mu.Unlock()
	s.teardown()
}

// Disconnect releases every resource and returns to Disconnected.
// Idempotent from any state; an Errored session stays Errored.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state == Disconnected {
		s.mu.Unlock()
		return
	}
	if s.state != Errored {
		s.state = Disconnected
	}
	s.mu.Unlock()
	s.teardown()
	s.logger.Info("session disconnected", "session", s.id)
}

// teardown stops every component the session started. Safe to call
// with any subset of them initialized, and safe to call twice.
func (s *Session) teardown() {
	s.mu.Lock()
	pipeline := s.pipeline
	mixer := s.mixer
	ch := s.ch
	sched := s.sched
	speaker := s.speaker
	mic := s.mic
	rec := s.rec
	meterQuit := s.meterQuit
	meterDone := s.meterDone
	eventDone := s.eventDone
	s.pipeline = nil
	s.mixer = nil
	s.ch = nil
	s.sched = nil
	s.speaker = nil
	s.mic = nil
	s.rec = nil
	s.meterQuit = nil
	s.meterDone = nil
	s.eventDone = nil
	s.mu.Unlock()

	if pipeline != nil {
		pipeline.Stop()
	} else if mic != nil {
		_ = mic.Close()
	}
	if ch != nil {
		_ = ch.Close()
	}
	if sched != nil {
		sched.Stop()
	}
	if mixer != nil {
		mixer.Stop()
	}
	s.amb.Stop()
	if speaker != nil {
		_ = speaker.Close()
	}
	if meterQuit != nil {
		close(meterQuit)
		<-meterDone
	}
	if eventDone != nil {
		<-eventDone
	}
	if rec != nil {
		art, err := rec.Stop()
		if err != nil {
			s.logger.Warn("recording finalize failed", "error", err)
		}
		s.mu.Lock()
		s.artifact = art
		s.mu.Unlock()
	}
	s.inputVol.Store(0)
	s.outputVol.Store(0)
}

// InputVolume returns the live mic meter level, 0-255.
func (s *Session) InputVolume() int { return int(s.inputVol.Load()) }

// OutputVolume returns the live agent-speech meter level, 0-255.
func (s *Session) OutputVolume() int { return int(s.outputVol.Load()) }

// Speaking reports whether agent speech is scheduled or playing.
func (s *Session) Speaking() bool {
	s.mu.Lock()
	sched := s.sched
	s.mu.Unlock()
	return sched != nil && sched.Speaking()
}

// Transcript returns a snapshot of the conversation so far.
func (s *Session) Transcript() []transcript.Item { return s.trans.Snapshot() }

// InputAnalyser exposes the mic analyser for visualizers.
func (s *Session) InputAnalyser() *audio.Analyser { return s.inAnalyser }

// OutputAnalyser exposes the agent-speech analyser for visualizers.
func (s *Session) OutputAnalyser() *audio.Analyser { return s.outAnalyser }

// Artifact returns the finalized recording, available after
// Disconnect. Nil when the session recorded nothing.
func (s *Session) Artifact() *recorder.Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifact
}

// AddMarker bookmarks the current moment on the session timeline.
func (s *Session) AddMarker(label string) Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := Marker{
		ID:    uuid.NewString(),
		Label: label,
		At:    time.Now(),
	}
	if !s.startedAt.IsZero() {
		m.Offset = m.At.Sub(s.startedAt)
	}
	s.markers = append(s.markers, m)
	return m
}

// Markers returns a copy of the placed markers in order.
func (s *Session) Markers() []Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Marker, len(s.markers))
	copy(out, s.markers)
	return out
}

// Insights returns the most recent agent insights, oldest first.
func (s *Session) Insights() []Insight {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Insight, len(s.insights))
	copy(out, s.insights)
	return out
}

// Mood returns the agent's last reported mood, empty before the first
// insight carries one.
func (s *Session) Mood() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mood
}

// SetMuted drops all mic transmission while true. Metering stays live.
func (s *Session) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pipeline != nil {
		s.pipeline.SetMuted(muted)
	}
}

// SetMode switches between VAD and push-to-talk gating.
func (s *Session) SetMode(mode capture.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pipeline != nil {
		s.pipeline.SetMode(mode)
	}
}

// SetPTTPressed records the push-to-talk control state.
func (s *Session) SetPTTPressed(pressed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pipeline != nil {
		s.pipeline.SetPTTPressed(pressed)
	}
}

// SetThreshold overrides the VAD gate threshold.
func (s *Session) SetThreshold(threshold float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold = threshold
	if s.pipeline != nil {
		s.pipeline.SetThreshold(threshold)
	}
}

// SetAmbienceVolume scales the background bed, 0 to 1. Independent of
// the speech path.
func (s *Session) SetAmbienceVolume(v float64) { s.amb.SetVolume(v) }

// SetOutputDevice reopens the speaker on another device mid-session.
// Playback continues on the new device from the next mixer tick.
func (s *Session) SetOutputDevice(deviceID string) error {
	s.mu.Lock()
	speaker := s.speaker
	s.mu.Unlock()
	if speaker == nil {
		return errors.New("session has no active speaker")
	}
	next, err := s.deps.OpenSpeaker(deviceID, s.cfg.OutputFormat)
	if err != nil {
		return fmt.Errorf("open output device %q: %w", deviceID, err)
	}
	old := speaker.swap(next)
	if old != nil {
		_ = old.Close()
	}
	return nil
}

// switchableSpeaker lets the mixer keep writing through a device
// switch. The mixer holds it for the whole session; the concrete
// speaker behind it may be replaced at any time.
type switchableSpeaker struct {
	mu      sync.Mutex
	current Speaker
}

func (w *switchableSpeaker) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return 0, errors.New("speaker is closed")
	}
	return w.current.Write(p)
}

func (w *switchableSpeaker) Reset() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return nil
	}
	return w.current.Reset()
}

func (w *switchableSpeaker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return nil
	}
	err := w.current.Close()
	w.current = nil
	return err
}

func (w *switchableSpeaker) swap(next Speaker) Speaker {
	w.mu.Lock()
	defer w.mu.Unlock()
	old := w.current
	w.current = next
	return old
}
