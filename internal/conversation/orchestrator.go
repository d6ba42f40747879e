package conversation

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/arborworks/arbor/internal/audio"
	"github.com/arborworks/arbor/internal/brain"
	"github.com/arborworks/arbor/internal/capture"
	"github.com/arborworks/arbor/internal/observability"
	"github.com/arborworks/arbor/internal/synth"
	"github.com/arborworks/arbor/internal/transcribe"
)

// Config holds the conversation cadences. Everything is settable so tests
// can run the whole machine in milliseconds.
type Config struct {
	SampleRate        int
	MaxRecording      time.Duration
	SilenceLevel      float64
	SilenceHold       time.Duration
	SilencePoll       time.Duration
	WarmupAtFraction  float64
	DeviceRetryPeriod time.Duration
}

func (c *Config) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.MaxRecording <= 0 {
		c.MaxRecording = 15 * time.Second
	}
	if c.SilenceLevel <= 0 {
		c.SilenceLevel = 250
	}
	if c.SilenceHold <= 0 {
		c.SilenceHold = 1500 * time.Millisecond
	}
	if c.SilencePoll <= 0 {
		c.SilencePoll = 200 * time.Millisecond
	}
	if c.WarmupAtFraction <= 0 || c.WarmupAtFraction >= 1 {
		c.WarmupAtFraction = 0.7
	}
	if c.DeviceRetryPeriod <= 0 {
		c.DeviceRetryPeriod = 3 * time.Second
	}
}

// Orchestrator runs the interaction state machine on a single goroutine.
// Sensor inputs and async completions arrive on one queue; stale
// completions are matched against the turn token and dropped.
type Orchestrator struct {
	cfg      Config
	device   capture.Device
	stt      transcribe.Transcriber
	gen      *brain.Generator
	tts      *synth.Synthesizer
	player   Player
	metrics  *observability.Metrics
	notifier *Notifier

	events chan event

	state   State
	current atomic.Int32
	present bool
	token   uint64
	session capture.Session

	turnCtx    context.Context
	turnCancel context.CancelFunc

	silenceTicker *time.Ticker
	retryTicker   *time.Ticker
	maxTimer      *time.Timer
	warmupTimer   *time.Timer
	stageStart    time.Time
}

func NewOrchestrator(
	cfg Config,
	device capture.Device,
	stt transcribe.Transcriber,
	gen *brain.Generator,
	tts *synth.Synthesizer,
	player Player,
	metrics *observability.Metrics,
	notifier *Notifier,
) *Orchestrator {
	cfg.applyDefaults()
	if player == nil {
		player = TimedPlayer{}
	}
	if notifier == nil {
		notifier = NewNotifier()
	}
	return &Orchestrator{
		cfg:      cfg,
		device:   device,
		stt:      stt,
		gen:      gen,
		tts:      tts,
		player:   player,
		metrics:  metrics,
		notifier: notifier,
		events:   make(chan event, 64),
		state:    StateIdle,
	}
}

// Notifier exposes the event feed for the monitoring API.
func (o *Orchestrator) Notifier() *Notifier { return o.notifier }

// ZoneEnter reports that the proximity sensor saw a visitor arrive.
func (o *Orchestrator) ZoneEnter() { o.post(event{trigger: TriggerZoneEnter}) }

// ZoneExit reports that the visitor walked away. From any state it forces
// the machine back to Idle and fences off in-flight turn completions.
func (o *Orchestrator) ZoneExit() { o.post(event{trigger: TriggerZoneExit}) }

// ButtonPress reports the talk button going down.
func (o *Orchestrator) ButtonPress() { o.post(event{trigger: TriggerButtonPress}) }

// ButtonRelease reports the talk button coming up.
func (o *Orchestrator) ButtonRelease() { o.post(event{trigger: TriggerButtonRelease}) }

// State returns the most recently published state. Safe from any goroutine.
func (o *Orchestrator) State() State {
	return State(o.current.Load())
}

func (o *Orchestrator) post(ev event) {
	select {
	case o.events <- ev:
	default:
		log.Printf("conversation: event queue full, dropping %s", ev.trigger)
	}
}

// Run processes events until the context ends. Call it once.
func (o *Orchestrator) Run(ctx context.Context) {
	o.current.Store(int32(o.state))
	for {
		select {
		case <-ctx.Done():
			if o.turnCancel != nil {
				o.turnCancel()
			}
			o.stopRecordingHardware()
			o.stopTimers()
			return
		case ev := <-o.events:
			o.handle(ctx, ev)
		case <-tick(o.silenceTicker):
			o.checkRecordingProgress(ctx)
		case <-fire(o.maxTimer):
			o.maxTimer = nil
			o.endRecording(ctx, TriggerMaxDuration)
		case <-fire(o.warmupTimer):
			o.warmupTimer = nil
			go o.tts.WarmUp(ctx)
		case <-tick(o.retryTicker):
			o.retryDevice(ctx)
		}
	}
}

func tick(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func fire(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func (o *Orchestrator) handle(ctx context.Context, ev event) {
	switch ev.trigger {
	case TriggerZoneEnter:
		o.handleZoneEnter(ctx)
	case TriggerZoneExit:
		o.handleZoneExit()
	case TriggerButtonPress:
		o.handleButtonPress(ctx)
	case TriggerButtonRelease:
		if o.state == StateRecording {
			o.endRecording(ctx, TriggerButtonRelease)
		}
	case TriggerTranscript:
		o.handleTranscript(ev)
	case TriggerReply:
		o.handleReply(ev)
	case TriggerSpeechReady:
		o.handleSpeechReady(ev)
	case TriggerSpeechDone:
		if o.accept(ev.token) && o.state == StateSpeaking {
			o.transition(StateReady, TriggerSpeechDone)
		}
	}
}

func (o *Orchestrator) handleZoneEnter(ctx context.Context) {
	if o.present {
		return
	}
	o.present = true
	if o.metrics != nil {
		o.metrics.VisitorPresent.Set(1)
	}
	if o.state != StateIdle {
		return
	}
	if o.device.Available() {
		o.wake(ctx, TriggerZoneEnter)
		return
	}
	log.Printf("conversation: capture device unavailable, retrying every %s", o.cfg.DeviceRetryPeriod)
	o.retryTicker = time.NewTicker(o.cfg.DeviceRetryPeriod)
}

func (o *Orchestrator) retryDevice(ctx context.Context) {
	if !o.present || o.state != StateIdle {
		o.stopRetry()
		return
	}
	if o.device.Available() {
		o.stopRetry()
		o.wake(ctx, TriggerDeviceReady)
	}
}

func (o *Orchestrator) wake(ctx context.Context, trigger Trigger) {
	o.transition(StateReady, trigger)
	go o.playWelcome(ctx)
}

func (o *Orchestrator) handleZoneExit() {
	if !o.present && o.state == StateIdle {
		return
	}
	// In-flight network calls are left to finish; bumping the token routes
	// their completions to a no-op.
	o.present = false
	o.token++
	o.stopRecordingHardware()
	o.stopTimers()
	if o.metrics != nil {
		o.metrics.VisitorPresent.Set(0)
	}
	if o.state != StateIdle {
		o.transition(StateIdle, TriggerZoneExit)
	}
	o.gen.Suspend()
}

func (o *Orchestrator) handleButtonPress(ctx context.Context) {
	if o.state != StateReady {
		return
	}
	session, err := o.device.Start(ctx, o.cfg.SampleRate, o.cfg.MaxRecording)
	if err != nil {
		log.Printf("conversation: capture start failed: %v", err)
		return
	}
	o.session = session
	o.silenceTicker = time.NewTicker(o.cfg.SilencePoll)
	o.maxTimer = time.NewTimer(o.cfg.MaxRecording)
	o.warmupTimer = time.NewTimer(time.Duration(float64(o.cfg.MaxRecording) * o.cfg.WarmupAtFraction))
	o.transition(StateRecording, TriggerButtonPress)
}

// checkRecordingProgress polls the capture buffer for the endpointing
// conditions: a held stretch of quiet after a minimum of speech, or a full
// buffer ahead of the wall-clock timer.
func (o *Orchestrator) checkRecordingProgress(ctx context.Context) {
	if o.state != StateRecording || o.session == nil {
		return
	}
	buf := o.session.Buffer()
	if buf.Duration() >= o.cfg.MaxRecording {
		o.endRecording(ctx, TriggerMaxDuration)
		return
	}
	if buf.Duration() < o.cfg.SilenceHold {
		return
	}
	if buf.TailMeanAbs(o.cfg.SilenceHold) < o.cfg.SilenceLevel {
		o.endRecording(ctx, TriggerSilence)
	}
}

func (o *Orchestrator) endRecording(ctx context.Context, trigger Trigger) {
	if o.state != StateRecording || o.session == nil {
		return
	}
	clip := o.session.Stop()
	o.session = nil
	o.stopTimers()

	if !o.stt.Validate(clip) {
		o.transition(StateReady, TriggerInvalidAudio)
		return
	}

	o.token++
	token := o.token
	if o.turnCancel != nil {
		// Release the previous turn's context; any straggler it still
		// carries is already token-fenced.
		o.turnCancel()
	}
	o.turnCtx, o.turnCancel = context.WithCancel(ctx)
	turnCtx := o.turnCtx
	o.stageStart = time.Now()
	o.transition(StateProcessing, trigger)

	go func() {
		text := o.stt.Transcribe(turnCtx, clip)
		o.post(event{trigger: TriggerTranscript, token: token, text: text})
	}()
}

func (o *Orchestrator) handleTranscript(ev event) {
	if !o.accept(ev.token) || o.state != StateProcessing {
		return
	}
	o.observeStage("transcribe")
	if ev.text == "" {
		o.transition(StateReady, TriggerEmptyTranscript)
		return
	}
	o.notifier.Publish(Event{Type: "transcript", Text: ev.text})

	token := ev.token
	turnCtx := o.turnCtx
	text := ev.text
	go func() {
		reply := o.gen.Generate(turnCtx, text)
		o.post(event{trigger: TriggerReply, token: token, text: reply})
	}()
}

func (o *Orchestrator) handleReply(ev event) {
	if !o.accept(ev.token) || o.state != StateProcessing {
		return
	}
	o.observeStage("reply")
	o.notifier.Publish(Event{Type: "reply", Text: ev.text})

	token := ev.token
	turnCtx := o.turnCtx
	text := ev.text
	go func() {
		sp := o.tts.Speak(turnCtx, text)
		o.post(event{trigger: TriggerSpeechReady, token: token, speech: sp})
	}()
}

func (o *Orchestrator) handleSpeechReady(ev event) {
	if !o.accept(ev.token) || o.state != StateProcessing {
		return
	}
	o.observeStage("synthesize")
	o.transition(StateSpeaking, TriggerSpeechReady)

	token := ev.token
	turnCtx := o.turnCtx
	sp := ev.speech
	go func() {
		if err := o.player.Play(turnCtx, sp); err != nil {
			log.Printf("conversation: playback interrupted: %v", err)
		}
		o.post(event{trigger: TriggerSpeechDone, token: token})
	}()
}

func (o *Orchestrator) accept(token uint64) bool {
	if token != o.token {
		log.Printf("conversation: discarding completion from a stale turn")
		return false
	}
	return true
}

func (o *Orchestrator) transition(to State, trigger Trigger) {
	from := o.state
	o.state = to
	o.current.Store(int32(to))
	if o.metrics != nil {
		o.metrics.StateTransitions.WithLabelValues(from.String(), to.String(), string(trigger)).Inc()
	}
	o.notifier.Publish(Event{Type: "transition", From: from.String(), To: to.String(), Trigger: string(trigger)})
	log.Printf("conversation: %s -> %s (%s)", from, to, trigger)
}

func (o *Orchestrator) observeStage(stage string) {
	if o.metrics != nil && !o.stageStart.IsZero() {
		o.metrics.ObserveTurnStage(stage, time.Since(o.stageStart))
	}
	o.stageStart = time.Now()
}

func (o *Orchestrator) playWelcome(ctx context.Context) {
	clip := audio.Tone(660, 300*time.Millisecond, o.cfg.SampleRate)
	data, err := audio.EncodeWAV(clip)
	if err != nil {
		return
	}
	sp := synth.Speech{Data: data, Format: "wav", Duration: clip.Duration()}
	if err := o.player.Play(ctx, sp); err != nil {
		log.Printf("conversation: welcome cue interrupted: %v", err)
	}
}

func (o *Orchestrator) stopRecordingHardware() {
	if o.session != nil {
		o.session.Stop()
		o.session = nil
	}
}

func (o *Orchestrator) stopTimers() {
	if o.silenceTicker != nil {
		o.silenceTicker.Stop()
		o.silenceTicker = nil
	}
	if o.maxTimer != nil {
		o.maxTimer.Stop()
		o.maxTimer = nil
	}
	if o.warmupTimer != nil {
		o.warmupTimer.Stop()
		o.warmupTimer = nil
	}
	o.stopRetry()
}

func (o *Orchestrator) stopRetry() {
	if o.retryTicker != nil {
		o.retryTicker.Stop()
		o.retryTicker = nil
	}
}
