// Package alarm turns a stream of fault events into a small number of spoken
// operator notifications.
//
// Two policies apply. Each (channel, fault type) pair is accepted at most
// once per suppression window. Accepted events are batched until the
// aggregation window passes with no new arrival, or until the batch reaches
// the aggregation threshold, at which point a single aggregate warning
// replaces the individual announcements.
package alarm

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"frameworks/lookout/internal/metrics"
	"frameworks/lookout/pkg/clock"
	"frameworks/lookout/pkg/logging"
	"frameworks/lookout/pkg/speech"
)

const (
	DefaultSuppressionWindow    = 5 * time.Minute
	DefaultAggregationWindow    = 10 * time.Second
	DefaultAggregationThreshold = 5
)

// FaultEvent is one observed anomaly on a channel.
type FaultEvent struct {
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name,omitempty"`
	FaultType   string `json:"fault_type"`
}

// DisplayName is the channel name, falling back to the id.
func (e FaultEvent) DisplayName() string {
	if e.ChannelName != "" {
		return e.ChannelName
	}
	return e.ChannelID
}

func (e FaultEvent) suppressionKey() string {
	return e.ChannelID + ":" + e.FaultType
}

// Outcome records what Submit did with an event.
type Outcome string

const (
	OutcomeAccepted   Outcome = "accepted"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeMuted      Outcome = "muted"
	OutcomeDiscarded  Outcome = "discarded"
)

// Kind distinguishes per-event notifications from the burst summary.
type Kind string

const (
	KindIndividual Kind = "individual"
	KindAggregate  Kind = "aggregate"
)

// Notification is one operator announcement produced by a flush.
type Notification struct {
	ID     string       `json:"id"`
	Kind   Kind         `json:"kind"`
	Text   string       `json:"text"`
	Events []FaultEvent `json:"events"`
	At     time.Time    `json:"at"`
}

// Options configures an Engine. Zero values take the defaults.
type Options struct {
	SuppressionWindow    time.Duration
	AggregationWindow    time.Duration
	AggregationThreshold int

	Clock   clock.Clock
	Speaker speech.Speaker
	Logger  logging.Logger
	Metrics *metrics.Metrics

	// OnNotify observes every notification. It runs with the engine locked
	// and must not call back into the engine.
	OnNotify func(Notification)
}

// Stats is a point-in-time view of engine state.
type Stats struct {
	Enabled          bool `json:"enabled"`
	SuppressionSize  int  `json:"suppression_entries"`
	Pending          int  `json:"pending"`
	DebounceArmed    bool `json:"debounce_armed"`
	SpeechAvailable  bool `json:"speech_available"`
	NotificationsOut int  `json:"notifications_emitted"`
}

// Engine is the suppression and aggregation engine. Every method is safe for
// concurrent use. State changes happen under mu; the speaker is driven
// afterwards under speakMu, so a slow speaker never holds up Submit.
type Engine struct {
	suppressionWindow time.Duration
	aggregationWindow time.Duration
	threshold         int

	clock    clock.Clock
	speaker  speech.Speaker
	logger   logging.Logger
	metrics  *metrics.Metrics
	onNotify func(Notification)

	mu          sync.Mutex
	enabled     bool
	closed      bool
	suppression map[string]time.Time
	pending     []FaultEvent
	timer       clock.Timer
	timerGen    uint64
	emitted     int
	speechSeq   uint64

	// speakMu serializes speaker calls; lastSpoken is guarded by it.
	speakMu    sync.Mutex
	lastSpoken uint64
}

// speechBatch is the text a locked section decided to speak, stamped with
// the order in which that decision was made.
type speechBatch struct {
	seq   uint64
	texts []string
}

// New returns an enabled Engine.
func New(opts Options) *Engine {
	if opts.SuppressionWindow <= 0 {
		opts.SuppressionWindow = DefaultSuppressionWindow
	}
	if opts.AggregationWindow <= 0 {
		opts.AggregationWindow = DefaultAggregationWindow
	}
	if opts.AggregationThreshold <= 0 {
		opts.AggregationThreshold = DefaultAggregationThreshold
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Speaker == nil {
		opts.Speaker = speech.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger()
	}

	return &Engine{
		suppressionWindow: opts.SuppressionWindow,
		aggregationWindow: opts.AggregationWindow,
		threshold:         opts.AggregationThreshold,
		clock:             opts.Clock,
		speaker:           opts.Speaker,
		logger:            opts.Logger,
		metrics:           opts.Metrics,
		onNotify:          opts.OnNotify,
		enabled:           true,
		suppression:       make(map[string]time.Time),
	}
}

// Configure is the master mute. A disabled engine ignores Submit entirely,
// leaving no suppression state behind.
func (e *Engine) Configure(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.enabled == enabled {
		return
	}
	e.enabled = enabled
	e.logger.WithField("enabled", enabled).Info("Alarm speech toggled")
}

func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// Submit offers one fault event to the engine.
func (e *Engine) Submit(ev FaultEvent) Outcome {
	e.mu.Lock()
	outcome, batch := e.submitLocked(ev)
	e.metrics.AlarmEvent(string(outcome))
	e.mu.Unlock()

	e.say(batch)
	return outcome
}

func (e *Engine) submitLocked(ev FaultEvent) (Outcome, speechBatch) {
	if e.closed {
		return OutcomeDiscarded, speechBatch{}
	}
	if !e.enabled {
		return OutcomeMuted, speechBatch{}
	}

	now := e.clock.Now()
	key := ev.suppressionKey()
	if expiresAt, ok := e.suppression[key]; ok && now.Before(expiresAt) {
		e.logger.WithFields(logging.Fields{
			"channel_id": ev.ChannelID,
			"fault_type": ev.FaultType,
		}).Debug("Fault suppressed")
		return OutcomeSuppressed, speechBatch{}
	}
	e.suppression[key] = now.Add(e.suppressionWindow)
	e.metrics.Suppression(len(e.suppression))

	e.pending = append(e.pending, ev)
	e.stopTimerLocked()

	if len(e.pending) >= e.threshold {
		return OutcomeAccepted, e.flushLocked()
	}

	e.timerGen++
	gen := e.timerGen
	e.timer = e.clock.AfterFunc(e.aggregationWindow, func() { e.onDebounce(gen) })
	return OutcomeAccepted, speechBatch{}
}

// onDebounce runs when a debounce timer fires. A callback from a timer that
// has since been replaced or stopped is ignored.
func (e *Engine) onDebounce(gen uint64) {
	e.mu.Lock()
	if e.closed || gen != e.timerGen {
		e.mu.Unlock()
		return
	}
	e.timer = nil
	batch := e.flushLocked()
	e.mu.Unlock()

	e.say(batch)
}

// Flush emits whatever is pending now. Calling it with nothing pending is a
// no-op.
func (e *Engine) Flush() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	batch := e.flushLocked()
	e.mu.Unlock()

	e.say(batch)
}

// flushLocked emits the pending batch and returns what should be spoken
// once the lock is released.
func (e *Engine) flushLocked() speechBatch {
	e.stopTimerLocked()

	pending := e.pending
	e.pending = nil
	if len(pending) == 0 {
		return speechBatch{}
	}

	e.metrics.Batch(len(pending))
	e.logger.WithField("batch_size", len(pending)).Debug("Flushing alarm batch")

	if len(pending) >= e.threshold {
		return e.speechLocked(e.emitLocked(KindAggregate, aggregateText(len(pending)), pending))
	}
	texts := make([]string, 0, len(pending))
	for _, ev := range pending {
		texts = append(texts, e.emitLocked(KindIndividual, individualText(ev), []FaultEvent{ev}))
	}
	return e.speechLocked(texts...)
}

func (e *Engine) emitLocked(kind Kind, text string, events []FaultEvent) string {
	n := Notification{
		ID:     uuid.NewString(),
		Kind:   kind,
		Text:   text,
		Events: events,
		At:     e.clock.Now(),
	}
	e.emitted++
	e.metrics.Notification(string(kind))
	e.logger.WithFields(logging.Fields{
		"notification_id": n.ID,
		"kind":            kind,
		"events":          len(events),
	}).Info(text)

	if e.onNotify != nil {
		e.onNotify(n)
	}
	return text
}

func (e *Engine) speechLocked(texts ...string) speechBatch {
	e.speechSeq++
	return speechBatch{seq: e.speechSeq, texts: texts}
}

// Speak vocalizes text, superseding anything already playing. It reports
// whether the speaker accepted the utterance; a muted engine or an
// unavailable speaker is not an error.
func (e *Engine) Speak(text string) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	batch := e.speechLocked(text)
	e.mu.Unlock()

	return e.say(batch)
}

// say hands a batch to the speaker in order. A batch overtaken by a newer
// one is dropped, since the newer one would cancel it anyway. It reports
// whether the last text was accepted.
func (e *Engine) say(batch speechBatch) bool {
	if len(batch.texts) == 0 {
		return false
	}
	e.speakMu.Lock()
	defer e.speakMu.Unlock()
	if batch.seq < e.lastSpoken {
		e.metrics.Speech("superseded")
		return false
	}
	e.lastSpoken = batch.seq

	ok := false
	for _, text := range batch.texts {
		ok = e.speakOne(text)
	}
	return ok
}

// speakOne must be called with speakMu held.
func (e *Engine) speakOne(text string) bool {
	e.mu.Lock()
	closed, enabled := e.closed, e.enabled
	e.mu.Unlock()

	if closed {
		return false
	}
	if !enabled {
		e.metrics.Speech("muted")
		return false
	}
	if !e.speaker.Available() {
		e.metrics.Speech("unavailable")
		return false
	}

	e.speaker.Cancel()
	if err := e.speaker.Speak(context.Background(), speech.NewUtterance(text)); err != nil {
		e.metrics.Speech("error")
		e.logger.WithError(err).Warn("Speech request failed")
		return false
	}
	e.metrics.Speech("spoken")
	return true
}

// TestSpeak speaks the fixed self-test phrase, bypassing suppression and
// batching.
func (e *Engine) TestSpeak() bool {
	return e.Speak(TestPhrase)
}

// ResetSuppression forgets every suppression entry and returns how many
// there were. The pending batch and its timer are untouched.
func (e *Engine) ResetSuppression() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0
	}
	cleared := len(e.suppression)
	e.suppression = make(map[string]time.Time)
	e.metrics.Suppression(0)
	e.logger.WithField("cleared", cleared).Info("Suppression state reset")
	return cleared
}

// Sweep drops expired suppression entries and returns how many went.
// Expired entries are otherwise only replaced when their key recurs.
func (e *Engine) Sweep() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0
	}
	now := e.clock.Now()
	removed := 0
	for key, expiresAt := range e.suppression {
		if !now.Before(expiresAt) {
			delete(e.suppression, key)
			removed++
		}
	}
	if removed > 0 {
		e.metrics.Suppression(len(e.suppression))
		e.logger.WithField("removed", removed).Debug("Swept expired suppression entries")
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Sweep()
		}
	}
}

// Close stops the engine. The pending batch is dropped, the debounce timer
// cancelled and the current utterance stopped; once Close returns no further
// flush or speech happens, and later calls are discarded. Close waits for a
// speaker call already in progress.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.stopTimerLocked()
	dropped := len(e.pending)
	e.pending = nil
	e.mu.Unlock()

	e.speakMu.Lock()
	e.speaker.Cancel()
	e.speakMu.Unlock()
	e.logger.WithField("dropped", dropped).Info("Alarm engine closed")
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Enabled:          e.enabled,
		SuppressionSize:  len(e.suppression),
		Pending:          len(e.pending),
		DebounceArmed:    e.timer != nil,
		SpeechAvailable:  e.speaker.Available(),
		NotificationsOut: e.emitted,
	}
}

func (e *Engine) stopTimerLocked() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	// invalidates a callback that already fired but hasn't taken the lock yet
	e.timerGen++
}
