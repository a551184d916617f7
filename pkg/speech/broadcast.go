package speech

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"frameworks/lookout/pkg/clients"
	"frameworks/lookout/pkg/logging"
	"frameworks/lookout/pkg/redis"
)

// Cue actions
const (
	ActionSpeak  = "speak"
	ActionCancel = "cancel"
)

// Cue is the pub/sub message consumed by remote speakers (browser kiosks,
// lookoutctl speaker).
type Cue struct {
	ID       string    `json:"id"`
	Action   string    `json:"action"`
	Text     string    `json:"text,omitempty"`
	Locale   string    `json:"locale,omitempty"`
	Rate     float64   `json:"rate,omitempty"`
	Volume   float64   `json:"volume,omitempty"`
	IssuedAt time.Time `json:"issued_at"`
}

// Utterance returns the utterance carried by a speak cue.
func (c Cue) Utterance() Utterance {
	return Utterance{Text: c.Text, Locale: c.Locale, Rate: c.Rate, Volume: c.Volume}
}

const publishTimeout = 2 * time.Second

// Broadcaster publishes utterances on a Redis channel. Remote speakers apply
// the same supersede rule, so a cancel cue always precedes each speak cue.
// Publishing runs through a circuit breaker; while it is open the
// broadcaster reports itself unavailable.
type Broadcaster struct {
	pubsub  *redis.TypedPubSub[Cue]
	channel string
	breaker *clients.CircuitBreaker
	logger  logging.Logger
}

func NewBroadcaster(pubsub *redis.TypedPubSub[Cue], channel string, breaker *clients.CircuitBreaker, logger logging.Logger) *Broadcaster {
	if breaker == nil {
		breaker = clients.NewCircuitBreaker(clients.DefaultCircuitBreakerConfig("speech-broadcast"))
	}
	return &Broadcaster{pubsub: pubsub, channel: channel, breaker: breaker, logger: logger}
}

func (b *Broadcaster) Available() bool {
	return !b.breaker.IsOpen()
}

func (b *Broadcaster) Speak(ctx context.Context, u Utterance) error {
	if !b.Available() {
		return ErrUnavailable
	}
	cue := Cue{
		ID:       uuid.NewString(),
		Action:   ActionSpeak,
		Text:     u.Text,
		Locale:   u.Locale,
		Rate:     u.Rate,
		Volume:   u.Volume,
		IssuedAt: time.Now().UTC(),
	}
	if err := b.publish(ctx, cue); err != nil {
		return fmt.Errorf("broadcast utterance: %w", err)
	}
	return nil
}

func (b *Broadcaster) Cancel() {
	if !b.Available() {
		return
	}
	cue := Cue{ID: uuid.NewString(), Action: ActionCancel, IssuedAt: time.Now().UTC()}
	if err := b.publish(context.Background(), cue); err != nil && b.logger != nil {
		b.logger.WithError(err).Warn("Failed to broadcast speech cancel")
	}
}

func (b *Broadcaster) publish(ctx context.Context, cue Cue) error {
	return b.breaker.Call(func() error {
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()
		_, err := b.pubsub.Publish(pubCtx, b.channel, cue)
		return err
	})
}

// Relay subscribes to channel and plays every cue on target until ctx is
// done. ready, if non-nil, is closed once the subscription is live.
func Relay(ctx context.Context, pubsub *redis.TypedPubSub[Cue], channel string, ready chan<- struct{}, target Speaker, logger logging.Logger) error {
	return pubsub.Subscribe(ctx, channel, ready, func(cue Cue) {
		switch cue.Action {
		case ActionCancel:
			target.Cancel()
		case ActionSpeak:
			if !target.Available() {
				return
			}
			if err := target.Speak(ctx, cue.Utterance()); err != nil && logger != nil {
				logger.WithError(err).WithField("cue_id", cue.ID).Warn("Failed to play relayed cue")
			}
		default:
			if logger != nil {
				logger.WithField("action", cue.Action).Debug("Ignoring unknown speech cue")
			}
		}
	})
}
