// Package dispatch routes decoded realtime messages to the stores and the
// alarm engine.
package dispatch

import (
	"sync"
	"time"

	"frameworks/lookout/internal/alarm"
	"frameworks/lookout/internal/store"
	"frameworks/lookout/pkg/api/lookout"
	"frameworks/lookout/pkg/logging"
)

// Submitter accepts fault events. *alarm.Engine satisfies it.
type Submitter interface {
	Submit(alarm.FaultEvent) alarm.Outcome
}

type Dispatcher struct {
	channels *store.Channels
	alerts   *store.Alerts
	engine   Submitter
	logger   logging.Logger
	now      func() time.Time

	mu          sync.Mutex
	counts      map[string]int
	lastMessage time.Time
}

func New(channels *store.Channels, alerts *store.Alerts, engine Submitter, logger logging.Logger) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		alerts:   alerts,
		engine:   engine,
		logger:   logger,
		now:      time.Now,
		counts:   make(map[string]int),
	}
}

// Handle applies one message. Every message updates the stores; alert_new
// is also submitted to the engine as a fault event.
func (d *Dispatcher) Handle(msg lookout.Message) {
	now := d.now()

	switch m := msg.(type) {
	case lookout.ChannelStatus:
		d.channels.Update(m)
	case lookout.BatchUpdate:
		d.channels.Batch(m.Channels)
	case lookout.AlertNew:
		d.alerts.Add(store.AlertFromNew(m, now))
		outcome := d.engine.Submit(alarm.FaultEvent{
			ChannelID:   m.ChannelID,
			ChannelName: m.ChannelName,
			FaultType:   m.AlertType,
		})
		d.logger.WithFields(logging.Fields{
			"alert_id":   m.AlertID,
			"channel_id": m.ChannelID,
			"fault_type": m.AlertType,
			"outcome":    string(outcome),
		}).Debug("Fault event submitted")
	case lookout.AlertResolved:
		if err := d.alerts.Resolve(m.AlertID, now); err != nil {
			d.logger.WithField("alert_id", m.AlertID).Debug("Resolved alert not in local list")
		}
	default:
		return
	}

	d.mu.Lock()
	d.counts[msg.MessageType()]++
	d.lastMessage = now
	d.mu.Unlock()
}

// Counts returns how many messages of each type were handled.
func (d *Dispatcher) Counts() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int, len(d.counts))
	for k, v := range d.counts {
		out[k] = v
	}
	return out
}

// LastMessage is when the latest message was handled, zero if none.
func (d *Dispatcher) LastMessage() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastMessage
}
