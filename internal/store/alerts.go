package store

import (
	"errors"
	"math"
	"sync"
	"time"

	"frameworks/lookout/pkg/api/lookout"
)

// MaxAlerts bounds the in-memory alert list; the oldest entries fall off.
const MaxAlerts = 500

var ErrAlertNotFound = errors.New("alert not found")

// Alerts is the recent alert list, newest first.
type Alerts struct {
	mu     sync.RWMutex
	alerts []lookout.Alert
}

func NewAlerts() *Alerts {
	return &Alerts{}
}

// Add prepends alert unless one with the same id is already held. It
// reports whether the alert was added.
func (a *Alerts) Add(alert lookout.Alert) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.indexLocked(alert.ID) >= 0 {
		return false
	}
	a.alerts = append(a.alerts, lookout.Alert{})
	copy(a.alerts[1:], a.alerts)
	a.alerts[0] = alert
	if len(a.alerts) > MaxAlerts {
		a.alerts = a.alerts[:MaxAlerts]
	}
	return true
}

// Replace swaps the list for a REST snapshot, which is already newest
// first.
func (a *Alerts) Replace(all []lookout.Alert) {
	if len(all) > MaxAlerts {
		all = all[:MaxAlerts]
	}
	next := make([]lookout.Alert, len(all))
	copy(next, all)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = next
}

// Resolve marks an alert RESOLVED.
func (a *Alerts) Resolve(id int64, at time.Time) error {
	return a.setStatus(id, lookout.AlertStatusResolved, at)
}

// Acknowledge marks an alert ACKNOWLEDGED.
func (a *Alerts) Acknowledge(id int64, at time.Time) error {
	return a.setStatus(id, lookout.AlertStatusAcknowledged, at)
}

func (a *Alerts) setStatus(id int64, status string, at time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	i := a.indexLocked(id)
	if i < 0 {
		return ErrAlertNotFound
	}
	ts := formatTime(at)
	a.alerts[i].Status = status
	switch status {
	case lookout.AlertStatusResolved:
		a.alerts[i].ResolvedAt = &ts
	case lookout.AlertStatusAcknowledged:
		a.alerts[i].AckAt = &ts
	}
	return nil
}

func (a *Alerts) Get(id int64) (lookout.Alert, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	i := a.indexLocked(id)
	if i < 0 {
		return lookout.Alert{}, false
	}
	return a.alerts[i], true
}

// List returns alerts newest first, optionally filtered by status.
func (a *Alerts) List(status string) []lookout.Alert {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]lookout.Alert, 0, len(a.alerts))
	for _, al := range a.alerts {
		if status == "" || al.Status == status {
			out = append(out, al)
		}
	}
	return out
}

// Active returns the alerts still ACTIVE.
func (a *Alerts) Active() []lookout.Alert {
	return a.List(lookout.AlertStatusActive)
}

func (a *Alerts) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.alerts)
}

func (a *Alerts) indexLocked(id int64) int {
	for i := range a.alerts {
		if a.alerts[i].ID == id {
			return i
		}
	}
	return -1
}

// AlertFromNew converts a realtime alert_new message into an alert record.
// The message timestamp is in Unix seconds; a zero timestamp uses now.
func AlertFromNew(m lookout.AlertNew, now time.Time) lookout.Alert {
	started := now
	if m.Ts > 0 {
		sec, frac := math.Modf(m.Ts)
		started = time.Unix(int64(sec), int64(frac*1e9))
	}
	status := m.Status
	if status == "" {
		status = lookout.AlertStatusActive
	}
	alert := lookout.Alert{
		ID:        m.AlertID,
		ChannelID: m.ChannelID,
		AlertType: m.AlertType,
		Severity:  m.Severity,
		Status:    status,
		StartedAt: formatTime(started),
	}
	if m.ChannelName != "" {
		name := m.ChannelName
		alert.ChannelName = &name
	}
	return alert
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
