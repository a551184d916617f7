package store

import (
	"sort"
	"sync"
	"time"

	"frameworks/lookout/pkg/api/lookout"
)

// Channels holds the latest quality snapshot of every known channel.
type Channels struct {
	mu         sync.RWMutex
	channels   map[string]lookout.ChannelStatus
	lastUpdate time.Time
	now        func() time.Time
}

func NewChannels() *Channels {
	return &Channels{
		channels: make(map[string]lookout.ChannelStatus),
		now:      time.Now,
	}
}

// Update merges one snapshot into the store.
func (c *Channels) Update(update lookout.ChannelStatus) {
	if update.ChannelID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mergeLocked(update)
	c.lastUpdate = c.now()
}

// Batch merges many snapshots under one lock.
func (c *Channels) Batch(updates []lookout.ChannelStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range updates {
		if u.ChannelID == "" {
			continue
		}
		c.mergeLocked(u)
	}
	c.lastUpdate = c.now()
}

// Replace swaps the whole set, as after a REST preload.
func (c *Channels) Replace(all []lookout.ChannelStatus) {
	next := make(map[string]lookout.ChannelStatus, len(all))
	for _, ch := range all {
		if ch.ChannelID == "" {
			continue
		}
		next[ch.ChannelID] = ch
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels = next
	c.lastUpdate = c.now()
}

// mergeLocked keeps the descriptive fields of an existing entry when the
// update leaves them empty; realtime snapshots don't always carry them.
func (c *Channels) mergeLocked(update lookout.ChannelStatus) {
	existing, ok := c.channels[update.ChannelID]
	if ok {
		if update.ChannelName == "" {
			update.ChannelName = existing.ChannelName
		}
		if update.GroupName == "" {
			update.GroupName = existing.GroupName
		}
		if update.SortOrder == 0 {
			update.SortOrder = existing.SortOrder
		}
		if update.ThumbnailPath == "" {
			update.ThumbnailPath = existing.ThumbnailPath
		}
	}
	c.channels[update.ChannelID] = update
}

func (c *Channels) Get(channelID string) (lookout.ChannelStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.channels[channelID]
	return ch, ok
}

// List returns every channel ordered by sort order, then id.
func (c *Channels) List() []lookout.ChannelStatus {
	c.mu.RLock()
	out := make([]lookout.ChannelStatus, 0, len(c.channels))
	for _, ch := range c.channels {
		out = append(out, ch)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ChannelID < out[j].ChannelID
	})
	return out
}

// Overview counts channels by status. Statuses outside the known four only
// count towards the total.
func (c *Channels) Overview() lookout.OverviewStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var s lookout.OverviewStats
	for _, ch := range c.channels {
		switch ch.Status {
		case lookout.StatusNormal:
			s.Normal++
		case lookout.StatusWarning:
			s.Warning++
		case lookout.StatusAlarm:
			s.Alarm++
		case lookout.StatusOffline:
			s.Offline++
		}
		s.Total++
	}
	return s
}

func (c *Channels) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.channels)
}

// LastUpdate is the time of the most recent write, zero if none.
func (c *Channels) LastUpdate() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdate
}
