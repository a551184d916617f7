package lookout

import "time"

// Control surface shapes shared by the lookout service and lookoutctl.

type SpeechStatus struct {
	Enabled   bool   `json:"enabled"`
	Available bool   `json:"available"`
	Backend   string `json:"backend"`
}

type SuppressionStatus struct {
	Entries       int  `json:"entries"`
	Pending       int  `json:"pending"`
	DebounceArmed bool `json:"debounce_armed"`
	Emitted       int  `json:"notifications_emitted"`
}

type RealtimeStatus struct {
	URL         string         `json:"url"`
	State       string         `json:"state"`
	Connected   bool           `json:"connected"`
	NextDelay   string         `json:"next_delay"`
	LastMessage *time.Time     `json:"last_message,omitempty"`
	Messages    map[string]int `json:"messages"`
}

type NotificationView struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	Text     string    `json:"text"`
	Channels []string  `json:"channels"`
	At       time.Time `json:"at"`
}

type StatusResponse struct {
	Service       string             `json:"service"`
	Version       string             `json:"version"`
	Uptime        string             `json:"uptime"`
	Speech        SpeechStatus       `json:"speech"`
	Suppression   SuppressionStatus  `json:"suppression"`
	Realtime      RealtimeStatus     `json:"realtime"`
	Channels      int                `json:"channels"`
	ActiveAlerts  int                `json:"active_alerts"`
	Notifications []NotificationView `json:"notifications"`
}

type SpeechToggleRequest struct {
	Enabled *bool `json:"enabled"`
}

type SpeechToggleResponse struct {
	Enabled bool `json:"enabled"`
}

type SpeechTestResponse struct {
	Spoken bool   `json:"spoken"`
	Text   string `json:"text"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
