package lookout

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message type constants
const (
	TypeChannelStatus = "channel_status"
	TypeAlertNew      = "alert_new"
	TypeAlertResolved = "alert_resolved"
	TypeBatchUpdate   = "batch_update"
)

// Channel status values
const (
	StatusNormal  = "NORMAL"
	StatusWarning = "WARNING"
	StatusAlarm   = "ALARM"
	StatusOffline = "OFFLINE"
)

// Alert lifecycle values
const (
	AlertStatusActive       = "ACTIVE"
	AlertStatusResolved     = "RESOLVED"
	AlertStatusAcknowledged = "ACKNOWLEDGED"
)

// Fault types as they appear on the wire in alert_type.
const (
	FaultBlackScreen     = "BLACK_SCREEN"
	FaultFrozen          = "FROZEN"
	FaultSilent          = "SILENT"
	FaultClipping        = "CLIPPING"
	FaultCCError         = "CC_ERROR"
	FaultPCRJitter       = "PCR_JITTER"
	FaultBitrateAbnormal = "BITRATE_ABNORMAL"
	FaultOffline         = "OFFLINE"
	FaultMosaic          = "MOSAIC"
	FaultAudioStutter    = "AUDIO_STUTTER"
)

// ErrUnknownType is returned by Decode for a well-formed envelope whose type
// is not one of the known message kinds.
var ErrUnknownType = errors.New("unknown message type")

// Message is one decoded realtime message.
type Message interface {
	MessageType() string
}

// Envelope carries only the discriminator of a realtime message.
type Envelope struct {
	Type string `json:"type"`
}

// ChannelStatus is a full quality snapshot of one channel. It is both the
// channel_status message body and an element of batch_update.
type ChannelStatus struct {
	ChannelID       string  `json:"channel_id"`
	ChannelName     string  `json:"channel_name"`
	Status          string  `json:"status"`
	BitrateKbps     float64 `json:"bitrate_kbps"`
	IsBlack         bool    `json:"is_black"`
	IsFrozen        bool    `json:"is_frozen"`
	IsSilent        bool    `json:"is_silent"`
	IsClipping      bool    `json:"is_clipping"`
	IsMosaic        bool    `json:"is_mosaic"`
	MosaicRatio     float64 `json:"mosaic_ratio"`
	IsStuttering    bool    `json:"is_stuttering"`
	StutterCount    int     `json:"stutter_count"`
	CCErrorsPerSec  float64 `json:"cc_errors_per_sec"`
	PCRJitterMs     float64 `json:"pcr_jitter_ms"`
	AudioRMS        float64 `json:"audio_rms"`
	VideoBrightness float64 `json:"video_brightness"`
	ThumbnailPath   string  `json:"thumbnail_path"`
	UpdatedAt       float64 `json:"updated_at,omitempty"`
	GroupName       string  `json:"group_name,omitempty"`
	SortOrder       int     `json:"sort_order"`
	Ts              float64 `json:"ts,omitempty"`
}

func (ChannelStatus) MessageType() string { return TypeChannelStatus }

// AlertNew announces a newly raised fault.
type AlertNew struct {
	AlertID     int64   `json:"alert_id"`
	ChannelID   string  `json:"channel_id"`
	ChannelName string  `json:"channel_name"`
	AlertType   string  `json:"alert_type"`
	Severity    string  `json:"severity"`
	Status      string  `json:"status"`
	Ts          float64 `json:"ts"`
}

func (AlertNew) MessageType() string { return TypeAlertNew }

// AlertResolved announces that a fault cleared.
type AlertResolved struct {
	AlertID   int64  `json:"alert_id"`
	ChannelID string `json:"channel_id"`
}

func (AlertResolved) MessageType() string { return TypeAlertResolved }

// BatchUpdate carries many channel snapshots at once.
type BatchUpdate struct {
	Channels []ChannelStatus `json:"channels"`
	Ts       float64         `json:"ts"`
}

func (BatchUpdate) MessageType() string { return TypeBatchUpdate }

// Alert is the REST representation of an alert record.
type Alert struct {
	ID            int64   `json:"id"`
	ChannelID     string  `json:"channel_id"`
	ChannelName   *string `json:"channel_name"`
	AlertType     string  `json:"alert_type"`
	Severity      string  `json:"severity"`
	Status        string  `json:"status"`
	Message       *string `json:"message"`
	StartedAt     string  `json:"started_at"`
	ResolvedAt    *string `json:"resolved_at"`
	AckAt         *string `json:"ack_at"`
	ThumbnailPath *string `json:"thumbnail_path"`
}

// OverviewStats counts channels by status.
type OverviewStats struct {
	Normal  int `json:"NORMAL"`
	Warning int `json:"WARNING"`
	Alarm   int `json:"ALARM"`
	Offline int `json:"OFFLINE"`
	Total   int `json:"total"`
}

// AckResponse is returned by the alert acknowledge endpoint.
type AckResponse struct {
	AlertID int64  `json:"alert_id"`
	Status  string `json:"status"`
}

// Decode parses one realtime payload into its typed variant.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var msg Message
	var err error
	switch env.Type {
	case TypeChannelStatus:
		var m ChannelStatus
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeAlertNew:
		var m AlertNew
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeAlertResolved:
		var m AlertResolved
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeBatchUpdate:
		var m BatchUpdate
		err = json.Unmarshal(data, &m)
		msg = m
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return msg, nil
}
