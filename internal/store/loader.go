package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"frameworks/lookout/internal/metrics"
	"frameworks/lookout/pkg/api/lookout"
	"frameworks/lookout/pkg/logging"
)

// Source is the REST side of the monitor API. *monitor.Client satisfies it.
type Source interface {
	ListChannels(ctx context.Context) ([]lookout.ChannelStatus, error)
	ListAlerts(ctx context.Context, status string, limit int) ([]lookout.Alert, error)
	AckAlert(ctx context.Context, alertID int64) (lookout.AckResponse, error)
}

// Loader fills the stores from REST snapshots and forwards acknowledgements.
type Loader struct {
	source   Source
	channels *Channels
	alerts   *Alerts
	logger   logging.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	preloads singleflight.Group
}

func NewLoader(source Source, channels *Channels, alerts *Alerts, logger logging.Logger, m *metrics.Metrics) *Loader {
	return &Loader{
		source:   source,
		channels: channels,
		alerts:   alerts,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// Preload replaces both stores with fresh snapshots. A failure on one
// resource leaves that store untouched and does not stop the other.
// Overlapping calls share a single fetch.
func (l *Loader) Preload(ctx context.Context) error {
	_, err, _ := l.preloads.Do("preload", func() (any, error) {
		return nil, l.preload(ctx)
	})
	return err
}

func (l *Loader) preload(ctx context.Context) error {
	var errs []error

	channels, err := l.source.ListChannels(ctx)
	if err != nil {
		l.metrics.Preload("channels", "error")
		errs = append(errs, fmt.Errorf("preload channels: %w", err))
	} else {
		l.channels.Replace(channels)
		l.metrics.Preload("channels", "ok")
	}

	alerts, err := l.source.ListAlerts(ctx, "", 0)
	if err != nil {
		l.metrics.Preload("alerts", "error")
		errs = append(errs, fmt.Errorf("preload alerts: %w", err))
	} else {
		l.alerts.Replace(alerts)
		l.metrics.Preload("alerts", "ok")
	}

	joined := errors.Join(errs...)
	if joined != nil {
		l.logger.WithError(joined).Warn("Snapshot preload incomplete")
		return joined
	}
	l.logger.WithFields(logging.Fields{
		"channels": len(channels),
		"alerts":   len(alerts),
	}).Info("Snapshot preloaded")
	return nil
}

// Acknowledge acks the alert upstream, then mirrors it locally. An alert
// unknown to the local list is not an error once the server accepted it.
func (l *Loader) Acknowledge(ctx context.Context, alertID int64) (lookout.AckResponse, error) {
	resp, err := l.source.AckAlert(ctx, alertID)
	if err != nil {
		return lookout.AckResponse{}, fmt.Errorf("ack alert %d: %w", alertID, err)
	}
	if err := l.alerts.Acknowledge(alertID, l.now()); err != nil && !errors.Is(err, ErrAlertNotFound) {
		return resp, err
	}
	return resp, nil
}
