package pipeline

import (
	"context"

	"floodwatch/pkg/models"
)

// Consumer yields batches of raw field records from the inbound feed.
type Consumer interface {
	Read(ctx context.Context) ([]map[string]string, error)
	Close() error
}

// AlertWriter writes alert outputs.
type AlertWriter interface {
	WriteAlerts(alerts []*models.Alert) error
	Close() error
}
