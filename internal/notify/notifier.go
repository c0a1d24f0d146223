// Package notify defines the notification interface and implementations
// for operator alerts.
package notify

import (
	"context"
	"time"
)

// Severity classifies an operator alert.
type Severity string

// Severity constants.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertPayload contains the data needed to send an operator notification.
type AlertPayload struct {
	Severity  Severity
	Partition string
	Title     string
	Detail    string
	MLS       string
	JobRunID  string
	Time      time.Time
}

// Notifier defines the interface for sending operator notifications.
type Notifier interface {
	SendAlert(ctx context.Context, alert *AlertPayload) error
	SendBatchAlert(ctx context.Context, alerts []AlertPayload, subject string) error
}
