// Package events publishes bake lifecycle events.
package events

import (
	"context"
	"time"
)

// Type names a lifecycle event. The published subject is "<subject>.<type>".
type Type string

const (
	BakeStarted   Type = "started"
	BakeCompleted Type = "completed"
	BakeFailed    Type = "failed"
)

// Event is the payload published for each lifecycle step.
type Event struct {
	Type          Type          `json:"type"`
	BakeID        string        `json:"bake_id"`
	Time          time.Time     `json:"time"`
	OutDir        string        `json:"out_dir"`
	Success       bool          `json:"success"`
	Entries       int           `json:"entries,omitempty"`
	FailedEntries int           `json:"failed_entries,omitempty"`
	Duration      time.Duration `json:"duration,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// Publisher delivers events somewhere.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NoopPublisher drops every event (default when events are disabled).
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close() error                         { return nil }
