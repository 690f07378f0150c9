package events

import (
	"context"

	"github.com/alfredjeanlab/harvest/internal/model"
)

// Run lifecycle topics.
const (
	TopicRunStarted   = "harvest.run.started"
	TopicRunStopped   = "harvest.run.stopped"
	TopicRunCompleted = "harvest.run.completed"
	TopicRunFailed    = "harvest.run.failed"

	// TopicAll matches every harvest topic.
	TopicAll = "harvest.>"
)

// Event types

type RunStarted struct {
	Run *model.Run `json:"run"`
}

// RunStopped is emitted once the stop condition fires and the stream closes.
type RunStopped struct {
	RunID          string `json:"run_id"`
	Reason         string `json:"reason"`
	EventsAdmitted int64  `json:"events_admitted"`
}

type RunCompleted struct {
	Run *model.Run `json:"run"`
}

type RunFailed struct {
	Run *model.Run `json:"run"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
