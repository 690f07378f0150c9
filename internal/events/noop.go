package events

import "context"

// NoopPublisher drops every event. The runner falls back to it when no
// event bus is configured, so lifecycle publishing never needs a nil check.
type NoopPublisher struct{}

var _ Publisher = NoopPublisher{}

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }

func (NoopPublisher) Close() error { return nil }
