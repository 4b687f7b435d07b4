package connector

import "github.com/rs/zerolog"

type Option func(*Connector)

// WithLogger replaces the global logger. The connector id is added to it.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Connector) { c.log = l }
}

// WithID overrides the generated connector id.
func WithID(id string) Option {
	return func(c *Connector) { c.id = id }
}

// WithDrainLimit caps the messages dispatched per readability notification.
// Zero or negative drains everything that is queued.
func WithDrainLimit(n int) Option {
	return func(c *Connector) { c.drainLimit = n }
}

// WithRejectFatal makes a receiver returning false for an inbound message
// a fatal read error.
func WithRejectFatal(fatal bool) Option {
	return func(c *Connector) { c.rejectFatal = fatal }
}
