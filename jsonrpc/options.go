package jsonrpc

import (
	"time"

	"github.com/shaharia-lab/flowplugin/observability"
)

// Config holds all configuration for a Conn.
type Config struct {
	logger                observability.Logger
	metrics               *observability.Metrics
	maxFrameBytes         int
	maxConcurrentHandlers int64
	requestTimeout        time.Duration
	handlerTimeout        time.Duration
	replyOnCancel         bool
	router                *Router
}

// Option is a function that modifies Config.
type Option func(*Config)

// UseLogger sets a custom logger.
func UseLogger(logger observability.Logger) Option {
	return func(c *Config) {
		c.logger = logger
	}
}

// UseMetrics records connection activity in m.
func UseMetrics(m *observability.Metrics) Option {
	return func(c *Config) {
		c.metrics = m
	}
}

// UseMaxFrameBytes sets the longest accepted inbound line.
func UseMaxFrameBytes(n int) Option {
	return func(c *Config) {
		c.maxFrameBytes = n
	}
}

// UseMaxConcurrentHandlers bounds how many inbound handlers run at once.
// Zero means unbounded.
func UseMaxConcurrentHandlers(n int64) Option {
	return func(c *Config) {
		c.maxConcurrentHandlers = n
	}
}

// UseRequestTimeout bounds how long an outbound Request waits for its reply.
// Zero, the default, waits until the reply arrives, the caller's context
// ends or the connection closes.
func UseRequestTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.requestTimeout = d
	}
}

// UseHandlerTimeout puts a deadline on every inbound handler's context.
func UseHandlerTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.handlerTimeout = d
	}
}

// UseReplyOnCancel makes the connection answer a cancelled inbound request
// with a -32800 error instead of staying silent.
func UseReplyOnCancel(enabled bool) Option {
	return func(c *Config) {
		c.replyOnCancel = enabled
	}
}

// UseRouter shares a pre-populated Router with the connection.
func UseRouter(r *Router) Option {
	return func(c *Config) {
		c.router = r
	}
}

func defaultConfig() *Config {
	return &Config{
		logger:        observability.NewDefaultLogger(),
		maxFrameBytes: DefaultMaxFrameBytes,
	}
}
