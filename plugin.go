package flowplugin

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shaharia-lab/flowplugin/jsonrpc"
	"github.com/shaharia-lab/flowplugin/observability"
	"golang.org/x/time/rate"
)

// PluginConfig holds all configuration for a Plugin.
type PluginConfig struct {
	logger         observability.Logger
	reader         io.Reader
	writer         io.Writer
	connOptions    []jsonrpc.Option
	updateInterval time.Duration
}

// PluginOption is a function that modifies PluginConfig.
type PluginOption func(*PluginConfig)

// UseLogger sets a custom logger.
func UseLogger(logger observability.Logger) PluginOption {
	return func(c *PluginConfig) {
		c.logger = logger
	}
}

// UseStreams replaces stdin and stdout as the transport.
func UseStreams(r io.Reader, w io.Writer) PluginOption {
	return func(c *PluginConfig) {
		c.reader = r
		c.writer = w
	}
}

// UseConnOptions passes options through to the underlying connection.
func UseConnOptions(opts ...jsonrpc.Option) PluginOption {
	return func(c *PluginConfig) {
		c.connOptions = append(c.connOptions, opts...)
	}
}

// UseUpdateInterval spaces consecutive UpdateResults calls by at least d.
func UseUpdateInterval(d time.Duration) PluginOption {
	return func(c *PluginConfig) {
		c.updateInterval = d
	}
}

func defaultPluginConfig() *PluginConfig {
	return &PluginConfig{
		logger: observability.NewDefaultLogger(),
		reader: os.Stdin,
		writer: os.Stdout,
	}
}

// Plugin is a launcher plugin process: a set of methods served over one
// JSON-RPC connection to the launcher.
type Plugin struct {
	conn     *jsonrpc.Conn
	launcher *Launcher
	logger   observability.Logger
}

// New creates a Plugin. Methods must be added before Run.
func New(opts ...PluginOption) (*Plugin, error) {
	cfg := defaultPluginConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.logger == nil {
		cfg.logger = observability.NewNullLogger()
	}
	if cfg.reader == nil || cfg.writer == nil {
		return nil, fmt.Errorf("plugin needs both an input and an output stream")
	}
	if cfg.updateInterval < 0 {
		return nil, fmt.Errorf("update interval cannot be negative: %s", cfg.updateInterval)
	}

	connOpts := append([]jsonrpc.Option{jsonrpc.UseLogger(cfg.logger)}, cfg.connOptions...)
	conn := jsonrpc.NewConn(cfg.reader, cfg.writer, connOpts...)

	var limiter *rate.Limiter
	if cfg.updateInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.updateInterval), 1)
	}

	return &Plugin{
		conn:     conn,
		launcher: newLauncher(conn, limiter),
		logger:   cfg.logger,
	}, nil
}

// AddMethod registers m under m.Name().
func (p *Plugin) AddMethod(m Method) error {
	if m == nil {
		return fmt.Errorf("method cannot be nil")
	}
	if err := p.conn.Register(m.Name(), methodHandler{method: m}); err != nil {
		return fmt.Errorf("failed to add method: %w", err)
	}
	p.logger.Debugf("Added method %s", m.Name())
	return nil
}

// AddMethodWithSchema registers m behind a JSON schema check of its params
// array. Params that fail the schema never reach m.
func (p *Plugin) AddMethodWithSchema(m Method, schema string) error {
	if m == nil {
		return fmt.Errorf("method cannot be nil")
	}
	h, err := jsonrpc.WithSchema(schema, methodHandler{method: m})
	if err != nil {
		return fmt.Errorf("failed to add method %s: %w", m.Name(), err)
	}
	if err := p.conn.Register(m.Name(), h); err != nil {
		return fmt.Errorf("failed to add method: %w", err)
	}
	p.logger.Debugf("Added method %s with params schema", m.Name())
	return nil
}

// AddMethods registers each method, stopping at the first failure.
func (p *Plugin) AddMethods(methods ...Method) error {
	for _, m := range methods {
		if err := p.AddMethod(m); err != nil {
			return err
		}
	}
	return nil
}

// Handle registers a plain function under name.
func (p *Plugin) Handle(name string, fn func(ctx context.Context, params jsonrpc.Params) (interface{}, error)) error {
	if fn == nil {
		return fmt.Errorf("handler for %q cannot be nil", name)
	}
	if err := p.conn.RegisterFunc(name, fn); err != nil {
		return fmt.Errorf("failed to add method: %w", err)
	}
	return nil
}

// Methods lists the registered method names.
func (p *Plugin) Methods() []string {
	return p.conn.Router().Methods()
}

// Launcher returns the proxy for calling the launcher host.
func (p *Plugin) Launcher() *Launcher {
	return p.launcher
}

// Run serves the launcher until the input stream ends or ctx is cancelled.
func (p *Plugin) Run(ctx context.Context) error {
	p.logger.WithFields(map[string]interface{}{
		"session_id": p.conn.SessionID(),
		"methods":    p.Methods(),
	}).Info("Plugin started")

	err := p.conn.Run(ctx)
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("plugin connection failed: %w", err)
	}
	return err
}
