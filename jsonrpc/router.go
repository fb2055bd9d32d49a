package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Handler executes one inbound method. The context is cancelled when the
// peer sends $/cancelRequest for the request, when the handler timeout
// expires, or when the connection shuts down.
type Handler interface {
	Handle(ctx context.Context, params Params) (interface{}, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, params Params) (interface{}, error)

// Handle calls f(ctx, params).
func (f HandlerFunc) Handle(ctx context.Context, params Params) (interface{}, error) {
	return f(ctx, params)
}

// Router maps method names to handlers. Registration is closed once the
// owning connection starts running.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	frozen   bool
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]Handler)}
}

// Register associates a method name with a handler.
func (r *Router) Register(name string, h Handler) error {
	if name == "" {
		return fmt.Errorf("method name cannot be empty")
	}
	if h == nil {
		return fmt.Errorf("handler for %q cannot be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: %s", ErrRegistrationClosed, name)
	}
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateMethod, name)
	}
	r.handlers[name] = h
	return nil
}

// Lookup returns the handler registered for name.
func (r *Router) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Methods returns the registered method names in sorted order.
func (r *Router) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Router) freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// WithSchema wraps h so that the params array is validated against the given
// JSON schema before h runs. Violations are answered with Invalid params and
// the list of validation messages as data.
func WithSchema(schema string, h Handler) (Handler, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("invalid params schema: %w", err)
	}
	if h == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	return HandlerFunc(func(ctx context.Context, params Params) (interface{}, error) {
		doc, err := json.Marshal(params)
		if err != nil {
			return nil, NewInvalidParamsError(err.Error())
		}

		result, err := compiled.Validate(gojsonschema.NewBytesLoader(doc))
		if err != nil {
			return nil, NewInvalidParamsError(err.Error())
		}
		if !result.Valid() {
			msgs := make([]string, 0, len(result.Errors()))
			for _, e := range result.Errors() {
				msgs = append(msgs, e.String())
			}
			return nil, NewInvalidParamsError(strings.Join(msgs, "; "))
		}

		return h.Handle(ctx, params)
	}), nil
}
