package flowplugin

import (
	"context"
	"sync"

	"github.com/shaharia-lab/flowplugin/jsonrpc"
)

// Method is a named plugin entry point the launcher can call.
type Method interface {
	Name() string
	Call(ctx context.Context, params jsonrpc.Params) (interface{}, error)
}

type methodHandler struct {
	method Method
}

func (h methodHandler) Handle(ctx context.Context, params jsonrpc.Params) (interface{}, error) {
	return h.method.Call(ctx, params)
}

// ResultSet collects results while a method builds its response. It is safe
// for concurrent use.
type ResultSet struct {
	mu      sync.Mutex
	results []Result
}

// Add appends one result.
func (s *ResultSet) Add(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
}

// AddAll appends results in order.
func (s *ResultSet) AddAll(results ...Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, results...)
}

// Clear drops every collected result.
func (s *ResultSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = nil
}

// Len returns the number of collected results.
func (s *ResultSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

// Results returns a copy of the collected results, never nil.
func (s *ResultSet) Results() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Result, len(s.results))
	copy(out, s.results)
	return out
}

// Response wraps the collected results in a QueryResponse.
func (s *ResultSet) Response() QueryResponse {
	return QueryResponse{Result: s.Results()}
}

// ParseQuery decodes the query object a launcher passes as the first
// parameter of a query request.
func ParseQuery(params jsonrpc.Params) (Query, error) {
	var q Query
	if err := params.Decode(0, &q); err != nil {
		return Query{}, err
	}
	return q, nil
}
