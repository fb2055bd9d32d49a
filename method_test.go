package flowplugin

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/shaharia-lab/flowplugin/jsonrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultSet(t *testing.T) {
	var set ResultSet
	assert.Equal(t, []Result{}, set.Results())

	set.Add(Result{Title: "a"})
	set.AddAll(Result{Title: "b"}, Result{Title: "c"})
	assert.Equal(t, 3, set.Len())

	results := set.Results()
	assert.Equal(t, "a", results[0].Title)
	assert.Equal(t, "c", results[2].Title)

	// Results returns a copy.
	results[0].Title = "changed"
	assert.Equal(t, "a", set.Results()[0].Title)

	set.Clear()
	assert.Equal(t, 0, set.Len())
}

func TestResultSet_Concurrent(t *testing.T) {
	var (
		set ResultSet
		wg  sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			set.Add(Result{Title: "x"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, set.Len())
}

func TestParseQuery(t *testing.T) {
	params := jsonrpc.Params{json.RawMessage(`{"Search":"fire","RawQuery":"dl fire"}`)}

	q, err := ParseQuery(params)
	require.NoError(t, err)
	assert.Equal(t, "fire", q.Search)
	assert.Equal(t, "dl fire", q.RawQuery)

	_, err = ParseQuery(jsonrpc.Params{})
	assert.ErrorIs(t, err, jsonrpc.ErrInvalidParams)

	_, err = ParseQuery(jsonrpc.Params{json.RawMessage(`"just a string"`)})
	assert.ErrorIs(t, err, jsonrpc.ErrInvalidParams)
}
