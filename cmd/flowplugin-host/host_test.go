package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shaharia-lab/flowplugin"
	"github.com/shaharia-lab/flowplugin/jsonrpc"
	"github.com/shaharia-lab/flowplugin/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchText(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		text      string
		wantMatch bool
		wantData  []int
	}{
		{name: "prefix", query: "some", text: "SomeFile1.mp3", wantMatch: true, wantData: []int{0, 1, 2, 3}},
		{name: "scattered", query: "sf", text: "SomeFile1.mp3", wantMatch: true, wantData: []int{0, 4}},
		{name: "no match", query: "xyz", text: "SomeFile1.mp3", wantMatch: false, wantData: []int{}},
		{name: "empty query", query: "", text: "anything", wantMatch: true, wantData: []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := matchText(tt.query, tt.text)
			assert.Equal(t, tt.wantMatch, m.Success())
			assert.Equal(t, tt.wantData, m.MatchData)
		})
	}
}

// syncBuffer is a bytes.Buffer safe for the concurrent writes of handlers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// connect returns a host wired to a fake plugin connection.
func connect(t *testing.T, keyword string, plugin func(c *jsonrpc.Conn)) (*host, *syncBuffer) {
	t.Helper()

	hostToPlugin, hostOut := io.Pipe()
	pluginToHost, pluginOut := io.Pipe()

	logger := observability.NewNullLogger()
	hostConn := jsonrpc.NewConn(pluginToHost, hostOut, jsonrpc.UseLogger(logger))
	pluginConn := jsonrpc.NewConn(hostToPlugin, pluginOut, jsonrpc.UseLogger(logger))

	out := &syncBuffer{}
	h, err := newHost(hostConn, keyword, out, logger)
	require.NoError(t, err)
	plugin(pluginConn)

	ctx, cancel := context.WithCancel(context.Background())
	go hostConn.Run(ctx)
	go pluginConn.Run(ctx)

	t.Cleanup(func() {
		cancel()
		hostOut.Close()
		pluginOut.Close()
	})
	return h, out
}

func TestHost_ServesFuzzySearchAndUpdates(t *testing.T) {
	var pluginConn *jsonrpc.Conn
	_, out := connect(t, "", func(c *jsonrpc.Conn) { pluginConn = c })

	ctx := context.Background()

	var m flowplugin.MatchResult
	require.NoError(t, pluginConn.Call(ctx, flowplugin.MethodFuzzySearch, &m, "some", "SomeFile1.mp3"))
	assert.True(t, m.Success())
	assert.Equal(t, []int{0, 1, 2, 3}, m.MatchData)

	resp := flowplugin.QueryResponse{Result: []flowplugin.Result{{Title: "SomeFile1.mp3", Subtitle: "Download at 31%", Score: 5}}}
	require.NoError(t, pluginConn.Call(ctx, flowplugin.MethodUpdateResults, nil, "dl some", resp))
	assert.Contains(t, out.String(), `results for "dl some"`)
	assert.Contains(t, out.String(), "1. [5] SomeFile1.mp3 | Download at 31%")

	require.NoError(t, pluginConn.Call(ctx, flowplugin.MethodShowMsg, nil, "Saved", "1 item", ""))
	require.NoError(t, pluginConn.Call(ctx, flowplugin.MethodChangeQuery, nil, "dl other", false))
	assert.Contains(t, out.String(), "message: Saved 1 item")
	assert.Contains(t, out.String(), `query changed to "dl other"`)

	err := pluginConn.Call(ctx, flowplugin.MethodFuzzySearch, nil, "only one param")
	var rpcErr *jsonrpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, jsonrpc.CodeInvalidParams, rpcErr.Code)
}

func TestHost_NewQueryCancelsPrevious(t *testing.T) {
	var (
		mu        sync.Mutex
		cancelled []string
		seen      = make(chan string, 4)
	)

	h, out := connect(t, "dl", func(c *jsonrpc.Conn) {
		require.NoError(t, c.RegisterFunc("query", func(ctx context.Context, params jsonrpc.Params) (interface{}, error) {
			q, err := flowplugin.ParseQuery(params)
			if err != nil {
				return nil, err
			}
			seen <- q.Search

			if q.Search == "slow" {
				<-ctx.Done()
				mu.Lock()
				cancelled = append(cancelled, q.Search)
				mu.Unlock()
				return nil, ctx.Err()
			}
			return flowplugin.QueryResponse{Result: []flowplugin.Result{{
				Title:  "fast result",
				Action: flowplugin.NewAction("store", "fast result"),
			}}}, nil
		}))
		require.NoError(t, c.RegisterFunc("store", func(ctx context.Context, params jsonrpc.Params) (interface{}, error) {
			return flowplugin.ExecuteResponse{Hide: true}, nil
		}))
	})

	inR, inW := io.Pipe()
	done := make(chan error, 1)
	go func() { done <- h.run(context.Background(), inR) }()

	_, err := io.WriteString(inW, "dl slow\n")
	require.NoError(t, err)
	assert.Equal(t, "slow", <-seen)

	_, err = io.WriteString(inW, "dl fast\n")
	require.NoError(t, err)
	assert.Equal(t, "fast", <-seen)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "fast result")
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(cancelled) == 1 && cancelled[0] == "slow"
	}, 2*time.Second, 10*time.Millisecond)

	_, err = io.WriteString(inW, ":run 1\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "store done (hide=true)")
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, inW.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("host did not stop at end of input")
	}
}

func TestHost_CommandErrors(t *testing.T) {
	h, _ := connect(t, "", func(c *jsonrpc.Conn) {})
	ctx := context.Background()

	assert.Error(t, h.command(ctx, ":run"))
	assert.Error(t, h.command(ctx, ":run x"))
	assert.Error(t, h.command(ctx, ":run 1"))
	assert.Error(t, h.command(ctx, ":bogus"))
}
