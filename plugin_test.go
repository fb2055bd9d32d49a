package flowplugin

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/shaharia-lab/flowplugin/jsonrpc"
	"github.com/shaharia-lab/flowplugin/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHost plays the launcher side of a plugin's connection.
type fakeHost struct {
	t     *testing.T
	in    *io.PipeWriter
	lines chan string
}

func startPlugin(t *testing.T, setup func(p *Plugin), opts ...PluginOption) *fakeHost {
	t.Helper()

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	opts = append([]PluginOption{
		UseLogger(observability.NewNullLogger()),
		UseStreams(inR, outW),
	}, opts...)
	p, err := New(opts...)
	require.NoError(t, err)
	setup(p)

	h := &fakeHost{t: t, in: inW, lines: make(chan string, 16)}
	go func() {
		r := bufio.NewReader(outR)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				close(h.lines)
				return
			}
			h.lines <- line
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()

	t.Cleanup(func() {
		cancel()
		inW.Close()
		outR.Close()
		<-done
	})
	return h
}

func (h *fakeHost) send(v interface{}) {
	h.t.Helper()
	data, err := json.Marshal(v)
	require.NoError(h.t, err)
	_, err = h.in.Write(append(data, '\r', '\n'))
	require.NoError(h.t, err)
}

func (h *fakeHost) next() map[string]interface{} {
	h.t.Helper()
	select {
	case line, ok := <-h.lines:
		require.True(h.t, ok, "plugin output closed")
		var m map[string]interface{}
		require.NoError(h.t, json.Unmarshal([]byte(line), &m))
		return m
	case <-time.After(2 * time.Second):
		h.t.Fatal("timed out waiting for plugin output")
		return nil
	}
}

type greetMethod struct{}

func (greetMethod) Name() string { return "greet" }

func (greetMethod) Call(ctx context.Context, params jsonrpc.Params) (interface{}, error) {
	var name string
	if err := params.Decode(0, &name); err != nil {
		return nil, err
	}
	return "hello " + name, nil
}

func TestNew_Validation(t *testing.T) {
	_, err := New(UseStreams(nil, io.Discard))
	assert.Error(t, err)

	_, err = New(UseUpdateInterval(-time.Second))
	assert.Error(t, err)
}

func TestPlugin_AddMethod(t *testing.T) {
	p, err := New(UseLogger(observability.NewNullLogger()))
	require.NoError(t, err)

	require.NoError(t, p.AddMethods(greetMethod{}))
	require.NoError(t, p.Handle("ping", func(ctx context.Context, params jsonrpc.Params) (interface{}, error) {
		return "pong", nil
	}))

	assert.ErrorIs(t, p.AddMethod(greetMethod{}), jsonrpc.ErrDuplicateMethod)
	assert.Error(t, p.AddMethod(nil))
	assert.Error(t, p.Handle("nil", nil))
	assert.Equal(t, []string{"greet", "ping"}, p.Methods())
}

func TestPlugin_ServesMethods(t *testing.T) {
	h := startPlugin(t, func(p *Plugin) {
		require.NoError(t, p.AddMethod(greetMethod{}))
	})

	h.send(map[string]interface{}{"jsonrpc": "2.0", "method": "greet", "id": 4, "params": []string{"flow"}})
	reply := h.next()
	assert.Equal(t, float64(4), reply["id"])
	assert.Equal(t, "hello flow", reply["result"])
}

func TestPlugin_AddMethodWithSchema(t *testing.T) {
	const oneString = `{"type":"array","minItems":1,"items":[{"type":"string"}]}`

	p, err := New(UseLogger(observability.NewNullLogger()))
	require.NoError(t, err)
	assert.Error(t, p.AddMethodWithSchema(greetMethod{}, `{"type":`))
	assert.Error(t, p.AddMethodWithSchema(nil, oneString))

	h := startPlugin(t, func(p *Plugin) {
		require.NoError(t, p.AddMethodWithSchema(greetMethod{}, oneString))
	})

	h.send(map[string]interface{}{"jsonrpc": "2.0", "method": "greet", "id": 5, "params": []interface{}{42}})
	reply := h.next()
	assert.Equal(t, float64(5), reply["id"])
	assert.Equal(t, float64(jsonrpc.CodeInvalidParams), reply["error"].(map[string]interface{})["code"])

	h.send(map[string]interface{}{"jsonrpc": "2.0", "method": "greet", "id": 6, "params": []string{"flow"}})
	reply = h.next()
	assert.Equal(t, float64(6), reply["id"])
	assert.Equal(t, "hello flow", reply["result"])
}

func TestPlugin_LauncherCallbacks(t *testing.T) {
	h := startPlugin(t, func(p *Plugin) {
		require.NoError(t, p.Handle("query", func(ctx context.Context, params jsonrpc.Params) (interface{}, error) {
			q, err := ParseQuery(params)
			if err != nil {
				return nil, err
			}

			match, err := p.Launcher().FuzzySearch(ctx, q.Search, "SomeFile.mp3")
			if err != nil {
				return nil, err
			}

			resp := QueryResponse{Result: []Result{{
				Title:              "SomeFile.mp3",
				Score:              match.Score,
				TitleHighlightData: match.MatchData,
			}}}
			if err := p.Launcher().UpdateResults(ctx, q.RawQuery, resp); err != nil {
				return nil, err
			}
			return resp, nil
		}))
	})

	h.send(map[string]interface{}{
		"jsonrpc": "2.0", "method": "query", "id": 1,
		"params": []interface{}{Query{Search: "some", RawQuery: "dl some"}},
	})

	fuzzy := h.next()
	assert.Equal(t, MethodFuzzySearch, fuzzy["method"])
	assert.Equal(t, []interface{}{"some", "SomeFile.mp3"}, fuzzy["params"])
	h.send(map[string]interface{}{
		"jsonrpc": "2.0", "id": fuzzy["id"],
		"result": MatchResult{Score: 90, MatchData: []int{0, 1, 2, 3}},
	})

	update := h.next()
	assert.Equal(t, MethodUpdateResults, update["method"])
	params := update["params"].([]interface{})
	assert.Equal(t, "dl some", params[0])
	h.send(map[string]interface{}{"jsonrpc": "2.0", "id": update["id"], "result": nil})

	reply := h.next()
	assert.Equal(t, float64(1), reply["id"])
	results := reply["result"].(map[string]interface{})["result"].([]interface{})
	require.Len(t, results, 1)
	assert.Equal(t, float64(90), results[0].(map[string]interface{})["score"])
}

func TestLauncher_ShowMsgAndChangeQuery(t *testing.T) {
	h := startPlugin(t, func(p *Plugin) {
		require.NoError(t, p.Handle("context_menu", func(ctx context.Context, params jsonrpc.Params) (interface{}, error) {
			if err := p.Launcher().ShowMsg(ctx, "Saved", "1 item", ""); err != nil {
				return nil, err
			}
			if err := p.Launcher().ChangeQuery(ctx, "dl ", true); err != nil {
				return nil, err
			}
			return ExecuteResponse{Hide: true}, nil
		}))
	})

	h.send(map[string]interface{}{"jsonrpc": "2.0", "method": "context_menu", "id": 2, "params": []interface{}{}})

	show := h.next()
	assert.Equal(t, MethodShowMsg, show["method"])
	assert.Equal(t, []interface{}{"Saved", "1 item", ""}, show["params"])
	h.send(map[string]interface{}{"jsonrpc": "2.0", "id": show["id"], "result": nil})

	change := h.next()
	assert.Equal(t, MethodChangeQuery, change["method"])
	assert.Equal(t, []interface{}{"dl ", true}, change["params"])
	h.send(map[string]interface{}{"jsonrpc": "2.0", "id": change["id"], "result": nil})

	reply := h.next()
	assert.Equal(t, map[string]interface{}{"hide": true}, reply["result"])
}

func TestLauncher_HostErrorIsWrapped(t *testing.T) {
	h := startPlugin(t, func(p *Plugin) {
		require.NoError(t, p.Handle("query", func(ctx context.Context, params jsonrpc.Params) (interface{}, error) {
			_, err := p.Launcher().FuzzySearch(ctx, "a", "b")
			return nil, err
		}))
	})

	h.send(map[string]interface{}{"jsonrpc": "2.0", "method": "query", "id": 3, "params": []interface{}{}})

	fuzzy := h.next()
	h.send(map[string]interface{}{
		"jsonrpc": "2.0", "id": fuzzy["id"],
		"error": map[string]interface{}{"code": -32000, "message": "host busy"},
	})

	reply := h.next()
	rpcErr := reply["error"].(map[string]interface{})
	// The host's error object is passed through unchanged.
	assert.Equal(t, float64(-32000), rpcErr["code"])
	assert.Equal(t, "host busy", rpcErr["message"])
}
