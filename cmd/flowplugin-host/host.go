package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"
	"github.com/shaharia-lab/flowplugin"
	"github.com/shaharia-lab/flowplugin/jsonrpc"
	"github.com/shaharia-lab/flowplugin/observability"
)

// host is a minimal launcher: it answers the plugin's callbacks and turns
// lines typed on its input into plugin queries.
type host struct {
	conn    *jsonrpc.Conn
	keyword string
	logger  observability.Logger

	outMu sync.Mutex
	out   io.Writer

	mu   sync.Mutex
	last []flowplugin.Result
}

func newHost(conn *jsonrpc.Conn, keyword string, out io.Writer, logger observability.Logger) (*host, error) {
	h := &host{conn: conn, keyword: keyword, out: out, logger: logger}

	handlers := map[string]jsonrpc.HandlerFunc{
		flowplugin.MethodFuzzySearch:   h.fuzzySearch,
		flowplugin.MethodUpdateResults: h.updateResults,
		flowplugin.MethodChangeQuery:   h.changeQuery,
		flowplugin.MethodShowMsg:       h.showMsg,
	}
	for name, fn := range handlers {
		if err := conn.Register(name, fn); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// matchText scores text against query the way the launcher would.
func matchText(query, text string) flowplugin.MatchResult {
	if query == "" {
		return flowplugin.MatchResult{Score: 1, MatchData: []int{}}
	}

	matches := fuzzy.Find(query, []string{text})
	if len(matches) == 0 {
		return flowplugin.MatchResult{Score: 0, MatchData: []int{}}
	}

	score := matches[0].Score
	if score < 1 {
		score = 1
	}
	return flowplugin.MatchResult{Score: score, MatchData: matches[0].MatchedIndexes}
}

func (h *host) fuzzySearch(ctx context.Context, params jsonrpc.Params) (interface{}, error) {
	var query, text string
	if err := params.Decode(0, &query); err != nil {
		return nil, err
	}
	if err := params.Decode(1, &text); err != nil {
		return nil, err
	}
	return matchText(query, text), nil
}

func (h *host) updateResults(ctx context.Context, params jsonrpc.Params) (interface{}, error) {
	var (
		rawQuery string
		resp     flowplugin.QueryResponse
	)
	if err := params.Decode(0, &rawQuery); err != nil {
		return nil, err
	}
	if err := params.Decode(1, &resp); err != nil {
		return nil, err
	}

	h.show(rawQuery, resp.Result)
	return nil, nil
}

func (h *host) changeQuery(ctx context.Context, params jsonrpc.Params) (interface{}, error) {
	var query string
	if err := params.Decode(0, &query); err != nil {
		return nil, err
	}
	h.printf("query changed to %q\n", query)
	return nil, nil
}

func (h *host) showMsg(ctx context.Context, params jsonrpc.Params) (interface{}, error) {
	var title, subTitle string
	if err := params.Decode(0, &title); err != nil {
		return nil, err
	}
	if params.Len() > 1 {
		if err := params.Decode(1, &subTitle); err != nil {
			return nil, err
		}
	}
	h.printf("message: %s %s\n", title, subTitle)
	return nil, nil
}

func (h *host) printf(format string, args ...interface{}) {
	h.outMu.Lock()
	defer h.outMu.Unlock()
	fmt.Fprintf(h.out, format, args...)
}

func (h *host) show(rawQuery string, results []flowplugin.Result) {
	h.mu.Lock()
	h.last = results
	h.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "results for %q:\n", rawQuery)
	for i, r := range results {
		fmt.Fprintf(&b, "  %d. [%d] %s | %s\n", i+1, r.Score, r.Title, r.Subtitle)
	}
	h.printf("%s", b.String())
}

// invoke runs the action attached to result n (1-based) of the last listing.
func (h *host) invoke(ctx context.Context, n int) error {
	h.mu.Lock()
	results := h.last
	h.mu.Unlock()

	if n < 1 || n > len(results) {
		return fmt.Errorf("no result %d", n)
	}
	action := results[n-1].Action
	if action == nil {
		return fmt.Errorf("result %d has no action", n)
	}

	var resp flowplugin.ExecuteResponse
	if err := h.conn.Call(ctx, action.Method, &resp, action.Parameters...); err != nil {
		return err
	}
	h.printf("%s done (hide=%v)\n", action.Method, resp.Hide)
	return nil
}

func (h *host) query(ctx context.Context, line string) error {
	q := flowplugin.Query{RawQuery: line, Search: line}
	if h.keyword != "" {
		q.ActionKeyword = h.keyword
		q.Search = strings.TrimSpace(strings.TrimPrefix(line, h.keyword))
		q.RawQuery = h.keyword + " " + q.Search
	}

	var resp flowplugin.QueryResponse
	if err := h.conn.Call(ctx, "query", &resp, q); err != nil {
		return err
	}
	h.show(q.RawQuery, resp.Result)
	return nil
}

func (h *host) contextMenu(ctx context.Context) error {
	var resp flowplugin.QueryResponse
	if err := h.conn.Call(ctx, "context_menu", &resp, nil); err != nil {
		return err
	}
	h.show("context menu", resp.Result)
	return nil
}

// run reads lines from in until it ends or ctx is cancelled. Each line is
// either a command (":menu", ":run N") or a query; a new query cancels the
// one still running.
func (h *host) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	var (
		wg          sync.WaitGroup
		cancelQuery context.CancelFunc = func() {}
	)
	defer func() {
		cancelQuery()
		wg.Wait()
	}()

	for {
		var line string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ":") {
			if err := h.command(ctx, line); err != nil {
				h.logger.WithErr(err).Warnf("Command %s failed", line)
			}
			continue
		}

		cancelQuery()
		var qctx context.Context
		qctx, cancelQuery = context.WithCancel(ctx)

		wg.Add(1)
		go func(qctx context.Context, line string) {
			defer wg.Done()
			err := h.query(qctx, line)
			if err != nil && !errors.Is(err, context.Canceled) {
				h.logger.WithErr(err).Warnf("Query %q failed", line)
			}
		}(qctx, line)
	}
}

func (h *host) command(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case ":menu":
		return h.contextMenu(ctx)
	case ":run":
		if len(fields) != 2 {
			return fmt.Errorf("usage: :run N")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return fmt.Errorf("usage: :run N")
		}
		return h.invoke(ctx, n)
	default:
		return fmt.Errorf("unknown command %s", fields[0])
	}
}
