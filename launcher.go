package flowplugin

import (
	"context"
	"fmt"

	"github.com/shaharia-lab/flowplugin/jsonrpc"
	"golang.org/x/time/rate"
)

// Host API methods a plugin may call on the launcher.
const (
	MethodFuzzySearch   = "FuzzySearch"
	MethodUpdateResults = "UpdateResults"
	MethodChangeQuery   = "ChangeQuery"
	MethodShowMsg       = "ShowMsg"
)

// Launcher calls back into the launcher host over the plugin's connection.
type Launcher struct {
	conn    *jsonrpc.Conn
	limiter *rate.Limiter
}

func newLauncher(conn *jsonrpc.Conn, limiter *rate.Limiter) *Launcher {
	return &Launcher{conn: conn, limiter: limiter}
}

// FuzzySearch asks the launcher how well text matches query.
func (l *Launcher) FuzzySearch(ctx context.Context, query, text string) (MatchResult, error) {
	var m MatchResult
	if err := l.conn.Call(ctx, MethodFuzzySearch, &m, query, text); err != nil {
		return MatchResult{}, fmt.Errorf("fuzzy search failed: %w", err)
	}
	if m.MatchData == nil {
		m.MatchData = []int{}
	}
	return m, nil
}

// UpdateResults replaces the results shown for rawQuery. Calls are spaced by
// the plugin's update rate, if one is configured.
func (l *Launcher) UpdateResults(ctx context.Context, rawQuery string, resp QueryResponse) error {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if resp.Result == nil {
		resp.Result = []Result{}
	}
	if err := l.conn.Call(ctx, MethodUpdateResults, nil, rawQuery, resp); err != nil {
		return fmt.Errorf("update results failed: %w", err)
	}
	return nil
}

// ChangeQuery replaces the text in the launcher's query box.
func (l *Launcher) ChangeQuery(ctx context.Context, query string, requery bool) error {
	if err := l.conn.Call(ctx, MethodChangeQuery, nil, query, requery); err != nil {
		return fmt.Errorf("change query failed: %w", err)
	}
	return nil
}

// ShowMsg shows a notification in the launcher.
func (l *Launcher) ShowMsg(ctx context.Context, title, subTitle, icoPath string) error {
	if err := l.conn.Call(ctx, MethodShowMsg, nil, title, subTitle, icoPath); err != nil {
		return fmt.Errorf("show message failed: %w", err)
	}
	return nil
}
