package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shaharia-lab/flowplugin"
	"github.com/shaharia-lab/flowplugin/jsonrpc"
	"github.com/shaharia-lab/flowplugin/observability"
)

type initializeMethod struct {
	logger observability.Logger
}

func (m *initializeMethod) Name() string { return "initialize" }

func (m *initializeMethod) Call(ctx context.Context, params jsonrpc.Params) (interface{}, error) {
	var ctxData interface{}
	if params.Len() > 0 {
		if err := params.Decode(0, &ctxData); err != nil {
			return nil, err
		}
	}
	m.logger.WithFields(map[string]interface{}{"context": ctxData}).Info("Plugin initialized")
	return flowplugin.ExecuteResponse{Hide: false}, nil
}

// download is one fake transfer shown as a query result.
type download struct {
	file     string
	progress int
}

// queryMethod shows a couple of downloads and keeps their progress updated
// in the launcher until they finish or the query is superseded.
type queryMethod struct {
	launcher *flowplugin.Launcher
	logger   observability.Logger
	interval time.Duration
	step     int
}

func (m *queryMethod) Name() string { return "query" }

func (m *queryMethod) Call(ctx context.Context, params jsonrpc.Params) (interface{}, error) {
	q, err := flowplugin.ParseQuery(params)
	if err != nil {
		return nil, err
	}
	logger := m.logger.WithFields(map[string]interface{}{"search": q.Search})

	downloads := []*download{
		{file: "SomeFile1.mp3", progress: 30},
		{file: "SomeFile2.mp3", progress: 10},
	}

	matches := make([]flowplugin.MatchResult, len(downloads))
	for i, d := range downloads {
		matches[i], err = m.launcher.FuzzySearch(ctx, q.Search, d.file)
		if err != nil {
			return nil, err
		}
	}

	build := func() flowplugin.QueryResponse {
		var set flowplugin.ResultSet
		for i, d := range downloads {
			set.Add(flowplugin.Result{
				Title:              d.file,
				Subtitle:           fmt.Sprintf("Download at %d%%", d.progress),
				IcoPath:            "Images/app.png",
				TitleHighlightData: matches[i].MatchData,
				Score:              matches[i].Score,
				Action:             flowplugin.NewAction("store", d.file),
			})
		}
		return set.Response()
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for !finished(downloads) {
		select {
		case <-ctx.Done():
			logger.Debug("Query superseded")
			return nil, ctx.Err()
		case <-ticker.C:
		}

		for _, d := range downloads {
			d.progress += m.step
			if d.progress > 100 {
				d.progress = 100
			}
		}
		if err := m.launcher.UpdateResults(ctx, q.RawQuery, build()); err != nil {
			return nil, err
		}
	}

	logger.Debug("All downloads finished")
	return build(), nil
}

func finished(downloads []*download) bool {
	for _, d := range downloads {
		if d.progress < 100 {
			return false
		}
	}
	return true
}

// storeMethod keeps the selected file. The first parameter names the item;
// the full parameter list is kept as its data.
type storeMethod struct {
	store  flowplugin.Store
	logger observability.Logger
}

func (m *storeMethod) Name() string { return "store" }

func (m *storeMethod) Call(ctx context.Context, params jsonrpc.Params) (interface{}, error) {
	var name string
	if err := params.Decode(0, &name); err != nil {
		return nil, err
	}

	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	item, err := m.store.Save(ctx, name, data)
	if err != nil {
		return nil, err
	}
	m.logger.WithFields(map[string]interface{}{"item_id": item.ID}).Infof("Stored %s", name)

	return flowplugin.ExecuteResponse{Hide: false}, nil
}

// contextMenuMethod lists stored items, each with an action removing it.
type contextMenuMethod struct {
	store flowplugin.Store
}

func (m *contextMenuMethod) Name() string { return "context_menu" }

func (m *contextMenuMethod) Call(ctx context.Context, params jsonrpc.Params) (interface{}, error) {
	items, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}

	var set flowplugin.ResultSet
	for _, item := range items {
		set.Add(flowplugin.Result{
			Title:    item.Name,
			Subtitle: "Stored " + item.CreatedAt.Local().Format(time.DateTime) + ", select to remove",
			CopyText: item.Name,
			Action:   flowplugin.NewAction("delete", item.ID),
		})
	}
	return set.Response(), nil
}

type deleteMethod struct {
	store  flowplugin.Store
	logger observability.Logger
}

func (m *deleteMethod) Name() string { return "delete" }

func (m *deleteMethod) Call(ctx context.Context, params jsonrpc.Params) (interface{}, error) {
	var id string
	if err := params.Decode(0, &id); err != nil {
		return nil, err
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return nil, err
	}
	m.logger.Infof("Removed item %s", id)
	return flowplugin.ExecuteResponse{Hide: false}, nil
}

// Params schemas for the actions the launcher triggers from result menus.
const (
	storeParamsSchema  = `{"type":"array","minItems":1,"items":[{"type":"string","minLength":1}]}`
	deleteParamsSchema = `{"type":"array","minItems":1,"maxItems":1,"items":[{"type":"string","minLength":1}]}`
)

func registerMethods(p *flowplugin.Plugin, store flowplugin.Store, logger observability.Logger, interval time.Duration) error {
	err := p.AddMethods(
		&initializeMethod{logger: logger},
		&queryMethod{launcher: p.Launcher(), logger: logger, interval: interval, step: 1},
		&contextMenuMethod{store: store},
	)
	if err != nil {
		return err
	}
	if err := p.AddMethodWithSchema(&storeMethod{store: store, logger: logger}, storeParamsSchema); err != nil {
		return err
	}
	return p.AddMethodWithSchema(&deleteMethod{store: store, logger: logger}, deleteParamsSchema)
}
