package rag

import (
	"context"
	"sync"

	"github.com/dshills/ragflow/graph/model"
	"github.com/dshills/ragflow/graph/tool"
)

type chatFunc func(ctx context.Context) (model.ChatOut, error)

func (f chatFunc) Chat(ctx context.Context, _ []model.Message, _ []model.ToolSpec) (model.ChatOut, error) {
	return f(ctx)
}

type noSearch struct{}

func (noSearch) Search(context.Context, string) ([]tool.SearchResult, error) { return nil, nil }

func (noSearch) Scrape(context.Context, string) (tool.Page, error) { return tool.Page{}, nil }

// toolModel answers every call with reply and records the tools offered.
type toolModel struct {
	reply model.ChatOut

	mu      sync.Mutex
	offered [][]model.ToolSpec
}

func (m *toolModel) Chat(_ context.Context, _ []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offered = append(m.offered, tools)
	return m.reply, nil
}
