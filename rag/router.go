package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/ragflow/graph/model"
)

// Data sources the router model may pick.
const (
	DataSourceWebSearch   = "web_search"
	DataSourceVectorStore = "vectorstore"
)

// Router asks a chat model whether a question belongs to the vector store or
// the web.
type Router struct {
	Model  model.ChatModel
	Prompt *Prompt

	// UseTools offers RouteTool to the model and reads its call arguments.
	// Text replies are still accepted.
	UseTools bool
}

// NewRouter returns a Router using RouterPrompt.
func NewRouter(m model.ChatModel) *Router {
	return &Router{Model: m, Prompt: RouterPrompt}
}

// Route returns the data source chosen for question. Any reply other than
// web_search selects the vector store.
func (r *Router) Route(ctx context.Context, question string) (string, error) {
	msgs, err := r.Prompt.Messages(map[string]string{"question": question})
	if err != nil {
		return "", err
	}
	var spec *model.ToolSpec
	if r.UseTools {
		spec = &RouteTool
	}
	var reply struct {
		DataSource string `json:"datasource"`
	}
	if err := structuredReply(ctx, r.Model, msgs, spec, &reply); err != nil {
		return "", fmt.Errorf("route question: %w", err)
	}
	if strings.EqualFold(strings.TrimSpace(reply.DataSource), DataSourceWebSearch) {
		return DataSourceWebSearch, nil
	}
	return DataSourceVectorStore, nil
}

// styleFor maps a data source to the generation style stored in state.
func styleFor(dataSource string) string {
	if dataSource == DataSourceWebSearch {
		return StyleWebSearch
	}
	return StyleVectorStore
}
