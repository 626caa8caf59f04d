// Package rag is the retrieval-augmented generation agent: a router that
// picks the vector store or the web, a retriever, a relevance grader, a web
// searcher and an answer generator, wired into a graph.Graph.
package rag

import (
	"github.com/dshills/ragflow/graph"
	"github.com/dshills/ragflow/retrieval"
)

// Channel names.
const (
	ChannelQuestion        = "question"
	ChannelGeneration      = "generation"
	ChannelDocuments       = "documents"
	ChannelGenerationStyle = "generationStyle"
)

// Node names.
const (
	NodeRouter   = "router"
	NodeRetrieve = "retrieveFromDocument"
	NodeGrade    = "gradeGeneratedDocuments"
	NodeSearch   = "webSearch"
	NodeGenerate = "generateAnswerFromContext"
)

// Generation styles written by the router node.
const (
	StyleWebSearch   = "websearch"
	StyleVectorStore = "vectorstore"
)

// Route is the label set of both decision functions.
type Route string

// Routes.
const (
	RouteSearchWeb Route = "searchWeb"
	RouteUseLLM    Route = "useLLm"
)

// State is the typed view of the agent's channels.
type State struct {
	Question        string               `channel:"question"`
	Generation      string               `channel:"generation"`
	Documents       []retrieval.Document `channel:"documents"`
	GenerationStyle string               `channel:"generationStyle"`
}

// Channels declares the agent's state. Every channel replaces its value on
// update, documents included.
func Channels() []graph.Channel {
	return []graph.Channel{
		graph.ReplaceChannel(ChannelQuestion),
		graph.ReplaceChannel(ChannelGeneration),
		graph.ReplaceChannel(ChannelDocuments),
		graph.ReplaceChannel(ChannelGenerationStyle),
	}
}

// NewState returns the initial state for question.
func NewState(question string) graph.State {
	return graph.State{ChannelQuestion: question}
}

func decodeState(s graph.State) (State, error) {
	var typed State
	err := graph.Decode(s, &typed)
	return typed, err
}
