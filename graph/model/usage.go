package model

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pricing is the USD price of one million tokens.
type Pricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// DefaultPricing holds list prices for the models the CLI offers.
// Unknown models are tracked with zero cost.
var DefaultPricing = map[string]Pricing{
	"gpt-4o":                     {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":                {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-3.5-turbo":              {InputPer1M: 0.50, OutputPer1M: 1.50},
	"claude-3-5-sonnet-20241022": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-5-haiku-20241022":  {InputPer1M: 0.80, OutputPer1M: 4.00},
	"claude-3-haiku-20240307":    {InputPer1M: 0.25, OutputPer1M: 1.25},
	"gemini-1.5-pro":             {InputPer1M: 1.25, OutputPer1M: 5.00},
	"gemini-1.5-flash":           {InputPer1M: 0.075, OutputPer1M: 0.30},
	"text-embedding-3-small":     {InputPer1M: 0.02},
}

// Call is one recorded model call.
type Call struct {
	Model     string
	Usage     Usage
	CostUSD   float64
	Timestamp time.Time
}

// UsageTracker accumulates token usage and cost across model calls.
// It is safe for concurrent use.
//
// Totals are kept per model in constant space. The per-call log is only
// kept when the tracker is created with WithCallLog, so a tracker that lives
// as long as a server process does not grow with traffic.
type UsageTracker struct {
	pricing  map[string]Pricing
	keepLog  bool
	counters *usageCounters

	mu     sync.Mutex
	totals map[string]*modelTotal
	calls  []Call
}

type modelTotal struct {
	usage Usage
	cost  float64
	calls int
}

// UsageOption configures a UsageTracker.
type UsageOption func(*UsageTracker)

// WithCallLog keeps every recorded call for Calls.
func WithCallLog() UsageOption {
	return func(t *UsageTracker) { t.keepLog = true }
}

// WithUsageMetrics registers ragflow_model_calls_total,
// ragflow_model_tokens_total (labels: model, kind) and
// ragflow_model_cost_usd_total with registry and updates them on Record.
func WithUsageMetrics(registry prometheus.Registerer) UsageOption {
	return func(t *UsageTracker) { t.counters = newUsageCounters(registry) }
}

type usageCounters struct {
	calls  *prometheus.CounterVec
	tokens *prometheus.CounterVec
	cost   *prometheus.CounterVec
}

func newUsageCounters(registry prometheus.Registerer) *usageCounters {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)
	return &usageCounters{
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragflow",
			Name:      "model_calls_total",
			Help:      "Successful chat and embedding calls",
		}, []string{"model"}),
		tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragflow",
			Name:      "model_tokens_total",
			Help:      "Tokens consumed, by model and kind (input/output)",
		}, []string{"model", "kind"}),
		cost: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ragflow",
			Name:      "model_cost_usd_total",
			Help:      "Estimated spend in USD from list prices",
		}, []string{"model"}),
	}
}

func (c *usageCounters) record(model string, usage Usage, cost float64) {
	if c == nil {
		return
	}
	c.calls.WithLabelValues(model).Inc()
	c.tokens.WithLabelValues(model, "input").Add(float64(usage.InputTokens))
	c.tokens.WithLabelValues(model, "output").Add(float64(usage.OutputTokens))
	c.cost.WithLabelValues(model).Add(cost)
}

// NewUsageTracker creates a tracker priced with pricing. A nil map uses
// DefaultPricing.
func NewUsageTracker(pricing map[string]Pricing, opts ...UsageOption) *UsageTracker {
	if pricing == nil {
		pricing = DefaultPricing
	}
	t := &UsageTracker{pricing: pricing, totals: make(map[string]*modelTotal)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record adds one call and returns its cost.
func (t *UsageTracker) Record(model string, usage Usage) float64 {
	p := t.pricing[model]
	cost := float64(usage.InputTokens)/1_000_000*p.InputPer1M +
		float64(usage.OutputTokens)/1_000_000*p.OutputPer1M
	t.counters.record(model, usage, cost)

	t.mu.Lock()
	defer t.mu.Unlock()
	mt, ok := t.totals[model]
	if !ok {
		mt = &modelTotal{}
		t.totals[model] = mt
	}
	mt.usage.InputTokens += usage.InputTokens
	mt.usage.OutputTokens += usage.OutputTokens
	mt.cost += cost
	mt.calls++
	if t.keepLog {
		t.calls = append(t.calls, Call{Model: model, Usage: usage, CostUSD: cost, Timestamp: time.Now()})
	}
	return cost
}

// Calls returns a copy of the recorded calls in order. It is empty unless
// the tracker was created WithCallLog.
func (t *UsageTracker) Calls() []Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Call(nil), t.calls...)
}

// CallCount returns the number of recorded calls.
func (t *UsageTracker) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, mt := range t.totals {
		n += mt.calls
	}
	return n
}

// Total returns the summed usage and cost.
func (t *UsageTracker) Total() (Usage, float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var (
		u    Usage
		cost float64
	)
	for _, mt := range t.totals {
		u.InputTokens += mt.usage.InputTokens
		u.OutputTokens += mt.usage.OutputTokens
		cost += mt.cost
	}
	return u, cost
}

// CostByModel returns the cost per model, with model names sorted.
func (t *UsageTracker) CostByModel() ([]string, map[string]float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	costs := make(map[string]float64, len(t.totals))
	names := make([]string, 0, len(t.totals))
	for name, mt := range t.totals {
		costs[name] = mt.cost
		names = append(names, name)
	}
	sort.Strings(names)
	return names, costs
}

// Reset discards the totals and the call log. Prometheus counters are
// monotonic and keep their values.
func (t *UsageTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totals = make(map[string]*modelTotal)
	t.calls = nil
}

// Track wraps m so that every successful Chat call is recorded under
// modelName.
func (t *UsageTracker) Track(m ChatModel, modelName string) ChatModel {
	return &trackedModel{model: m, name: modelName, tracker: t}
}

type trackedModel struct {
	model   ChatModel
	name    string
	tracker *UsageTracker
}

func (m *trackedModel) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	out, err := m.model.Chat(ctx, messages, tools)
	if err != nil {
		return out, err
	}
	m.tracker.Record(m.name, out.Usage)
	return out, nil
}
