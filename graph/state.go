package graph

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// State is the channel record threaded through a graph run.
//
// Keys are channel names declared on the Builder. A node returns a partial
// State containing only the channels it changes; the engine merges the partial
// into the running state according to each channel's MergePolicy.
type State map[string]any

// Clone returns a shallow copy of the state.
//
// Channel values are shared, not deep-copied. Merge never mutates values in
// place (Append builds a new slice), so snapshots handed to callers stay stable
// as long as nodes honour the no-mutation contract.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Get returns the value of a channel converted to T.
//
// The second result is false when the channel is absent or holds a value of a
// different type.
func Get[T any](s State, channel string) (T, bool) {
	var zero T
	v, ok := s[channel]
	if !ok || v == nil {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// ChannelTag is the struct tag used by Decode and Encode.
const ChannelTag = "channel"

// Decode copies channel values into a typed struct using `channel` struct tags.
//
// Decode is lenient about representation: a documents channel restored from a
// JSON store as []any of maps still decodes into a []Document field.
//
// Example:
//
//	type AgentState struct {
//	    Question  string   `channel:"question"`
//	    Documents []string `channel:"documents"`
//	}
//
//	var typed AgentState
//	if err := graph.Decode(state, &typed); err != nil {
//	    return nil, err
//	}
func Decode(s State, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          ChannelTag,
		Result:           out,
		WeaklyTypedInput: false,
		ZeroFields:       false,
	})
	if err != nil {
		return fmt.Errorf("create state decoder: %w", err)
	}
	if err := dec.Decode(map[string]any(s)); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	return nil
}

// Encode converts a typed struct into a full channel record.
//
// Every tagged field is written, including zero values, so Encode is meant for
// building initial state. Nodes should return explicit partials instead.
func Encode(in any) (State, error) {
	out := map[string]any{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: ChannelTag,
		Result:  &out,
	})
	if err != nil {
		return nil, fmt.Errorf("create state encoder: %w", err)
	}
	if err := dec.Decode(in); err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return State(out), nil
}

// MergePolicy controls how a channel combines an update with its current value.
type MergePolicy int

const (
	// Replace overwrites the current value. It is the default policy.
	Replace MergePolicy = iota

	// Append concatenates a slice update onto the current slice value.
	Append
)

func (p MergePolicy) String() string {
	switch p {
	case Replace:
		return "replace"
	case Append:
		return "append"
	default:
		return fmt.Sprintf("MergePolicy(%d)", int(p))
	}
}

// Channel declares one named field of the run state.
type Channel struct {
	Name   string
	Policy MergePolicy
}

// ReplaceChannel declares a channel with Replace semantics.
func ReplaceChannel(name string) Channel {
	return Channel{Name: name, Policy: Replace}
}

// AppendChannel declares a channel with Append semantics.
func AppendChannel(name string) Channel {
	return Channel{Name: name, Policy: Append}
}

// Channels is the ordered channel set of a graph.
type Channels struct {
	list  []Channel
	index map[string]int
}

// NewChannels builds a channel set, rejecting empty and duplicate names.
func NewChannels(channels ...Channel) (Channels, error) {
	cs := Channels{index: make(map[string]int, len(channels))}
	var errs []error
	for _, ch := range channels {
		if ch.Name == "" {
			errs = append(errs, &ConfigError{Code: "INVALID_CHANNEL", Message: "channel name cannot be empty"})
			continue
		}
		if ch.Policy != Replace && ch.Policy != Append {
			errs = append(errs, &ConfigError{Code: "INVALID_CHANNEL", Message: "unknown merge policy " + ch.Policy.String(), Node: ch.Name})
			continue
		}
		if _, dup := cs.index[ch.Name]; dup {
			errs = append(errs, &ConfigError{Code: "DUPLICATE_CHANNEL", Message: "duplicate channel: " + ch.Name, Node: ch.Name})
			continue
		}
		cs.index[ch.Name] = len(cs.list)
		cs.list = append(cs.list, ch)
	}
	return cs, errors.Join(errs...)
}

// List returns the declared channels in declaration order.
func (c Channels) List() []Channel {
	out := make([]Channel, len(c.list))
	copy(out, c.list)
	return out
}

// Lookup returns the channel declaration for name.
func (c Channels) Lookup(name string) (Channel, bool) {
	i, ok := c.index[name]
	if !ok {
		return Channel{}, false
	}
	return c.list[i], true
}

// Merge applies a partial update to current and returns the next state.
//
// Channels absent from partial keep their current value. current is never
// modified. Keys in partial that are not declared channels fail with
// ErrUnknownChannel; an Append channel receiving a non-slice or a slice of a
// different type fails with ErrAppendType.
func (c Channels) Merge(current, partial State) (State, error) {
	next := current.Clone()
	for name, update := range partial {
		ch, ok := c.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
		}
		switch ch.Policy {
		case Append:
			merged, err := appendValue(next[name], update)
			if err != nil {
				return nil, fmt.Errorf("channel %q: %w", name, err)
			}
			next[name] = merged
		default:
			next[name] = update
		}
	}
	return next, nil
}

// appendValue concatenates update onto existing, always into a fresh slice.
func appendValue(existing, update any) (any, error) {
	if update == nil {
		return existing, nil
	}
	uv := reflect.ValueOf(update)
	if uv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%w: update is %T, not a slice", ErrAppendType, update)
	}
	if existing == nil {
		out := reflect.MakeSlice(uv.Type(), 0, uv.Len())
		return reflect.AppendSlice(out, uv).Interface(), nil
	}
	ev := reflect.ValueOf(existing)
	if ev.Type() != uv.Type() {
		return nil, fmt.Errorf("%w: cannot append %T to %T", ErrAppendType, update, existing)
	}
	out := reflect.MakeSlice(ev.Type(), 0, ev.Len()+uv.Len())
	out = reflect.AppendSlice(out, ev)
	out = reflect.AppendSlice(out, uv)
	return out.Interface(), nil
}
