package emit

// Emitter receives run events.
//
// Emit is called synchronously from the run's goroutine, between steps, so
// implementations should return quickly. Independent runs may call Emit
// concurrently. Emit must not panic.
type Emitter interface {
	Emit(event Event)
}

// EmitterFunc adapts a plain function to the Emitter interface.
type EmitterFunc func(event Event)

// Emit calls f(event).
func (f EmitterFunc) Emit(event Event) {
	f(event)
}

// Multi returns an Emitter that forwards every event to each non-nil emitter
// in order.
//
// Example:
//
//	emitter := emit.Multi(
//	    emit.NewLogEmitter(logger),
//	    emit.NewOTelEmitter(otel.Tracer("ragflow")),
//	)
func Multi(emitters ...Emitter) Emitter {
	out := make(multiEmitter, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

type multiEmitter []Emitter

func (m multiEmitter) Emit(event Event) {
	for _, e := range m {
		e.Emit(event)
	}
}
