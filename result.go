package replan

import "context"

// Outcome is the kind of a single generator pull.
type Outcome int

const (
	// OutcomeValue carries a certified result.
	OutcomeValue Outcome = iota
	// OutcomeRetry signals that this round failed. The next pull may still succeed.
	OutcomeRetry
	// OutcomeDone signals that the generator is permanently exhausted.
	OutcomeDone
)

// String returns the outcome name used in events and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeValue:
		return "value"
	case OutcomeRetry:
		return "retry"
	case OutcomeDone:
		return "done"
	}
	return "unknown"
}

// Result is the outcome of one generator pull: a value, a retry sentinel,
// or termination. A terminal result may carry the error that ended the
// stream; ordinary exhaustion carries none.
type Result[T any] struct {
	value   T
	outcome Outcome
	err     error
}

// Value wraps a certified result.
func Value[T any](v T) Result[T] {
	return Result[T]{value: v, outcome: OutcomeValue}
}

// Retry returns the "no solution this round" sentinel.
func Retry[T any]() Result[T] {
	return Result[T]{outcome: OutcomeRetry}
}

// Done returns the terminal result.
func Done[T any]() Result[T] {
	return Result[T]{outcome: OutcomeDone}
}

// Fail returns a terminal result carrying err.
func Fail[T any](err error) Result[T] {
	return Result[T]{outcome: OutcomeDone, err: err}
}

// Outcome reports the result kind.
func (r Result[T]) Outcome() Outcome { return r.outcome }

// IsValue reports whether r carries a value.
func (r Result[T]) IsValue() bool { return r.outcome == OutcomeValue }

// IsRetry reports whether r is the retry sentinel.
func (r Result[T]) IsRetry() bool { return r.outcome == OutcomeRetry }

// IsDone reports whether r is terminal.
func (r Result[T]) IsDone() bool { return r.outcome == OutcomeDone }

// Get returns the carried value and whether there is one.
func (r Result[T]) Get() (T, bool) {
	return r.value, r.outcome == OutcomeValue
}

// Err returns the error that terminated the stream, if any.
func (r Result[T]) Err() error { return r.err }

// Generator is a lazy, restartable stream of results. Callers drive it one
// pull at a time; a generator never runs ahead of its caller.
type Generator[T any] interface {
	Next(ctx context.Context) Result[T]
}

// GeneratorFunc adapts a function to a Generator. Once the function returns
// a terminal result it is never called again.
type GeneratorFunc[T any] func(ctx context.Context) Result[T]

// Next implements Generator.
func (f GeneratorFunc[T]) Next(ctx context.Context) Result[T] {
	return f(ctx)
}

// sticky makes Done permanent and turns a cancelled context into Done.
type sticky[T any] struct {
	next func(ctx context.Context) Result[T]
	done *Result[T]
}

// Stream wraps next so the returned generator stays Done once it reports Done.
func Stream[T any](next func(ctx context.Context) Result[T]) Generator[T] {
	return &sticky[T]{next: next}
}

func (s *sticky[T]) Next(ctx context.Context) Result[T] {
	if s.done != nil {
		return *s.done
	}
	if err := ctx.Err(); err != nil {
		r := Fail[T](err)
		s.done = &r
		return r
	}
	r := s.next(ctx)
	if r.IsDone() {
		s.done = &r
	}
	return r
}

// Empty returns a generator that is immediately Done.
func Empty[T any]() Generator[T] {
	return Stream(func(context.Context) Result[T] { return Done[T]() })
}

// Failed returns a generator that terminates with err on the first pull.
func Failed[T any](err error) Generator[T] {
	return Stream(func(context.Context) Result[T] { return Fail[T](err) })
}

// FromSlice yields every item in order, then Done.
func FromSlice[T any](items []T) Generator[T] {
	i := 0
	return Stream(func(context.Context) Result[T] {
		if i >= len(items) {
			return Done[T]()
		}
		v := items[i]
		i++
		return Value(v)
	})
}

// Cycle repeats items forever. An empty slice is immediately Done.
func Cycle[T any](items []T) Generator[T] {
	i := 0
	return Stream(func(context.Context) Result[T] {
		if len(items) == 0 {
			return Done[T]()
		}
		v := items[i%len(items)]
		i++
		return Value(v)
	})
}

// Repeat calls fn forever.
func Repeat[T any](fn func() T) Generator[T] {
	return Stream(func(context.Context) Result[T] { return Value(fn()) })
}

// Take passes through at most n pulls of g, after which it is Done.
// Sentinels count as pulls.
func Take[T any](g Generator[T], n int) Generator[T] {
	pulled := 0
	return Stream(func(ctx context.Context) Result[T] {
		if pulled >= n {
			return Done[T]()
		}
		pulled++
		return g.Next(ctx)
	})
}

// Map transforms every value of g.
func Map[T, U any](g Generator[T], fn func(T) U) Generator[U] {
	return Stream(func(ctx context.Context) Result[U] {
		r := g.Next(ctx)
		switch r.Outcome() {
		case OutcomeValue:
			return Value(fn(r.value))
		case OutcomeRetry:
			return Retry[U]()
		}
		return Fail[U](r.err)
	})
}

// Collect pulls g until it has n values, it is Done, or maxPulls pulls have
// been made. Sentinels are discarded. The returned error is the terminal
// error of g, if any.
func Collect[T any](ctx context.Context, g Generator[T], n, maxPulls int) ([]T, error) {
	var out []T
	for pulls := 0; len(out) < n && pulls < maxPulls; pulls++ {
		r := g.Next(ctx)
		if v, ok := r.Get(); ok {
			out = append(out, v)
			continue
		}
		if r.IsDone() {
			return out, r.Err()
		}
	}
	return out, nil
}

// First returns the first value of g, skipping at most maxPulls sentinels.
func First[T any](ctx context.Context, g Generator[T], maxPulls int) (T, bool, error) {
	values, err := Collect(ctx, g, 1, maxPulls)
	if len(values) == 0 {
		var zero T
		return zero, false, err
	}
	return values[0], true, err
}
