package assembler

import (
	"context"

	"github.com/spetersoncode/careflow"
)

// Assemble runs a Splitter over a provider stream. The returned channel
// carries chat fragments, at most one document, and possibly a terminal
// error, and is closed when the stream ends or ctx is cancelled.
//
// An upstream error ends the flow with Output{Err} and discards any
// partially accumulated document. Callers that stop reading must cancel
// ctx so the flow can exit.
func Assemble(ctx context.Context, in <-chan careflow.StreamEvent, opts ...Option) <-chan Output {
	out := make(chan Output)
	s := NewSplitter(opts...)

	go func() {
		defer close(out)

		send := func(items []Output) bool {
			for _, item := range items {
				select {
				case out <- item:
				case <-ctx.Done():
					return false
				}
			}
			return true
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-in:
				if !ok {
					send(s.Finish())
					return
				}
				if ev.Err != nil {
					send([]Output{{Err: ev.Err}})
					return
				}
				if ev.Delta == "" {
					continue
				}
				if !send(s.Feed(ev.Delta)) {
					return
				}
			}
		}
	}()

	return out
}
