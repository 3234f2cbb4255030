package sink

import (
	"context"

	"github.com/miku/oaipoll"
)

// Multi emits every record to all sinks, stopping at the first error.
type Multi []oaipoll.Sink

// Emit implements oaipoll.Sink.
func (m Multi) Emit(ctx context.Context, r oaipoll.Record) error {
	for _, s := range m {
		if err := s.Emit(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
