package batch

import (
	"context"

	"github.com/rs/zerolog"
)

// Clearinghouse submits an assembled batch to the external clearinghouse.
// The engine only needs the submission attempt to succeed or fail;
// acknowledgement and rejection arrive later through the callback endpoints.
type Clearinghouse interface {
	Submit(ctx context.Context, b *ClaimBatch) error
}

// LogClearinghouse records submissions without sending anything. It stands in
// for the real gateway in development and tests.
type LogClearinghouse struct {
	log zerolog.Logger
}

func NewLogClearinghouse(logger zerolog.Logger) *LogClearinghouse {
	return &LogClearinghouse{log: logger}
}

func (l *LogClearinghouse) Submit(_ context.Context, b *ClaimBatch) error {
	l.log.Info().
		Str("batch_id", b.ID.String()).
		Str("grouping_key", b.GroupingKey).
		Int("claims", b.Size()).
		Msg("batch submitted to clearinghouse")
	return nil
}
