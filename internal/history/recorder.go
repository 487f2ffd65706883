package history

import (
	"context"

	"github.com/jackzampolin/ocrion/internal/region"
)

// Source names the provider and model attempts are sent to. It is consulted
// per attempt so config reloads show up in the history.
type Source interface {
	ProviderName() string
	ModelName() string
}

// Recorder writes attempts to a Store. A nil Recorder or one without a
// store records nothing.
type Recorder struct {
	store  *Store
	source Source
}

// NewRecorder creates a Recorder. source may be nil.
func NewRecorder(store *Store, source Source) *Recorder {
	return &Recorder{store: store, source: source}
}

// RecordAttempt stores one attempt of request requestID.
func (r *Recorder) RecordAttempt(ctx context.Context, requestID string, a region.ExtractionAttempt) error {
	if r == nil || r.store == nil {
		return nil
	}
	var opts RecordOptions
	if r.source != nil {
		opts.Provider = r.source.ProviderName()
		opts.Model = r.source.ModelName()
	}
	return r.store.Insert(ctx, FromAttempt(requestID, a, opts))
}
