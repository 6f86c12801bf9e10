package sheets

import (
	"context"
	"errors"

	"tally/internal/core"
)

// Ports for outbound adapters. Every backend exchanges the whole document:
// a load returns all state and a save replaces all state.
type (
	DocumentLoader interface {
		Load(ctx context.Context) (core.Document, error)
	}

	DocumentSaver interface {
		Save(ctx context.Context, doc core.Document) error
	}

	DocumentStore interface {
		DocumentLoader
		DocumentSaver
	}
)

// ErrNotConfigured is returned by an adapter missing its client or endpoint.
var ErrNotConfigured = errors.New("document store not configured")
