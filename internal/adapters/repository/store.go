// Package repository holds the durable recruiter decision stores.
package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/livewatch/internal/domain/model"
)

// Store persists decision records keyed by session id. Put overwrites.
type Store interface {
	Put(ctx context.Context, rec model.DecisionRecord) error

	// Get returns ErrNotFound if no decision was recorded for sessionID.
	Get(ctx context.Context, sessionID string) (model.DecisionRecord, error)

	// All returns every record ordered by session id.
	All(ctx context.Context) ([]model.DecisionRecord, error)

	Close() error
}

func validate(rec model.DecisionRecord) error {
	if strings.TrimSpace(rec.SessionID) == "" {
		return fmt.Errorf("%w: empty session id", ErrInvalidRecord)
	}
	if !rec.Decision.Valid() {
		return fmt.Errorf("%w: decision %q", ErrInvalidRecord, rec.Decision)
	}
	return nil
}
