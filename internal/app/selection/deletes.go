package selection

import (
	"context"
	"fmt"
	"slices"

	"github.com/okian/livewatch/internal/adapters/push"
	"github.com/okian/livewatch/internal/domain/compose"
	"github.com/okian/livewatch/internal/domain/model"
	"github.com/okian/livewatch/pkg/logger"
	"github.com/okian/livewatch/pkg/metrics"
)

// RequestDelete marks sessionID as awaiting confirmation.
func (c *Controller) RequestDelete(sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deletes[sessionID] == model.DeleteDeleting {
		return ErrDeleteInFlight
	}
	c.deletes[sessionID] = model.DeletePending
	return nil
}

// CancelDelete returns a pending row to idle. Cancelling an idle row is a no-op.
func (c *Controller) CancelDelete(sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deletes[sessionID] == model.DeleteDeleting {
		return ErrDeleteInFlight
	}
	delete(c.deletes, sessionID)
	return nil
}

// DeleteState returns the row state of sessionID.
func (c *Controller) DeleteState(sessionID string) model.DeleteState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.deletes[sessionID]; ok {
		return s
	}
	return model.DeleteIdle
}

// ConfirmDelete deletes a pending session on the remote service. While the
// call is in flight further confirmations fail with ErrDeleteInFlight. On
// success a focused session loses focus and both rosters are refreshed; on
// failure the row returns to idle and the error is returned. Decision
// records are left untouched.
func (c *Controller) ConfirmDelete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	c.mu.Lock()
	switch c.deletes[sessionID] {
	case model.DeleteDeleting:
		c.mu.Unlock()
		return ErrDeleteInFlight
	case model.DeletePending:
		c.deletes[sessionID] = model.DeleteDeleting
		c.mu.Unlock()
	default:
		c.mu.Unlock()
		return ErrDeleteNotRequested
	}

	if err := c.fetcher.DeleteSession(ctx, sessionID); err != nil {
		c.mu.Lock()
		delete(c.deletes, sessionID)
		c.mu.Unlock()
		metrics.RecordSessionDelete("failed")
		c.log.Warn(ctx, "session delete failed", logger.String("session_id", sessionID), logger.Error(err))
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	metrics.RecordSessionDelete("ok")

	c.mu.Lock()
	delete(c.deletes, sessionID)
	delete(c.issued, sessionID)
	delete(c.applied, sessionID)
	c.active = removeEntry(c.active, sessionID)
	c.completed = removeEntry(c.completed, sessionID)
	wasFocused := c.focused == sessionID
	var target push.Target
	if wasFocused {
		target = c.clearFocusLocked(ctx)
	}
	c.mu.Unlock()

	c.refresher.Forget(sessionID)
	c.log.Info(ctx, "session deleted",
		logger.String("session_id", sessionID),
		logger.Bool("was_focused", wasFocused))

	if wasFocused {
		if err := c.transport.Reconcile(ctx, target); err != nil {
			c.log.Warn(ctx, "closing push channel after delete", logger.Error(err))
		}
	}
	// failure is logged inside; the roster poll catches up
	_ = c.RefreshRosters(ctx)
	return nil
}

// clearFocusLocked leaves nothing focused and opens a new epoch so updates
// for the old focus are discarded.
func (c *Controller) clearFocusLocked(ctx context.Context) push.Target {
	c.snapshot = compose.Default("")
	c.events.Clear(ctx)
	c.focused = ""
	c.epoch++
	metrics.RecordFocusChange(string(model.OriginDelete))
	metrics.UpdateEventLogSize(0)
	return push.Target{Epoch: c.epoch}
}

func removeEntry(list []model.RosterEntry, id string) []model.RosterEntry {
	return slices.DeleteFunc(slices.Clone(list), func(e model.RosterEntry) bool { return e.ID == id })
}
