package reservation

import (
	"context"
	"log/slog"
)

// reap runs on its own goroutine once the timer armed by Reserve fires.
// It claims res only if res is still the live, armed entry for its grant key,
// so a concurrent MarkFulfilled and a firing timer never both act. The delete
// is best-effort: failures are logged and counted, never retried, and the
// entry is dropped either way.
func (t *Table) reap(res *Reservation) {
	t.mu.Lock()
	cur, ok := t.entries[res.GrantKey]
	if !ok || cur != res || res.state != stateArmed {
		t.mu.Unlock()
		return
	}
	res.state = stateReaping
	t.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), t.deleteTimeout)
	defer cancel()

	start := t.clock.Now()
	err := t.deleter.DeleteObject(ctx, res.ObjectKey)
	t.observer.RecordReap(t.clock.Since(start), err)

	if err != nil {
		t.logger.Error("failed to delete unfulfilled upload",
			slog.String("grant_key", res.GrantKey),
			slog.String("object_key", res.ObjectKey),
			slog.String("error", err.Error()),
		)
	} else {
		t.logger.Info("reaped unfulfilled upload",
			slog.String("grant_key", res.GrantKey),
			slog.String("object_key", res.ObjectKey),
		)
	}

	t.mu.Lock()
	if cur, ok := t.entries[res.GrantKey]; ok && cur == res {
		delete(t.entries, res.GrantKey)
	}
	t.observer.SetLive(len(t.entries))
	t.mu.Unlock()
}
