package procedure

import (
	"context"
	"database/sql"
	"time"
)

// Watch polls PRAGMA data_version and calls Reload whenever the routes
// database was written. It blocks until ctx is cancelled.
//
//	go router.Watch(ctx, db, 200*time.Millisecond)
func (r *Router) Watch(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := r.Reload(ctx, db); err != nil {
		r.logger.Error("procedure: initial reload failed", "error", err)
	}
	var lastVersion int64
	if err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&lastVersion); err != nil {
		r.logger.Warn("procedure: data_version read failed", "error", err)
	}

	r.logger.Info("route watcher started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("route watcher stopped")
			return
		case <-ticker.C:
			var ver int64
			if err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&ver); err != nil {
				r.logger.Warn("procedure: data_version poll failed", "error", err)
				continue
			}
			if ver == lastVersion {
				continue
			}
			r.logger.Info("routes changed, reloading",
				"old_version", lastVersion, "new_version", ver)
			if err := r.Reload(ctx, db); err != nil {
				r.logger.Error("procedure: reload failed", "error", err)
			}
			lastVersion = ver
		}
	}
}
