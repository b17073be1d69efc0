package realtime

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/seuros/haven/internal/logging"
)

// ChannelOrgChanged carries the slug of an inserted, updated or deleted organization.
const ChannelOrgChanged = "haven_org_changed"

// Invalidator drops cached state for an organization.
type Invalidator interface {
	Invalidate(slug string)
}

// NotifyOrgChanged publishes a change by hand. Writes to organizations already notify
// through a trigger.
func NotifyOrgChanged(ctx context.Context, db *sql.DB, slug string) error {
	_, err := db.ExecContext(ctx, "SELECT pg_notify($1, $2)", ChannelOrgChanged, slug)
	return err
}

// StartListener listens for organization changes until ctx is done. Each change
// invalidates the resolver cache before live sessions are told about it.
func StartListener(ctx context.Context, databaseURL string, cache Invalidator, hub *Hub) error {
	listener := pq.NewListener(databaseURL, 5*time.Second, time.Minute, func(event pq.ListenerEventType, err error) {
		if err != nil {
			logging.L().Warn("organization listener event", zap.Int("event", int(event)), zap.Error(err))
		}
	})

	if err := listener.Listen(ChannelOrgChanged); err != nil {
		_ = listener.Close()
		return err
	}

	go func() {
		defer func() {
			_ = listener.Close()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case n := <-listener.Notify:
				handleNotification(n, cache, hub)
			case <-time.After(time.Minute):
				if err := listener.Ping(); err != nil {
					logging.L().Warn("organization listener ping failed", zap.Error(err))
				}
			}
		}
	}()

	return nil
}

// handleNotification applies one notification. A nil notification means the
// connection was re-established and changes may have been missed.
func handleNotification(n *pq.Notification, cache Invalidator, hub *Hub) {
	if n == nil {
		if all, ok := cache.(interface{ InvalidateAll() }); ok {
			all.InvalidateAll()
		}
		return
	}
	slug := strings.TrimSpace(n.Extra)
	if slug == "" {
		return
	}
	logging.L().Debug("organization changed", zap.String("slug", slug))
	cache.Invalidate(slug)
	if hub != nil {
		hub.OrgChanged(slug)
	}
}
