package telegram

import (
	"context"

	e "nuclight.org/who-update-bot/pkg/entities"
	"nuclight.org/who-update-bot/pkg/logger"
)

type ConnectionLookup interface {
	GetBusinessConnection(ctx context.Context, connectionID string) (e.BusinessConnection, error)
}

// Resolver resolves business connection owners. Failures are logged and
// reported as an unknown owner, which callers treat as "do not notify".
type Resolver struct {
	Log    logger.Logger
	Lookup ConnectionLookup
}

func (r *Resolver) Resolve(ctx context.Context, connectionID string) e.BusinessConnection {
	log := r.Log.With("tg_business_connection_id", connectionID)

	if connectionID == "" {
		log.Debug("no business connection id, skipping lookup")
		return e.BusinessConnection{}
	}

	conn, err := r.Lookup.GetBusinessConnection(ctx, connectionID)
	if err != nil {
		log.Warn("resolving business connection", "error", err)
		return e.BusinessConnection{}
	}

	if !conn.Known() {
		log.Warn("business connection has no owner chat")
	}

	return conn
}
