package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// ─────────────────────────────────────────────────────────────────────────────
// SeenStore — cross-run discovery dedup
// ─────────────────────────────────────────────────────────────────────────────

// SeenStore remembers which source-native ids earlier pipeline runs already
// published, so a rescan of the same window discovers nothing new. Entries
// expire after the configured window; the unique index on
// (source, external_id) in the Pool remains the hard backstop.
type SeenStore struct {
	client *Client
	ttl    time.Duration
	logger logging.Logger
}

// NewSeenStore builds a seen-store. ttl <= 0 falls back to the client default.
func NewSeenStore(client *Client, ttl time.Duration, logger logging.Logger) *SeenStore {
	if ttl <= 0 {
		ttl = client.DefaultTTL()
	}
	return &SeenStore{client: client, ttl: ttl, logger: logger}
}

// Seen reports, for each external id, whether an earlier run already
// published it. Ids are checked in one pipelined round trip.
func (s *SeenStore) Seen(ctx context.Context, source rtypes.Source, externalIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(externalIDs))
	if len(externalIDs) == 0 {
		return out, nil
	}
	if err := s.client.guard(); err != nil {
		return nil, err
	}

	pipe := s.client.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(externalIDs))
	for i, id := range externalIDs {
		cmds[i] = pipe.Exists(ctx, s.key(source, id))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, appErrors.Wrap(err, appErrors.CodeStorageUnavailable, "seen-store lookup failed")
	}

	for i, id := range externalIDs {
		out[id] = cmds[i].Val() > 0
	}
	return out, nil
}

// Mark records external ids as published. Each id gets its own expiry so the
// dedup window slides per item rather than per run.
func (s *SeenStore) Mark(ctx context.Context, source rtypes.Source, externalIDs []string) error {
	if len(externalIDs) == 0 {
		return nil
	}
	if err := s.client.guard(); err != nil {
		return err
	}

	pipe := s.client.rdb.Pipeline()
	for _, id := range externalIDs {
		pipe.Set(ctx, s.key(source, id), "1", s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return appErrors.Wrap(err, appErrors.CodeStorageUnavailable, "seen-store mark failed")
	}

	s.logger.Debug("seen-store marked ids",
		logging.String("source", string(source)),
		logging.Int("count", len(externalIDs)))
	return nil
}

func (s *SeenStore) key(source rtypes.Source, externalID string) string {
	return s.client.Key("seen", string(source), externalID)
}
