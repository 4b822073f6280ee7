package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
	"github.com/turtacn/ResearchPool-Intelligence/pkg/types/common"
	rtypes "github.com/turtacn/ResearchPool-Intelligence/pkg/types/research"
)

// ─────────────────────────────────────────────────────────────────────────────
// RunLock — one pipeline run per source
// ─────────────────────────────────────────────────────────────────────────────

// Release and extend compare the stored token first so a lease that expired
// and was re-acquired elsewhere is never touched.
var (
	releaseScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0`)

	extendScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		end
		return 0`)
)

// defaultLeaseTTL bounds how long a crashed worker blocks its source.
const defaultLeaseTTL = 2 * time.Minute

// RunLock hands out per-source leases so at most one pipeline run per source
// is in flight across all workers. A second acquire for the same source
// reports Conflict immediately rather than queueing.
type RunLock struct {
	client *Client
	ttl    time.Duration
	logger logging.Logger
}

// NewRunLock builds a run lock. ttl <= 0 uses the default lease TTL.
func NewRunLock(client *Client, ttl time.Duration, logger logging.Logger) *RunLock {
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &RunLock{client: client, ttl: ttl, logger: logger}
}

// Acquire takes the lease for source. While the lease is held a background
// watchdog keeps extending it, so long runs survive the TTL and a crashed
// holder frees the source after at most one TTL.
func (l *RunLock) Acquire(ctx context.Context, source rtypes.Source) (*RunLease, error) {
	if err := l.client.guard(); err != nil {
		return nil, err
	}

	key := l.client.Key("run", string(source))
	token := common.NewID().String()

	ok, err := l.client.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.CodeStorageUnavailable, "run lock acquire failed")
	}
	if !ok {
		return nil, appErrors.Conflict("pipeline already running for source " + string(source))
	}

	l.logger.Debug("run lock acquired",
		logging.String("source", string(source)), logging.String("key", key))

	lease := &RunLease{
		client: l.client,
		key:    key,
		token:  token,
		ttl:    l.ttl,
		logger: l.logger,
		stop:   make(chan struct{}),
	}
	go lease.watchdog()
	return lease, nil
}

// RunLease is a held per-source lock. Release must be called when the run
// finishes, normally via defer.
type RunLease struct {
	client *Client
	key    string
	token  string
	ttl    time.Duration
	logger logging.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// Release stops the watchdog and deletes the lease if this holder still owns
// it. Safe to call more than once.
func (le *RunLease) Release(ctx context.Context) error {
	le.stopOnce.Do(func() { close(le.stop) })

	if err := le.client.guard(); err != nil {
		return err
	}
	n, err := releaseScript.Run(ctx, le.client.rdb, []string{le.key}, le.token).Int()
	if err != nil && err != redis.Nil {
		return appErrors.Wrap(err, appErrors.CodeStorageUnavailable, "run lock release failed")
	}
	if n == 0 {
		le.logger.Warn("run lock already lost at release", logging.String("key", le.key))
	}
	return nil
}

// watchdog extends the lease at a third of its TTL until Release.
func (le *RunLease) watchdog() {
	ticker := time.NewTicker(le.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-le.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			n, err := extendScript.Run(ctx, le.client.rdb,
				[]string{le.key}, le.token, le.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				le.logger.Warn("run lock extend failed",
					logging.String("key", le.key), logging.Err(err))
				continue
			}
			if n == 0 {
				le.logger.Warn("run lock lost, stopping watchdog", logging.String("key", le.key))
				return
			}
		}
	}
}
