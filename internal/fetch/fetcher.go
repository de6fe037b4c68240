// Package fetch retrieves thread label data from Gmail with retries and
// bounded parallelism.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joshsymonds/inboxtally/internal/gmail"
	"github.com/joshsymonds/inboxtally/internal/rate"
)

// DefaultConcurrency caps in-flight thread requests.
const DefaultConcurrency = 3

// ErrRetriesExhausted marks a thread that stayed rate limited through every
// retry.
var ErrRetriesExhausted = errors.New("rate limit retries exhausted")

// Fetcher gets thread metadata one thread at a time.
type Fetcher struct {
	Client      gmail.Client
	Limiter     rate.Limiter
	Logger      *slog.Logger
	Retry       RetryPolicy
	Concurrency int
	Sleep       func(ctx context.Context, d time.Duration) error
}

// New returns a Fetcher with the default retry policy and concurrency.
func New(client gmail.Client, limiter rate.Limiter, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Fetcher{
		Client:      client,
		Limiter:     limiter,
		Logger:      logger,
		Retry:       DefaultRetryPolicy(),
		Concurrency: DefaultConcurrency,
		Sleep:       sleepContext,
	}
}

// Fetch returns the labels of one thread. Rate-limit rejections are retried
// per the retry policy; every other error is returned at once. The returned
// label slice is never nil.
func (f *Fetcher) Fetch(ctx context.Context, id gmail.ThreadID) (gmail.ThreadMeta, error) {
	sleep := f.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	for retry := 0; ; retry++ {
		if err := rate.Wait(ctx, f.Limiter, "rate limit thread get"); err != nil {
			return gmail.ThreadMeta{}, err
		}
		meta, err := f.Client.GetThread(ctx, id)
		if err == nil {
			if len(meta.LabelIDs) == 0 {
				f.Logger.DebugContext(ctx, "thread has no label data", slog.String("thread", string(id)))
				meta.LabelIDs = []gmail.LabelID{}
			}
			meta.ID = id
			return meta, nil
		}
		if !gmail.IsRateLimited(err) {
			return gmail.ThreadMeta{}, fmt.Errorf("get thread %s: %w", id, err)
		}
		if retry >= f.Retry.MaxRetries {
			return gmail.ThreadMeta{}, fmt.Errorf("get thread %s: %w: %w", id, ErrRetriesExhausted, err)
		}
		delay := f.Retry.delay(retry + 1)
		f.Logger.WarnContext(ctx, "rate limited, retrying",
			slog.String("thread", string(id)),
			slog.Int("attempt", retry+1),
			slog.Duration("delay", delay),
		)
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return gmail.ThreadMeta{}, fmt.Errorf("get thread %s: %w", id, sleepErr)
		}
	}
}

// Result is the outcome of fetching one thread.
type Result struct {
	ID   gmail.ThreadID
	Meta gmail.ThreadMeta
	Err  error
}

// FetchAll fetches ids with at most Concurrency requests in flight and hands
// every outcome to fn. Calls to fn are serialized. With strict set, the first
// failure cancels the remaining fetches and is returned, and fn never sees a
// failed Result.
func (f *Fetcher) FetchAll(ctx context.Context, ids []gmail.ThreadID, strict bool, fn func(Result)) error {
	limit := f.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	var mu sync.Mutex
	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			meta, err := f.Fetch(gctx, id)
			if err != nil && strict {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			fn(Result{ID: id, Meta: meta, Err: err})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
