// Package tally scans the inbox, resolves each thread's labels from the cache
// or Gmail, and counts them.
package tally

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joshsymonds/inboxtally/internal/cache"
	"github.com/joshsymonds/inboxtally/internal/fetch"
	"github.com/joshsymonds/inboxtally/internal/gmail"
	"github.com/joshsymonds/inboxtally/internal/progress"
	"github.com/joshsymonds/inboxtally/internal/rate"
	"github.com/joshsymonds/inboxtally/internal/stability"
)

const (
	defaultPageSize = 100
	maxPageSize     = 500

	inboxQuery  = "in:inbox"
	unreadQuery = "in:inbox is:unread"
)

// ThreadCache is the per-thread metadata store.
type ThreadCache interface {
	Get(id gmail.ThreadID) (cache.Entry, bool, error)
	Put(id gmail.ThreadID, entry cache.Entry) error
	Evict(id gmail.ThreadID) error
	IDs() ([]gmail.ThreadID, error)
}

// IDCache stores the inbox enumeration snapshot.
type IDCache interface {
	Load() ([]gmail.ThreadID, bool)
	Save(ids []gmail.ThreadID) error
}

// LabelSource supplies extra label names for the untagged query.
type LabelSource interface {
	ManagedLabels(ctx context.Context) ([]string, error)
}

// Options controls a single scan.
type Options struct {
	PageSize int
	// Strict aborts the run on the first failed thread fetch instead of
	// skipping the thread.
	Strict bool
	// Predicate overrides the stability check. When nil, TerminalLabels
	// selects it (see stability.ForLabels).
	Predicate      stability.Predicate
	TerminalLabels []string
	// UntaggedLabels are the label names an untagged thread must lack.
	UntaggedLabels []string
	// Progress receives progress counters; nil discards them.
	Progress io.Writer
}

// Service scans the inbox and tallies labels.
type Service struct {
	Client   gmail.Client
	Limiter  rate.Limiter
	Logger   *slog.Logger
	Clock    func() time.Time
	Threads  ThreadCache
	IDs      IDCache
	Fetcher  *fetch.Fetcher
	Untagged LabelSource
}

// NewService constructs a Service with a default Fetcher sharing the client
// and limiter.
func NewService(
	client gmail.Client,
	limiter rate.Limiter,
	logger *slog.Logger,
	threads ThreadCache,
	ids IDCache,
) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Service{
		Client:  client,
		Limiter: limiter,
		Logger:  logger,
		Clock:   time.Now,
		Threads: threads,
		IDs:     ids,
		Fetcher: fetch.New(client, limiter, logger),
	}
}

// Run performs one full scan and returns the report.
func (s *Service) Run(ctx context.Context, opts Options) (Report, error) {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	if err := s.wait(ctx, "rate limit labels"); err != nil {
		return Report{}, err
	}
	known, err := s.Client.ListLabels(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list labels: %w", err)
	}
	dir := gmail.NewLabelDirectory(known)

	pred := opts.Predicate
	if pred == nil {
		pred = stability.ForLabels(dir, opts.TerminalLabels)
	}

	working, err := s.workingSet(ctx, pageSize, opts.Progress)
	if err != nil {
		return Report{}, err
	}
	inbox := make(map[gmail.ThreadID]struct{}, len(working))
	for _, id := range working {
		inbox[id] = struct{}{}
	}

	rep := Report{GeneratedAt: s.Clock(), Total: len(working)}
	rep.Evicted = s.evictStale(inbox)

	trusted, needsFetch := s.partition(working, pred)
	rep.FromCache = len(trusted)

	fetched, failures, err := s.fetchMissing(ctx, needsFetch, opts)
	if err != nil {
		return Report{}, err
	}
	rep.Fetched = len(fetched)
	rep.Failures = failures

	resolved := make(map[gmail.ThreadID][]gmail.LabelID, len(trusted)+len(fetched))
	for id, labels := range trusted {
		resolved[id] = labels
	}
	for id, labels := range fetched {
		resolved[id] = labels
	}
	rep.Counts = CountLabels(resolved, inbox)
	rep.Labels = Rows(rep.Counts, dir, s.Logger)

	untagged, err := s.untaggedLabels(ctx, opts.UntaggedLabels)
	if err != nil {
		return Report{}, err
	}
	if rep.Unread, err = s.countThreads(ctx, gmail.Query{Raw: unreadQuery}, pageSize); err != nil {
		return Report{}, fmt.Errorf("count unread: %w", err)
	}
	if rep.Untagged, err = s.countThreads(ctx, UntaggedQuery(untagged), pageSize); err != nil {
		return Report{}, fmt.Errorf("count untagged: %w", err)
	}

	s.Logger.InfoContext(ctx, "scan complete",
		slog.Int("threads", rep.Total),
		slog.Int("from_cache", rep.FromCache),
		slog.Int("fetched", rep.Fetched),
		slog.Int("evicted", rep.Evicted),
		slog.Int("failed", len(rep.Failures)),
	)
	return rep, nil
}

// workingSet returns the cached inbox enumeration, or enumerates the inbox
// and saves it when no snapshot exists.
func (s *Service) workingSet(ctx context.Context, pageSize int, out io.Writer) ([]gmail.ThreadID, error) {
	if ids, ok := s.IDs.Load(); ok {
		s.Logger.DebugContext(ctx, "using cached thread ids", slog.Int("count", len(ids)))
		return ids, nil
	}
	counter := progress.New(out, "listing inbox threads", 0)
	var ids []gmail.ThreadID
	err := s.eachPage(ctx, gmail.Query{Raw: inboxQuery}, pageSize, func(page gmail.ThreadPage) {
		ids = append(ids, page.IDs...)
		counter.Add(len(page.IDs))
	})
	counter.Done()
	if err != nil {
		return nil, fmt.Errorf("enumerate inbox: %w", err)
	}
	if ids == nil {
		ids = []gmail.ThreadID{}
	}
	if err := s.IDs.Save(ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// evictStale drops cache entries for threads that left the inbox.
func (s *Service) evictStale(inbox map[gmail.ThreadID]struct{}) int {
	cached, err := s.Threads.IDs()
	if err != nil {
		s.Logger.Warn("cannot list cached threads", slog.Any("error", err))
		return 0
	}
	evicted := 0
	for _, id := range cached {
		if _, ok := inbox[id]; ok {
			continue
		}
		if err := s.Threads.Evict(id); err != nil {
			s.Logger.Warn("cannot evict stale thread", slog.String("thread", string(id)), slog.Any("error", err))
			continue
		}
		evicted++
	}
	return evicted
}

// partition splits the working set into threads whose cached labels can be
// trusted and threads that need a fetch.
func (s *Service) partition(
	working []gmail.ThreadID,
	pred stability.Predicate,
) (map[gmail.ThreadID][]gmail.LabelID, []gmail.ThreadID) {
	trusted := make(map[gmail.ThreadID][]gmail.LabelID, len(working))
	var needsFetch []gmail.ThreadID
	seen := make(map[gmail.ThreadID]struct{}, len(working))
	for _, id := range working {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		entry, ok, err := s.Threads.Get(id)
		var readErr *cache.ReadError
		switch {
		case errors.As(err, &readErr):
			s.Logger.Warn("ignoring unreadable cache entry", slog.String("thread", string(id)), slog.Any("error", readErr.Err))
			needsFetch = append(needsFetch, id)
		case err != nil:
			s.Logger.Warn("cache lookup failed", slog.String("thread", string(id)), slog.Any("error", err))
			needsFetch = append(needsFetch, id)
		case !ok || !pred(entry.LabelIDs):
			needsFetch = append(needsFetch, id)
		default:
			trusted[id] = entry.LabelIDs
		}
	}
	return trusted, needsFetch
}

func (s *Service) fetchMissing(
	ctx context.Context,
	ids []gmail.ThreadID,
	opts Options,
) (map[gmail.ThreadID][]gmail.LabelID, []Failure, error) {
	fetched := make(map[gmail.ThreadID][]gmail.LabelID, len(ids))
	if len(ids) == 0 {
		return fetched, nil, nil
	}
	counter := progress.New(opts.Progress, "fetching threads", len(ids))
	var failures []Failure
	err := s.Fetcher.FetchAll(ctx, ids, opts.Strict, func(r fetch.Result) {
		defer counter.Add(1)
		if r.Err != nil {
			s.Logger.Warn("skipping thread", slog.String("thread", string(r.ID)), slog.Any("error", r.Err))
			failures = append(failures, Failure{Thread: r.ID, Error: r.Err.Error()})
			return
		}
		fetched[r.ID] = r.Meta.LabelIDs
		entry := cache.Entry{LabelIDs: r.Meta.LabelIDs, CachedAt: s.Clock()}
		if putErr := s.Threads.Put(r.ID, entry); putErr != nil {
			s.Logger.Warn("cannot cache thread", slog.String("thread", string(r.ID)), slog.Any("error", putErr))
		}
	})
	counter.Done()
	if err != nil {
		return nil, nil, fmt.Errorf("fetch threads: %w", err)
	}
	return fetched, failures, nil
}

func (s *Service) untaggedLabels(ctx context.Context, configured []string) ([]string, error) {
	if s.Untagged == nil {
		return configured, nil
	}
	managed, err := s.Untagged.ManagedLabels(ctx)
	if err != nil {
		return nil, fmt.Errorf("load gmailctl labels: %w", err)
	}
	out := append([]string(nil), configured...)
	for _, name := range managed {
		out = appendIfMissing(out, name)
	}
	return out, nil
}

// countThreads counts every thread matching q by walking all result pages.
func (s *Service) countThreads(ctx context.Context, q gmail.Query, pageSize int) (int, error) {
	total := 0
	err := s.eachPage(ctx, q, pageSize, func(page gmail.ThreadPage) {
		total += len(page.IDs)
	})
	return total, err
}

func (s *Service) eachPage(ctx context.Context, q gmail.Query, pageSize int, fn func(gmail.ThreadPage)) error {
	token := ""
	for {
		if err := s.wait(ctx, "rate limit threads"); err != nil {
			return err
		}
		page, err := s.Client.ListThreads(ctx, q, token, pageSize)
		if err != nil {
			return fmt.Errorf("list threads %q: %w", q.Raw, err)
		}
		fn(page)
		if page.NextPageToken == "" {
			return nil
		}
		token = page.NextPageToken
	}
}

func (s *Service) wait(ctx context.Context, operation string) error {
	return rate.Wait(ctx, s.Limiter, operation)
}

func appendIfMissing(slice []string, val string) []string {
	for _, existing := range slice {
		if existing == val {
			return slice
		}
	}
	return append(slice, val)
}
