package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/joshsymonds/inboxtally/internal/gmail"
)

type fakeThreadClient struct {
	mu       sync.Mutex
	calls    map[gmail.ThreadID]int
	errs     map[gmail.ThreadID][]error
	labels   map[gmail.ThreadID][]gmail.LabelID
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func newFakeThreadClient() *fakeThreadClient {
	return &fakeThreadClient{
		calls:  map[gmail.ThreadID]int{},
		errs:   map[gmail.ThreadID][]error{},
		labels: map[gmail.ThreadID][]gmail.LabelID{},
	}
}

func (f *fakeThreadClient) ListLabels(ctx context.Context) ([]gmail.Label, error) {
	_ = ctx
	return nil, nil
}

func (f *fakeThreadClient) ListThreads(
	ctx context.Context,
	q gmail.Query,
	pageToken string,
	pageSize int,
) (gmail.ThreadPage, error) {
	_ = ctx
	_ = q
	_ = pageToken
	_ = pageSize
	return gmail.ThreadPage{}, nil
}

func (f *fakeThreadClient) GetThread(ctx context.Context, id gmail.ThreadID) (gmail.ThreadMeta, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return gmail.ThreadMeta{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if queue := f.errs[id]; len(queue) > 0 {
		err := queue[0]
		if len(queue) > 1 {
			f.errs[id] = queue[1:]
		}
		if err != nil {
			return gmail.ThreadMeta{}, err
		}
	}
	return gmail.ThreadMeta{ID: id, LabelIDs: f.labels[id]}, nil
}

func (f *fakeThreadClient) callCount(id gmail.ThreadID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFetcher(client gmail.Client, sleeper *recordingSleep) *Fetcher {
	f := New(client, nil, slogDiscard())
	f.Sleep = sleeper.sleep
	return f
}

func rateLimited() error { return &googleapi.Error{Code: 429, Message: "Too Many Requests"} }

func TestFetchSuccess(t *testing.T) {
	client := newFakeThreadClient()
	client.labels["t1"] = []gmail.LabelID{"INBOX", "L_A"}
	f := newTestFetcher(client, &recordingSleep{})

	meta, err := f.Fetch(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, gmail.ThreadID("t1"), meta.ID)
	assert.Equal(t, []gmail.LabelID{"INBOX", "L_A"}, meta.LabelIDs)
}

func TestFetchEmptyLabelsAreValid(t *testing.T) {
	client := newFakeThreadClient()
	f := newTestFetcher(client, &recordingSleep{})

	meta, err := f.Fetch(context.Background(), "t1")
	require.NoError(t, err)
	assert.NotNil(t, meta.LabelIDs)
	assert.Empty(t, meta.LabelIDs)
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	client := newFakeThreadClient()
	client.errs["t1"] = []error{rateLimited(), rateLimited(), nil}
	client.labels["t1"] = []gmail.LabelID{"L_A"}
	sleeper := &recordingSleep{}
	f := newTestFetcher(client, sleeper)

	meta, err := f.Fetch(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, []gmail.LabelID{"L_A"}, meta.LabelIDs)
	assert.Equal(t, 3, client.callCount("t1"))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.delays)
}

func TestFetchExhaustsRetryBudget(t *testing.T) {
	client := newFakeThreadClient()
	client.errs["t1"] = []error{rateLimited()}
	sleeper := &recordingSleep{}
	f := newTestFetcher(client, sleeper)

	_, err := f.Fetch(context.Background(), "t1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.True(t, gmail.IsRateLimited(err), "last API error stays reachable")

	assert.Equal(t, 4, client.callCount("t1"), "one attempt plus three retries")
	require.Len(t, sleeper.delays, 3)
	for i := 1; i < len(sleeper.delays); i++ {
		assert.GreaterOrEqual(t, sleeper.delays[i], sleeper.delays[i-1])
	}
}

func TestFetchNonRateLimitErrorIsNotRetried(t *testing.T) {
	client := newFakeThreadClient()
	client.errs["t1"] = []error{&googleapi.Error{Code: 404}}
	sleeper := &recordingSleep{}
	f := newTestFetcher(client, sleeper)

	_, err := f.Fetch(context.Background(), "t1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 1, client.callCount("t1"))
	assert.Empty(t, sleeper.delays)
}

func TestFetchCustomPolicy(t *testing.T) {
	client := newFakeThreadClient()
	client.errs["t1"] = []error{rateLimited()}
	sleeper := &recordingSleep{}
	f := newTestFetcher(client, sleeper)
	f.Retry = RetryPolicy{MaxRetries: 1, Backoff: Linear(10 * time.Millisecond)}

	_, err := f.Fetch(context.Background(), "t1")
	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 2, client.callCount("t1"))
	assert.Equal(t, []time.Duration{10 * time.Millisecond}, sleeper.delays)
}

func TestFetchAllBoundsConcurrency(t *testing.T) {
	client := newFakeThreadClient()
	client.delay = 20 * time.Millisecond
	ids := []gmail.ThreadID{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, id := range ids {
		client.labels[id] = []gmail.LabelID{gmail.LabelID("L_" + id)}
	}
	f := newTestFetcher(client, &recordingSleep{})

	var got []gmail.ThreadID
	err := f.FetchAll(context.Background(), ids, false, func(r Result) {
		assert.NoError(t, r.Err)
		got = append(got, r.ID)
	})
	require.NoError(t, err)

	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	assert.Equal(t, ids, got)
	assert.LessOrEqual(t, int(client.maxSeen.Load()), DefaultConcurrency)
	assert.Greater(t, int(client.maxSeen.Load()), 1, "fetches overlap")
}

func TestFetchAllIsolatesFailures(t *testing.T) {
	client := newFakeThreadClient()
	client.errs["bad"] = []error{errors.New("backend error")}
	client.labels["good"] = []gmail.LabelID{"L_A"}
	f := newTestFetcher(client, &recordingSleep{})

	results := map[gmail.ThreadID]Result{}
	err := f.FetchAll(context.Background(), []gmail.ThreadID{"good", "bad"}, false, func(r Result) {
		results[r.ID] = r
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NoError(t, results["good"].Err)
	assert.Error(t, results["bad"].Err)
}

func TestFetchAllStrictAborts(t *testing.T) {
	client := newFakeThreadClient()
	client.errs["bad"] = []error{rateLimited()}
	f := newTestFetcher(client, &recordingSleep{})

	var failed []Result
	err := f.FetchAll(context.Background(), []gmail.ThreadID{"bad"}, true, func(r Result) {
		if r.Err != nil {
			failed = append(failed, r)
		}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Empty(t, failed)
}

func TestLinearBackoff(t *testing.T) {
	b := Linear(time.Second)
	assert.Equal(t, time.Second, b(0))
	assert.Equal(t, time.Second, b(1))
	assert.Equal(t, 3*time.Second, b(3))
}
