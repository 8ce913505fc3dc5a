package downloader

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ligustah/pagepress/internal/docimage"
	pphttp "github.com/ligustah/pagepress/internal/http"
)

// fakeFetcher answers from a function of the page number and tracks how many
// fetches are in flight.
type fakeFetcher struct {
	delay  time.Duration
	answer func(page int) pphttp.Result

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	calls       atomic.Int32
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) pphttp.Result {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return pphttp.Result{Err: err}
	}
	page, err := strconv.Atoi(u.Query().Get("page"))
	if err != nil {
		return pphttp.Result{Err: err}
	}
	return f.answer(page)
}

func okPage(page int) pphttp.Result {
	return pphttp.Result{Body: []byte("page-" + strconv.Itoa(page)), OK: true, Attempts: 1}
}

func builder(t *testing.T) *docimage.URLBuilder {
	t.Helper()
	b, err := docimage.NewURLBuilder("http://docs.example.com/DocImage.axd")
	require.NoError(t, err)
	return b
}

func TestDownloadRangeOrdered(t *testing.T) {
	f := &fakeFetcher{answer: okPage}

	results := DownloadRange(context.Background(), f, builder(t), Request{
		Token:       "T",
		Start:       201,
		End:         260,
		Concurrency: 8,
	})

	require.Len(t, results, 60)
	for i, r := range results {
		assert.Equal(t, 201+i, r.Page)
		assert.True(t, r.OK)
		assert.Equal(t, "page-"+strconv.Itoa(r.Page), string(r.Data))
	}
	assert.Empty(t, Missing(results))
}

func TestDownloadRangeAllFail(t *testing.T) {
	f := &fakeFetcher{answer: func(int) pphttp.Result {
		return pphttp.Result{Attempts: 6, Err: errors.New("boom")}
	}}

	var mu sync.Mutex
	done := map[int]bool{}

	results := DownloadRange(context.Background(), f, builder(t), Request{
		Token:       "T",
		Start:       1,
		End:         25,
		Concurrency: 4,
		OnPageDone: func(page int, ok bool) {
			mu.Lock()
			defer mu.Unlock()
			done[page] = ok
		},
	})

	require.Len(t, results, 25)
	for _, r := range results {
		assert.False(t, r.OK)
		assert.Nil(t, r.Data)
	}
	assert.Len(t, Missing(results), 25)
	assert.Len(t, done, 25)
	for _, ok := range done {
		assert.False(t, ok)
	}
}

func TestDownloadRangeConcurrencyCap(t *testing.T) {
	f := &fakeFetcher{answer: okPage, delay: 10 * time.Millisecond}

	results := DownloadRange(context.Background(), f, builder(t), Request{
		Token:       "T",
		Start:       1,
		End:         40,
		Concurrency: 3,
	})

	require.Len(t, results, 40)
	assert.LessOrEqual(t, f.maxInFlight.Load(), int32(3))
	assert.Equal(t, int32(40), f.calls.Load())
}

func TestDownloadRangeConcurrencyFloor(t *testing.T) {
	f := &fakeFetcher{answer: okPage, delay: time.Millisecond}

	results := DownloadRange(context.Background(), f, builder(t), Request{
		Token: "T",
		Start: 1,
		End:   5,
	})

	require.Len(t, results, 5)
	assert.Equal(t, int32(1), f.maxInFlight.Load())
}

func TestDownloadRangeMixed(t *testing.T) {
	f := &fakeFetcher{answer: func(page int) pphttp.Result {
		if page%3 == 0 {
			return pphttp.Result{Err: errors.New("gone")}
		}
		return okPage(page)
	}}

	results := DownloadRange(context.Background(), f, builder(t), Request{
		Token:       "T",
		Start:       1,
		End:         10,
		Concurrency: 4,
	})

	assert.Equal(t, []int{3, 6, 9}, Missing(results))
}

func TestDownloadRangeCancelled(t *testing.T) {
	f := &fakeFetcher{answer: okPage}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var callbacks atomic.Int32
	results := DownloadRange(ctx, f, builder(t), Request{
		Token:       "T",
		Start:       1,
		End:         10,
		Concurrency: 2,
		OnPageDone:  func(int, bool) { callbacks.Add(1) },
	})

	require.Len(t, results, 10, "every page has an entry")
	assert.Len(t, Missing(results), 10)
	assert.Equal(t, int32(0), f.calls.Load())
	assert.Equal(t, int32(0), callbacks.Load())
}

func TestDownloadRangeCancelMidway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &fakeFetcher{delay: 5 * time.Millisecond}
	f.answer = func(page int) pphttp.Result {
		if page == 3 {
			cancel()
		}
		return okPage(page)
	}

	results := DownloadRange(ctx, f, builder(t), Request{
		Token:       "T",
		Start:       1,
		End:         50,
		Concurrency: 1,
	})

	require.Len(t, results, 50)
	assert.True(t, results[0].OK)
	assert.True(t, results[2].OK, "the in-flight fetch completes")
	assert.Less(t, f.calls.Load(), int32(50))
	assert.False(t, results[49].OK)
}

func TestDownloadRangeEmpty(t *testing.T) {
	f := &fakeFetcher{answer: okPage}
	assert.Nil(t, DownloadRange(context.Background(), f, builder(t), Request{Start: 5, End: 4}))
	assert.Equal(t, int32(0), f.calls.Load())
}
