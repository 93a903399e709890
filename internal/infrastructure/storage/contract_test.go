package storage

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type storeFactory func(t *testing.T, clock *testClock) ports.ArticleStore

func runStoreContract(t *testing.T, factory storeFactory) {
	t.Run("CreateAndGet", func(t *testing.T) {
		ctx := context.Background()
		clock := newTestClock()
		store := factory(t, clock)

		id, err := store.Create(ctx, "@alanya", "original text", "42")
		require.NoError(t, err)
		assert.Equal(t, int64(1), id)

		second, err := store.Create(ctx, "@alanya", "another", "")
		require.NoError(t, err)
		assert.Greater(t, second, id, "ids grow monotonically")

		article, found, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "@alanya", article.Source)
		assert.Equal(t, "42", article.SourceMessageID)
		assert.Equal(t, "original text", article.OriginalContent)
		assert.Nil(t, article.ProcessedContent)
		assert.False(t, article.IsApproved)
		assert.False(t, article.IsPosted)
		assert.Nil(t, article.PostedAt)
		assert.True(t, article.CreatedAt.Equal(clock.Now()))

		_, found, err = store.Get(ctx, 999)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("UnknownIDsReportFalse", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t, newTestClock())

		for name, op := range map[string]func() (bool, error){
			"set":     func() (bool, error) { return store.SetProcessedContent(ctx, 7, "x") },
			"approve": func() (bool, error) { return store.Approve(ctx, 7) },
			"posted":  func() (bool, error) { return store.MarkPosted(ctx, 7) },
			"failure": func() (bool, error) { return store.RecordRewriteFailure(ctx, 7) },
		} {
			ok, err := op()
			require.NoError(t, err, name)
			assert.False(t, ok, name)
		}
	})

	t.Run("PendingNeedsProcessedContent", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t, newTestClock())

		id, err := store.Create(ctx, "src", strings.Repeat("A", 60), "")
		require.NoError(t, err)

		pending, err := store.ListPending(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)

		ok, err := store.SetProcessedContent(ctx, id, "B")
		require.NoError(t, err)
		require.True(t, ok)

		pending, err = store.ListPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, id, pending[0].ID)
		assert.Equal(t, "B", pending[0].Text())
	})

	t.Run("BlankProcessedContentRefused", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t, newTestClock())

		id, err := store.Create(ctx, "src", "text", "")
		require.NoError(t, err)

		for _, blank := range []string{"", "  \n"} {
			_, err := store.SetProcessedContent(ctx, id, blank)
			require.ErrorIs(t, err, domain.ErrEmptyContent)
		}

		article, _, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, article.ProcessedContent)

		pending, err := store.ListPending(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("Ordering", func(t *testing.T) {
		ctx := context.Background()
		clock := newTestClock()
		store := factory(t, clock)

		a, err := store.Create(ctx, "src", "A", "")
		require.NoError(t, err)
		clock.Advance(time.Second)
		b, err := store.Create(ctx, "src", "B", "")
		require.NoError(t, err)
		clock.Advance(time.Second)
		c, err := store.Create(ctx, "src", "C", "")
		require.NoError(t, err)

		for _, id := range []int64{a, b, c} {
			_, err := store.SetProcessedContent(ctx, id, "text")
			require.NoError(t, err)
		}

		pending, err := store.ListPending(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, []int64{c, b, a}, ids(pending), "pending is newest first")

		pending, err = store.ListPending(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, []int64{c, b}, ids(pending))

		for _, id := range []int64{a, b} {
			ok, err := store.Approve(ctx, id)
			require.NoError(t, err)
			require.True(t, ok)
		}

		queue, err := store.ListApprovedUnposted(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []int64{a, b}, ids(queue), "queue is oldest first")

		queue, err = store.ListApprovedUnposted(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, []int64{a}, ids(queue))
	})

	t.Run("ApproveIsIdempotent", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t, newTestClock())

		id, err := store.Create(ctx, "src", "text", "")
		require.NoError(t, err)
		_, err = store.SetProcessedContent(ctx, id, "done")
		require.NoError(t, err)

		ok, err := store.Approve(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		once, _, err := store.Get(ctx, id)
		require.NoError(t, err)

		ok, err = store.Approve(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)
		twice, _, err := store.Get(ctx, id)
		require.NoError(t, err)

		assert.Equal(t, once, twice)
	})

	t.Run("MarkPostedKeepsFirstTimestamp", func(t *testing.T) {
		ctx := context.Background()
		clock := newTestClock()
		store := factory(t, clock)

		id, err := store.Create(ctx, "src", "text", "")
		require.NoError(t, err)

		_, err = store.MarkPosted(ctx, id)
		require.ErrorIs(t, err, domain.ErrNotApproved)

		_, err = store.Approve(ctx, id)
		require.NoError(t, err)

		clock.Advance(time.Minute)
		firstPostedAt := clock.Now()
		ok, err := store.MarkPosted(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)

		clock.Advance(time.Hour)
		ok, err = store.MarkPosted(ctx, id)
		require.NoError(t, err)
		require.True(t, ok)

		article, _, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, article.IsPosted)
		require.NotNil(t, article.PostedAt)
		assert.True(t, article.PostedAt.Equal(firstPostedAt), "posted_at %v, want %v", article.PostedAt, firstPostedAt)

		queue, err := store.ListApprovedUnposted(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, queue)
	})

	t.Run("RewriteRetryBookkeeping", func(t *testing.T) {
		ctx := context.Background()
		clock := newTestClock()
		store := factory(t, clock)

		stuck, err := store.Create(ctx, "src", "stuck", "")
		require.NoError(t, err)
		clock.Advance(time.Second)
		done, err := store.Create(ctx, "src", "done", "")
		require.NoError(t, err)
		_, err = store.SetProcessedContent(ctx, done, "ok")
		require.NoError(t, err)

		for i := 0; i < 2; i++ {
			ok, err := store.RecordRewriteFailure(ctx, stuck)
			require.NoError(t, err)
			require.True(t, ok)
		}

		retry, err := store.ListUnprocessed(ctx, 3, 10)
		require.NoError(t, err)
		require.Equal(t, []int64{stuck}, ids(retry))
		assert.Equal(t, 2, retry[0].RewriteAttempts)

		_, err = store.RecordRewriteFailure(ctx, stuck)
		require.NoError(t, err)

		retry, err = store.ListUnprocessed(ctx, 3, 10)
		require.NoError(t, err)
		assert.Empty(t, retry, "articles past the attempt budget are not retried")
	})

	t.Run("AlreadyIngested", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t, newTestClock())

		_, err := store.Create(ctx, "@one", "a", "100")
		require.NoError(t, err)
		_, err = store.Create(ctx, "@two", "b", "101")
		require.NoError(t, err)

		seen, err := store.AlreadyIngested(ctx, "@one", []string{"100", "101", "102"})
		require.NoError(t, err)
		assert.Equal(t, map[string]bool{"100": true}, seen)

		seen, err = store.AlreadyIngested(ctx, "@one", nil)
		require.NoError(t, err)
		assert.Empty(t, seen)
	})

	t.Run("Stats", func(t *testing.T) {
		ctx := context.Background()
		store := factory(t, newTestClock())

		raw, err := store.Create(ctx, "src", "raw", "")
		require.NoError(t, err)
		pending, err := store.Create(ctx, "src", "pending", "")
		require.NoError(t, err)
		queued, err := store.Create(ctx, "src", "queued", "")
		require.NoError(t, err)
		posted, err := store.Create(ctx, "src", "posted", "")
		require.NoError(t, err)
		_ = raw

		for _, id := range []int64{pending, queued, posted} {
			_, err := store.SetProcessedContent(ctx, id, "x")
			require.NoError(t, err)
		}
		for _, id := range []int64{queued, posted} {
			_, err := store.Approve(ctx, id)
			require.NoError(t, err)
		}
		_, err = store.MarkPosted(ctx, posted)
		require.NoError(t, err)

		stats, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, domain.Stats{Pending: 1, ApprovedUnposted: 1, Posted: 1, Total: 4}, stats)
	})

	t.Run("RandomOperationsKeepInvariants", func(t *testing.T) {
		ctx := context.Background()
		clock := newTestClock()
		store := factory(t, clock)
		rng := rand.New(rand.NewSource(7))

		var created int64
		for step := 0; step < 200; step++ {
			clock.Advance(time.Second)
			target := rng.Int63n(created+2) + 1

			switch rng.Intn(5) {
			case 0:
				id, err := store.Create(ctx, "src", "text", "")
				require.NoError(t, err)
				created = id
			case 1:
				_, err := store.SetProcessedContent(ctx, target, "rewritten")
				require.NoError(t, err)
			case 2:
				_, err := store.Approve(ctx, target)
				require.NoError(t, err)
			case 3:
				_, err := store.MarkPosted(ctx, target)
				if err != nil && !errors.Is(err, domain.ErrNotApproved) {
					require.NoError(t, err)
				}
			case 4:
				_, err := store.RecordRewriteFailure(ctx, target)
				require.NoError(t, err)
			}
		}

		for id := int64(1); id <= created; id++ {
			article, found, err := store.Get(ctx, id)
			require.NoError(t, err)
			require.True(t, found)
			if article.IsPosted {
				assert.True(t, article.IsApproved, "article %d posted without approval", id)
				assert.NotNil(t, article.PostedAt, "article %d posted without timestamp", id)
			}
		}

		pending, err := store.ListPending(ctx, 0)
		require.NoError(t, err)
		for _, a := range pending {
			assert.NotNil(t, a.ProcessedContent)
			assert.False(t, a.IsApproved)
		}

		queue, err := store.ListApprovedUnposted(ctx, 0)
		require.NoError(t, err)
		for i, a := range queue {
			assert.True(t, a.Publishable())
			if i > 0 {
				assert.False(t, a.CreatedAt.Before(queue[i-1].CreatedAt))
			}
		}
	})
}

func ids(articles []domain.Article) []int64 {
	out := make([]int64, 0, len(articles))
	for _, a := range articles {
		out = append(out, a.ID)
	}
	return out
}
