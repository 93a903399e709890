package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/ports"
)

type memStore struct {
	mu       sync.Mutex
	articles map[int64]*domain.Article
	nextID   int64
	creates  int
	now      time.Time
}

var _ ports.ArticleStore = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{articles: map[int64]*domain.Article{}, now: time.Date(2025, time.May, 1, 8, 0, 0, 0, time.UTC)}
}

func (s *memStore) tick() time.Time {
	s.now = s.now.Add(time.Second)
	return s.now
}

func (s *memStore) Create(_ context.Context, source, original, messageID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.creates++
	s.articles[s.nextID] = &domain.Article{
		ID: s.nextID, Source: source, SourceMessageID: messageID,
		OriginalContent: original, CreatedAt: s.tick(),
	}
	return s.nextID, nil
}

func (s *memStore) SetProcessedContent(_ context.Context, id int64, text string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[id]
	if !ok {
		return false, nil
	}
	a.ProcessedContent = &text
	return true, nil
}

func (s *memStore) RecordRewriteFailure(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[id]
	if !ok {
		return false, nil
	}
	a.RewriteAttempts++
	return true, nil
}

func (s *memStore) Approve(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[id]
	if !ok {
		return false, nil
	}
	a.IsApproved = true
	return true, nil
}

func (s *memStore) MarkPosted(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[id]
	if !ok {
		return false, nil
	}
	if !a.IsApproved {
		return false, domain.ErrNotApproved
	}
	if !a.IsPosted {
		at := s.tick()
		a.IsPosted = true
		a.PostedAt = &at
	}
	return true, nil
}

func (s *memStore) Get(_ context.Context, id int64) (domain.Article, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[id]
	if !ok {
		return domain.Article{}, false, nil
	}
	return *a, true, nil
}

func (s *memStore) filter(keep func(domain.Article) bool, newestFirst bool, limit int) []domain.Article {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Article
	for _, a := range s.articles {
		if keep(*a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *memStore) ListPending(_ context.Context, limit int) ([]domain.Article, error) {
	return s.filter(domain.Article.Pending, true, limit), nil
}

func (s *memStore) ListApprovedUnposted(_ context.Context, limit int) ([]domain.Article, error) {
	return s.filter(domain.Article.Publishable, false, limit), nil
}

func (s *memStore) ListUnprocessed(_ context.Context, maxAttempts, limit int) ([]domain.Article, error) {
	return s.filter(func(a domain.Article) bool {
		return !a.Processed() && a.RewriteAttempts < maxAttempts
	}, false, limit), nil
}

func (s *memStore) AlreadyIngested(_ context.Context, source string, ids []string) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	for _, id := range ids {
		for _, a := range s.articles {
			if a.Source == source && a.SourceMessageID == id {
				seen[id] = true
			}
		}
	}
	return seen, nil
}

func (s *memStore) Stats(context.Context) (domain.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st domain.Stats
	for _, a := range s.articles {
		st.Total++
		switch {
		case a.IsPosted:
			st.Posted++
		case a.IsApproved:
			st.ApprovedUnposted++
		case a.Processed():
			st.Pending++
		}
	}
	return st, nil
}

func (s *memStore) Close() error { return nil }

// seed creates an article in the given state and returns its id.
func (s *memStore) seed(processed string, approved bool) int64 {
	id, _ := s.Create(context.Background(), "src", "original "+processed, "")
	if processed != "" {
		_, _ = s.SetProcessedContent(context.Background(), id, processed)
	}
	if approved {
		_, _ = s.Approve(context.Background(), id)
	}
	return id
}

type fakeSource struct {
	messages map[string][]domain.Message
	errs     map[string]error
	calls    []string
}

func (f *fakeSource) Fetch(_ context.Context, source string, _ time.Time, limit int) ([]domain.Message, error) {
	f.calls = append(f.calls, source)
	if err := f.errs[source]; err != nil {
		return nil, err
	}
	msgs := f.messages[source]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

type fakeRewriter struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls int
	block chan struct{}
}

func (f *fakeRewriter) Rewrite(ctx context.Context, text string) (string, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	fail := f.fail[text]
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if fail {
		return "", errors.New("provider unavailable")
	}
	return "rewritten: " + text, nil
}

type fakeDeliverer struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (f *fakeDeliverer) Deliver(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, text)
	return nil
}

func noPause(context.Context, time.Duration) error { return nil }
