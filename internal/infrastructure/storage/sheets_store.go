package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"NewsDesk/internal/domain"
	"NewsDesk/internal/logging"
	"NewsDesk/internal/ports"
)

var sheetHeader = []any{
	"id",
	"source_group",
	"source_message_id",
	"original_content",
	"processed_content",
	"is_approved",
	"is_posted",
	"created_at",
	"posted_at",
	"rewrite_attempts",
}

// Column indexes inside a worksheet row.
const (
	colID = iota
	colSource
	colMessageID
	colOriginal
	colProcessed
	colApproved
	colPosted
	colCreatedAt
	colPostedAt
	colAttempts
	columnCount
)

const (
	sheetTrue  = "TRUE"
	sheetFalse = "FALSE"
)

// SheetValues is the slice of the spreadsheet values API the store relies on.
// Ranges use A1 notation, e.g. "news_articles!E7".
type SheetValues interface {
	Get(ctx context.Context, rng string) ([][]any, error)
	Append(ctx context.Context, rng string, rows [][]any) error
	Update(ctx context.Context, rng string, rows [][]any) error
}

// SheetsStore keeps one article per worksheet row below a header row.
// Ids come from the last row, so concurrent writers from other processes may collide;
// the mutex only serialises writers inside this process.
type SheetsStore struct {
	values SheetValues
	sheet  string
	mu     sync.Mutex
	now    func() time.Time
	logger *slog.Logger
}

var _ ports.ArticleStore = (*SheetsStore)(nil)

// NewSheetsStore validates or writes the header row of the worksheet.
func NewSheetsStore(ctx context.Context, values SheetValues, worksheet string) (*SheetsStore, error) {
	if worksheet == "" {
		worksheet = articlesTable
	}

	s := &SheetsStore{
		values: values,
		sheet:  worksheet,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logging.Discard(),
	}

	if err := s.ensureHeader(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// WithClock replaces the time source used for created_at and posted_at.
func (s *SheetsStore) WithClock(now func() time.Time) *SheetsStore {
	s.now = now
	return s
}

// Create appends a row; the id is one more than the id of the last row.
func (s *SheetsStore) Create(ctx context.Context, source, original, sourceMessageID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.rows(ctx)
	if err != nil {
		return 0, err
	}

	id := nextSheetID(rows)
	row := []any{
		strconv.FormatInt(id, 10),
		source,
		sourceMessageID,
		original,
		"",
		sheetFalse,
		sheetFalse,
		s.now().Format(time.RFC3339Nano),
		"",
		"0",
	}

	if err := s.values.Append(ctx, s.sheet+"!A1", [][]any{row}); err != nil {
		return 0, fmt.Errorf("append article row: %w", err)
	}

	return id, nil
}

// WithLogger sets where skipped rows are reported.
func (s *SheetsStore) WithLogger(logger *slog.Logger) *SheetsStore {
	if logger != nil {
		s.logger = logger.With("component", "sheets_store")
	}
	return s
}

// SetProcessedContent writes the processed_content cell. Blank text is refused.
func (s *SheetsStore) SetProcessedContent(ctx context.Context, id int64, text string) (bool, error) {
	if strings.TrimSpace(text) == "" {
		return false, domain.ErrEmptyContent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rowNum, _, found, err := s.find(ctx, id)
	if err != nil || !found {
		return false, err
	}

	return true, s.setCell(ctx, colProcessed, rowNum, text)
}

// RecordRewriteFailure increments the rewrite_attempts cell.
func (s *SheetsStore) RecordRewriteFailure(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rowNum, article, found, err := s.find(ctx, id)
	if err != nil || !found {
		return false, err
	}

	return true, s.setCell(ctx, colAttempts, rowNum, strconv.Itoa(article.RewriteAttempts+1))
}

// Approve writes TRUE into is_approved.
func (s *SheetsStore) Approve(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rowNum, article, found, err := s.find(ctx, id)
	if err != nil || !found {
		return false, err
	}
	if article.IsApproved {
		return true, nil
	}

	return true, s.setCell(ctx, colApproved, rowNum, sheetTrue)
}

// MarkPosted writes is_posted and posted_at once; later calls keep the first timestamp.
func (s *SheetsStore) MarkPosted(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rowNum, article, found, err := s.find(ctx, id)
	if err != nil || !found {
		return false, err
	}
	if !article.IsApproved {
		return false, domain.ErrNotApproved
	}
	if article.IsPosted {
		return true, nil
	}

	// posted_at goes first so a row flagged as posted always carries its timestamp.
	if err := s.setCell(ctx, colPostedAt, rowNum, s.now().Format(time.RFC3339Nano)); err != nil {
		return false, err
	}
	if err := s.setCell(ctx, colPosted, rowNum, sheetTrue); err != nil {
		return false, err
	}

	return true, nil
}

// Get loads one article by id.
func (s *SheetsStore) Get(ctx context.Context, id int64) (domain.Article, bool, error) {
	_, article, found, err := s.find(ctx, id)
	return article, found, err
}

// ListPending returns rewritten, unapproved articles newest first.
func (s *SheetsStore) ListPending(ctx context.Context, limit int) ([]domain.Article, error) {
	articles, err := s.filter(ctx, domain.Article.Pending)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(articles, func(i, j int) bool { return newer(articles[i], articles[j]) })
	return capList(articles, limit), nil
}

// ListApprovedUnposted returns the publication queue oldest first.
func (s *SheetsStore) ListApprovedUnposted(ctx context.Context, limit int) ([]domain.Article, error) {
	articles, err := s.filter(ctx, domain.Article.Publishable)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(articles, func(i, j int) bool { return newer(articles[j], articles[i]) })
	return capList(articles, limit), nil
}

// ListUnprocessed returns articles whose rewrite may still be retried, oldest first.
func (s *SheetsStore) ListUnprocessed(ctx context.Context, maxAttempts, limit int) ([]domain.Article, error) {
	articles, err := s.filter(ctx, func(a domain.Article) bool {
		return !a.Processed() && a.RewriteAttempts < maxAttempts
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(articles, func(i, j int) bool { return newer(articles[j], articles[i]) })
	return capList(articles, limit), nil
}

// AlreadyIngested returns the subset of message ids already stored for the source.
func (s *SheetsStore) AlreadyIngested(ctx context.Context, source string, messageIDs []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(messageIDs) == 0 {
		return result, nil
	}

	wanted := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = struct{}{}
	}

	rows, err := s.rows(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if cell(row, colSource) != source {
			continue
		}
		if id := cell(row, colMessageID); id != "" {
			if _, ok := wanted[id]; ok {
				result[id] = true
			}
		}
	}

	return result, nil
}

// Stats counts articles per workflow state.
func (s *SheetsStore) Stats(ctx context.Context) (domain.Stats, error) {
	articles, err := s.filter(ctx, func(domain.Article) bool { return true })
	if err != nil {
		return domain.Stats{}, err
	}

	stats := domain.Stats{Total: len(articles)}
	for _, a := range articles {
		switch {
		case a.Pending():
			stats.Pending++
		case a.Publishable():
			stats.ApprovedUnposted++
		case a.IsPosted:
			stats.Posted++
		}
	}

	return stats, nil
}

// Close is a no-op; the HTTP client has no session to release.
func (s *SheetsStore) Close() error {
	return nil
}

func (s *SheetsStore) ensureHeader(ctx context.Context) error {
	rng := fmt.Sprintf("%s!A1:%s1", s.sheet, columnLetter(columnCount-1))

	existing, err := s.values.Get(ctx, rng)
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if len(existing) > 0 && len(existing[0]) == columnCount {
		return nil
	}

	if err := s.values.Update(ctx, rng, [][]any{sheetHeader}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

func (s *SheetsStore) rows(ctx context.Context) ([][]any, error) {
	rows, err := s.values.Get(ctx, fmt.Sprintf("%s!A2:%s", s.sheet, columnLetter(columnCount-1)))
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return rows, nil
}

func (s *SheetsStore) find(ctx context.Context, id int64) (int, domain.Article, bool, error) {
	rows, err := s.rows(ctx)
	if err != nil {
		return 0, domain.Article{}, false, err
	}

	want := strconv.FormatInt(id, 10)
	for i, row := range rows {
		if cell(row, colID) != want {
			continue
		}
		article, err := rowToArticle(row)
		if err != nil {
			return 0, domain.Article{}, false, fmt.Errorf("row %d: %w", i+2, err)
		}
		return i + 2, article, true, nil
	}

	return 0, domain.Article{}, false, nil
}

func (s *SheetsStore) filter(ctx context.Context, keep func(domain.Article) bool) ([]domain.Article, error) {
	rows, err := s.rows(ctx)
	if err != nil {
		return nil, err
	}

	var articles []domain.Article
	for i, row := range rows {
		if cell(row, colID) == "" {
			continue
		}
		article, err := rowToArticle(row)
		if err != nil {
			s.logger.Warn("skip unreadable row", "row", i+2, "error", err)
			continue
		}
		if keep(article) {
			articles = append(articles, article)
		}
	}

	return articles, nil
}

func (s *SheetsStore) setCell(ctx context.Context, col, rowNum int, value string) error {
	rng := fmt.Sprintf("%s!%s%d", s.sheet, columnLetter(col), rowNum)
	if err := s.values.Update(ctx, rng, [][]any{{value}}); err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

func rowToArticle(row []any) (domain.Article, error) {
	id, err := strconv.ParseInt(cell(row, colID), 10, 64)
	if err != nil {
		return domain.Article{}, fmt.Errorf("parse id: %w", err)
	}

	article := domain.Article{
		ID:              id,
		Source:          cell(row, colSource),
		SourceMessageID: cell(row, colMessageID),
		OriginalContent: cell(row, colOriginal),
		IsApproved:      strings.EqualFold(cell(row, colApproved), sheetTrue),
		IsPosted:        strings.EqualFold(cell(row, colPosted), sheetTrue),
	}

	if text := cell(row, colProcessed); text != "" {
		article.ProcessedContent = &text
	}

	if v := cell(row, colAttempts); v != "" {
		attempts, err := strconv.Atoi(v)
		if err != nil {
			return domain.Article{}, fmt.Errorf("parse rewrite_attempts: %w", err)
		}
		article.RewriteAttempts = attempts
	}

	if v := cell(row, colCreatedAt); v != "" {
		created, err := parseTime(v)
		if err != nil {
			return domain.Article{}, fmt.Errorf("parse created_at: %w", err)
		}
		article.CreatedAt = created
	}

	if v := cell(row, colPostedAt); v != "" {
		posted, err := parseTime(v)
		if err != nil {
			return domain.Article{}, fmt.Errorf("parse posted_at: %w", err)
		}
		article.PostedAt = &posted
	}

	return article, nil
}

func nextSheetID(rows [][]any) int64 {
	if len(rows) == 0 {
		return 1
	}
	if last, err := strconv.ParseInt(cell(rows[len(rows)-1], colID), 10, 64); err == nil {
		return last + 1
	}

	// Last row is damaged; fall back to the highest id seen.
	var maxID int64
	for _, row := range rows {
		if id, err := strconv.ParseInt(cell(row, colID), 10, 64); err == nil && id > maxID {
			maxID = id
		}
	}
	return maxID + 1
}

func cell(row []any, col int) string {
	if col >= len(row) || row[col] == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(row[col]))
}

func columnLetter(col int) string {
	return string(rune('A' + col))
}

func newer(a, b domain.Article) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func capList(articles []domain.Article, limit int) []domain.Article {
	if limit > 0 && len(articles) > limit {
		return articles[:limit]
	}
	return articles
}
