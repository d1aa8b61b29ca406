package logs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/logwell/logwell/internal/cursor"
	"github.com/logwell/logwell/internal/domain"
)

// Page size bounds.
const (
	DefaultLimit = 100
	MinLimit     = 100
	MaxLimit     = 500
)

// CursorMode selects how an undecodable cursor is handled.
type CursorMode int

const (
	// CursorStrict rejects a bad cursor with cursor.ErrInvalidCursor.
	CursorStrict CursorMode = iota
	// CursorLenient treats a bad cursor as absent.
	CursorLenient
)

// QueryParams filters and pages a project log listing.
type QueryParams struct {
	ProjectID string
	Levels    []string
	Search    string
	// From is inclusive, To exclusive.
	From       *time.Time
	To         *time.Time
	Cursor     string
	Offset     int
	Limit      int
	CursorMode CursorMode
}

// QueryResult is one page of logs, newest first.
type QueryResult struct {
	Logs []domain.Log
	// Total is set only when the page was requested without a cursor.
	Total      *int64
	HasMore    bool
	NextCursor *string
}

// ClampLimit applies the default and the [MinLimit, MaxLimit] bounds.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit < MinLimit:
		return MinLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// SearchTerms splits free text into sanitized tokens. Tokens left empty
// after stripping non-alphanumerics are dropped.
func SearchTerms(search string) []string {
	var terms []string
	for _, field := range strings.Fields(search) {
		token := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, field)
		if token != "" {
			terms = append(terms, token)
		}
	}
	return terms
}

// ParseLevels resolves level names, dropping duplicates.
func ParseLevels(values []string) ([]domain.LogLevel, error) {
	var levels []domain.LogLevel
	seen := make(map[domain.LogLevel]struct{}, len(values))
	for _, value := range values {
		if strings.TrimSpace(value) == "" {
			continue
		}
		level, ok := domain.ParseLevel(value)
		if !ok {
			return nil, invalid("level", fmt.Sprintf("unknown level %q", strings.TrimSpace(value)))
		}
		if _, dup := seen[level]; dup {
			continue
		}
		seen[level] = struct{}{}
		levels = append(levels, level)
	}
	return levels, nil
}

// Query returns one page of logs ordered by timestamp then id, both
// descending.
func (s Service) Query(ctx context.Context, params QueryParams) (QueryResult, error) {
	if strings.TrimSpace(params.ProjectID) == "" {
		return QueryResult{}, fmt.Errorf("project id required")
	}
	levels, err := ParseLevels(params.Levels)
	if err != nil {
		return QueryResult{}, err
	}
	if params.From != nil && params.To != nil && params.From.After(*params.To) {
		return QueryResult{}, invalid("from", "from must not be after to")
	}

	filter := domain.LogFilter{
		ProjectID:   params.ProjectID,
		Levels:      levels,
		SearchTerms: SearchTerms(params.Search),
		From:        params.From,
		To:          params.To,
	}
	page := domain.LogPage{Filter: filter, Limit: ClampLimit(params.Limit)}

	if params.Cursor != "" {
		pos, err := cursor.Decode(params.Cursor)
		switch {
		case err == nil:
			page.After = &domain.LogPosition{Timestamp: pos.Timestamp, ID: pos.ID}
		case params.CursorMode == CursorLenient && errors.Is(err, cursor.ErrInvalidCursor):
			s.logger.Debug("ignoring undecodable cursor", "project_id", params.ProjectID)
		default:
			return QueryResult{}, err
		}
	}
	if page.After == nil && params.Offset > 0 {
		page.Offset = params.Offset
	}

	rows, err := s.repo.ListLogs(ctx, page)
	if err != nil {
		return QueryResult{}, fmt.Errorf("list logs: %w", err)
	}
	if rows == nil {
		rows = []domain.Log{}
	}
	result := QueryResult{Logs: rows}

	if page.After != nil {
		result.HasMore = len(rows) == page.Limit
	} else {
		total, err := s.repo.CountLogs(ctx, filter)
		if err != nil {
			return QueryResult{}, fmt.Errorf("count logs: %w", err)
		}
		result.Total = &total
		result.HasMore = int64(page.Offset+len(rows)) < total
	}

	if result.HasMore && len(rows) > 0 {
		last := rows[len(rows)-1]
		next := cursor.Encode(last.Timestamp, last.ID)
		result.NextCursor = &next
	}
	return result, nil
}
