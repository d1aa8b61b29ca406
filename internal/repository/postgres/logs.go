package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/logwell/logwell/internal/domain"
)

// searchConfig is the text search configuration used for both the stored
// vector and the query; they must match for stemming to line up.
const searchConfig = "english"

const logColumns = `id, project_id, level, message, metadata, source_file, line_number, request_id, user_id, ip_address, "timestamp"`

// InsertLogs writes a batch atomically; either every row commits or none does.
func (r *Repository) InsertLogs(ctx context.Context, entries []domain.IndexedLog) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO logs (` + logColumns + `, search_vector)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			setweight(to_tsvector('` + searchConfig + `', $12), 'A') ||
			setweight(to_tsvector('` + searchConfig + `', $13), 'B'))`
	batch := &pgx.Batch{}
	for _, entry := range entries {
		log := entry.Log
		batch.Queue(query,
			log.ID,
			log.ProjectID,
			string(log.Level),
			log.Message,
			bytesToNil(log.Metadata),
			emptyToNil(log.SourceFile),
			intPtrToNil(log.LineNumber),
			emptyToNil(log.RequestID),
			emptyToNil(log.UserID),
			emptyToNil(log.IPAddress),
			log.Timestamp.UTC(),
			entry.Search.Primary,
			entry.Search.Secondary,
		)
	}
	br := tx.SendBatch(ctx, batch)
	for range entries {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return mapError(err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListLogs returns one page ordered newest first, ties broken by id.
func (r *Repository) ListLogs(ctx context.Context, page domain.LogPage) ([]domain.Log, error) {
	query, args := buildListQuery(page)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.Log, 0, page.Limit)
	for rows.Next() {
		var (
			entry      domain.Log
			level      string
			sourceFile *string
			lineNumber *int32
			requestID  *string
			userID     *string
			ipAddress  *string
		)
		if err := rows.Scan(&entry.ID, &entry.ProjectID, &level, &entry.Message, &entry.Metadata, &sourceFile, &lineNumber, &requestID, &userID, &ipAddress, &entry.Timestamp); err != nil {
			return nil, err
		}
		entry.Level = domain.LogLevel(level)
		entry.SourceFile = derefString(sourceFile)
		entry.RequestID = derefString(requestID)
		entry.UserID = derefString(userID)
		entry.IPAddress = derefString(ipAddress)
		if lineNumber != nil {
			n := int(*lineNumber)
			entry.LineNumber = &n
		}
		entry.Timestamp = entry.Timestamp.UTC()
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// CountLogs counts rows matching a filter, ignoring pagination.
func (r *Repository) CountLogs(ctx context.Context, filter domain.LogFilter) (int64, error) {
	query, args := buildCountQuery(filter)
	var total int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// CountLogsByBucket groups logs in [start, end) into span-wide buckets
// anchored at start. Empty buckets are omitted.
func (r *Repository) CountLogsByBucket(ctx context.Context, projectID string, start, end time.Time, span time.Duration) ([]domain.TimeBucket, error) {
	if span <= 0 {
		return nil, fmt.Errorf("bucket span must be positive")
	}
	const query = `SELECT floor(extract(epoch FROM ("timestamp" - $2)) / $4::double precision)::bigint AS idx, count(*)
		FROM logs
		WHERE project_id = $1 AND "timestamp" >= $2 AND "timestamp" < $3
		GROUP BY idx
		ORDER BY idx`
	rows, err := r.pool.Query(ctx, query, projectID, start.UTC(), end.UTC(), span.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	buckets := make([]domain.TimeBucket, 0)
	for rows.Next() {
		var idx, count int64
		if err := rows.Scan(&idx, &count); err != nil {
			return nil, err
		}
		buckets = append(buckets, domain.TimeBucket{
			Start: start.Add(time.Duration(idx) * span).UTC(),
			Count: count,
		})
	}
	return buckets, rows.Err()
}

// CountLogsByLevel returns per-level totals for a project.
func (r *Repository) CountLogsByLevel(ctx context.Context, projectID string) (map[domain.LogLevel]int64, error) {
	const query = `SELECT level, count(*) FROM logs WHERE project_id = $1 GROUP BY level`
	rows, err := r.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.LogLevel]int64, len(domain.Levels))
	for rows.Next() {
		var (
			level string
			count int64
		)
		if err := rows.Scan(&level, &count); err != nil {
			return nil, err
		}
		counts[domain.LogLevel(level)] = count
	}
	return counts, rows.Err()
}

// DeleteLogsBefore removes up to limit logs older than cutoff in a single
// short statement.
func (r *Repository) DeleteLogsBefore(ctx context.Context, projectID string, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		return 0, fmt.Errorf("delete limit must be positive")
	}
	const query = `DELETE FROM logs WHERE id IN (
		SELECT id FROM logs WHERE project_id = $1 AND "timestamp" < $2 LIMIT $3
	)`
	cmdTag, err := r.pool.Exec(ctx, query, projectID, cutoff.UTC(), limit)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

// queryArgs accumulates positional arguments while a statement is built.
type queryArgs []any

func (a *queryArgs) add(value any) string {
	*a = append(*a, value)
	return "$" + strconv.Itoa(len(*a))
}

func buildWhere(filter domain.LogFilter, args *queryArgs) []string {
	conds := []string{"project_id = " + args.add(filter.ProjectID)}
	if len(filter.Levels) > 0 {
		levels := make([]string, 0, len(filter.Levels))
		for _, level := range filter.Levels {
			levels = append(levels, string(level))
		}
		conds = append(conds, "level = ANY("+args.add(levels)+")")
	}
	if len(filter.SearchTerms) > 0 {
		tsquery := strings.Join(filter.SearchTerms, " & ")
		conds = append(conds, "search_vector @@ to_tsquery('"+searchConfig+"', "+args.add(tsquery)+")")
	}
	if filter.From != nil {
		conds = append(conds, `"timestamp" >= `+args.add(filter.From.UTC()))
	}
	if filter.To != nil {
		conds = append(conds, `"timestamp" < `+args.add(filter.To.UTC()))
	}
	return conds
}

func buildListQuery(page domain.LogPage) (string, []any) {
	var args queryArgs
	conds := buildWhere(page.Filter, &args)
	if page.After != nil {
		ts := args.add(page.After.Timestamp.UTC())
		id := args.add(page.After.ID)
		conds = append(conds, fmt.Sprintf(`("timestamp" < %s OR ("timestamp" = %s AND id < %s::uuid))`, ts, ts, id))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(logColumns)
	b.WriteString(" FROM logs WHERE ")
	b.WriteString(strings.Join(conds, " AND "))
	b.WriteString(` ORDER BY "timestamp" DESC, id DESC LIMIT `)
	b.WriteString(args.add(page.Limit))
	if page.After == nil && page.Offset > 0 {
		b.WriteString(" OFFSET ")
		b.WriteString(args.add(page.Offset))
	}
	return b.String(), args
}

func buildCountQuery(filter domain.LogFilter) (string, []any) {
	var args queryArgs
	conds := buildWhere(filter, &args)
	return "SELECT count(*) FROM logs WHERE " + strings.Join(conds, " AND "), args
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
