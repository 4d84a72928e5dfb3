package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	domain "github.com/vastulab/vastu-backend/internal/domain/analyses"
)

type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Save insert/update an Analysis record. Counters are deliberately excluded
// from the update branch: they move only through Increment.
func (r *AnalysisRepository) Save(ctx context.Context, a *domain.Analysis) error {
	const q = `
INSERT INTO analyses
(id, owner_id, title, description, tags_json, files_json, floor_plan_json,
 status, processing_started_at, completed_at, processing_time,
 result_json, overall_score, is_public, views, likes, shares,
 created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 title=VALUES(title), description=VALUES(description),
 tags_json=VALUES(tags_json), files_json=VALUES(files_json),
 floor_plan_json=VALUES(floor_plan_json),
 status=VALUES(status),
 processing_started_at=VALUES(processing_started_at),
 completed_at=VALUES(completed_at),
 processing_time=VALUES(processing_time),
 result_json=VALUES(result_json), overall_score=VALUES(overall_score),
 is_public=VALUES(is_public),
 updated_at=VALUES(updated_at);
`
	tags, err := jsonOrNull(a.Tags)
	if err != nil {
		return err
	}
	files, err := jsonOrNull(a.Files)
	if err != nil {
		return err
	}
	plan, err := json.Marshal(a.FloorPlan)
	if err != nil {
		return err
	}
	result, err := jsonOrNull(a.Result)
	if err != nil {
		return err
	}
	var score sql.NullFloat64
	if a.Result != nil {
		score = sql.NullFloat64{Float64: a.Result.OverallScore, Valid: true}
	}

	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	updated := a.UpdatedAt
	if updated.IsZero() {
		updated = created
	}

	_, err = r.db.ExecContext(ctx, q,
		a.ID, a.OwnerID, a.Title, a.Description, tags, files, string(plan),
		string(a.Status), nullTime(a.ProcessingStartedAt), nullTime(a.CompletedAt), a.ProcessingTime,
		result, score, a.IsPublic, a.Views, a.Likes, a.Shares,
		created, updated,
	)
	return err
}

const analysisColumns = `
id, owner_id, title, description, tags_json, files_json, floor_plan_json,
status, processing_started_at, completed_at, processing_time,
result_json, overall_score, is_public, views, likes, shares,
created_at, updated_at`

// Get by ID; (nil, nil) when the row is absent
func (r *AnalysisRepository) Get(ctx context.Context, id domain.AnalysisID) (*domain.Analysis, error) {
	q := `SELECT ` + analysisColumns + ` FROM analyses WHERE id=? LIMIT 1;`
	a, err := scanAnalysis(r.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (*domain.Analysis, error) {
	var a domain.Analysis
	var tags, files, result sql.NullString
	var plan string
	var startedAt, completedAt sql.NullTime
	var score sql.NullFloat64

	if err := row.Scan(
		&a.ID, &a.OwnerID, &a.Title, &a.Description, &tags, &files, &plan,
		&a.Status, &startedAt, &completedAt, &a.ProcessingTime,
		&result, &score, &a.IsPublic, &a.Views, &a.Likes, &a.Shares,
		&a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(plan), &a.FloorPlan); err != nil {
		return nil, fmt.Errorf("decoding floor plan for %s: %w", a.ID, err)
	}
	if tags.Valid {
		if err := json.Unmarshal([]byte(tags.String), &a.Tags); err != nil {
			return nil, fmt.Errorf("decoding tags for %s: %w", a.ID, err)
		}
	}
	if files.Valid {
		if err := json.Unmarshal([]byte(files.String), &a.Files); err != nil {
			return nil, fmt.Errorf("decoding files for %s: %w", a.ID, err)
		}
	}
	if result.Valid {
		var res domain.Result
		if err := json.Unmarshal([]byte(result.String), &res); err != nil {
			return nil, fmt.Errorf("decoding result for %s: %w", a.ID, err)
		}
		a.Result = &res
	}
	if startedAt.Valid {
		t := startedAt.Time
		a.ProcessingStartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		a.CompletedAt = &t
	}
	return &a, nil
}

var sortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"title":     "title",
}

// List with filters, offset pagination and allow-listed sorting
func (r *AnalysisRepository) List(ctx context.Context, f domain.Filter) (domain.PaginatedResult, error) {
	where := " WHERE 1=1"
	var args []any

	if f.PublicOnly {
		where += " AND is_public=1"
	}
	if f.OwnerID != "" {
		where += " AND owner_id=?"
		args = append(args, f.OwnerID)
	}
	if f.MinScore != nil {
		where += " AND overall_score >= ?"
		args = append(args, *f.MinScore)
	}
	if f.Tag != "" {
		// tags_json holds a lowercase JSON array of strings
		where += " AND tags_json LIKE ?"
		args = append(args, `%"`+escapeLikePattern(f.Tag)+`"%`)
	}

	col, ok := sortColumns[f.SortBy]
	if !ok {
		col = "created_at"
	}
	dir := "ASC"
	if f.SortDesc {
		dir = "DESC"
	}

	page := f.Page
	if page <= 0 {
		page = 1
	}
	size := f.Limit
	if size <= 0 {
		size = 20
	}

	q := `SELECT ` + analysisColumns + ` FROM analyses` + where +
		fmt.Sprintf(" ORDER BY %s %s, id %s LIMIT ? OFFSET ?;", col, dir, dir)
	args = append(args, size, (page-1)*size)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("querying analyses: %w", err)
	}
	defer rows.Close()

	var out []*domain.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return domain.PaginatedResult{}, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return domain.PaginatedResult{}, err
	}

	var total int64
	countQ := "SELECT COUNT(*) FROM analyses" + where
	countArgs := args[:len(args)-2]
	if err := r.db.QueryRowContext(ctx, countQ, countArgs...).Scan(&total); err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("counting analyses: %w", err)
	}

	return domain.PaginatedResult{
		Data:       out,
		Page:       page,
		PageSize:   size,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(size))),
	}, nil
}

// MarkProcessing is the atomic pending → processing check-and-set. Exactly
// one of N concurrent calls on the same id sees RowsAffected == 1.
func (r *AnalysisRepository) MarkProcessing(ctx context.Context, id domain.AnalysisID, startedAt time.Time) (bool, error) {
	const q = `
UPDATE analyses
SET status=?, processing_started_at=?, updated_at=?
WHERE id=? AND status=?;`
	res, err := r.db.ExecContext(ctx, q,
		domain.StatusProcessing, startedAt, startedAt, id, domain.StatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkCompleted writes the terminal completed state without touching the
// descriptive columns, so owner edits made while scoring ran survive.
func (r *AnalysisRepository) MarkCompleted(ctx context.Context, id domain.AnalysisID, res *domain.Result, completedAt time.Time, processingTime int64) (bool, error) {
	const q = `
UPDATE analyses
SET status=?, result_json=?, overall_score=?, completed_at=?, processing_time=?, updated_at=?
WHERE id=? AND status=?;`
	payload, err := jsonOrNull(res)
	if err != nil {
		return false, err
	}
	var score sql.NullFloat64
	if res != nil {
		score = sql.NullFloat64{Float64: res.OverallScore, Valid: true}
	}
	out, err := r.db.ExecContext(ctx, q,
		domain.StatusCompleted, payload, score, completedAt, processingTime, completedAt,
		id, domain.StatusProcessing)
	if err != nil {
		return false, err
	}
	n, err := out.RowsAffected()
	return n == 1, err
}

// MarkFailed writes the terminal failed state, status and timestamp only.
func (r *AnalysisRepository) MarkFailed(ctx context.Context, id domain.AnalysisID, failedAt time.Time) (bool, error) {
	const q = `
UPDATE analyses
SET status=?, updated_at=?
WHERE id=? AND status=?;`
	out, err := r.db.ExecContext(ctx, q,
		domain.StatusFailed, failedAt, id, domain.StatusProcessing)
	if err != nil {
		return false, err
	}
	n, err := out.RowsAffected()
	return n == 1, err
}

// Increment bumps one counter in a single statement so concurrent
// increments never lose updates.
func (r *AnalysisRepository) Increment(ctx context.Context, id domain.AnalysisID, c domain.Counter, publicOnly bool) (bool, error) {
	switch c {
	case domain.CounterViews, domain.CounterLikes, domain.CounterShares:
	default:
		return false, fmt.Errorf("unknown counter %q", c)
	}
	q := fmt.Sprintf("UPDATE analyses SET %s = %s + 1 WHERE id=?", c, c)
	if publicOnly {
		q += " AND is_public=1"
	}
	res, err := r.db.ExecContext(ctx, q+";", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// Delete hard-removes the row
func (r *AnalysisRepository) Delete(ctx context.Context, id domain.AnalysisID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM analyses WHERE id=?;`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func jsonOrNull(v any) (sql.NullString, error) {
	if isNilish(v) {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func isNilish(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case []string:
		return len(x) == 0
	case []domain.FileRef:
		return len(x) == 0
	case *domain.Result:
		return x == nil
	}
	return false
}
