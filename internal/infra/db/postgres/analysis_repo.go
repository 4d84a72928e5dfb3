package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	domain "github.com/vastulab/vastu-backend/internal/domain/analyses"
)

type AnalysisRepository struct{ db *sql.DB }

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository { return &AnalysisRepository{db: db} }

// Save insert/update an Analysis record. Counter columns are excluded from
// the conflict branch; they move only through Increment.
func (r *AnalysisRepository) Save(ctx context.Context, a *domain.Analysis) error {
	const q = `
INSERT INTO analyses
(id, owner_id, title, description, tags_json, files_json, floor_plan_json,
 status, processing_started_at, completed_at, processing_time,
 result_json, overall_score, is_public, views, likes, shares,
 created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,
        $8,$9,$10,$11,
        $12,$13,$14,$15,$16,$17,
        $18,$19)
ON CONFLICT (id) DO UPDATE SET
 title = EXCLUDED.title,
 description = EXCLUDED.description,
 tags_json = EXCLUDED.tags_json,
 files_json = EXCLUDED.files_json,
 floor_plan_json = EXCLUDED.floor_plan_json,
 status = EXCLUDED.status,
 processing_started_at = EXCLUDED.processing_started_at,
 completed_at = EXCLUDED.completed_at,
 processing_time = EXCLUDED.processing_time,
 result_json = EXCLUDED.result_json,
 overall_score = EXCLUDED.overall_score,
 is_public = EXCLUDED.is_public,
 updated_at = EXCLUDED.updated_at;`

	tags, err := marshalOrNull(len(a.Tags) > 0, a.Tags)
	if err != nil {
		return err
	}
	files, err := marshalOrNull(len(a.Files) > 0, a.Files)
	if err != nil {
		return err
	}
	plan, err := json.Marshal(a.FloorPlan)
	if err != nil {
		return err
	}
	result, err := marshalOrNull(a.Result != nil, a.Result)
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

func (r *AnalysisRepository) Get(ctx context.Context, id domain.AnalysisID) (*domain.Analysis, error) {
	q := `SELECT ` + analysisColumns + ` FROM analyses WHERE id=$1 LIMIT 1;`
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
			return nil, err
		}
	}
	if files.Valid {
		if err := json.Unmarshal([]byte(files.String), &a.Files); err != nil {
			return nil, err
		}
	}
	if result.Valid {
		var res domain.Result
		if err := json.Unmarshal([]byte(result.String), &res); err != nil {
			return nil, err
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

func (r *AnalysisRepository) List(ctx context.Context, f domain.Filter) (domain.PaginatedResult, error) {
	where := " WHERE true"
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.PublicOnly {
		where += " AND is_public"
	}
	if f.OwnerID != "" {
		where += " AND owner_id=" + arg(f.OwnerID)
	}
	if f.MinScore != nil {
		where += " AND overall_score >= " + arg(*f.MinScore)
	}
	if f.Tag != "" {
		where += " AND tags_json LIKE " + arg(`%"`+escapeLikePattern(f.Tag)+`"%`)
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

	countQ := "SELECT COUNT(*) FROM analyses" + where
	var total int64
	if err := r.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("counting analyses: %w", err)
	}

	q := `SELECT ` + analysisColumns + ` FROM analyses` + where +
		fmt.Sprintf(" ORDER BY %s %s, id %s LIMIT %s OFFSET %s;",
			col, dir, dir, arg(size), arg((page-1)*size))

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

	return domain.PaginatedResult{
		Data:       out,
		Page:       page,
		PageSize:   size,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(size))),
	}, nil
}

func (r *AnalysisRepository) MarkProcessing(ctx context.Context, id domain.AnalysisID, startedAt time.Time) (bool, error) {
	const q = `
UPDATE analyses
SET status=$1, processing_started_at=$2, updated_at=$2
WHERE id=$3 AND status=$4;`
	res, err := r.db.ExecContext(ctx, q,
		domain.StatusProcessing, startedAt, id, domain.StatusPending)
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
SET status=$1, result_json=$2, overall_score=$3, completed_at=$4, processing_time=$5, updated_at=$4
WHERE id=$6 AND status=$7;`
	payload, err := marshalOrNull(res != nil, res)
	if err != nil {
		return false, err
	}
	var score sql.NullFloat64
	if res != nil {
		score = sql.NullFloat64{Float64: res.OverallScore, Valid: true}
	}
	out, err := r.db.ExecContext(ctx, q,
		domain.StatusCompleted, payload, score, completedAt, processingTime,
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
SET status=$1, updated_at=$2
WHERE id=$3 AND status=$4;`
	out, err := r.db.ExecContext(ctx, q,
		domain.StatusFailed, failedAt, id, domain.StatusProcessing)
	if err != nil {
		return false, err
	}
	n, err := out.RowsAffected()
	return n == 1, err
}

func (r *AnalysisRepository) Increment(ctx context.Context, id domain.AnalysisID, c domain.Counter, publicOnly bool) (bool, error) {
	switch c {
	case domain.CounterViews, domain.CounterLikes, domain.CounterShares:
	default:
		return false, fmt.Errorf("unknown counter %q", c)
	}
	q := fmt.Sprintf("UPDATE analyses SET %s = %s + 1 WHERE id=$1", c, c)
	if publicOnly {
		q += " AND is_public"
	}
	res, err := r.db.ExecContext(ctx, q+";", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *AnalysisRepository) Delete(ctx context.Context, id domain.AnalysisID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM analyses WHERE id=$1;`, id)
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

func marshalOrNull(present bool, v any) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}
