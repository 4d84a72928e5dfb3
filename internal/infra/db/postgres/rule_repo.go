package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	domain "github.com/vastulab/vastu-backend/internal/domain/rules"
)

type RuleRepository struct{ db *sql.DB }

func NewRuleRepository(db *sql.DB) *RuleRepository { return &RuleRepository{db: db} }

// Save upserts a rule, bumping the version counter on update only.
func (r *RuleRepository) Save(ctx context.Context, rule *domain.Rule) error {
	const q = `
INSERT INTO vastu_rules
(id, name, category, direction, room_type, element, importance, impact,
 priority, version, active, remedies_json, benefits_json, consequences_json,
 created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,1,$10,$11,$12,$13,$14,$15)
ON CONFLICT (id) DO UPDATE SET
 name = EXCLUDED.name, category = EXCLUDED.category,
 direction = EXCLUDED.direction, room_type = EXCLUDED.room_type,
 element = EXCLUDED.element, importance = EXCLUDED.importance,
 impact = EXCLUDED.impact, priority = EXCLUDED.priority,
 active = EXCLUDED.active,
 remedies_json = EXCLUDED.remedies_json,
 benefits_json = EXCLUDED.benefits_json,
 consequences_json = EXCLUDED.consequences_json,
 version = vastu_rules.version + 1,
 updated_at = EXCLUDED.updated_at;`

	remedies, err := stringsJSON(rule.Remedies)
	if err != nil {
		return err
	}
	benefits, err := stringsJSON(rule.Benefits)
	if err != nil {
		return err
	}
	consequences, err := stringsJSON(rule.Consequences)
	if err != nil {
		return err
	}
	now := time.Now()
	created := rule.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err = r.db.ExecContext(ctx, q,
		rule.ID, rule.Name, rule.Category, string(rule.Direction), string(rule.RoomType),
		string(rule.Element), string(rule.Importance), rule.Impact,
		rule.Priority, rule.Active, remedies, benefits, consequences,
		created, now,
	)
	return err
}

func (r *RuleRepository) Find(ctx context.Context, query domain.Query) ([]*domain.Rule, error) {
	q := `
SELECT id, name, category, direction, room_type, element, importance, impact,
       priority, version, active, remedies_json, benefits_json, consequences_json,
       created_at, updated_at
FROM vastu_rules
WHERE active`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if query.Category != "" {
		q += " AND category=" + arg(query.Category)
	}
	if query.Direction != "" {
		q += " AND direction=" + arg(string(query.Direction))
	}
	if query.RoomType != "" {
		q += " AND room_type=" + arg(string(query.RoomType))
	}
	if query.Element != "" {
		q += " AND element=" + arg(string(query.Element))
	}
	if query.Importance != "" {
		q += " AND importance=" + arg(string(query.Importance))
	}
	q += `
ORDER BY priority DESC,
 CASE importance WHEN 'critical' THEN 4 WHEN 'high' THEN 3
                 WHEN 'medium' THEN 2 ELSE 1 END DESC,
 id ASC;`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	var out []*domain.Rule
	for rows.Next() {
		var rule domain.Rule
		var remedies, benefits, consequences sql.NullString
		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Category, &rule.Direction, &rule.RoomType,
			&rule.Element, &rule.Importance, &rule.Impact,
			&rule.Priority, &rule.Version, &rule.Active,
			&remedies, &benefits, &consequences,
			&rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if err := decodeStrings(remedies, &rule.Remedies); err != nil {
			return nil, err
		}
		if err := decodeStrings(benefits, &rule.Benefits); err != nil {
			return nil, err
		}
		if err := decodeStrings(consequences, &rule.Consequences); err != nil {
			return nil, err
		}
		out = append(out, &rule)
	}
	return out, rows.Err()
}

func stringsJSON(v []string) (sql.NullString, error) {
	if len(v) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeStrings(s sql.NullString, dst *[]string) error {
	if !s.Valid {
		return nil
	}
	return json.Unmarshal([]byte(s.String), dst)
}
