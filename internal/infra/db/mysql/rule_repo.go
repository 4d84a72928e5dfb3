package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	domain "github.com/vastulab/vastu-backend/internal/domain/rules"
)

type RuleRepository struct {
	db *sql.DB
}

func NewRuleRepository(db *sql.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// Save upserts a rule. An existing rule keeps its created_at and gets its
// version counter bumped; a new rule starts at version 1.
func (r *RuleRepository) Save(ctx context.Context, rule *domain.Rule) error {
	const q = `
INSERT INTO vastu_rules
(id, name, category, direction, room_type, element, importance, impact,
 priority, version, active, remedies_json, benefits_json, consequences_json,
 created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,1,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 name=VALUES(name), category=VALUES(category), direction=VALUES(direction),
 room_type=VALUES(room_type), element=VALUES(element),
 importance=VALUES(importance), impact=VALUES(impact),
 priority=VALUES(priority), active=VALUES(active),
 remedies_json=VALUES(remedies_json), benefits_json=VALUES(benefits_json),
 consequences_json=VALUES(consequences_json),
 version=version+1, updated_at=VALUES(updated_at);
`
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

// Find returns active rules matching every set filter, ordered by priority
// desc then importance desc.
func (r *RuleRepository) Find(ctx context.Context, query domain.Query) ([]*domain.Rule, error) {
	q := `
SELECT id, name, category, direction, room_type, element, importance, impact,
       priority, version, active, remedies_json, benefits_json, consequences_json,
       created_at, updated_at
FROM vastu_rules
WHERE active=1`
	var args []any
	if query.Category != "" {
		q += " AND category=?"
		args = append(args, query.Category)
	}
	if query.Direction != "" {
		q += " AND direction=?"
		args = append(args, string(query.Direction))
	}
	if query.RoomType != "" {
		q += " AND room_type=?"
		args = append(args, string(query.RoomType))
	}
	if query.Element != "" {
		q += " AND element=?"
		args = append(args, string(query.Element))
	}
	if query.Importance != "" {
		q += " AND importance=?"
		args = append(args, string(query.Importance))
	}
	q += `
ORDER BY priority DESC,
 FIELD(importance,'low','medium','high','critical') DESC,
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
