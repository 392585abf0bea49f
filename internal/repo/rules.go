package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"taskline/internal/domain"
)

const ruleColumns = `id,owner_id,name,"trigger",conditions_json,actions_json,is_active,execution_count,last_execution,created_at,updated_at`

func scanRule(row taskScanner) (domain.Rule, error) {
	var rl domain.Rule
	var conditions, actions string
	var active int
	var lastExec sql.NullString
	err := row.Scan(&rl.ID, &rl.OwnerID, &rl.Name, &rl.Trigger, &conditions, &actions, &active, &rl.ExecutionCount, &lastExec, &rl.CreatedAt, &rl.UpdatedAt)
	if err == sql.ErrNoRows {
		return rl, ErrNotFound
	}
	if err != nil {
		return rl, err
	}
	rl.IsActive = active != 0
	if lastExec.Valid {
		rl.LastExecution = &lastExec.String
	}
	if err := json.Unmarshal([]byte(conditions), &rl.Conditions); err != nil {
		return rl, fmt.Errorf("rule %s conditions: %w", rl.ID, err)
	}
	if err := json.Unmarshal([]byte(actions), &rl.Actions); err != nil {
		return rl, fmt.Errorf("rule %s actions: %w", rl.ID, err)
	}
	return rl, nil
}

func (r Repo) InsertRule(ctx context.Context, rl domain.Rule) error {
	conditions, err := json.Marshal(rl.Conditions)
	if err != nil {
		return err
	}
	actions, err := json.Marshal(rl.Actions)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO rules(id,owner_id,name,"trigger",conditions_json,actions_json,is_active,execution_count,last_execution,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		rl.ID, rl.OwnerID, rl.Name, rl.Trigger, string(conditions), string(actions), boolToInt(rl.IsActive), rl.ExecutionCount, ptrOrNil(rl.LastExecution), rl.CreatedAt, rl.UpdatedAt)
	return err
}

// GetRule fetches a rule owned by ownerID.
func (r Repo) GetRule(ctx context.Context, id, ownerID string) (domain.Rule, error) {
	return scanRule(r.DB.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id=? AND owner_id=?`, id, ownerID))
}

func (r Repo) ListRules(ctx context.Context, ownerID string) ([]domain.Rule, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE owner_id=? ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Rule
	for rows.Next() {
		rl, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rl)
	}
	return res, rows.Err()
}

// ActiveRulesByTrigger returns every active rule for a trigger regardless of
// owner; this is the read path of rule firing.
func (r Repo) ActiveRulesByTrigger(ctx context.Context, trigger string) ([]domain.Rule, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE "trigger"=? AND is_active=1`, trigger)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Rule
	for rows.Next() {
		rl, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rl)
	}
	return res, rows.Err()
}

// RuleUpdate carries owner-editable fields; nil pointers leave columns alone.
type RuleUpdate struct {
	Name       *string
	Trigger    *string
	Conditions []domain.Condition
	Actions    []domain.Action
	IsActive   *bool
}

func (r Repo) UpdateRule(ctx context.Context, id, ownerID, updatedAt string, u RuleUpdate) (domain.Rule, error) {
	fields := []string{"updated_at=?"}
	args := []any{updatedAt}
	if u.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, *u.Name)
	}
	if u.Trigger != nil {
		fields = append(fields, `"trigger"=?`)
		args = append(args, *u.Trigger)
	}
	if u.Conditions != nil {
		b, err := json.Marshal(u.Conditions)
		if err != nil {
			return domain.Rule{}, err
		}
		fields = append(fields, "conditions_json=?")
		args = append(args, string(b))
	}
	if u.Actions != nil {
		b, err := json.Marshal(u.Actions)
		if err != nil {
			return domain.Rule{}, err
		}
		fields = append(fields, "actions_json=?")
		args = append(args, string(b))
	}
	if u.IsActive != nil {
		fields = append(fields, "is_active=?")
		args = append(args, boolToInt(*u.IsActive))
	}
	args = append(args, id, ownerID)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE rules SET %s WHERE id=? AND owner_id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return domain.Rule{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Rule{}, ErrNotFound
	}
	return r.GetRule(ctx, id, ownerID)
}

func (r Repo) DeleteRule(ctx context.Context, id, ownerID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM rules WHERE id=? AND owner_id=?`, id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordRuleExecution bumps the execution counter atomically and stamps the
// firing time. The counter only ever increases.
func (r Repo) RecordRuleExecution(ctx context.Context, id, firedAt string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE rules SET execution_count=execution_count+1, last_execution=? WHERE id=?`, firedAt, id)
	return err
}
