package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tavle/tavle/internal/model"
)

const automationColumns = `id, org_id, board_id, name, is_enabled, trigger,
	 conditions, actions, run_count, last_run_at, created_at, updated_at`

func scanAutomation(row pgx.Row) (model.Automation, error) {
	var a model.Automation
	var trigger, conditions, actions []byte
	err := row.Scan(&a.ID, &a.OrgID, &a.BoardID, &a.Name, &a.IsEnabled,
		&trigger, &conditions, &actions, &a.RunCount, &a.LastRunAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Automation{}, err
	}
	if err := json.Unmarshal(trigger, &a.Trigger); err != nil {
		return model.Automation{}, fmt.Errorf("decode trigger: %w", err)
	}
	if err := json.Unmarshal(conditions, &a.Conditions); err != nil {
		return model.Automation{}, fmt.Errorf("decode conditions: %w", err)
	}
	if err := json.Unmarshal(actions, &a.Actions); err != nil {
		return model.Automation{}, fmt.Errorf("decode actions: %w", err)
	}
	return a, nil
}

// CreateAutomation stores a new rule. Trigger, conditions, and actions are
// persisted as JSONB, already validated by the caller.
func (db *DB) CreateAutomation(ctx context.Context, a model.Automation) (model.Automation, error) {
	a.ID = uuid.New()
	a.CreatedAt = time.Now().UTC()
	a.UpdatedAt = a.CreatedAt

	if a.BoardID != nil {
		if _, err := db.GetBoard(ctx, a.OrgID, *a.BoardID); err != nil {
			return model.Automation{}, err
		}
	}

	trigger, err := json.Marshal(a.Trigger)
	if err != nil {
		return model.Automation{}, fmt.Errorf("storage: encode trigger: %w", err)
	}
	conditions, err := json.Marshal(emptyIfNilConditions(a.Conditions))
	if err != nil {
		return model.Automation{}, fmt.Errorf("storage: encode conditions: %w", err)
	}
	actions, err := json.Marshal(a.Actions)
	if err != nil {
		return model.Automation{}, fmt.Errorf("storage: encode actions: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO automations (id, org_id, board_id, name, is_enabled, trigger,
		     conditions, actions, run_count, last_run_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, NULL, $9, $10)`,
		a.ID, a.OrgID, a.BoardID, a.Name, a.IsEnabled, trigger, conditions, actions,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return model.Automation{}, fmt.Errorf("storage: create automation: %w", err)
	}
	return a, nil
}

func emptyIfNilConditions(c []model.Condition) []model.Condition {
	if c == nil {
		return []model.Condition{}
	}
	return c
}

// GetAutomation retrieves an org's automation by id.
func (db *DB) GetAutomation(ctx context.Context, orgID string, id uuid.UUID) (model.Automation, error) {
	a, err := scanAutomation(db.pool.QueryRow(ctx,
		`SELECT `+automationColumns+` FROM automations WHERE id = $1 AND org_id = $2`,
		id, orgID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Automation{}, fmt.Errorf("storage: get automation: %w", ErrNotFound)
		}
		return model.Automation{}, fmt.Errorf("storage: get automation: %w", err)
	}
	return a, nil
}

// ListAutomations returns all of an org's automations, newest first.
func (db *DB) ListAutomations(ctx context.Context, orgID string) ([]model.Automation, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+automationColumns+` FROM automations
		 WHERE org_id = $1 ORDER BY created_at DESC`, orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list automations: %w", err)
	}
	defer rows.Close()

	var out []model.Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan automation: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list automations: %w", err)
	}
	return out, nil
}

// ListEnabledAutomations returns the enabled rules that could match an
// event on a board: board-scoped rules for that board plus org-wide
// rules, filtered to the trigger type.
func (db *DB) ListEnabledAutomations(ctx context.Context, orgID string, boardID uuid.UUID, trigger model.TriggerType) ([]model.Automation, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+automationColumns+` FROM automations
		 WHERE org_id = $1 AND is_enabled
		   AND (board_id IS NULL OR board_id = $2)
		   AND trigger->>'type' = $3
		 ORDER BY created_at`, orgID, boardID, string(trigger),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: enabled automations: %w", err)
	}
	defer rows.Close()

	var out []model.Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan automation: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: enabled automations: %w", err)
	}
	return out, nil
}

// UpdateAutomation replaces a rule's definition wholesale.
func (db *DB) UpdateAutomation(ctx context.Context, a model.Automation) (model.Automation, error) {
	trigger, err := json.Marshal(a.Trigger)
	if err != nil {
		return model.Automation{}, fmt.Errorf("storage: encode trigger: %w", err)
	}
	conditions, err := json.Marshal(emptyIfNilConditions(a.Conditions))
	if err != nil {
		return model.Automation{}, fmt.Errorf("storage: encode conditions: %w", err)
	}
	actions, err := json.Marshal(a.Actions)
	if err != nil {
		return model.Automation{}, fmt.Errorf("storage: encode actions: %w", err)
	}

	updated, err := scanAutomation(db.pool.QueryRow(ctx,
		`UPDATE automations
		 SET name = $1, is_enabled = $2, board_id = $3, trigger = $4,
		     conditions = $5, actions = $6, updated_at = now()
		 WHERE id = $7 AND org_id = $8
		 RETURNING `+automationColumns,
		a.Name, a.IsEnabled, a.BoardID, trigger, conditions, actions, a.ID, a.OrgID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Automation{}, fmt.Errorf("storage: update automation: %w", ErrNotFound)
		}
		return model.Automation{}, fmt.Errorf("storage: update automation: %w", err)
	}
	return updated, nil
}

// SetAutomationEnabled flips a rule on or off without touching its body.
func (db *DB) SetAutomationEnabled(ctx context.Context, orgID string, id uuid.UUID, enabled bool) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE automations SET is_enabled = $1, updated_at = now()
		 WHERE id = $2 AND org_id = $3`, enabled, id, orgID,
	)
	if err != nil {
		return fmt.Errorf("storage: toggle automation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: toggle automation: %w", ErrNotFound)
	}
	return nil
}

// DeleteAutomation removes a rule; its run log cascades.
func (db *DB) DeleteAutomation(ctx context.Context, orgID string, id uuid.UUID) error {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM automations WHERE id = $1 AND org_id = $2`, id, orgID,
	)
	if err != nil {
		return fmt.Errorf("storage: delete automation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("storage: delete automation: %w", ErrNotFound)
	}
	return nil
}

// MarkAutomationRun bumps the run counter and stamp after a rule fires.
func (db *DB) MarkAutomationRun(ctx context.Context, id uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE automations SET run_count = run_count + 1, last_run_at = now()
		 WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("storage: mark automation run: %w", err)
	}
	return nil
}

// InsertAutomationLog appends one run record.
func (db *DB) InsertAutomationLog(ctx context.Context, entry model.AutomationLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO automation_logs (id, automation_id, card_id, success, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.AutomationID, entry.CardID, entry.Success, entry.Error, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage: insert automation log: %w", err)
	}
	return nil
}

// ListAutomationLogs returns the most recent runs of one rule.
func (db *DB) ListAutomationLogs(ctx context.Context, orgID string, automationID uuid.UUID, limit int) ([]model.AutomationLog, error) {
	if _, err := db.GetAutomation(ctx, orgID, automationID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, automation_id, card_id, success, error, created_at
		 FROM automation_logs WHERE automation_id = $1
		 ORDER BY created_at DESC LIMIT $2`, automationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list automation logs: %w", err)
	}
	defer rows.Close()

	var out []model.AutomationLog
	for rows.Next() {
		var l model.AutomationLog
		if err := rows.Scan(&l.ID, &l.AutomationID, &l.CardID, &l.Success, &l.Error, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan automation log: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: list automation logs: %w", err)
	}
	return out, nil
}
