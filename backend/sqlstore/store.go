// Package sqlstore implements backend.Backend on top of database/sql. The sqlite, mysql and postgres
// backends share it and only differ in their driver, migrations and Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerdocs/procflow/audit"
	"github.com/ledgerdocs/procflow/backend"
	"github.com/ledgerdocs/procflow/core"
	"github.com/ledgerdocs/procflow/internal/metrickeys"
	"github.com/ledgerdocs/procflow/metrics"
)

const instanceColumns = "id, tenant_id, process_name, steps, variables, status, current_step_index, waiting_for_user, current_user_step_name, error_message, version, created_at, updated_at"

type Store struct {
	db             *sql.DB
	dialect        Dialect
	options        *backend.Options
	ownsConnection bool
}

// New creates a store on db. When ownsConnection is set, Close closes db.
func New(db *sql.DB, dialect Dialect, options *backend.Options, ownsConnection bool) *Store {
	if options == nil {
		options = backend.ApplyOptions()
	}

	return &Store{
		db:             db,
		dialect:        dialect,
		options:        options,
		ownsConnection: ownsConnection,
	}
}

var _ backend.Backend = (*Store)(nil)

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Metrics() metrics.Client {
	return s.options.Metrics.WithTags(metrics.Tags{metrickeys.Backend: s.dialect.Name})
}

func (s *Store) Options() *backend.Options {
	return s.options
}

func (s *Store) Close() error {
	if !s.ownsConnection {
		return nil
	}

	return s.db.Close()
}

func (s *Store) CreateInstance(ctx context.Context, instance *core.Instance) error {
	steps, err := json.Marshal(instance.Steps)
	if err != nil {
		return fmt.Errorf("marshaling steps: %w", err)
	}

	vars, err := json.Marshal(instance.Variables)
	if err != nil {
		return fmt.Errorf("marshaling variables: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		s.dialect.rebind("INSERT INTO instances ("+instanceColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		instance.ID,
		instance.TenantID,
		instance.ProcessName,
		string(steps),
		string(vars),
		string(instance.Status),
		instance.CurrentStepIndex,
		boolToInt(instance.WaitingForUser),
		instance.CurrentUserStepName,
		instance.Error,
		1,
		toMillis(instance.CreatedAt),
		toMillis(instance.UpdatedAt),
	)
	if err != nil {
		if s.dialect.IsDuplicateKey != nil && s.dialect.IsDuplicateKey(err) {
			return backend.ErrInstanceAlreadyExists
		}

		return fmt.Errorf("inserting workflow instance: %w", err)
	}

	instance.Version = 1

	return nil
}

func (s *Store) GetInstance(ctx context.Context, tenantID, instanceID string) (*core.Instance, error) {
	row := s.db.QueryRowContext(
		ctx,
		s.dialect.rebind("SELECT "+instanceColumns+" FROM instances WHERE tenant_id = ? AND id = ?"),
		tenantID,
		instanceID,
	)

	i, err := scanInstance(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, backend.ErrInstanceNotFound
		}

		return nil, fmt.Errorf("getting workflow instance: %w", err)
	}

	return i, nil
}

func (s *Store) UpdateInstance(ctx context.Context, instance *core.Instance) error {
	steps, err := json.Marshal(instance.Steps)
	if err != nil {
		return fmt.Errorf("marshaling steps: %w", err)
	}

	vars, err := json.Marshal(instance.Variables)
	if err != nil {
		return fmt.Errorf("marshaling variables: %w", err)
	}

	res, err := s.db.ExecContext(
		ctx,
		s.dialect.rebind(`UPDATE instances SET
			process_name = ?, steps = ?, variables = ?, status = ?, current_step_index = ?, waiting_for_user = ?,
			current_user_step_name = ?, error_message = ?, version = version + 1, updated_at = ?
			WHERE tenant_id = ? AND id = ? AND version = ?`),
		instance.ProcessName,
		string(steps),
		string(vars),
		string(instance.Status),
		instance.CurrentStepIndex,
		boolToInt(instance.WaitingForUser),
		instance.CurrentUserStepName,
		instance.Error,
		toMillis(instance.UpdatedAt),
		instance.TenantID,
		instance.ID,
		instance.Version,
	)
	if err != nil {
		return fmt.Errorf("updating workflow instance: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking updated rows: %w", err)
	}

	if rows == 0 {
		var one int
		err := s.db.QueryRowContext(
			ctx,
			s.dialect.rebind("SELECT 1 FROM instances WHERE tenant_id = ? AND id = ?"),
			instance.TenantID,
			instance.ID,
		).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return backend.ErrInstanceNotFound
		} else if err != nil {
			return fmt.Errorf("checking workflow instance: %w", err)
		}

		return fmt.Errorf("instance %s at version %d: %w", instance.ID, instance.Version, backend.ErrVersionConflict)
	}

	instance.Version++

	return nil
}

func (s *Store) ListInstances(ctx context.Context, tenantID string, opts ...backend.ListOption) ([]*core.Instance, error) {
	o := backend.ApplyListOptions(opts...)

	query := "SELECT " + instanceColumns + " FROM instances WHERE tenant_id = ?"
	args := []any{tenantID}

	if o.Status != "" {
		query += " AND status = ?"
		args = append(args, string(o.Status))
	}

	if o.ProcessName != "" {
		query += " AND process_name = ?"
		args = append(args, o.ProcessName)
	}

	query += " ORDER BY created_at DESC, id DESC"

	if o.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, o.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing workflow instances: %w", err)
	}
	defer rows.Close()

	var r []*core.Instance
	for rows.Next() {
		i, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning workflow instance: %w", err)
		}

		r = append(r, i)
	}

	return r, rows.Err()
}

func (s *Store) AppendAudit(ctx context.Context, entry *audit.Entry) error {
	_, err := s.db.ExecContext(
		ctx,
		s.dialect.rebind(`INSERT INTO audit_entries
			(tenant_id, entity_type, entity_id, step_name, action, details, actor_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		entry.TenantID,
		entry.EntityType,
		entry.EntityID,
		entry.StepName,
		string(entry.Action),
		entry.Details,
		entry.ActorID,
		toMillis(entry.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	return nil
}

func (s *Store) AuditTrail(ctx context.Context, tenantID, entityID string) ([]*audit.Entry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		s.dialect.rebind(`SELECT tenant_id, entity_type, entity_id, step_name, action, details, actor_id, created_at
			FROM audit_entries WHERE tenant_id = ? AND entity_id = ? ORDER BY id`),
		tenantID,
		entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit trail: %w", err)
	}
	defer rows.Close()

	r := []*audit.Entry{}
	for rows.Next() {
		var e audit.Entry
		var action string
		var ts int64
		if err := rows.Scan(&e.TenantID, &e.EntityType, &e.EntityID, &e.StepName, &action, &e.Details, &e.ActorID, &ts); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}

		e.Action = audit.Action(action)
		e.Timestamp = fromMillis(ts)
		r = append(r, &e)
	}

	return r, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInstance(row scanner) (*core.Instance, error) {
	var i core.Instance
	var steps, vars, status string
	var waiting int
	var createdAt, updatedAt int64

	if err := row.Scan(
		&i.ID,
		&i.TenantID,
		&i.ProcessName,
		&steps,
		&vars,
		&status,
		&i.CurrentStepIndex,
		&waiting,
		&i.CurrentUserStepName,
		&i.Error,
		&i.Version,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(steps), &i.Steps); err != nil {
		return nil, fmt.Errorf("unmarshaling steps: %w", err)
	}

	if err := json.Unmarshal([]byte(vars), &i.Variables); err != nil {
		return nil, fmt.Errorf("unmarshaling variables: %w", err)
	}

	if i.Variables == nil {
		i.Variables = core.Variables{}
	}

	i.Status = core.Status(status)
	i.WaitingForUser = waiting != 0
	i.CreatedAt = fromMillis(createdAt)
	i.UpdatedAt = fromMillis(updatedAt)

	return &i, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
