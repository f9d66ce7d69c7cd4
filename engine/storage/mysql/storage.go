package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/iqrfcloud/gwcmd/engine/storage"
)

// CreateInstance implements the storage interface method.
func (s *MySQLStorage) CreateInstance(ctx context.Context, i *storage.Instance) error {
	if err := i.Validate(); err != nil {
		return fmt.Errorf("validating instance: %w", err)
	}
	_, err := s.db.ExecContext(
		ctx, `
INSERT INTO instances
    (id, workflow_name, context, custom_status, started_at)
VALUES
    (?, ?, ?, ?, ?);`,
		i.InstanceID,
		i.WorkflowName,
		i.Context,
		i.CustomStatus,
		i.StartedAt.Format(mySQLTimestampFormat),
	)
	if isDuplicateErr(err) {
		return fmt.Errorf("%w: %s", storage.ErrInstanceExists, i.InstanceID)
	}
	return err
}

// RetrieveInstance implements the storage interface method.
func (s *MySQLStorage) RetrieveInstance(ctx context.Context, instanceID string) (*storage.Instance, error) {
	i := &storage.Instance{InstanceID: instanceID}
	var startedAt string
	var completedAt sql.NullString
	var result []byte
	err := s.db.QueryRowContext(
		ctx, `
SELECT workflow_name, context, custom_status, started_at, done, result, completed_at
FROM instances
WHERE id = ?;`,
		instanceID,
	).Scan(&i.WorkflowName, &i.Context, &i.CustomStatus, &startedAt, &i.Done, &result, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrInstanceNotFound, instanceID)
	} else if err != nil {
		return nil, err
	}
	if i.StartedAt, err = time.Parse(mySQLTimestampFormat, startedAt); err != nil {
		return nil, fmt.Errorf("parsing started time: %w", err)
	}
	i.Result = result
	if completedAt.Valid {
		if i.CompletedAt, err = time.Parse(mySQLTimestampFormat, completedAt.String); err != nil {
			return nil, fmt.Errorf("parsing completed time: %w", err)
		}
	}
	return i, nil
}

// RecordStepResult implements the storage interface method.
func (s *MySQLStorage) RecordStepResult(ctx context.Context, instanceID string, sr *storage.StepRecord) error {
	if instanceID == "" {
		return storage.ErrMissingInstanceID
	}
	if err := sr.Validate(); err != nil {
		return fmt.Errorf("validating step record: %w", err)
	}
	if err := s.requireInstance(ctx, instanceID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx, `
INSERT INTO step_records
    (instance_id, step_index, name, output, recorded_at)
VALUES
    (?, ?, ?, ?, ?);`,
		instanceID,
		sr.Index,
		sr.Name,
		sr.Output,
		sr.RecordedAt.Format(mySQLTimestampFormat),
	)
	if isDuplicateErr(err) {
		return fmt.Errorf("%w: step %d of %s", storage.ErrStepAlreadyRecorded, sr.Index, instanceID)
	}
	return err
}

// RetrieveStepRecord implements the storage interface method.
func (s *MySQLStorage) RetrieveStepRecord(ctx context.Context, instanceID string, index int) (*storage.StepRecord, bool, error) {
	sr := &storage.StepRecord{Index: index}
	var recordedAt string
	err := s.db.QueryRowContext(
		ctx, `
SELECT name, output, recorded_at
FROM step_records
WHERE instance_id = ? AND step_index = ?;`,
		instanceID, index,
	).Scan(&sr.Name, &sr.Output, &recordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	if sr.RecordedAt, err = time.Parse(mySQLTimestampFormat, recordedAt); err != nil {
		return nil, false, fmt.Errorf("parsing recorded time: %w", err)
	}
	return sr, true, nil
}

// SetCustomStatus implements the storage interface method.
func (s *MySQLStorage) SetCustomStatus(ctx context.Context, instanceID, status string) error {
	r, err := s.db.ExecContext(
		ctx,
		`UPDATE instances SET custom_status = ? WHERE id = ?;`,
		status, instanceID,
	)
	if err != nil {
		return err
	}
	return requireOneRow(r, instanceID)
}

// RecordInstanceResult implements the storage interface method.
func (s *MySQLStorage) RecordInstanceResult(ctx context.Context, instanceID string, result []byte, completedAt time.Time) error {
	r, err := s.db.ExecContext(
		ctx,
		`UPDATE instances SET done = 1, result = ?, completed_at = ? WHERE id = ?;`,
		result, completedAt.Format(mySQLTimestampFormat), instanceID,
	)
	if err != nil {
		return err
	}
	return requireOneRow(r, instanceID)
}

// RetrieveIncompleteInstances implements the storage interface method.
func (s *MySQLStorage) RetrieveIncompleteInstances(ctx context.Context) ([]*storage.Instance, error) {
	rows, err := s.db.QueryContext(
		ctx, `
SELECT id, workflow_name, context, custom_status, started_at
FROM instances
WHERE done = 0;`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var insts []*storage.Instance
	for rows.Next() {
		i := new(storage.Instance)
		var startedAt string
		if err = rows.Scan(&i.InstanceID, &i.WorkflowName, &i.Context, &i.CustomStatus, &startedAt); err != nil {
			return insts, err
		}
		if i.StartedAt, err = time.Parse(mySQLTimestampFormat, startedAt); err != nil {
			return insts, fmt.Errorf("parsing started time: %w", err)
		}
		insts = append(insts, i)
	}
	return insts, rows.Err()
}

// RetrieveCompletedBefore implements the storage interface method.
func (s *MySQLStorage) RetrieveCompletedBefore(ctx context.Context, t time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id FROM instances WHERE done = 1 AND completed_at < ?;`,
		t.Format(mySQLTimestampFormat),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteInstance implements the storage interface method.
func (s *MySQLStorage) DeleteInstance(ctx context.Context, instanceID string) error {
	return tx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM step_records WHERE instance_id = ?;`, instanceID); err != nil {
			return fmt.Errorf("deleting step records: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM instances WHERE id = ?;`, instanceID); err != nil {
			return fmt.Errorf("deleting instance: %w", err)
		}
		return nil
	})
}

// requireInstance errors with ErrInstanceNotFound if instanceID does not exist.
func (s *MySQLStorage) requireInstance(ctx context.Context, instanceID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM instances WHERE id = ?;`, instanceID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", storage.ErrInstanceNotFound, instanceID)
	}
	return err
}

// requireOneRow errors with ErrInstanceNotFound if r affected no rows.
func requireOneRow(r sql.Result, instanceID string) error {
	n, err := r.RowsAffected()
	if err != nil {
		return err
	}
	if n < 1 {
		return fmt.Errorf("%w: %s", storage.ErrInstanceNotFound, instanceID)
	}
	return nil
}

// tx runs f inside a transaction, committing if it returns nil.
func tx(ctx context.Context, db *sql.DB, f func(ctx context.Context, tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err = f(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback tx: %w; while handling: %v", rbErr, err)
		}
		return err
	}
	return tx.Commit()
}

// isDuplicateErr detects a MySQL duplicate key error (error 1062).
func isDuplicateErr(err error) bool {
	if err == nil {
		return false
	}
	var mErr *mysql.MySQLError
	if errors.As(err, &mErr) {
		return mErr.Number == 1062
	}
	return false
}
