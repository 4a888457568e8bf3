package repo

import (
	"context"
	"database/sql"
	"fmt"

	"relaydesk/internal/domain"
)

// Chain field column names on shared_tasks.
const (
	FieldSharedBy                = "shared_by"
	FieldSharedManager           = "shared_manager"
	FieldSharedTeamlead          = "shared_teamlead"
	FieldSharedEmployee          = "shared_employee"
	FieldSharedOperationTeamlead = "shared_operation_teamlead"
	FieldSharedOperationEmployee = "shared_operation_employee"
)

var chainColumns = map[string]bool{
	FieldSharedBy:                true,
	FieldSharedManager:           true,
	FieldSharedTeamlead:          true,
	FieldSharedEmployee:          true,
	FieldSharedOperationTeamlead: true,
	FieldSharedOperationEmployee: true,
}

var statusColumns = map[string]bool{
	domain.AxisDelegation: true,
	domain.AxisVendor:     true,
	domain.AxisMachine:    true,
}

func (r Repo) InsertSharedTask(ctx context.Context, tx *sql.Tx, s domain.SharedTask) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO shared_tasks(id,task_id,shared_by,shared_manager,shared_teamlead,shared_employee,shared_operation_teamlead,shared_operation_employee,delegation_status,vendor_status,machine_status,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.TaskID, nullableStringPtr(s.SharedBy), nullableStringPtr(s.SharedManager), nullableStringPtr(s.SharedTeamlead),
		nullableStringPtr(s.SharedEmployee), nullableStringPtr(s.SharedOperationTeamlead), nullableStringPtr(s.SharedOperationEmployee),
		s.DelegationStatus, s.VendorStatus, s.MachineStatus, s.CreatedAt, s.UpdatedAt)
	return err
}

func scanShared(scan func(dest ...any) error) (domain.SharedTask, error) {
	var s domain.SharedTask
	var by, mgr, tl, emp, opTL, opEmp sql.NullString
	err := scan(&s.ID, &s.TaskID, &by, &mgr, &tl, &emp, &opTL, &opEmp,
		&s.DelegationStatus, &s.VendorStatus, &s.MachineStatus, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	for _, pair := range []struct {
		src sql.NullString
		dst **string
	}{
		{by, &s.SharedBy}, {mgr, &s.SharedManager}, {tl, &s.SharedTeamlead},
		{emp, &s.SharedEmployee}, {opTL, &s.SharedOperationTeamlead}, {opEmp, &s.SharedOperationEmployee},
	} {
		if pair.src.Valid {
			v := pair.src.String
			*pair.dst = &v
		}
	}
	return s, nil
}

const sharedTaskColumns = `id,task_id,shared_by,shared_manager,shared_teamlead,shared_employee,shared_operation_teamlead,shared_operation_employee,delegation_status,vendor_status,machine_status,created_at,updated_at`

func (r Repo) GetSharedTask(ctx context.Context, id string) (domain.SharedTask, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+sharedTaskColumns+` FROM shared_tasks WHERE id=?`, id)
	return scanShared(row.Scan)
}

func (r Repo) ListSharedTasks(ctx context.Context, taskID string) ([]domain.SharedTask, error) {
	query := `SELECT ` + sharedTaskColumns + ` FROM shared_tasks`
	var args []any
	if taskID != "" {
		query += ` WHERE task_id=?`
		args = append(args, taskID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SharedTask
	for rows.Next() {
		s, err := scanShared(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// SetChainField writes a single chain field. The column name is whitelisted;
// other columns, the status axes included, are untouched.
func (r Repo) SetChainField(ctx context.Context, tx *sql.Tx, id, field, userID, updatedAt string) error {
	if !chainColumns[field] {
		return fmt.Errorf("unknown chain field %s", field)
	}
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE shared_tasks SET %s=?, updated_at=? WHERE id=?`, field), userID, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus writes exactly one status axis column. A concurrent update to a
// different axis of the same record is never clobbered because no other
// status column appears in the statement.
func (r Repo) SetStatus(ctx context.Context, tx *sql.Tx, id, axis, value, updatedAt string) error {
	if !statusColumns[axis] {
		return fmt.Errorf("unknown status axis %s", axis)
	}
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE shared_tasks SET %s=?, updated_at=? WHERE id=?`, axis), value, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
