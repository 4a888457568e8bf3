package repo

import (
	"context"
	"database/sql"

	"relaydesk/internal/domain"
)

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO tasks(id,title,description,department,submitted_by,created_at) VALUES (?,?,?,?,?,?)`,
		t.ID, t.Title, nullable(t.Description), t.Department, t.SubmittedBy, t.CreatedAt); err != nil {
		return err
	}
	for _, id := range t.AssignedTeamLeads {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_assignees(task_id,user_id,role) VALUES (?,?,?)`,
			t.ID, id, domain.RoleTeamLead); err != nil {
			return err
		}
	}
	for _, id := range t.AssignedEmployees {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_assignees(task_id,user_id,role) VALUES (?,?,?)`,
			t.ID, id, domain.RoleEmployee); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	var t domain.Task
	var desc sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,title,description,department,submitted_by,created_at FROM tasks WHERE id=?`, id).
		Scan(&t.ID, &t.Title, &desc, &t.Department, &t.SubmittedBy, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if desc.Valid {
		t.Description = desc.String
	}
	t.AssignedTeamLeads, t.AssignedEmployees, err = r.taskAssignees(ctx, t.ID)
	return t, err
}

func (r Repo) taskAssignees(ctx context.Context, taskID string) (teamleads, employees []string, err error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id, role FROM task_assignees WHERE task_id=? ORDER BY rowid`, taskID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, role string
		if err := rows.Scan(&id, &role); err != nil {
			return nil, nil, err
		}
		switch role {
		case domain.RoleTeamLead:
			teamleads = append(teamleads, id)
		case domain.RoleEmployee:
			employees = append(employees, id)
		}
	}
	return teamleads, employees, rows.Err()
}

type TaskFilters struct {
	Department  string
	SubmittedBy string
	Limit       int
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	query := `SELECT id,title,description,department,submitted_by,created_at FROM tasks`
	var clauses []string
	var args []any
	if f.Department != "" {
		clauses = append(clauses, "department=?")
		args = append(args, f.Department)
	}
	if f.SubmittedBy != "" {
		clauses = append(clauses, "submitted_by=?")
		args = append(args, f.SubmittedBy)
	}
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		var desc sql.NullString
		if err := rows.Scan(&t.ID, &t.Title, &desc, &t.Department, &t.SubmittedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			t.Description = desc.String
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		res[i].AssignedTeamLeads, res[i].AssignedEmployees, err = r.taskAssignees(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}
