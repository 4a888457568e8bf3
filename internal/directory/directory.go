// Package directory resolves identity references to contact records. The core
// depends only on the narrow interface, so participant resolution never binds
// to a particular persistence or query engine.
package directory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"relaydesk/internal/domain"
)

// Identity is one resolved directory record.
type Identity struct {
	ID         string
	Name       string
	Email      string
	Role       string
	Department string
}

// Directory is the identity-resolution port. Lookups are batched only: one
// call per id collection, never one call per id.
type Directory interface {
	// ResolveMany resolves the given ids under a role tag; empty role matches
	// any. Unknown ids are silently omitted from the result.
	ResolveMany(ctx context.Context, role string, ids []string) ([]Identity, error)
	// Oversight returns the oversight group: every member entitled to
	// visibility into all shared tasks.
	Oversight(ctx context.Context) ([]Identity, error)
}

// SQL is the users-table-backed Directory.
type SQL struct {
	DB *sql.DB
	// OversightRole selects the oversight group; empty means admin.
	OversightRole string
}

func (d SQL) ResolveMany(ctx context.Context, role string, ids []string) ([]Identity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT id,name,email,role,COALESCE(department,'') FROM users WHERE `
	args := make([]any, 0, len(ids)+1)
	if role != "" {
		query += `role=? AND `
		args = append(args, role)
	}
	query += `id IN (` + placeholders(len(ids)) + `)`
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("directory resolve %s: %w", role, err)
	}
	defer rows.Close()
	byID := make(map[string]Identity, len(ids))
	for rows.Next() {
		var ident Identity
		if err := rows.Scan(&ident.ID, &ident.Name, &ident.Email, &ident.Role, &ident.Department); err != nil {
			return nil, err
		}
		byID[ident.ID] = ident
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Preserve caller order; unresolved ids are skipped.
	res := make([]Identity, 0, len(byID))
	for _, id := range ids {
		if ident, ok := byID[id]; ok {
			res = append(res, ident)
		}
	}
	return res, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func (d SQL) Oversight(ctx context.Context) ([]Identity, error) {
	role := d.OversightRole
	if role == "" {
		role = domain.RoleAdmin
	}
	rows, err := d.DB.QueryContext(ctx, `SELECT id,name,email,role,COALESCE(department,'') FROM users WHERE role=? ORDER BY created_at ASC, id ASC`, role)
	if err != nil {
		return nil, fmt.Errorf("directory oversight: %w", err)
	}
	defer rows.Close()
	var res []Identity
	for rows.Next() {
		var ident Identity
		if err := rows.Scan(&ident.ID, &ident.Name, &ident.Email, &ident.Role, &ident.Department); err != nil {
			return nil, err
		}
		res = append(res, ident)
	}
	return res, rows.Err()
}
