package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"relaydesk/internal/config"
	"relaydesk/internal/db"
	"relaydesk/internal/domain"
	"relaydesk/internal/migrate"
	"relaydesk/internal/repo"
)

// Context bundles what every command needs: an open migrated database and
// the workspace config.
type Context struct {
	DB     *sql.DB
	Repo   repo.Repo
	Config *config.Config
}

// Open prepares the workspace: database, schema, config. Callers own closing
// the returned DB.
func Open(workspace string) (*Context, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Context{DB: conn, Repo: repo.Repo{DB: conn}, Config: cfg}, nil
}

func (c *Context) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

// EnsureAdmin seeds a first admin user into an empty directory so that login
// and user registration are reachable. No-op once any user exists.
func (c *Context) EnsureAdmin(ctx context.Context, name, email string) (domain.User, error) {
	n, err := c.Repo.CountUsers(ctx)
	if err != nil {
		return domain.User{}, err
	}
	if n > 0 {
		return domain.User{}, nil
	}
	if name == "" {
		name = "Admin"
	}
	if email == "" {
		email = "admin@localhost"
	}
	u := domain.User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     domain.NormalizeEmail(email),
		Role:      domain.RoleAdmin,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := c.Repo.InsertUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// ResolveActor turns a CLI --actor-id value (user id or email) into an acting
// identity.
func (c *Context) ResolveActor(ctx context.Context, ref string) (domain.Actor, error) {
	if ref == "" {
		return domain.Actor{}, fmt.Errorf("actor not specified; use --actor-id")
	}
	u, err := c.Repo.GetUser(ctx, ref)
	if err == nil {
		return u.Actor(), nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Actor{}, err
	}
	u, err = c.Repo.GetUserByEmail(ctx, domain.NormalizeEmail(ref))
	if err != nil {
		return domain.Actor{}, fmt.Errorf("actor %s: %w", ref, err)
	}
	return u.Actor(), nil
}
