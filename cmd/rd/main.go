package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"relaydesk/internal/app"
	"relaydesk/internal/config"
	"relaydesk/internal/db"
	"relaydesk/internal/domain"
	"relaydesk/internal/engine"
	"relaydesk/internal/repo"
	"relaydesk/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "rd",
	Short: "RelayDesk CLI",
	Long: `RelayDesk routes tasks through delegation chains.
- Workspace: the directory holding .relaydesk/ (database) and relaydesk.yml.
- Users: the directory of actors (admin, manager, teamlead, employee).
- Tasks: originating submissions, immutable once created.
- Shared tasks: delegation records over a task; chain stages are filled in as
  work moves down the hierarchy, and three status axes track progress.
- Feedback: threaded discussion on a shared task, visible to its participants.
- Notifications: fan-out to the participant set on every chain change.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("RELAYDESK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "acting user id or email")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(shareCmd())
	rootCmd.AddCommand(feedbackCmd())
	rootCmd.AddCommand(notificationsCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the workspace and seed an admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				u, err := a.EnsureAdmin(ctx, name, email)
				if err != nil {
					return err
				}
				if u.ID == "" {
					fmt.Println("workspace already initialized")
					return nil
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "Admin", "admin display name")
	cmd.Flags().StringVar(&email, "email", "admin@localhost", "admin email")
	return cmd
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage directory users"}
	user.AddCommand(userAddCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userShowCmd())
	user.AddCommand(userRemoveCmd())
	return user
}

func userAddCmd() *cobra.Command {
	var name, email, role, department string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.CreateUser(ctx, domain.User{
					Name:       name,
					Email:      email,
					Role:       role,
					Department: department,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&role, "role", "", "role (admin, manager, teamlead, employee)")
	cmd.Flags().StringVar(&department, "department", "", "department")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func userListCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				items, err := a.Repo.ListUsers(ctx, role)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Role", "Department"})
				for _, u := range items {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Email, u.Role, u.Department})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role filter")
	return cmd
}

func userShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id-or-email>",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				actor, err := a.ResolveActor(ctx, args[0])
				if err != nil {
					return err
				}
				u, err := a.Repo.GetUser(ctx, actor.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	return cmd
}

func userRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				return a.Repo.DeleteUser(ctx, args[0])
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage originating tasks"}
	task.AddCommand(taskSubmitCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	return task
}

func taskSubmitCmd() *cobra.Command {
	var opts engine.TaskSubmitOptions
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActorEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				t, err := e.SubmitTask(ctx, opts, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "task title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Department, "department", "", "department")
	cmd.Flags().StringArrayVar(&opts.AssignedTeamLeads, "teamlead", []string{}, "assigned teamlead id (repeatable)")
	cmd.Flags().StringArrayVar(&opts.AssignedEmployees, "employee", []string{}, "assigned employee id (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("department")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				tasks, err := a.Repo.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Department", "Submitted By"})
				for _, t := range tasks {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Department, t.SubmittedBy})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Department, "department", "", "department filter")
	cmd.Flags().StringVar(&f.SubmittedBy, "submitted-by", "", "submitter filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max results")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task and its delegation records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				t, err := a.Repo.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				shares, err := a.Repo.ListSharedTasks(ctx, t.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"task": t, "shared": shares})
			})
		},
	}
	return cmd
}

func shareCmd() *cobra.Command {
	share := &cobra.Command{Use: "share", Short: "Manage delegation records"}
	share.AddCommand(shareCreateCmd())
	share.AddCommand(shareShowCmd())
	share.AddCommand(shareDelegateCmd())
	share.AddCommand(shareStatusCmd())
	share.AddCommand(shareParticipantsCmd())
	return share
}

func shareCreateCmd() *cobra.Command {
	var taskID string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a delegation record over a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActorEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				s, err := e.ShareTask(ctx, taskID, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&taskID, "task", "", "task id")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func shareShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a delegation record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActorEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				s, err := e.GetSharedTask(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func shareDelegateCmd() *cobra.Command {
	var stage, userID string
	cmd := &cobra.Command{
		Use:   "delegate <id>",
		Short: "Set a delegation-chain stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActorEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				s, err := e.Delegate(ctx, args[0], stage, userID, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&stage, "stage", "", "stage (manager, teamlead, employee, operation_teamlead, operation_employee)")
	cmd.Flags().StringVar(&userID, "to", "", "target user id")
	_ = cmd.MarkFlagRequired("stage")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func shareStatusCmd() *cobra.Command {
	var axis, value string
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Update one status axis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActorEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				s, err := e.UpdateStatus(ctx, args[0], axis, value, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&axis, "axis", domain.AxisDelegation, "axis (delegation_status, vendor_status, machine_status)")
	cmd.Flags().StringVar(&value, "value", "", "new status value")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func shareParticipantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "participants <id>",
		Short: "Resolve the participant set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActorEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				parts, err := e.Participants(ctx, args[0], actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(parts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Email", "Name", "Role", "Department"})
				for _, p := range parts {
					tw.AppendRow(table.Row{p.IdentityKey, p.Name, p.Role, p.Department})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func feedbackCmd() *cobra.Command {
	fb := &cobra.Command{Use: "feedback", Short: "Feedback threads"}
	fb.AddCommand(feedbackAddCmd())
	fb.AddCommand(feedbackListCmd())
	fb.AddCommand(feedbackReplyCmd())
	fb.AddCommand(feedbackEditCmd())
	fb.AddCommand(feedbackDeleteCmd())
	return fb
}

func feedbackAddCmd() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "add <shared-id>",
		Short: "Post feedback on a shared task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActorEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				f, err := e.AddFeedback(ctx, args[0], text, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(f)
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "feedback text")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func feedbackListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <shared-id>",
		Short: "List the feedback thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActorEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				items, err := e.ListFeedback(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func feedbackReplyCmd() *cobra.Command {
	var entryID, text string
	cmd := &cobra.Command{
		Use:   "reply <shared-id>",
		Short: "Reply to a feedback entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActorEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				rp, err := e.AddReply(ctx, args[0], entryID, text, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(rp)
			})
		},
	}
	cmd.Flags().StringVar(&entryID, "entry", "", "feedback entry id")
	cmd.Flags().StringVar(&text, "text", "", "reply text")
	_ = cmd.MarkFlagRequired("entry")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func feedbackEditCmd() *cobra.Command {
	var entryID, text string
	cmd := &cobra.Command{
		Use:   "edit <shared-id>",
		Short: "Edit your own feedback entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActorEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				f, err := e.EditFeedback(ctx, args[0], entryID, text, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(f)
			})
		},
	}
	cmd.Flags().StringVar(&entryID, "entry", "", "feedback entry id")
	cmd.Flags().StringVar(&text, "text", "", "replacement text")
	_ = cmd.MarkFlagRequired("entry")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func feedbackDeleteCmd() *cobra.Command {
	var entryID string
	cmd := &cobra.Command{
		Use:   "delete <shared-id>",
		Short: "Delete your own feedback entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActorEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				return e.DeleteFeedback(ctx, args[0], entryID, actor)
			})
		},
	}
	cmd.Flags().StringVar(&entryID, "entry", "", "feedback entry id")
	_ = cmd.MarkFlagRequired("entry")
	return cmd
}

func notificationsCmd() *cobra.Command {
	n := &cobra.Command{Use: "notifications", Short: "Notification inbox"}
	n.AddCommand(notificationsListCmd())
	n.AddCommand(notificationsReadCmd())
	return n
}

func notificationsListCmd() *cobra.Command {
	var unread bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActorEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				items, err := e.Repo.ListNotifications(ctx, repo.NotificationFilters{
					ToID:       actor.ID,
					UnreadOnly: unread,
					Limit:      limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Kind", "Message", "Read", "At"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.ID, it.Kind, it.Message, it.Read, it.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&unread, "unread", false, "unread only")
	cmd.Flags().IntVar(&limit, "limit", 50, "max results")
	return cmd
}

func notificationsReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <id>",
		Short: "Mark a notification read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActorEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, actor domain.Actor) error {
				return e.Repo.MarkNotificationRead(ctx, args[0], actor.ID)
			})
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	k.AddCommand(apikeyCreateCmd())
	k.AddCommand(apikeyListCmd())
	k.AddCommand(apikeyRevokeCmd())
	return k
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key for the acting user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActorApp(cmd.Context(), func(ctx context.Context, a *app.Context, actor domain.Actor) error {
				raw := make([]byte, 24)
				if _, err := rand.Read(raw); err != nil {
					return err
				}
				secret := "rdk_" + hex.EncodeToString(raw)
				key := domain.APIKey{
					ID:        uuid.New().String(),
					UserID:    actor.ID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				tx, err := a.DB.BeginTx(ctx, nil)
				if err != nil {
					return err
				}
				defer tx.Rollback()
				if err := a.Repo.InsertAPIKey(ctx, tx, key); err != nil {
					return err
				}
				if err := tx.Commit(); err != nil {
					return err
				}
				// The secret is shown once and never stored.
				return printJSONOrTable(map[string]string{"id": key.ID, "key": secret})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the acting user's API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActorApp(cmd.Context(), func(ctx context.Context, a *app.Context, actor domain.Actor) error {
				items, err := a.Repo.ListAPIKeys(ctx, actor.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				return a.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Event log"}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				events, err := a.Repo.ListEvents(ctx, repo.EventFilters{
					Type:       evtType,
					EntityKind: entityKind,
					EntityID:   entityID,
					Limit:      n,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Workspace config"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(c)
		},
	})
	return cfg
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.Context) error {
				cfg := a.Config
				if addr == "" {
					addr = cfg.Server.Addr
				}
				if basePath == "" {
					basePath = cfg.Server.BasePath
				}
				secret := cfg.Auth.JWTSecret
				if env := os.Getenv("RELAYDESK_JWT_SECRET"); env != "" {
					secret = env
				}
				if secret == "" {
					return fmt.Errorf("jwt secret is required; set auth.jwt_secret or RELAYDESK_JWT_SECRET")
				}
				e := engine.New(a.DB, cfg)
				handler, err := server.New(server.Config{
					Engine:   e,
					BasePath: basePath,
					Auth: server.AuthConfig{
						JWTSecret:     secret,
						TokenTTLHours: cfg.Auth.TokenTTLHours,
					},
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(sctx)
				}()
				fmt.Printf("Serving RelayDesk API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.Context) error) error {
	a, err := app.Open(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.Context) error {
		return fn(ctx, engine.New(a.DB, a.Config))
	})
}

func withActorEngine(ctx context.Context, fn func(context.Context, engine.Engine, domain.Actor) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.Context) error {
		actor, err := a.ResolveActor(ctx, viper.GetString("actor-id"))
		if err != nil {
			return err
		}
		return fn(ctx, engine.New(a.DB, a.Config), actor)
	})
}

func withActorApp(ctx context.Context, fn func(context.Context, *app.Context, domain.Actor) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.Context) error {
		actor, err := a.ResolveActor(ctx, viper.GetString("actor-id"))
		if err != nil {
			return err
		}
		return fn(ctx, a, actor)
	})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
