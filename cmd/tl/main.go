package main

import (
	"context"
	"crypto/rand"
	"database/sql"
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

	"taskline/internal/automation"
	"taskline/internal/broadcast"
	"taskline/internal/config"
	"taskline/internal/db"
	"taskline/internal/domain"
	"taskline/internal/engine"
	"taskline/internal/mail"
	"taskline/internal/migrate"
	"taskline/internal/presence"
	"taskline/internal/realtime"
	"taskline/internal/repo"
	"taskline/internal/server"
	"taskline/internal/webhook"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Taskline CLI",
	Long: `Taskline is a task tracker with an event-driven notification core.
Every write appends to an event log, and committed events fan out three ways:
- Automation rules: user-defined trigger/condition/action recipes.
- Webhooks: signed HTTP deliveries to registered endpoints.
- Realtime: presence rooms and live updates for connected clients.`,
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
	viper.SetEnvPrefix("TASKLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(commentCmd())
	rootCmd.AddCommand(ruleCmd())
	rootCmd.AddCommand(webhookCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

// newEngine wires the engine with its full notification stack: rules,
// webhooks, and (when serving) realtime.
func newEngine(conn *sql.DB, cfg *config.Config, gw *realtime.Gateway) *engine.Engine {
	e := engine.New(conn, cfg)
	var mailer mail.Mailer = mail.Discard{}
	if cfg.Mail.Host != "" {
		mailer = mail.SMTP{Host: cfg.Mail.Host, Port: cfg.Mail.Port, From: cfg.Mail.From}
	}
	exec := &automation.Executor{
		Tasks: engine.RuleActions{Engine: e},
		Mail:  mailer,
	}
	if gw != nil {
		exec.Notify = gw
	}
	svc := automation.NewService(e.Repo, exec)
	disp := webhook.NewDispatcher(e.Repo, time.Duration(cfg.Webhooks.TimeoutSeconds)*time.Second)
	e.Broadcaster = broadcast.New(svc, disp, gw)
	return e
}

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	return fn(ctx, newEngine(conn, cfg, nil))
}

func actorID() string {
	return viper.GetString("actor-id")
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				if err := os.WriteFile(path, []byte(config.DefaultYAML()), 0o644); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", path)
			}
			fmt.Printf("workspace ready at %s\n", db.Path(workspace))
			return nil
		},
	}
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskDeleteCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var title, description, status, priority, due, assignee string
	var tags []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
					Title:       title,
					Description: description,
					Status:      status,
					Priority:    priority,
					Tags:        tags,
					Due:         due,
					AssigneeID:  assignee,
					ActorID:     actorID(),
				})
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().StringVar(&status, "status", "", "initial status")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	cmd.Flags().StringVar(&due, "due", "", "due date (RFC3339)")
	cmd.Flags().StringVar(&assignee, "assignee-id", "", "assignee")
	cmd.Flags().StringArrayVar(&tags, "tag", []string{}, "tag (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				tasks, err := e.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Assignee", "Due"})
				for _, t := range tasks {
					assignee := ""
					if t.AssigneeID != nil {
						assignee = *t.AssigneeID
					}
					due := ""
					if t.Due != nil {
						due = *t.Due
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Priority, assignee, due})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&f.AssigneeID, "assignee-id", "", "assignee filter")
	cmd.Flags().StringVar(&f.OwnerID, "owner-id", "", "owner filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max results")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				t, err := e.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var title, description, status, priority, due, assignee string
	var tags []string
	cmd := &cobra.Command{
		Use:   "update <task-id>",
		Short: "Update task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				opts := engine.TaskUpdateOptions{ID: args[0], ActorID: actorID()}
				if cmd.Flags().Changed("title") {
					opts.Title = &title
				}
				if cmd.Flags().Changed("description") {
					opts.Description = &description
				}
				if cmd.Flags().Changed("status") {
					opts.Status = &status
				}
				if cmd.Flags().Changed("priority") {
					opts.Priority = &priority
				}
				if cmd.Flags().Changed("due") {
					opts.Due = &due
				}
				if cmd.Flags().Changed("assignee-id") {
					opts.AssigneeID = &assignee
				}
				if cmd.Flags().Changed("tag") {
					opts.Tags = tags
				}
				t, err := e.UpdateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.Flags().StringVar(&priority, "priority", "", "new priority")
	cmd.Flags().StringVar(&due, "due", "", "new due date (empty clears)")
	cmd.Flags().StringVar(&assignee, "assignee-id", "", "new assignee (empty clears)")
	cmd.Flags().StringArrayVar(&tags, "tag", []string{}, "replacement tags (repeatable)")
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <task-id>",
		Short: "Delete task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.DeleteTask(ctx, args[0], actorID())
			})
		},
	}
	return cmd
}

func commentCmd() *cobra.Command {
	comment := &cobra.Command{Use: "comment", Short: "Manage comments"}
	comment.AddCommand(commentAddCmd())
	comment.AddCommand(commentListCmd())
	comment.AddCommand(commentUpdateCmd())
	comment.AddCommand(commentDeleteCmd())
	return comment
}

func commentAddCmd() *cobra.Command {
	var parentID string
	cmd := &cobra.Command{
		Use:   "add <task-id> <content>",
		Short: "Add comment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				c, err := e.AddComment(ctx, engine.CommentCreateOptions{
					TaskID:   args[0],
					Content:  args[1],
					ParentID: parentID,
					ActorID:  actorID(),
				})
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	cmd.Flags().StringVar(&parentID, "parent-id", "", "parent comment id")
	return cmd
}

func commentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <task-id>",
		Short: "List comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				comments, err := e.ListComments(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(comments)
			})
		},
	}
}

func commentUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <comment-id> <content>",
		Short: "Update comment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				c, err := e.UpdateComment(ctx, args[0], actorID(), args[1])
				if err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
}

func commentDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <comment-id>",
		Short: "Delete comment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.DeleteComment(ctx, args[0], actorID())
			})
		},
	}
}

func ruleCmd() *cobra.Command {
	rule := &cobra.Command{Use: "rule", Short: "Manage automation rules"}
	rule.AddCommand(ruleCreateCmd())
	rule.AddCommand(ruleListCmd())
	rule.AddCommand(ruleShowCmd())
	rule.AddCommand(ruleToggleCmd("enable", true))
	rule.AddCommand(ruleToggleCmd("disable", false))
	rule.AddCommand(ruleDeleteCmd())
	return rule
}

func ruleCreateCmd() *cobra.Command {
	var name, trigger, conditionsJSON, actionsJSON string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create automation rule",
		Long: `Conditions and actions are JSON, for example:
  --when '[{"field":"task.priority","operator":"equals","value":"URGENT"}]'
  --do '[{"type":"send_notification","params":{"user_id":"{{task.owner_id}}","message":"Urgent: {{task.title}}"}}]'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var conditions []domain.Condition
			if conditionsJSON != "" {
				if err := json.Unmarshal([]byte(conditionsJSON), &conditions); err != nil {
					return fmt.Errorf("invalid --when JSON: %w", err)
				}
			}
			var actions []domain.Action
			if actionsJSON != "" {
				if err := json.Unmarshal([]byte(actionsJSON), &actions); err != nil {
					return fmt.Errorf("invalid --do JSON: %w", err)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				rl, err := e.CreateRule(ctx, engine.RuleCreateOptions{
					Name:       name,
					Trigger:    trigger,
					Conditions: conditions,
					Actions:    actions,
					ActorID:    actorID(),
				})
				if err != nil {
					return err
				}
				return printJSON(rl)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "rule name")
	cmd.Flags().StringVar(&trigger, "trigger", "", "trigger event kind")
	cmd.Flags().StringVar(&conditionsJSON, "when", "", "conditions JSON array")
	cmd.Flags().StringVar(&actionsJSON, "do", "", "actions JSON array")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("trigger")
	_ = cmd.MarkFlagRequired("do")
	return cmd
}

func ruleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List automation rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				list, err := e.ListRules(ctx, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Trigger", "Active", "Executions", "Last"})
				for _, rl := range list {
					last := ""
					if rl.LastExecution != nil {
						last = *rl.LastExecution
					}
					tw.AppendRow(table.Row{rl.ID, rl.Name, rl.Trigger, rl.IsActive, rl.ExecutionCount, last})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func ruleShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <rule-id>",
		Short: "Show automation rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				rl, err := e.GetRule(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printJSON(rl)
			})
		},
	}
}

func ruleToggleCmd(name string, active bool) *cobra.Command {
	short := "Enable automation rule"
	if !active {
		short = "Disable automation rule"
	}
	return &cobra.Command{
		Use:   name + " <rule-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				rl, err := e.UpdateRule(ctx, args[0], actorID(), repo.RuleUpdate{IsActive: &active})
				if err != nil {
					return err
				}
				return printJSON(rl)
			})
		},
	}
}

func ruleDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <rule-id>",
		Short: "Delete automation rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.DeleteRule(ctx, args[0], actorID())
			})
		},
	}
}

func webhookCmd() *cobra.Command {
	hook := &cobra.Command{Use: "webhook", Short: "Manage webhooks"}
	hook.AddCommand(webhookCreateCmd())
	hook.AddCommand(webhookListCmd())
	hook.AddCommand(webhookShowCmd())
	hook.AddCommand(webhookDeleteCmd())
	return hook
}

func webhookCreateCmd() *cobra.Command {
	var name, url string
	var events []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register webhook",
		Long:  "Prints the signing secret exactly once; store it on the receiving side.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				w, err := e.CreateWebhook(ctx, engine.WebhookCreateOptions{
					Name:    name,
					URL:     url,
					Events:  events,
					ActorID: actorID(),
				})
				if err != nil {
					return err
				}
				return printJSON(w)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "webhook name")
	cmd.Flags().StringVar(&url, "url", "", "endpoint URL")
	cmd.Flags().StringArrayVar(&events, "event", []string{}, "subscribed event kind (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}

func webhookListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List webhooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				list, err := e.ListWebhooks(ctx, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "URL", "Active", "OK", "Failed"})
				for _, w := range list {
					tw.AppendRow(table.Row{w.ID, w.Name, w.URL, w.IsActive, w.SuccessCount, w.FailureCount})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func webhookShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <webhook-id>",
		Short: "Show webhook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				w, err := e.GetWebhook(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printJSON(w)
			})
		},
	}
}

func webhookDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <webhook-id>",
		Short: "Delete webhook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.DeleteWebhook(ctx, args[0], actorID())
			})
		},
	}
}

func logCmd() *cobra.Command {
	logc := &cobra.Command{Use: "log", Short: "Event log"}
	logc.AddCommand(logTailCmd())
	return logc
}

func logTailCmd() *cobra.Command {
	var n int
	var kind string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, kind)
				if err != nil {
					return err
				}
				return printJSON(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&kind, "kind", "", "event kind filter")
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create API key",
		Long:  "Prints the key exactly once; only its hash is stored.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				raw := make([]byte, 24)
				if _, err := rand.Read(raw); err != nil {
					return err
				}
				key := "tlk_" + hex.EncodeToString(raw)
				rec := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   actorID(),
					Name:      name,
					KeyHash:   repo.HashAPIKey(key),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := e.Repo.InsertAPIKey(ctx, rec); err != nil {
					return err
				}
				return printJSON(map[string]string{"id": rec.ID, "key": key})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key name")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			gw := realtime.NewGateway(presence.NewRegistry(), realtime.NewHub())
			e := newEngine(conn, cfg, gw)
			jwtSecret := os.Getenv("TASKLINE_JWT_SECRET")
			if jwtSecret == "" {
				jwtSecret = cfg.Auth.JWTSecret
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				Gateway:  gw,
				BasePath: basePath,
				Auth: server.AuthConfig{
					JWTSecret:              jwtSecret,
					AllowLegacyActorHeader: cfg.Auth.AllowLegacyActorHeader,
				},
			})
			if err != nil {
				return err
			}
			server.StartDueSweeper(cmd.Context(), e, nil)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Taskline API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	return cmd
}
