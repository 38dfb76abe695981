package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"escra/internal/app"
	"escra/internal/config"
	"escra/internal/db"
	"escra/internal/metrics"
	"escra/internal/repo"
	"escra/internal/seed"
	"escra/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "escra",
	Short: "Escra records CLI",
	Long: `Escra keeps escrow contracts, signature requests and documents in a local workspace.
- Workspace: the .escra directory holding the SQLite database, next to escra.yml.
- Contracts move through Initiation, Preparation, Wire Details, In Review, Signatures, Funds Disbursed and Completed.
- Signature requests complete when every recipient signs and are rejected when one declines.
- Lists share one filter/sort model: search, status, assignee, contract, sender, tab, sort and dir.
- 'escra serve' exposes the same operations over HTTP.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := zapcore.WarnLevel
		if viper.GetBool("debug") {
			level = zapcore.DebugLevel
		}
		log, err := newLogger(level)
		if err != nil {
			return err
		}
		logger = log
		return nil
	},
}

var logger = zap.NewNop()

// stdout receives command output.
var stdout io.Writer = os.Stdout

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ESCRA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("debug", false, "debug logging")
	rootCmd.PersistentFlags().String("user", "", "current user display name (overrides user.name)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("user", rootCmd.PersistentFlags().Lookup("user"))
}

func registerCommands() {
	rootCmd.AddCommand(contractCmd())
	rootCmd.AddCommand(signatureCmd())
	rootCmd.AddCommand(documentCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(roleCmd())
}

func newLogger(level zapcore.Level) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show record counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				counts, err := rt.Engine.StatusCounts(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"user": rt.Engine.CurrentUser(), "counts": counts})
				}
				user := rt.Engine.CurrentUser()
				if user == "" {
					user = "(not set)"
				}
				fmt.Fprintf(stdout, "User: %s\n", user)
				tw := newTable()
				tw.AppendHeader(table.Row{"Collection", "Status", "Count"})
				for _, collection := range []string{"contracts", "signatures", "documents"} {
					byStatus := counts[collection]
					statuses := make([]string, 0, len(byStatus))
					for s := range byStatus {
						statuses = append(statuses, s)
					}
					sort.Strings(statuses)
					for _, s := range statuses {
						tw.AppendRow(table.Row{collection, s, byStatus[s]})
					}
				}
				tw.Render()
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var n int
	var f repo.EventFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Engine.Repo.LatestEvents(ctx, n, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor", "Payload"})
				for _, e := range items {
					entity := e.EntityKind
					if e.EntityID != "" {
						entity += " " + e.EntityID
					}
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, entity, e.ActorID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind filter")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id filter")
	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load the demo dataset into an empty workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				ds, err := seed.Demo()
				if err != nil {
					return err
				}
				actor, err := rt.Actor()
				if err != nil {
					actor = "seed"
				}
				res, err := rt.Engine.Seed(ctx, ds, actor)
				if errors.Is(err, repo.ErrDuplicate) {
					return fmt.Errorf("workspace already holds demo records: %w", err)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Fprintf(stdout, "Seeded %d contracts, %d signature requests, %d documents, %d tasks\n",
					res.Contracts, res.Signatures, res.Documents, res.Tasks)
				return nil
			})
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage escra.yml"}
	cmd.AddCommand(configInitCmd())
	cmd.AddCommand(configShowCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	var user string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default escra.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if user == "" {
				user = viper.GetString("user")
			}
			content := config.GenerateDefault(user)
			if _, err := config.FromYAML([]byte(content)); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "name", "", "display name of the current user")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if user := viper.GetString("user"); user != "" {
				cfg.User.Name = user
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Fprint(stdout, string(out))
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowUserHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long:  "Serves the records API with bearer JWT auth (ESCRA_JWT_SECRET), runs the signature expiry sweep and delivers configured webhooks.",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("ESCRA_JWT_SECRET is required for bearer auth")
			}
			log, err := newLogger(serveLevel())
			if err != nil {
				return err
			}
			defer log.Sync()
			rt, err := app.Open(cmd.Context(), app.Options{
				Workspace: viper.GetString("workspace"),
				User:      viper.GetString("user"),
				Logger:    log,
			})
			if err != nil {
				return err
			}
			defer rt.Close()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			e := rt.Engine
			e.Metrics = metrics.New(reg)

			if addr == "" {
				addr = rt.Config.Server.Addr
			}
			if basePath == "" {
				basePath = rt.Config.Server.BasePath
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: secret, AllowUserHeader: allowUserHeader},
				Logger:   log,
				Gatherer: reg,
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go e.RunExpiry(ctx, rt.Config.ExpiryInterval())
			go server.NewWebhookDispatcher(e, log).Run(ctx)

			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					log.Warn("shutdown", zap.Error(err))
				}
			}()
			log.Info("serving escra api", zap.String("addr", addr), zap.String("base_path", basePath),
				zap.String("openapi", basePath+"/openapi.json"), zap.Bool("user_header", allowUserHeader))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default server.base_path)")
	cmd.Flags().BoolVar(&allowUserHeader, "allow-user-header", false, "accept X-User-Name and X-User-Role without a token (development only)")
	return cmd
}

func serveLevel() zapcore.Level {
	if viper.GetBool("debug") {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

func tokenCmd() *cobra.Command {
	var subject, name, role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with ESCRA_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				return fmt.Errorf("ESCRA_JWT_SECRET is required")
			}
			if subject == "" {
				return fmt.Errorf("--subject required")
			}
			tok, err := server.SignToken(secret, subject, name, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject")
	cmd.Flags().StringVar(&name, "name", "", "display name claim")
	cmd.Flags().StringVar(&role, "role", "", "role claim: admin, creator, editor or viewer (default the stored role)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

// --- helpers ---

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	rt, err := app.Open(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		User:      viper.GetString("user"),
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(stdout)
	return tw
}

// printDetail renders a record as a two-column field table, or JSON with --json.
func printDetail(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		return printJSON(v)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tw := newTable()
	for _, k := range keys {
		val := fields[k]
		switch val.(type) {
		case []any, map[string]any:
			raw, _ := json.Marshal(val)
			val = string(raw)
		}
		tw.AppendRow(table.Row{k, val})
	}
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
