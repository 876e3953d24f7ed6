package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/idlink/internal/config"
	"github.com/dropDatabas3/idlink/internal/core"
	"github.com/dropDatabas3/idlink/internal/events"
	"github.com/dropDatabas3/idlink/internal/infra/cachefactory"
	"github.com/dropDatabas3/idlink/internal/metrics"
	"github.com/dropDatabas3/idlink/internal/observability/logger"
	"github.com/dropDatabas3/idlink/internal/service"
	"github.com/dropDatabas3/idlink/internal/store"

	// Adapters disponibles
	_ "github.com/dropDatabas3/idlink/internal/store/adapters/fs"
	_ "github.com/dropDatabas3/idlink/internal/store/adapters/pg"
)

// app agrupa el wiring del proceso: config, store, cache, bus y service.
type app struct {
	cfg  *config.Config
	conn store.Connection
	svc  *service.Service
	bus  *events.Bus
}

func (a *app) close() {
	if a.bus != nil {
		a.bus.Close()
	}
	if a.conn != nil {
		_ = a.conn.Close()
	}
	_ = logger.Sync()
}

func setup(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "idlink"})
	_ = metrics.Register(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var scfg store.Config
	scfg.Driver = cfg.Storage.Driver
	scfg.FS.Root = cfg.Storage.FS.Root
	scfg.DSN = cfg.Storage.DSN
	scfg.Postgres.MaxOpenConns = cfg.Storage.Postgres.MaxOpenConns
	scfg.Postgres.MinConns = cfg.Storage.Postgres.MinConns
	scfg.Postgres.ConnMaxLifetime = cfg.Storage.Postgres.ConnMaxLifetime

	conn, err := store.Open(ctx, scfg)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	var ccfg cachefactory.Config
	ccfg.Kind = cfg.Cache.Kind
	ccfg.Redis.Addr = cfg.Cache.Redis.Addr
	ccfg.Redis.DB = cfg.Cache.Redis.DB
	ccfg.Redis.Prefix = cfg.Cache.Redis.Prefix
	ccfg.Memory.DefaultTTL = cfg.Cache.Memory.DefaultTTL

	c, err := cachefactory.Open(ccfg)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("cache: %w", err)
	}

	bus := events.NewBus()
	svc := service.New(conn, c, bus, service.Options{
		OpTimeout:   cfg.OpTimeout(),
		CacheMaxTTL: cfg.CacheMaxTTL(),
		SecretBytes: cfg.Tokens.SecretBytes,
	})
	return &app{cfg: cfg, conn: conn, svc: svc, bus: bus}, nil
}

// printJSON imprime cualquier resultado con indentación, como salida
// estable para scripts.
func printJSON(v any) {
	p, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(p))
}

func parseMeta(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("--meta debe ser un objeto JSON: %w", err)
	}
	return m, nil
}

func main() {
	var (
		cfgPath string
		envFile string
		a       *app
	)

	root := &cobra.Command{
		Use:           "idlink",
		Short:         "Servicio de identidades y tokens de vinculación",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Best-effort: el .env puede no existir
			_ = godotenv.Load(envFile)
			// El config.yaml default es opcional; uno explícito no
			if cfgPath == "config.yaml" {
				if _, err := os.Stat(cfgPath); err != nil {
					cfgPath = ""
				}
			}
			var err error
			a, err = setup(cfgPath)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a != nil {
				a.close()
			}
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "ruta al archivo de configuración")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "ruta a .env (opcional)")

	root.AddCommand(idCmd(&a))
	root.AddCommand(tokenCmd(&a))
	root.AddCommand(linkCmd(&a))
	root.AddCommand(sweepCmd(&a))
	root.AddCommand(statsCmd(&a))
	root.AddCommand(metricsCmd(&a))
	root.AddCommand(eventsCmd(&a))

	// Ctrl-C / SIGTERM cancelan el contexto de los comandos (sweep --watch
	// incluido)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err.Error())
		os.Exit(1)
	}
}

func idCmd(a **app) *cobra.Command {
	cmd := &cobra.Command{Use: "id", Short: "Operaciones sobre identidades"}

	var createMeta string
	create := &cobra.Command{
		Use:   "create <kind>",
		Short: "Crear una identidad (kind del set cerrado)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := parseMeta(createMeta)
			if err != nil {
				return err
			}
			rec, err := (*a).svc.Identities().Create(cmd.Context(), core.IDKind(args[0]), meta)
			if err != nil {
				return err
			}
			printJSON(rec)
			return nil
		},
	}
	create.Flags().StringVar(&createMeta, "meta", "", "metadata inicial como objeto JSON")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Resolver una identidad (cuenta como acceso)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := (*a).svc.Identities().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJSON(rec)
			return nil
		},
	}

	var setKey, setValue string
	set := &cobra.Command{
		Use:   "set-meta <id>",
		Short: "Mergear una clave de metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if setKey == "" {
				return fmt.Errorf("--key es requerido")
			}
			var v any = setValue
			// Si el valor parsea como JSON se guarda tipado
			var parsed any
			if json.Unmarshal([]byte(setValue), &parsed) == nil {
				v = parsed
			}
			if err := (*a).svc.Identities().UpdateMetadata(cmd.Context(), args[0], setKey, v); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
	set.Flags().StringVar(&setKey, "key", "", "clave de metadata")
	set.Flags().StringVar(&setValue, "value", "", "valor (JSON o string)")

	list := &cobra.Command{
		Use:   "list <kind>",
		Short: "Listar identidades de un kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := (*a).svc.Identities().ListByKind(cmd.Context(), core.IDKind(args[0]))
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}

	purge := &cobra.Command{
		Use:   "purge <id>",
		Short: "Eliminar la identidad con sus tokens y relaciones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := (*a).svc.Identities().Purge(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJSON(map[string]any{
				"purged":                args[0],
				"tokens_deleted":        res.TokensDeleted,
				"relationships_deleted": res.RelationshipsDeleted,
			})
			return nil
		},
	}

	cmd.AddCommand(create, get, set, list, purge)
	return cmd
}

func tokenCmd(a **app) *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Emisión y ciclo de vida de tokens"}

	var (
		issTTL     time.Duration
		issNoExp   bool
		issMeta    string
		issPending bool
	)
	issue := &cobra.Command{
		Use:   "issue <source-id> <target-id> <rel-type>",
		Short: "Emitir un token de vinculación (imprime el valor plano una única vez)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := parseMeta(issMeta)
			if err != nil {
				return err
			}
			var ttl *time.Duration
			if !issNoExp {
				d := issTTL
				// Sin --ttl explícito gana el default de config
				if !cmd.Flags().Changed("ttl") {
					if raw := (*a).cfg.Tokens.DefaultTTL; raw != "" {
						d, _ = time.ParseDuration(raw)
					}
				}
				ttl = &d
			}
			issueFn := (*a).svc.Tokens().Issue
			if issPending {
				issueFn = (*a).svc.Tokens().IssuePending
			}
			value, rec, err := issueFn(cmd.Context(), args[0], args[1], args[2], ttl, meta)
			if err != nil {
				return err
			}
			printJSON(map[string]any{"token": value, "record": rec})
			return nil
		},
	}
	issue.Flags().DurationVar(&issTTL, "ttl", 24*time.Hour, "vigencia del token")
	issue.Flags().BoolVar(&issNoExp, "no-expiry", false, "emitir sin expiración")
	issue.Flags().StringVar(&issMeta, "meta", "", "metadata como objeto JSON")
	issue.Flags().BoolVar(&issPending, "pending", false, "emitir en estado pending (requiere activate)")

	validate := &cobra.Command{
		Use:   "validate <token>",
		Short: "Validar un token (incrementa use_count)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := (*a).svc.Tokens().Validate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJSON(rec)
			return nil
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <token>",
		Short: "Revocar un token (idempotente)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := (*a).svc.Tokens().Revoke(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJSON(map[string]any{"revoked": ok})
			return nil
		},
	}

	activate := &cobra.Command{
		Use:   "activate <token>",
		Short: "Activar un token pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := (*a).svc.Tokens().Activate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJSON(rec)
			return nil
		},
	}

	var extBy time.Duration
	extend := &cobra.Command{
		Use:   "extend <token>",
		Short: "Extender la vigencia de un token activo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := (*a).svc.Tokens().Extend(cmd.Context(), args[0], extBy)
			if err != nil {
				return err
			}
			printJSON(map[string]any{"extended": ok})
			return nil
		},
	}
	extend.Flags().DurationVar(&extBy, "by", 24*time.Hour, "tiempo adicional")

	cmd.AddCommand(issue, validate, revoke, activate, extend)
	return cmd
}

func linkCmd(a **app) *cobra.Command {
	cmd := &cobra.Command{Use: "link", Short: "Grafo de relaciones"}

	redeem := &cobra.Command{
		Use:   "redeem <token> <presenter-id>",
		Short: "Redimir un token y materializar la relación",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rel, err := (*a).svc.Graph().Redeem(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			printJSON(rel)
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove <source-id> <target-id> <rel-type>",
		Short: "Desactivar una relación",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := (*a).svc.Graph().Remove(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			printJSON(map[string]any{"removed": ok})
			return nil
		},
	}

	get := &cobra.Command{
		Use:   "get <source-id> <target-id> <rel-type>",
		Short: "Resolver una relación puntual",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			rel, err := (*a).svc.Graph().Get(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			printJSON(rel)
			return nil
		},
	}

	from := &cobra.Command{
		Use:   "from <id>",
		Short: "Relaciones salientes de una identidad",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := (*a).svc.Graph().LinkedFrom(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}

	to := &cobra.Command{
		Use:   "to <id>",
		Short: "Relaciones entrantes a una identidad",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := (*a).svc.Graph().LinkedTo(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}

	byType := &cobra.Command{
		Use:   "by-type <rel-type>",
		Short: "Relaciones activas de un tipo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := (*a).svc.Graph().ByType(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}

	cmd.AddCommand(redeem, remove, get, from, to, byType)
	return cmd
}

func sweepCmd(a **app) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expirar tokens vencidos",
		RunE: func(cmd *cobra.Command, args []string) error {
			if watch {
				ctx := logger.ToContext(cmd.Context(), logger.Named("sweeper"))
				(*a).svc.RunSweeper(ctx, (*a).cfg.SweepInterval())
				return nil
			}
			n, err := (*a).svc.Tokens().SweepExpired(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(map[string]any{"expired": n})
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "correr periódicamente hasta cancelación")
	return cmd
}

func statsCmd(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Snapshot de conteos del sistema",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := (*a).svc.Stats().Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(snap)
			return nil
		},
	}
}

func eventsCmd(a **app) *cobra.Command {
	cmd := &cobra.Command{Use: "events", Short: "Eventos del core"}

	watch := &cobra.Command{
		Use:   "watch",
		Short: "Imprimir los eventos del proceso como JSON lines hasta cancelación",
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, cancel := (*a).bus.Subscribe((*a).cfg.Events.Buffer)
			defer cancel()
			enc := json.NewEncoder(os.Stdout)
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case ev, ok := <-ch:
					if !ok {
						return nil
					}
					if err := enc.Encode(ev); err != nil {
						return err
					}
				}
			}
		},
	}

	cmd.AddCommand(watch)
	return cmd
}

func metricsCmd(a **app) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Volcar las métricas Prometheus del proceso",
		RunE: func(cmd *cobra.Command, args []string) error {
			mfs, err := prometheus.DefaultGatherer.Gather()
			if err != nil {
				return err
			}
			enc := expfmt.NewEncoder(os.Stdout, expfmt.NewFormat(expfmt.TypeTextPlain))
			for _, mf := range mfs {
				if err := enc.Encode(mf); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
