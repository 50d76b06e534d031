package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"concierge/internal/app"
	"concierge/internal/compiler"
	"concierge/internal/config"
	"concierge/internal/db"
	"concierge/internal/domain"
	"concierge/internal/engine"
	"concierge/internal/handoff"
	"concierge/internal/matching"
	"concierge/internal/repo"
	"concierge/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "concierge",
	Short: "Concierge order compiler",
	Long: `Concierge turns guest requests into orders a restaurant can execute.
- Catalog: each restaurant's menu items, modifier groups and options, imported from YAML or JSON.
- Match: free text is split into lines, scored against every menu and the restaurant covering the most lines wins.
- Compile: chosen items and modifiers are validated and priced; problems come back as issues, never as errors.
- Orders: a ready compilation is frozen into the canonical order artifact stored with the order; anything else goes to ops.
- Event log: catalog imports and orders, view with 'concierge log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		// A missing .env is fine.
		_ = godotenv.Load(filepath.Join(workspace, ".env"))
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CONCIERGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(matchCmd())
	rootCmd.AddCommand(compileCmd())
	rootCmd.AddCommand(orderCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func catalogCmd() *cobra.Command {
	cat := &cobra.Command{Use: "catalog", Short: "Manage restaurant catalogs"}
	cat.AddCommand(catalogImportCmd())
	cat.AddCommand(catalogShowCmd())
	cat.AddCommand(catalogListCmd())
	return cat
}

func catalogImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace a restaurant catalog from a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args[0])
			if err != nil {
				return err
			}
			doc, err := engine.ParseCatalogDocument(data)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rest, err := e.ImportCatalog(ctx, doc, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rest)
				}
				fmt.Printf("imported %s (%s): %d menu items\n", rest.Name, rest.GUID, rest.ItemCount)
				return nil
			})
		},
	}
	return cmd
}

func catalogShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <restaurant-guid>",
		Short: "Print a stored catalog as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				doc, err := e.CatalogDocument(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(doc)
				}
				enc := yaml.NewEncoder(os.Stdout)
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(doc)
			})
		},
	}
	return cmd
}

func catalogListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List restaurants",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListRestaurants(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("GUID", "Name", "Items", "Updated")
				for _, r := range items {
					tw.AppendRow(table.Row{r.GUID, r.Name, r.ItemCount, r.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse <text>",
		Short: "Split a free-text request into lines",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lines := matching.ParseOrderRequestLines(strings.Join(args, " "))
			if viper.GetBool("json") {
				if lines == nil {
					lines = []matching.ParsedRequestLine{}
				}
				return printJSON(lines)
			}
			tw := newTable("Qty", "Normalized", "Raw")
			for _, l := range lines {
				tw.AppendRow(table.Row{l.Quantity, l.Normalized, l.Raw})
			}
			tw.Render()
			return nil
		},
	}
	return cmd
}

func matchCmd() *cobra.Command {
	var restaurants []string
	cmd := &cobra.Command{
		Use:   "match <text>",
		Short: "Match a free-text request against restaurant menus",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.MatchRequest(ctx, strings.Join(args, " "), restaurants)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if res.RestaurantGUID == "" {
					fmt.Println("no restaurant matched")
					return nil
				}
				fmt.Printf("restaurant %s covers %d of %d lines\n", res.RestaurantGUID, res.Coverage, len(res.Lines))
				tw := newTable("Line", "Qty", "Candidate", "Price", "Score")
				for _, ml := range res.Lines {
					if len(ml.Candidates) == 0 {
						tw.AppendRow(table.Row{ml.Line.Raw, ml.Line.Quantity, "-", "", ""})
						continue
					}
					for i, c := range ml.Candidates {
						label := ""
						if i == 0 {
							label = ml.Line.Raw
						}
						tw.AppendRow(table.Row{label, ml.Line.Quantity, c.Name, c.Price, c.Score})
					}
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&restaurants, "restaurant", nil, "restrict to restaurant guid (repeatable)")
	return cmd
}

func compileCmd() *cobra.Command {
	var restaurant, file string
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile order items (JSON array) against a restaurant catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := readItems(file)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CompileOrder(ctx, restaurant, items)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				printCompileResult(res)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&restaurant, "restaurant", "", "restaurant guid")
	cmd.Flags().StringVar(&file, "file", "-", "items JSON file, - for stdin")
	_ = cmd.MarkFlagRequired("restaurant")
	return cmd
}

func orderCmd() *cobra.Command {
	ord := &cobra.Command{
		Use:   "order",
		Short: "Place and inspect orders",
		Long:  "Orders store the canonical order artifact when they compile cleanly; downstream consumers read it back with bot-items, alert and handoff.",
	}
	ord.AddCommand(orderPlaceCmd())
	ord.AddCommand(orderShowCmd())
	ord.AddCommand(orderListCmd())
	ord.AddCommand(orderBotItemsCmd())
	ord.AddCommand(orderHandoffCmd())
	ord.AddCommand(orderAlertCmd())
	return ord
}

func orderPlaceCmd() *cobra.Command {
	var (
		in         engine.PlaceOrderInput
		file       string
		metadataKV []string
	)
	cmd := &cobra.Command{
		Use:   "place",
		Short: "Compile and store an order",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := readItems(file)
			if err != nil {
				return err
			}
			in.Items = items
			in.ActorID = viper.GetString("actor-id")
			in.Metadata = map[string]any{}
			for _, kv := range metadataKV {
				k, v, ok := strings.Cut(kv, "=")
				if !ok || strings.TrimSpace(k) == "" {
					return fmt.Errorf("invalid --meta %q, want key=value", kv)
				}
				in.Metadata[strings.TrimSpace(k)] = v
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.PlaceOrder(ctx, in)
				if rejected, ok := engine.AsCompileRejected(err); ok && !viper.GetBool("json") {
					printCompileResult(rejected.Result)
					return fmt.Errorf("order not placed: %s (use --allow-manual to hand it to ops)", rejected.Result.Status)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("order %s %s (%s), subtotal %s\n", res.Order.ID, res.Order.Status, res.Order.CompileStatus, compiler.Money(res.Order.Subtotal).Fixed())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.RestaurantGUID, "restaurant", "", "restaurant guid")
	cmd.Flags().StringVar(&in.GuestRoom, "room", "", "guest room")
	cmd.Flags().StringVar(&in.GuestName, "guest", "", "guest name")
	cmd.Flags().StringVar(&in.RequestText, "text", "", "original request text")
	cmd.Flags().BoolVar(&in.AllowManual, "allow-manual", false, "store orders that need attention as needs_ops")
	cmd.Flags().StringVar(&in.Reason, "reason", "", "handoff reason for needs_ops orders")
	cmd.Flags().StringVar(&file, "file", "-", "items JSON file, - for stdin")
	cmd.Flags().StringArrayVar(&metadataKV, "meta", nil, "metadata key=value (repeatable)")
	_ = cmd.MarkFlagRequired("restaurant")
	return cmd
}

func orderShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <order-id>",
		Short: "Show an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.Repo.GetOrder(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	return cmd
}

func orderListCmd() *cobra.Command {
	var restaurant string
	var n int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListOrders(ctx, restaurant, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Restaurant", "Room", "Status", "Compile", "Subtotal", "Created")
				for _, o := range items {
					tw.AppendRow(table.Row{o.ID, o.RestaurantGUID, o.GuestRoom, o.Status, o.CompileStatus, compiler.Money(o.Subtotal).Fixed(), o.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&restaurant, "restaurant", "", "restaurant guid filter")
	cmd.Flags().IntVar(&n, "n", 20, "number of orders")
	return cmd
}

func orderBotItemsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bot-items <order-id>",
		Short: "Print the ordering bot projection of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, ok, err := e.OrderBotItems(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("order %s has no valid canonical order artifact", args[0])
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func orderHandoffCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "handoff <order-id>",
		Short: "Build the ops handoff payload for an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.OrderHandoff(ctx, args[0], reason)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Println(p.Summary)
				printHandoffItems(p.Items)
				fmt.Printf("compiler: %s (%s)\n", p.Compiler.CompilerVersion, p.Compiler.Source)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the order goes to ops")
	return cmd
}

func orderAlertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alert <order-id>",
		Short: "Build the order-created alert for an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.OrderAlert(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				fmt.Println(a.Text)
				return nil
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Everything that happened: catalog imports, placed orders and escalations.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var f repo.EventFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, 0, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable("ID", "TS", "Type", "Entity", "Actor")
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.RestaurantGUID, "restaurant", "", "restaurant guid filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	keys.AddCommand(apikeyCreateCmd())
	keys.AddCommand(apikeyListCmd())
	keys.AddCommand(apikeyDeleteCmd())
	return keys
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			buf := make([]byte, 24)
			if _, err := rand.Read(buf); err != nil {
				return err
			}
			secret := "ck_" + hex.EncodeToString(buf)
			key := domain.APIKey{
				ID:      uuid.NewString(),
				ActorID: viper.GetString("actor-id"),
				Name:    name,
				KeyHash: repo.HashAPIKey(secret),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "actor_id": key.ActorID, "key": secret})
				}
				fmt.Printf("api key %s for %s (shown once): %s\n", key.ID, key.ActorID, secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys of the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable("ID", "Actor", "Name", "Created")
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "concierge.yml holds matching thresholds, cache size, the ops channel, webhooks and server defaults. Missing keys fall back to defaults.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			enc := yaml.NewEncoder(os.Stdout)
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate concierge.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default concierge.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer logger.Sync()
			ws, err := app.Open(viper.GetString("workspace"), logger)
			if err != nil {
				return err
			}
			defer ws.Close()
			if addr == "" {
				addr = ws.Config.Server.Addr
			}
			if basePath == "" {
				basePath = ws.Config.Server.BasePath
			}
			authCfg := server.AuthConfig{
				JWTSecret:      viper.GetString("jwt-secret"),
				EnableDevLogin: devLogin,
				Logger:         logger.Named("auth"),
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("CONCIERGE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: ws.Engine, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			server.StartWebhookDispatcher(ctx, ws.Engine, logger)

			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			logger.Info("serving concierge API",
				zap.String("addr", addr),
				zap.String("base_path", basePath),
				zap.Int("webhooks", len(ws.Config.Webhooks)))
			fmt.Printf("Serving Concierge API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "enable POST /auth/dev/login (local use only)")
	return cmd
}

// --- helpers ---

func newLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()
	ws, err := app.Open(viper.GetString("workspace"), logger)
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws.Engine)
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func readItems(path string) ([]compiler.OrderRequestItem, error) {
	data, err := readInput(path)
	if err != nil {
		return nil, err
	}
	var items []compiler.OrderRequestItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("items must be a JSON array of {menuItemGuid, quantity, selectedModifiers}: %w", err)
	}
	return items, nil
}

func newTable(headers ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(headers))
	tw.SetStyle(table.StyleLight)
	return tw
}

func printCompileResult(res compiler.CompiledOrderResult) {
	fmt.Printf("status: %s\n", res.Status)
	if len(res.Items) > 0 {
		tw := newTable("Item", "Qty", "Unit", "Total", "Modifiers")
		for _, it := range res.Items {
			var mods []string
			for _, d := range it.ModifierDetails {
				for _, o := range d.Options {
					mods = append(mods, d.GroupName+": "+o.OptionName)
				}
			}
			tw.AppendRow(table.Row{it.ItemName, it.Quantity, it.UnitPrice.Fixed(), it.TotalPrice.Fixed(), strings.Join(mods, ", ")})
		}
		tw.AppendFooter(table.Row{"", "", "Subtotal", res.Subtotal.Fixed(), ""})
		tw.Render()
	}
	for _, is := range res.Issues {
		fmt.Printf("  [%s] %s\n", is.Code, is.Message)
	}
}

func printHandoffItems(items []handoff.Item) {
	for _, it := range items {
		fmt.Println("  " + it.Line)
	}
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
