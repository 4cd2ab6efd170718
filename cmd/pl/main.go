package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"phaseline/internal/app"
	"phaseline/internal/config"
	"phaseline/internal/db"
	"phaseline/internal/domain"
	"phaseline/internal/engine"
	"phaseline/internal/overrides"
	"phaseline/internal/repo"
	"phaseline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "pl",
	Short: "Phaseline CLI",
	Long: `Phaseline moves production projects through their lifecycle:
prep -> staffing -> pre_show -> active -> post_show -> complete -> archived.

Each step has entry conditions. Readiness categories (locations, roles, team,
talent) must be finalized for the early steps, rehearsal and show dates gate
the middle ones in the project's timezone, and all timecards must be approved
or rejected before a project completes. Archiving is always a manual action.

Every attempt is recorded in an append-only history.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PHASELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/phaseline.yml)")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier recorded on transitions")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error, off)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(phaseCmd())
	rootCmd.AddCommand(readinessCmd())
	rootCmd.AddCommand(timecardCmd())
	rootCmd.AddCommand(schedulerCmd())
	rootCmd.AddCommand(serveCmd())
}

func options() app.Options {
	return app.Options{
		Workspace:  viper.GetString("workspace"),
		ConfigFile: viper.GetString("config"),
		LogLevel:   viper.GetString("log-level"),
	}
}

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	rt, err := app.Open(ctx, options())
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())
	return fn(ctx, rt)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
		return fn(ctx, rt.Engine)
	})
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
		return fn(ctx, rt.Repo)
	})
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the workspace database and a default phaseline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				fmt.Printf("Initialized workspace (config %s, database %s)\n", path, db.Path(viper.GetString("workspace")))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect global configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.LoadConfig(options())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(c)
			}
			out, err := yaml.Marshal(c)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate phaseline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := app.LoadConfig(options()); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	})
	return cfg
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Register and inspect projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectConfigCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var p domain.Project
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if p.Timezone != "" {
				if err := overrides.ValidateTimezone(p.Timezone); err != nil {
					return err
				}
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				created, err := r.InsertProject(ctx, p)
				if err != nil {
					return err
				}
				return printProjects([]domain.Project{created})
			})
		},
	}
	cmd.Flags().StringVar(&p.ID, "id", "", "project id")
	cmd.Flags().StringVar(&p.Name, "name", "", "display name")
	cmd.Flags().StringVar(&p.Timezone, "timezone", "", "IANA zone, e.g. America/Los_Angeles")
	cmd.Flags().StringVar(&p.RehearsalStartDate, "rehearsal-start", "", "first rehearsal date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&p.ShowEndDate, "show-end", "", "last show date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&p.AutoTransitionsEnabled, "auto", true, "allow automatic transitions")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx)
				if err != nil {
					return err
				}
				return printProjects(items)
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var name, tz, rehearsal, showEnd string
	var auto bool
	cmd := &cobra.Command{
		Use:   "update <project-id>",
		Short: "Change project dates, timezone or automation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u repo.ProjectScheduleUpdate
			if cmd.Flags().Changed("name") {
				u.Name = &name
			}
			if cmd.Flags().Changed("timezone") {
				if err := overrides.ValidateTimezone(tz); err != nil {
					return err
				}
				u.Timezone = &tz
			}
			if cmd.Flags().Changed("rehearsal-start") {
				u.RehearsalStartDate = &rehearsal
			}
			if cmd.Flags().Changed("show-end") {
				u.ShowEndDate = &showEnd
			}
			if cmd.Flags().Changed("auto") {
				u.AutoTransitionsEnabled = &auto
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.UpdateProjectSchedule(ctx, args[0], u); err != nil {
					return err
				}
				p, err := r.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printProjects([]domain.Project{p})
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&tz, "timezone", "", "IANA zone")
	cmd.Flags().StringVar(&rehearsal, "rehearsal-start", "", "first rehearsal date (YYYY-MM-DD, empty clears)")
	cmd.Flags().StringVar(&showEnd, "show-end", "", "last show date (YYYY-MM-DD, empty clears)")
	cmd.Flags().BoolVar(&auto, "auto", true, "allow automatic transitions")
	return cmd
}

func projectConfigCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Per-project phase overrides"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show <project-id>",
		Short: "Show overrides",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.GetConfiguration(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	})

	var tz, rehearsal, showEnd string
	var auto bool
	var activeGrace, postShowGrace time.Duration
	set := &cobra.Command{
		Use:   "set <project-id>",
		Short: "Replace overrides; flags not given carry no override",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var c domain.PhaseConfiguration
			if cmd.Flags().Changed("timezone") {
				c.Timezone = &tz
			}
			if cmd.Flags().Changed("rehearsal-start") {
				c.RehearsalStartDate = &rehearsal
			}
			if cmd.Flags().Changed("show-end") {
				c.ShowEndDate = &showEnd
			}
			if cmd.Flags().Changed("auto") {
				c.AutoTransitionsEnabled = &auto
			}
			if cmd.Flags().Changed("active-grace") {
				c.ActiveGrace = &activeGrace
			}
			if cmd.Flags().Changed("post-show-grace") {
				c.PostShowGrace = &postShowGrace
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				saved, err := e.SetConfiguration(ctx, args[0], c)
				if err != nil {
					return err
				}
				return printJSONOrTable(saved)
			})
		},
	}
	set.Flags().StringVar(&tz, "timezone", "", "IANA zone")
	set.Flags().StringVar(&rehearsal, "rehearsal-start", "", "YYYY-MM-DD")
	set.Flags().StringVar(&showEnd, "show-end", "", "YYYY-MM-DD")
	set.Flags().BoolVar(&auto, "auto", true, "false opts the project out of automatic transitions")
	set.Flags().DurationVar(&activeGrace, "active-grace", 0, "delay after rehearsal start before pre_show -> active")
	set.Flags().DurationVar(&postShowGrace, "post-show-grace", 0, "delay after show end before active -> post_show")
	cfg.AddCommand(set)
	return cfg
}

func phaseCmd() *cobra.Command {
	ph := &cobra.Command{Use: "phase", Short: "Inspect and advance project phases"}
	ph.AddCommand(&cobra.Command{
		Use:   "show <project-id>",
		Short: "Show the current phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				phase, err := e.GetCurrentPhase(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"project_id": args[0], "phase": string(phase)})
				}
				fmt.Println(phase)
				return nil
			})
		},
	})
	ph.AddCommand(&cobra.Command{
		Use:   "evaluate <project-id>",
		Short: "Check whether the next transition is possible",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ev, err := e.Evaluate(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ev)
				}
				target := "-"
				if ev.TargetPhase != nil {
					target = string(*ev.TargetPhase)
				}
				fmt.Printf("%s -> %s: can transition = %t\n", ev.Phase, target, ev.CanTransition)
				return printBlockers(ev.Blockers)
			})
		},
	})

	var automatic bool
	transition := &cobra.Command{
		Use:   "transition <project-id>",
		Short: "Advance the project one phase if eligible",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			trigger := domain.TriggerManual
			if automatic {
				trigger = domain.TriggerAutomatic
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Transition(ctx, engine.TransitionRequest{
					ProjectID:   args[0],
					RequestedBy: trigger,
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil && !errors.Is(err, domain.ErrConcurrencyConflict) {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if res.Applied {
					fmt.Printf("%s advanced to %s\n", res.ProjectID, res.Phase)
					return nil
				}
				fmt.Printf("%s stays in %s\n", res.ProjectID, res.Phase)
				return printBlockers(res.Blockers)
			})
		},
	}
	transition.Flags().BoolVar(&automatic, "automatic", false, "request as the scheduler would")
	ph.AddCommand(transition)

	ph.AddCommand(&cobra.Command{
		Use:   "actions <project-id>",
		Short: "List what blocks the next transition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ActionItems(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Code", "Category", "Action"})
				for _, it := range items {
					tw.AppendRow(table.Row{it.Code, it.Category, it.Description})
				}
				tw.Render()
				return nil
			})
		},
	})

	var limit, offset int
	history := &cobra.Command{
		Use:   "history <project-id>",
		Short: "Show transition attempts, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.History(ctx, args[0], limit, offset)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Seq", "When", "From", "To", "By", "Actor", "Outcome", "Blockers"})
				for _, rec := range items {
					to := ""
					if rec.ToPhase != nil {
						to = string(*rec.ToPhase)
					}
					tw.AppendRow(table.Row{rec.Seq, rec.CreatedAt.Format(time.RFC3339), rec.FromPhase, to,
						rec.TriggeredBy, rec.ActorID, rec.Outcome, joinBlockers(rec.Blockers)})
				}
				tw.Render()
				return nil
			})
		},
	}
	history.Flags().IntVar(&limit, "limit", 20, "max records")
	history.Flags().IntVar(&offset, "offset", 0, "records to skip")
	ph.AddCommand(history)
	return ph
}

func readinessCmd() *cobra.Command {
	rd := &cobra.Command{Use: "readiness", Short: "Readiness categories"}
	rd.AddCommand(&cobra.Command{
		Use:   "show <project-id>",
		Short: "Recompute and show readiness",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				snap, err := e.RefreshReadiness(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snap)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Category", "Status", "Count", "Finalized"})
				for _, c := range domain.Categories() {
					cr := snap.Category(c)
					tw.AppendRow(table.Row{c, cr.Status, cr.Count, cr.Finalized})
				}
				tw.AppendFooter(table.Row{"overall", snap.Overall, "", ""})
				tw.Render()
				return nil
			})
		},
	})
	rd.AddCommand(&cobra.Command{
		Use:   "record <project-id> <category> <ref>",
		Short: "Record a location, role, team or talent entry",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := domain.ParseCategory(args[1])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetProject(ctx, args[0]); err != nil {
					return err
				}
				id, err := r.RecordCategoryEntry(ctx, args[0], c, args[2])
				if err != nil {
					return err
				}
				fmt.Println(id)
				return nil
			})
		},
	})
	rd.AddCommand(categoryFlagCmd("finalize", "Mark a category finalized", func(ctx context.Context, r repo.Repo, id string, c domain.Category) error {
		return r.FinalizeCategory(ctx, id, c, viper.GetString("actor-id"))
	}))
	rd.AddCommand(categoryFlagCmd("reopen", "Clear a category's finalized flag", func(ctx context.Context, r repo.Repo, id string, c domain.Category) error {
		return r.ReopenCategory(ctx, id, c)
	}))
	return rd
}

func categoryFlagCmd(use, short string, fn func(context.Context, repo.Repo, string, domain.Category) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <project-id> <category>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := domain.ParseCategory(args[1])
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetProject(ctx, args[0]); err != nil {
					return err
				}
				if err := fn(ctx, r, args[0], c); err != nil {
					return err
				}
				fmt.Printf("%s %s: %s\n", args[0], c, use)
				return nil
			})
		},
	}
}

func timecardCmd() *cobra.Command {
	tc := &cobra.Command{Use: "timecard", Short: "Timecard status used by post_show -> complete"}
	var status string
	add := &cobra.Command{
		Use:   "add <project-id>",
		Short: "Add a timecard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if _, err := r.GetProject(ctx, args[0]); err != nil {
					return err
				}
				id, err := r.AddTimecard(ctx, args[0], status)
				if err != nil {
					return err
				}
				fmt.Println(id)
				return nil
			})
		},
	}
	add.Flags().StringVar(&status, "status", "submitted", "draft, submitted, approved or rejected")
	tc.AddCommand(add)
	tc.AddCommand(&cobra.Command{
		Use:   "set <timecard-id> <status>",
		Short: "Change a timecard's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.SetTimecardStatus(ctx, args[0], args[1])
			})
		},
	})
	return tc
}

func schedulerCmd() *cobra.Command {
	sc := &cobra.Command{Use: "scheduler", Short: "Automatic transitions"}
	sc.AddCommand(&cobra.Command{
		Use:   "tick",
		Short: "Run one automatic transition pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				report, err := rt.Scheduler.Tick(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Project", "Applied", "Phase", "Blockers", "Error"})
				for _, r := range report.Results {
					tw.AppendRow(table.Row{r.ProjectID, r.Applied, r.Phase, joinBlockers(r.Blockers), r.Error})
				}
				tw.AppendFooter(table.Row{fmt.Sprintf("%d visited", report.Visited), fmt.Sprintf("%d applied", report.Applied), "", "", fmt.Sprintf("%d failed", report.Failed)})
				tw.Render()
				return nil
			})
		},
	})
	return sc
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var tickInterval time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if !cmd.Flags().Changed("addr") && rt.Config.Server.Addr != "" {
					addr = rt.Config.Server.Addr
				}
				if !cmd.Flags().Changed("base-path") && rt.Config.Server.BasePath != "" {
					basePath = rt.Config.Server.BasePath
				}
				if !cmd.Flags().Changed("tick-interval") {
					tickInterval = rt.Config.Scheduler.Interval
				}
				handler, err := server.New(server.Config{
					Engine:    rt.Engine,
					BasePath:  basePath,
					Scheduler: rt.Scheduler,
					Logger:    rt.Logger.Named("http"),
				})
				if err != nil {
					return err
				}
				go rt.Scheduler.Run(ctx, tickInterval)
				go rt.Notifier().Run(ctx)

				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				rt.Logger.Info("serving phaseline api", "addr", addr, "base_path", basePath, "tick_interval", tickInterval)
				fmt.Printf("Serving Phaseline API on http://%s%s (OpenAPI at %s/openapi.json)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().DurationVar(&tickInterval, "tick-interval", 0, "run a scheduler tick this often (0 disables)")
	return cmd
}

func printProjects(items []domain.Project) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Phase", "Timezone", "Rehearsal", "Show End", "Auto"})
	for _, p := range items {
		tw.AppendRow(table.Row{p.ID, p.Name, p.Phase, p.Timezone, p.RehearsalStartDate, p.ShowEndDate, p.AutoTransitionsEnabled})
	}
	tw.Render()
	return nil
}

func printBlockers(bs []domain.Blocker) error {
	if len(bs) == 0 {
		return nil
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Blocker", "Description"})
	for _, b := range bs {
		tw.AppendRow(table.Row{b, b.Description()})
	}
	tw.Render()
	return nil
}

func joinBlockers(bs []domain.Blocker) string {
	parts := make([]string, 0, len(bs))
	for _, b := range bs {
		parts = append(parts, string(b))
	}
	return strings.Join(parts, ",")
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
