package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gagyebu/internal/core"
	"gagyebu/internal/editor"
	"gagyebu/internal/log"
	"gagyebu/internal/notify"
	"gagyebu/internal/remote"
	"gagyebu/internal/remote/httpapi"
	"gagyebu/internal/session"
)

// Connector builds the record API the commands talk to.
type Connector func(s Settings, logger *log.Logger) (remote.Store, error)

// HTTPConnector talks to the record API at Settings.APIURL.
func HTTPConnector(s Settings, logger *log.Logger) (remote.Store, error) {
	c, err := httpapi.New(s.APIURL,
		httpapi.WithTimeout(s.Timeout),
		httpapi.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// App carries what the commands share. Zero values are filled in by NewRootCmd.
type App struct {
	Out     io.Writer
	Connect Connector
	Now     func() time.Time

	v        *viper.Viper
	cfgFile  string
	settings Settings
	logger   *log.Logger
}

// NewRootCmd assembles gagyebuctl.
func NewRootCmd(app *App) *cobra.Command {
	if app.Out == nil {
		app.Out = os.Stdout
	}
	if app.Connect == nil {
		app.Connect = HTTPConnector
	}
	if app.Now == nil {
		app.Now = time.Now
	}
	app.v = newViper()

	root := &cobra.Command{
		Use:   "gagyebuctl",
		Short: "Household ledger from the terminal",
		Long: `gagyebuctl lists, adds, edits and deletes ledger records through the
record API, applying the same validation as the web table.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			s, err := LoadSettings(app.v, app.cfgFile)
			if err != nil {
				return err
			}
			app.settings = s
			// stdout carries the command output
			app.logger = log.New(log.Config{
				Component: log.ComponentApp,
				Handler: slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
					Level: log.ParseLevel(s.LogLevel),
				}),
			})
			return nil
		},
	}
	root.SetOut(app.Out)

	pf := root.PersistentFlags()
	pf.StringVar(&app.cfgFile, "config", "", "config file (default ~/.gagyebuctl.toml)")
	pf.String("api-url", "", "record API base URL")
	pf.String("timezone", "", "timezone of the default month")
	pf.Duration("timeout", 0, "request timeout")
	_ = app.v.BindPFlag("api_url", pf.Lookup("api-url"))
	_ = app.v.BindPFlag("timezone", pf.Lookup("timezone"))
	_ = app.v.BindPFlag("timeout", pf.Lookup("timeout"))

	root.AddCommand(
		app.listCmd(),
		app.summaryCmd(),
		app.addCmd(),
		app.editCmd(),
		app.deleteCmd(),
		app.referenceCmd(core.KindCategory, "category", "분류"),
		app.referenceCmd(core.KindMethod, "method", "결제수단"),
	)
	return root
}

func rangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("from", "", "first day, YYYY-MM-DD")
	cmd.Flags().String("to", "", "last day, YYYY-MM-DD")
	cmd.Flags().String("month", "", "whole month, YYYY-MM")
}

// rangeOf reads --from/--to or --month; with neither it is the current month.
func (app *App) rangeOf(cmd *cobra.Command) (core.DateRange, error) {
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	month, _ := cmd.Flags().GetString("month")
	switch {
	case from != "" || to != "":
		rng := core.DateRange{Start: from, End: to}
		if err := rng.Validate(); err != nil {
			return core.DateRange{}, fmt.Errorf("--from %q --to %q: %w", from, to, err)
		}
		return rng, nil
	case month != "":
		rng, err := core.MonthOf(month + "-01")
		if err != nil {
			return core.DateRange{}, fmt.Errorf("--month %q: %w", month, err)
		}
		return rng, nil
	}
	return core.MonthRange(app.Now().In(app.settings.Location())), nil
}

// withWorkspace runs fn against a started workspace loaded with rng.
func (app *App) withWorkspace(cmd *cobra.Command, rng core.DateRange, fn func(ctx context.Context, ws *session.Workspace) error) error {
	api, err := app.Connect(app.settings, app.logger)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	ws := session.New(api, notify.Log(app.logger), app.logger)
	if err := ws.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = ws.Stop(stopCtx)
	}()

	if err := ws.Load(ctx, rng); err != nil {
		return err
	}
	return fn(ctx, ws)
}

func (app *App) listCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the records of a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rng, err := app.rangeOf(cmd)
			if err != nil {
				return err
			}
			return app.withWorkspace(cmd, rng, func(ctx context.Context, ws *session.Workspace) error {
				snap, err := ws.View(ctx)
				if err != nil {
					return err
				}
				writeRecords(app.Out, snap)
				return nil
			})
		},
	}
	rangeFlags(cmd)
	return cmd
}

func writeRecords(out io.Writer, snap session.Snapshot) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tCATEGORY\tMETHOD\tAMOUNT\tUSER\tMEMO")
	for _, r := range snap.Rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Date, r.Category, r.Method, core.FormatAmount(r.Amount), r.User, r.Memo)
	}
	_ = tw.Flush()
	fmt.Fprintln(out, snap.Describe())
}

func (app *App) summaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show totals per category and payment method",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rng, err := app.rangeOf(cmd)
			if err != nil {
				return err
			}
			return app.withWorkspace(cmd, rng, func(ctx context.Context, ws *session.Workspace) error {
				snap, err := ws.View(ctx)
				if err != nil {
					return err
				}
				writeSummary(app.Out, rng, snap.Summary)
				return nil
			})
		},
	}
	rangeFlags(cmd)
	return cmd
}

func writeSummary(out io.Writer, rng core.DateRange, s core.Summary) {
	fmt.Fprintf(out, "%s  %d records  %s\n", rng, s.Count, core.FormatAmount(s.Total))
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, group := range []struct {
		title  string
		totals []core.Total
	}{{"category", s.ByCategory}, {"method", s.ByMethod}} {
		fmt.Fprintf(tw, "\n%s\t\t\n", group.title)
		for _, t := range group.totals {
			fmt.Fprintf(tw, "  %s\t%s\t%d%%\n", t.Name, core.FormatAmount(t.Amount), s.Share(t))
		}
	}
	_ = tw.Flush()
}

func (app *App) addCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a record",
		Long:  "Add a record. Category and method are given by label, as shown by list.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			date, _ := f.GetString("date")
			if date == "" {
				date = app.Now().In(app.settings.Location()).Format(core.DateLayout)
			}
			rng, err := core.MonthOf(date)
			if err != nil {
				return fmt.Errorf("--date %q: %w", date, err)
			}
			category, _ := f.GetString("category")
			method, _ := f.GetString("method")
			amount, _ := f.GetString("amount")
			user, _ := f.GetString("user")
			if user == "" {
				user = app.settings.User
			}
			memo, _ := f.GetString("memo")

			return app.withWorkspace(cmd, rng, func(ctx context.Context, ws *session.Workspace) error {
				snap, err := ws.View(ctx)
				if err != nil {
					return err
				}
				form := core.NewRecord{
					Date:       date,
					CategoryID: referenceID(snap.Lookups.Categories, category),
					MethodID:   referenceID(snap.Lookups.Methods, method),
					Amount:     amount,
					User:       user,
					Memo:       memo,
				}
				rec, err := ws.Add(ctx, form)
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Out, "added %d: %s %s %s %s\n",
					rec.ID, rec.Date, rec.Category, core.FormatAmount(rec.Amount), rec.User)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.String("date", "", "YYYY-MM-DD (default today)")
	f.String("category", "", "category label")
	f.String("method", "", "payment method label")
	f.String("amount", "", "whole amount, e.g. 12000 or 12,000")
	f.String("user", "", "who spent it (default from config)")
	f.String("memo", "", "free text")
	return cmd
}

// referenceID maps a label to its id. Unknown labels pass through unchanged so
// validation reports them.
func referenceID(set core.ReferenceSet, label string) string {
	if ref, ok := set.Lookup(label); ok {
		return strconv.FormatInt(ref.ID, 10)
	}
	return label
}

func (app *App) editCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit ID FIELD VALUE",
		Short: "Change one field of a record",
		Long: `Change one field of a record. FIELD is one of date, category, method,
amount, user or memo. The record must be inside the selected range, the
current month by default.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := core.ParseID(args[0])
			if err != nil {
				return fmt.Errorf("record id %q: %w", args[0], err)
			}
			field, err := core.ParseFieldKind(args[1])
			if err != nil {
				return fmt.Errorf("field %q: %w", args[1], err)
			}
			rng, err := app.rangeOf(cmd)
			if err != nil {
				return err
			}
			return app.withWorkspace(cmd, rng, func(ctx context.Context, ws *session.Workspace) error {
				err := ws.Edit(ctx, id, field, args[2])
				if errors.Is(err, editor.ErrUnknownRecord) {
					return fmt.Errorf("record %d is not in %s; pass --from/--to or --month: %w", id, rng, err)
				}
				if err != nil {
					return err
				}
				snap, err := ws.View(ctx)
				if err != nil {
					return err
				}
				rec, _ := snap.Row(id)
				f, _ := core.FieldOf(field)
				fmt.Fprintf(app.Out, "updated %d: %s = %s\n", id, field, f.Current(rec))
				return nil
			})
		},
	}
	rangeFlags(cmd)
	return cmd
}

func (app *App) deleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := core.ParseID(args[0])
			if err != nil {
				return fmt.Errorf("record id %q: %w", args[0], err)
			}
			yes, _ := cmd.Flags().GetBool("yes")
			rng := core.MonthRange(app.Now().In(app.settings.Location()))
			return app.withWorkspace(cmd, rng, func(ctx context.Context, ws *session.Workspace) error {
				err := ws.Delete(ctx, id, yes)
				if errors.Is(err, editor.ErrDeleteNotConfirmed) {
					return fmt.Errorf("not deleting record %d without --yes", id)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Out, "deleted %d\n", id)
				return nil
			})
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "confirm the deletion")
	return cmd
}
