package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"classdesk/internal/attendance"
	"classdesk/internal/auth"
	"classdesk/internal/config"
	"classdesk/internal/logging"
	"classdesk/internal/report"
	"classdesk/internal/schoolapi"
)

type options struct {
	cfg      config.App
	log      *zap.Logger
	schoolID int64
	classID  int64
	label    string
	date     string
	token    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "deskctl",
		Short:        "Operator tools for class attendance",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			opts.cfg = config.Load()
			log, err := logging.New(opts.cfg.Production())
			if err != nil {
				return err
			}
			opts.log = log
			if opts.token == "" {
				opts.token = opts.cfg.SchoolAPIToken
			}
			return nil
		},
	}
	f := root.PersistentFlags()
	f.Int64Var(&opts.schoolID, "school", 0, "school id")
	f.Int64Var(&opts.classID, "class", 0, "class section id")
	f.StringVar(&opts.label, "label", "", "class label used in file names")
	f.StringVar(&opts.date, "date", "", "day as YYYY-MM-DD (default today)")
	f.StringVar(&opts.token, "token", "", "bearer token for the school service (default $SCHOOL_API_TOKEN)")
	_ = root.MarkPersistentFlagRequired("school")

	root.AddCommand(newExportCmd(opts), newHolidayCmd(opts), newStatusCmd(opts), newTokenCmd(opts))
	return root
}

// selection builds the target selection, rejecting future days.
func (o *options) selection(s attendance.Session) (attendance.Selection, error) {
	if o.classID <= 0 {
		return attendance.Selection{}, fmt.Errorf("--class is required: %w", attendance.ErrNoClass)
	}
	cal := attendance.NewCalendar(o.cfg.Location())
	day := cal.Today()
	if o.date != "" {
		d, err := cal.ParseDate(o.date)
		if err != nil {
			return attendance.Selection{}, fmt.Errorf("invalid --date: %w", err)
		}
		day = d
	}
	if cal.IsFuture(day) {
		return attendance.Selection{}, attendance.ErrFutureDate
	}
	return attendance.Selection{
		Date:           day,
		ClassSectionID: o.classID,
		ClassLabel:     o.label,
		SchoolID:       o.schoolID,
		Session:        s,
	}, nil
}

func (o *options) client(ctx context.Context) (*schoolapi.Client, context.Context) {
	return schoolapi.New(o.cfg.SchoolAPIURL, o.cfg.SchoolTimeout), schoolapi.WithToken(ctx, o.token)
}

func newExportCmd(opts *options) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download a day's attendance report as xlsx",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sel, err := opts.selection(attendance.Morning)
			if err != nil {
				return err
			}
			client, ctx := opts.client(cmd.Context())
			rep, err := client.FetchPast(ctx, sel)
			if err != nil {
				return fmt.Errorf("fetch report: %s", schoolapi.Message(err))
			}
			data, err := report.Build(rep, report.Meta{ClassLabel: sel.ClassLabel, Date: sel.Date})
			if err != nil {
				return err
			}
			if out == "" {
				out = report.FileName(sel.ClassLabel, sel.Date)
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			opts.log.Info("report written", zap.String("file", out), zap.Int("students", len(rep.Records)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default Attendance_<label>_<dd-mm-yyyy>.xlsx)")
	return cmd
}

func newHolidayCmd(opts *options) *cobra.Command {
	var scope string
	cmd := &cobra.Command{
		Use:   "holiday",
		Short: "Mark or unmark a holiday",
	}
	cmd.PersistentFlags().StringVar(&scope, "scope", "F", "M (morning), A (afternoon) or F (full day)")

	run := func(mark bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			sc, err := attendance.ParseHolidayScope(scope)
			if err != nil {
				return err
			}
			sel, err := opts.selection(attendance.Morning)
			if err != nil {
				return err
			}
			client, ctx := opts.client(cmd.Context())
			var msg string
			if mark {
				msg, err = client.MarkHoliday(ctx, sel, sc)
			} else {
				msg, err = client.UnmarkHoliday(ctx, sel, sc)
			}
			if err != nil {
				return fmt.Errorf("%s", schoolapi.Message(err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		}
	}
	cmd.AddCommand(
		&cobra.Command{Use: "mark", Short: "Mark the day as a holiday", RunE: run(true)},
		&cobra.Command{Use: "unmark", Short: "Clear a holiday", RunE: run(false)},
	)
	return cmd
}

func newStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether each session has been taken",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			for _, s := range attendance.Sessions {
				sel, err := opts.selection(s)
				if err != nil {
					return err
				}
				client, rctx := opts.client(ctx)
				data, err := client.FetchSession(rctx, sel)
				if err != nil {
					return fmt.Errorf("%s: %s", s.Label(), schoolapi.Message(err))
				}
				roster := attendance.NewRoster(data.Rows)
				st := roster.Stats(s)
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s taken=%-5t holiday=%-5t total=%d present=%d absent=%d\n",
					s.Label(), data.Taken, data.Holiday, st.Total, st.Present, st.Absent)
			}
			return nil
		},
	}
}

// newTokenCmd mints desk API tokens for scripts and smoke tests, signed
// with the same key and lifetimes the api verifies.
func newTokenCmd(opts *options) *cobra.Command {
	var user, role, name string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access/refresh token pair for the desk API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := auth.Principal{UserID: user, Role: role, SchoolID: opts.schoolID, Name: name}
			if !p.HasRole(auth.RoleSuperAdmin, auth.RoleAdmin, auth.RoleTeacher) {
				return fmt.Errorf("role %q cannot use desks", role)
			}
			pair, err := auth.Issue(p, opts.cfg.JWTIssuer, opts.cfg.JWTSigningKey, opts.cfg.AccessTTL, opts.cfg.RefreshTTL)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "access_token=%s\n", pair.AccessToken)
			fmt.Fprintf(out, "access_expires=%s\n", pair.AccessExp.Format(time.RFC3339))
			fmt.Fprintf(out, "refresh_token=%s\n", pair.RefreshToken)
			fmt.Fprintf(out, "refresh_expires=%s\n", pair.RefreshExp.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "ops", "subject of the token")
	cmd.Flags().StringVar(&role, "role", auth.RoleAdmin, "super_admin, admin or teacher")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}
