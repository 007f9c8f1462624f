package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicdesk/clinicdesk/internal/config"
	"github.com/clinicdesk/clinicdesk/internal/domain/dashboard"
	"github.com/clinicdesk/clinicdesk/internal/domain/notes"
	"github.com/clinicdesk/clinicdesk/internal/domain/patients"
	"github.com/clinicdesk/clinicdesk/internal/domain/scheduling"
	"github.com/clinicdesk/clinicdesk/internal/platform/apiclient"
	"github.com/clinicdesk/clinicdesk/internal/platform/auth"
	"github.com/clinicdesk/clinicdesk/internal/platform/notification"
	"github.com/clinicdesk/clinicdesk/internal/platform/session"
)

// TokenEnv holds the bearer token when --token is not given.
const TokenEnv = "CLINIC_TOKEN"

var errNoToken = errors.New("no token: pass --token or set " + TokenEnv)

// printer reports view notifications on the terminal.
func printer(w io.Writer) notification.Notifier {
	return notification.NotifierFunc(func(_ context.Context, n notification.Notification) {
		fmt.Fprintf(w, "[%s] %s\n", n.Label, n.Message)
	})
}

// cliEnv is what every command needs: config, an API client and the
// terminal streams.
type cliEnv struct {
	cfg    *config.Config
	api    *apiclient.Client
	sess   *session.Session
	out    io.Writer
	notify notification.Notifier
}

func newCLIEnv(cmd *cobra.Command, needToken bool) (*cliEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if u, _ := cmd.Flags().GetString("api-url"); u != "" {
		cfg.APIURL = config.NormalizeBaseURL(u)
	}

	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		token = os.Getenv(TokenEnv)
	}
	if needToken && strings.TrimSpace(token) == "" {
		return nil, errNoToken
	}

	errOut := cmd.ErrOrStderr()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: errOut}).Level(zerolog.WarnLevel)
	sess := session.FromToken(token)
	api := apiclient.New(cfg.APIURL,
		apiclient.WithLogger(logger),
		apiclient.WithUnauthorizedHook(func() {
			fmt.Fprintln(errOut, "Sesión expirada: vuelve a iniciar sesión con `clinicdesk login`.")
		}),
	).WithCredentials(sess)

	return &cliEnv{cfg: cfg, api: api, sess: sess, out: cmd.OutOrStdout(), notify: printer(errOut)}, nil
}

func (env *cliEnv) appointmentsView() *scheduling.AppointmentsView {
	return scheduling.NewAppointmentsView(
		scheduling.NewAppointmentRepoHTTP(env.api),
		patients.NewRepoHTTP(env.api),
		env.notify,
		env.cfg.DefaultDurationMinutes,
	)
}

// requireCapability applies the authorization table before any request.
func (env *cliEnv) requireCapability(c auth.Capability) error {
	d := auth.AuthorizeSession(env.sess, c)
	switch d.Outcome {
	case auth.Allow:
		return nil
	case auth.Pending:
		// role unknown until the API answers
		return nil
	case auth.Login:
		return errNoToken
	}
	return fmt.Errorf("role %q may not use %s", env.sess.Role(), c)
}

// ---------------------------------------------------------------------------
// login
// ---------------------------------------------------------------------------

func loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print the bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newCLIEnv(cmd, false)
			if err != nil {
				return err
			}
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")

			s := session.New()
			if err := s.Login(cmd.Context(), env.api, email, password); err != nil {
				return fmt.Errorf("%s", notification.Message(err, "No se pudo iniciar sesión"))
			}
			fmt.Fprintf(env.out, "Rol:    %s\n", s.Role().Label())
			fmt.Fprintf(env.out, "Inicio: %s\n", auth.Home(s.Role()))
			fmt.Fprintf(env.out, "export %s=%s\n", TokenEnv, s.Token())
			return nil
		},
	}
	cmd.Flags().String("email", "", "Account email")
	cmd.Flags().String("password", "", "Account password")
	return cmd
}

// ---------------------------------------------------------------------------
// appointments
// ---------------------------------------------------------------------------

func appointmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "appointments",
		Short: "List, check availability and book appointments",
	}

	// appointments list
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List appointments matching a filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newCLIEnv(cmd, true)
			if err != nil {
				return err
			}
			if err := env.requireCapability(auth.CapAppointments); err != nil {
				return err
			}
			q := url.Values{}
			for _, name := range []string{"date-from", "date-to", "status", "patient-id"} {
				if v, _ := cmd.Flags().GetString(name); v != "" {
					q.Set(strings.ReplaceAll(name, "-", "_"), v)
				}
			}
			v := env.appointmentsView()
			if err := v.Mount(cmd.Context(), q); err != nil {
				return err
			}
			printAppointments(env.out, v.Snapshot().Rows)
			return nil
		},
	}
	listCmd.Flags().String("date-from", "", "First day (YYYY-MM-DD)")
	listCmd.Flags().String("date-to", "", "Last day (YYYY-MM-DD)")
	listCmd.Flags().String("status", "", "Appointment status")
	listCmd.Flags().String("patient-id", "", "Patient ID")
	cmd.AddCommand(listCmd)

	// appointments availability
	availCmd := &cobra.Command{
		Use:   "availability",
		Short: "Show free slots in a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newCLIEnv(cmd, true)
			if err != nil {
				return err
			}
			if err := env.requireCapability(auth.CapAppointments); err != nil {
				return err
			}
			from, _ := cmd.Flags().GetString("date-from")
			to, _ := cmd.Flags().GetString("date-to")
			duration, _ := cmd.Flags().GetInt("duration")

			v := env.appointmentsView()
			v.SetRange(from, to)
			v.SetDuration(duration)
			if err := v.CheckAvailability(cmd.Context()); err != nil {
				return err
			}
			printAvailability(env.out, v.Snapshot())
			return nil
		},
	}
	availCmd.Flags().String("date-from", "", "First day (YYYY-MM-DD)")
	availCmd.Flags().String("date-to", "", "Last day (YYYY-MM-DD)")
	availCmd.Flags().Int("duration", 0, "Appointment duration in minutes")
	cmd.AddCommand(availCmd)

	// appointments book
	bookCmd := &cobra.Command{
		Use:   "book",
		Short: "Book an appointment at a picked slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newCLIEnv(cmd, true)
			if err != nil {
				return err
			}
			if err := env.requireCapability(auth.CapAppointments); err != nil {
				return err
			}
			patientID, _ := cmd.Flags().GetString("patient-id")
			date, _ := cmd.Flags().GetString("date")
			clock, _ := cmd.Flags().GetString("time")
			duration, _ := cmd.Flags().GetInt("duration")

			v := env.appointmentsView()
			v.SetDraft(scheduling.Draft{PatientID: patientID, DurationMinutes: duration})
			v.PickSlot(date, clock)
			a, err := v.CreateAppointment(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(env.out, "Cita #%d: %s (%d min)\n", a.ID, a.StartTime.Display(), a.DurationMinutes)
			return nil
		},
	}
	bookCmd.Flags().String("patient-id", "", "Patient ID")
	bookCmd.Flags().String("date", "", "Day (YYYY-MM-DD)")
	bookCmd.Flags().String("time", "", "Start time (HH:MM)")
	bookCmd.Flags().Int("duration", 0, "Duration in minutes (defaults to DEFAULT_DURATION_MINUTES)")
	cmd.AddCommand(bookCmd)

	cmd.AddCommand(transitionCmd("complete", "Mark an appointment completed", (*scheduling.AppointmentsView).Complete))
	cmd.AddCommand(transitionCmd("no-show", "Mark an appointment as no-show", (*scheduling.AppointmentsView).NoShow))
	cmd.AddCommand(transitionCmd("cancel", "Cancel an appointment", (*scheduling.AppointmentsView).Cancel))
	return cmd
}

func transitionCmd(use, short string, fn func(*scheduling.AppointmentsView, context.Context, int64) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid appointment id %q", args[0])
			}
			env, err := newCLIEnv(cmd, true)
			if err != nil {
				return err
			}
			if err := env.requireCapability(auth.CapAppointments); err != nil {
				return err
			}
			return fn(env.appointmentsView(), cmd.Context(), id)
		},
	}
}

func printAppointments(w io.Writer, rows []scheduling.Row) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No hay citas.")
		return
	}
	fmt.Fprintf(w, "%-6s %-16s %-5s %-12s %s\n", "ID", "FECHA", "MIN", "ESTADO", "PACIENTE")
	for _, r := range rows {
		fmt.Fprintf(w, "%-6d %-16s %-5d %-12s %s\n", r.ID, r.When, r.DurationMinutes, r.StatusLabel, r.PatientLabel)
	}
}

func printAvailability(w io.Writer, s scheduling.Snapshot) {
	fmt.Fprintf(w, "Rango:    %s\n", s.Header.Range)
	fmt.Fprintf(w, "Horario:  %s\n", s.Header.WorkingHours)
	fmt.Fprintf(w, "Slot:     %s\n", s.Header.SlotMinutes)
	fmt.Fprintf(w, "Duración: %s\n", s.Header.DurationMinutes)
	for _, d := range s.Days {
		if d.NoAvailability {
			fmt.Fprintf(w, "%s  %s\n", d.Date, d.Label)
			continue
		}
		clocks := make([]string, 0, len(d.Slots))
		for _, sl := range d.Slots {
			clocks = append(clocks, sl.Clock)
		}
		fmt.Fprintf(w, "%s  %s\n", d.Date, strings.Join(clocks, " "))
	}
}

// ---------------------------------------------------------------------------
// notes
// ---------------------------------------------------------------------------

func notesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "Clinical notes",
	}
	timelineCmd := &cobra.Command{
		Use:   "timeline PATIENT_ID",
		Short: "Show a patient's notes grouped by day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid patient id %q", args[0])
			}
			env, err := newCLIEnv(cmd, true)
			if err != nil {
				return err
			}
			if err := env.requireCapability(auth.CapNotes); err != nil {
				return err
			}
			v := notes.NewNotesView(
				notes.NewRepoHTTP(env.api),
				scheduling.NewAppointmentRepoHTTP(env.api),
				patients.NewRepoHTTP(env.api),
				env.notify,
			)
			// a failed source only leaves labels unresolved
			_ = v.Load(cmd.Context())
			q, _ := cmd.Flags().GetString("query")
			v.SetTimelineSearch(q)
			if err := v.OpenPatient(cmd.Context(), id); err != nil {
				return err
			}
			printTimeline(env.out, v.Snapshot().Timeline)
			return nil
		},
	}
	timelineCmd.Flags().StringP("query", "q", "", "Only notes containing this text")
	cmd.AddCommand(timelineCmd)
	return cmd
}

func printTimeline(w io.Writer, tl *notes.Timeline) {
	if tl == nil {
		return
	}
	fmt.Fprintf(w, "%s\n", tl.PatientName)
	if len(tl.Groups) == 0 {
		fmt.Fprintln(w, "Sin notas.")
		return
	}
	for _, g := range tl.Groups {
		heading := g.Date
		if g.IsToday {
			heading += " (hoy)"
		}
		fmt.Fprintf(w, "\n%s\n", heading)
		for _, n := range g.Notes {
			fmt.Fprintf(w, "  #%d %s  %s\n", n.ID, notes.NoteTypeLabel(n.NoteType), n.CreatedAt.Display())
			for _, f := range []struct{ label, text string }{
				{"S", n.Subjective}, {"O", n.Objective}, {"A", n.Assessment}, {"P", n.Plan}, {"", n.Content},
			} {
				if f.text == "" {
					continue
				}
				if f.label != "" {
					fmt.Fprintf(w, "    %s: %s\n", f.label, f.text)
				} else {
					fmt.Fprintf(w, "    %s\n", f.text)
				}
			}
		}
	}
}

// ---------------------------------------------------------------------------
// dashboard
// ---------------------------------------------------------------------------

func dashboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show practice metrics for a range of days",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newCLIEnv(cmd, true)
			if err != nil {
				return err
			}
			if err := env.requireCapability(auth.CapDashboard); err != nil {
				return err
			}
			days, _ := cmd.Flags().GetInt("days")
			if days == 0 {
				days = env.cfg.DashboardDays
			}
			v := dashboard.NewDashboardView(dashboard.NewRepoHTTP(env.api), env.notify, env.cfg.UpcomingLimit)
			page, err := v.Load(cmd.Context(), days)
			if err != nil {
				return err
			}
			printDashboard(env.out, page)
			return nil
		},
	}
	cmd.Flags().Int("days", 0, "Range in days (defaults to DASHBOARD_DAYS)")
	return cmd
}

func printDashboard(w io.Writer, p *dashboard.Page) {
	fmt.Fprintf(w, "Rango: %s → %s (%d días)\n\n", p.DateFrom, p.DateTo, p.Days)
	if msg, ok := p.Errors[dashboard.SectionMetrics]; ok {
		fmt.Fprintf(w, "%s\n", msg)
	} else if len(p.Cards) == 0 {
		fmt.Fprintln(w, "Sin métricas disponibles")
	}
	for _, c := range p.Cards {
		fmt.Fprintf(w, "%-20s %d\n", c.Title, c.Value)
	}
	fmt.Fprintf(w, "%-20s %s\n", "Utilización", p.Utilization)

	fmt.Fprintln(w, "\nPróximas citas")
	switch {
	case p.Errors[dashboard.SectionUpcoming] != "":
		fmt.Fprintf(w, "  %s\n", p.Errors[dashboard.SectionUpcoming])
	case len(p.Upcoming) == 0:
		fmt.Fprintln(w, "  No hay próximas citas.")
	}
	for _, u := range p.Upcoming {
		fmt.Fprintf(w, "  %-16s %-24s %s\n", u.When, u.Patient, u.StatusLabel)
	}

	fmt.Fprintln(w, "\nCitas por día")
	if msg := p.Errors[dashboard.SectionByDay]; msg != "" {
		fmt.Fprintf(w, "  %s\n", msg)
	}
	for _, d := range p.ByDay {
		fmt.Fprintf(w, "  %s  total %d  agendadas %d  canceladas %d\n", d.Date, d.Total, d.Scheduled, d.Cancelled)
	}
}
