package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"

	"shutdownsched/internal/app"
	"shutdownsched/internal/manager"
	"shutdownsched/internal/schedule"
	"shutdownsched/internal/status"
	"shutdownsched/internal/task"
)

const timeLayout = "Mon 2006-01-02 15:04"

var createFlags = []cli.Flag{
	cli.StringFlag{Name: "action, a", Value: "shutdown", Usage: "shutdown or reboot"},
	cli.StringFlag{Name: "type, t", Value: "once", Usage: "once, daily or weekly"},
	cli.StringFlag{Name: "days, d", Usage: "weekdays for weekly tasks, e.g. mon,wed,fri"},
	cli.StringFlag{Name: "in", Usage: "relative delay, e.g. 30m, 2h, 1d2h30m"},
	cli.StringFlag{Name: "at", Usage: `absolute time, "YYYY-MM-DD HH:MM" or "HH:MM"`},
}

func (r *runner) create(c *cli.Context) error {
	d, err := r.description(c)
	if err != nil {
		return err
	}
	a, err := r.open(c)
	if err != nil {
		return err
	}
	defer a.Close()

	t, err := a.Manager().Create(context.Background(), d)
	if err != nil {
		return err
	}
	fmt.Fprintf(r.env.Stdout, "created %s: %s %s at %s (%s)\n",
		t.Name, t.Action.Label(), describeType(t), t.Time().Format(timeLayout), t.NativeJobID)
	return nil
}

// description turns the create flags into a request. Field level checks are
// left to the manager so both paths report the same errors.
func (r *runner) description(c *cli.Context) (manager.Description, error) {
	var d manager.Description
	act, err := task.ParseAction(c.String("action"))
	if err != nil {
		return d, err
	}
	kind, err := task.ParseScheduleType(c.String("type"))
	if err != nil {
		return d, err
	}
	d.Action, d.ScheduleType = act, kind

	if raw := strings.TrimSpace(c.String("days")); raw != "" {
		if kind != task.Weekly {
			return d, &task.ValidationError{Field: "daysOfWeek", Reason: "--days only applies to weekly tasks"}
		}
		if d.Days, err = task.ParseDaySet(raw); err != nil {
			return d, err
		}
	}

	in, at := strings.TrimSpace(c.String("in")), strings.TrimSpace(c.String("at"))
	switch {
	case in != "" && at != "":
		return d, &task.ValidationError{Field: "trigger", Reason: "use either --in or --at, not both"}
	case at != "":
		when, err := schedule.ParseAt(at, r.env.Now(), time.Local)
		if err != nil {
			return d, err
		}
		d.Trigger.At = when
	default:
		delay, err := schedule.ParseDelay(in)
		if err != nil {
			return d, err
		}
		d.Trigger.Delay = delay
	}
	return d, nil
}

func describeType(t task.ScheduledTask) string {
	switch t.ScheduleType {
	case task.Weekly:
		return "weekly on " + t.DaysOfWeek.String()
	default:
		return string(t.ScheduleType)
	}
}

func (r *runner) delete(c *cli.Context) error {
	name := strings.TrimSpace(c.Args().First())
	if name == "" {
		return errors.New("delete: task name required")
	}
	a, err := r.open(c)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Manager().Delete(context.Background(), name); err != nil {
		return err
	}
	fmt.Fprintf(r.env.Stdout, "deleted %s\n", name)
	return nil
}

func (r *runner) deleteAll(c *cli.Context) error {
	a, err := r.open(c)
	if err != nil {
		return err
	}
	defer a.Close()

	n := len(a.Manager().List())
	err = a.Manager().DeleteAll(context.Background())
	var pf *task.PartialFailure
	if errors.As(err, &pf) {
		for _, f := range pf.Failures {
			fmt.Fprintf(r.env.Stderr, "not canceled: %s (%s): %v\n", f.TaskName, f.NativeJobID, f.Err)
		}
		return fmt.Errorf("registry cleared, %d native job(s) may need manual removal", len(pf.Failures))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(r.env.Stdout, "deleted %d task(s)\n", n)
	return nil
}

func (r *runner) list(c *cli.Context) error {
	a, err := r.open(c)
	if err != nil {
		return err
	}
	defer a.Close()

	rows := a.Manager().List()
	if c.Bool("json") {
		return writeJSON(r.env.Stdout, rows)
	}
	if len(rows) == 0 {
		fmt.Fprintln(r.env.Stdout, status.Placeholder)
		return nil
	}
	tw := tabwriter.NewWriter(r.env.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tACTION\tSCHEDULE\tNEXT\tNATIVE\tSTATUS")
	for _, t := range rows {
		st := string(t.Status)
		if st == "" {
			st = string(task.StatusPending)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.Name, t.Action.Label(), describeType(t), t.Time().Format(timeLayout), t.NativeJobID, st)
	}
	return tw.Flush()
}

func (r *runner) status(c *cli.Context) error {
	a, err := r.open(c)
	if err != nil {
		return err
	}
	defer a.Close()

	now := r.env.Now()
	tasks := a.Manager().List()
	rows := status.Project(tasks, now)
	sum := status.Summarize(tasks, now)
	if c.Bool("json") {
		return writeJSON(r.env.Stdout, struct {
			Title   string         `json:"title"`
			Rows    []status.Row   `json:"rows"`
			Summary status.Summary `json:"summary"`
		}{status.Title(rows), rows, sum})
	}
	if title := status.Title(rows); title != "" {
		fmt.Fprintln(r.env.Stdout, title)
	}
	for _, line := range status.MenuLines(rows) {
		fmt.Fprintln(r.env.Stdout, "  "+line)
	}
	fmt.Fprintf(r.env.Stdout, "%d total, %d upcoming, %d completed\n", sum.Total, sum.Upcoming, sum.Completed)
	return nil
}

func (r *runner) reconcile(c *cli.Context) error {
	a, err := r.open(c)
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.Manager().Reconcile(context.Background())
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return writeJSON(r.env.Stdout, rep)
	}
	if rep.Clean() {
		fmt.Fprintf(r.env.Stdout, "in sync: %d task(s) checked\n", rep.Checked)
		return nil
	}
	for _, t := range rep.MissingNative {
		fmt.Fprintf(r.env.Stdout, "missing native job: %s (%s)\n", t.Name, t.NativeJobID)
	}
	for _, j := range rep.Orphaned {
		fmt.Fprintf(r.env.Stdout, "orphaned native job: %s (%s)\n", j.ID, j.TaskName)
	}
	return nil
}

func (r *runner) native(c *cli.Context) error {
	a, err := r.open(c)
	if err != nil {
		return err
	}
	defer a.Close()

	jobs, err := a.Manager().Native(context.Background())
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return writeJSON(r.env.Stdout, jobs)
	}
	if len(jobs) == 0 {
		fmt.Fprintf(r.env.Stdout, "no native jobs (backend %s)\n", a.Manager().Backend())
		return nil
	}
	now := r.env.Now()
	tw := tabwriter.NewWriter(r.env.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTASK\tSPEC\tNEXT")
	for _, j := range jobs {
		next := "-"
		if !j.Next.IsZero() {
			next = humanize.RelTime(j.Next, now, "ago", "from now")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", j.ID, j.TaskName, j.Spec, next)
	}
	return tw.Flush()
}

func (r *runner) path(c *cli.Context) error {
	a, err := r.open(c)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintf(r.env.Stdout, "registry: %s\n", a.Manager().Path())
	fmt.Fprintf(r.env.Stdout, "config:   %s\n", c.GlobalString("config"))
	fmt.Fprintf(r.env.Stdout, "backend:  %s\n", a.Manager().Backend())
	return nil
}

func (r *runner) watch(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := r.open(c)
	if err != nil {
		return err
	}
	defer a.Close()

	a.Preflight(ctx)
	opts := app.WatchOptions{Notify: r.env.Notify, Now: r.env.Now}
	if !c.Bool("quiet") {
		opts.StatusOut = r.env.Stdout
	}
	if err := a.Start(ctx, opts); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Stop(sctx); err != nil {
		return err
	}
	return a.Err()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
