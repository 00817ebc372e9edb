// Package cli is the shutdownsched command line.
package cli

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/urfave/cli"

	"shutdownsched/internal/app"
	"shutdownsched/internal/config"
	"shutdownsched/internal/dispatch"
	"shutdownsched/internal/manager"
)

// Env carries the process surroundings. Zero fields use the real ones.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer
	Now    func() time.Time

	// Dispatcher replaces the detected native backend (tests).
	Dispatcher dispatch.Dispatcher
	// Notify replaces sd_notify for the watch command (tests).
	Notify func(state string) (bool, error)
}

func (e *Env) defaults() {
	if e.Stdout == nil {
		e.Stdout = os.Stdout
	}
	if e.Stderr == nil {
		e.Stderr = os.Stderr
	}
	if e.Now == nil {
		e.Now = time.Now
	}
}

var globalFlags = []cli.Flag{
	cli.StringFlag{
		Name:   "config, c",
		Usage:  "config file (JSON or YAML)",
		Value:  config.DefaultConfigPath(),
		EnvVar: "SHUTDOWNSCHED_CONFIG",
	},
	cli.StringFlag{
		Name:   "store",
		Usage:  "task registry location (overrides storage.path)",
		EnvVar: "SHUTDOWNSCHED_STORE",
	},
	cli.StringFlag{
		Name:  "log-level",
		Usage: "trace, debug, info, warn or error (overrides logging.level)",
	},
}

// Execute runs the command line in args (args[0] is the program name).
func Execute(args []string, env Env) error {
	env.defaults()
	r := &runner{env: env}

	a := cli.NewApp()
	a.Name = "shutdownsched"
	a.HelpName = "shutdownsched"
	a.Usage = "schedule shutdowns and reboots through the native OS scheduler"
	a.UsageText = "shutdownsched [global options] <command> [arguments...]"
	a.Writer = env.Stdout
	a.ErrWriter = env.Stderr
	a.Flags = globalFlags
	a.Commands = []cli.Command{
		{
			Name:      "create",
			Aliases:   []string{"add"},
			Usage:     "schedule a shutdown or reboot",
			ArgsUsage: " ",
			Flags:     createFlags,
			Action:    r.create,
		},
		{
			Name:      "delete",
			Aliases:   []string{"rm"},
			Usage:     "delete one task and its native job",
			ArgsUsage: "<task name>",
			Action:    r.delete,
		},
		{
			Name:   "delete-all",
			Usage:  "delete every task and native job",
			Action: r.deleteAll,
		},
		{
			Name:    "list",
			Aliases: []string{"ls"},
			Usage:   "list scheduled tasks",
			Flags:   []cli.Flag{jsonFlag},
			Action:  r.list,
		},
		{
			Name:   "status",
			Usage:  "show countdowns for the scheduled tasks",
			Flags:  []cli.Flag{jsonFlag},
			Action: r.status,
		},
		{
			Name:   "reconcile",
			Usage:  "compare the registry with the native scheduler",
			Flags:  []cli.Flag{jsonFlag},
			Action: r.reconcile,
		},
		{
			Name:   "native",
			Usage:  "list native jobs owned by this program",
			Flags:  []cli.Flag{jsonFlag},
			Action: r.native,
		},
		{
			Name:   "path",
			Usage:  "print the registry and config locations",
			Action: r.path,
		},
		{
			Name:  "watch",
			Usage: "run in the foreground: refresh tasks, show the countdown, reload on changes",
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "quiet, q", Usage: "do not print the countdown line"},
			},
			Action: r.watch,
		},
	}
	return a.Run(args)
}

var jsonFlag = cli.BoolFlag{Name: "json", Usage: "print JSON"}

type runner struct {
	env Env
}

// open builds the app for one command from the global flags.
func (r *runner) open(c *cli.Context) (*app.App, error) {
	opts := app.Options{
		ConfigPath: c.GlobalString("config"),
		StorePath:  c.GlobalString("store"),
		LogLevel:   c.GlobalString("log-level"),
		Dispatcher: r.env.Dispatcher,
		ManagerOptions: []manager.Option{
			manager.WithClock(r.env.Now),
		},
	}
	return app.New(context.Background(), opts)
}
