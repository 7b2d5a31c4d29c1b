package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"
	"github.com/goschtalt/goschtalt"
	_ "github.com/goschtalt/yaml-encoder"
	"github.com/jeremiahvaughan/pipeline/internal/config"
	"github.com/jeremiahvaughan/pipeline/internal/server"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const applicationName = "pipelined"

// These match what goreleaser provides.
var (
	commit  = "undefined"
	version = "undefined"
	date    = "undefined"
	builtBy = "undefined"
)

// CLI is the structure that is used to capture the command line arguments.
type CLI struct {
	Dev   bool     `optional:"" short:"d" help:"Run in development mode."`
	Show  bool     `optional:"" short:"s" help:"Show the configuration and exit."`
	Graph string   `optional:"" short:"g" help:"Output the dependency graph to the specified file."`
	Files []string `optional:"" short:"f" help:"Specific configuration files or directories."`
}

type LifeCycleIn struct {
	fx.In
	Logger *zap.Logger
	LC     fx.Lifecycle
	Shut   fx.Shutdowner
	Srv    *server.Server
}

// pipelined is the main entry point for the program. It is responsible for
// setting up the dependency injection framework and returning the app object.
func pipelined(args []string) (*fx.App, error) {
	var (
		gscfg *goschtalt.Config
		g     fx.DotGraph
		cli   *CLI
	)

	app := fx.New(
		fx.Supply(cliArgs(args)),
		fx.Populate(&g),
		fx.Populate(&gscfg),
		fx.Populate(&cli),

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),

		fx.Provide(
			provideCLI,
			provideLogger,
			provideConfig,
			server.New,
		),

		fx.Invoke(
			lifeCycle,
		),
	)

	if cli != nil && cli.Graph != "" {
		_ = os.WriteFile(cli.Graph, []byte(g), 0600)
	}

	if err := app.Err(); err != nil {
		return nil, err
	}

	return app, nil
}

func main() {
	app, err := pipelined(os.Args[1:])
	if err == nil {
		app.Run()
		return
	}

	fmt.Fprintln(os.Stderr, err)
	os.Exit(-1)
}

// Provides a named type so it's a bit easier to flow through & use in fx.
type cliArgs []string

func provideCLI(args cliArgs) (*CLI, error) {
	return provideCLIWithOpts(args, false)
}

func provideCLIWithOpts(args cliArgs, testOpts bool) (*CLI, error) {
	var cli CLI

	var opt kong.Option = kong.OptionFunc(
		func(*kong.Kong) error {
			return nil
		},
	)

	if testOpts {
		opt = kong.Writers(nil, nil)
	}

	parser, err := kong.New(&cli,
		kong.Name(applicationName),
		kong.Description("The duplex deployment console server.\n"+
			fmt.Sprintf("\tVersion:  %s\n", version)+
			fmt.Sprintf("\tDate:     %s\n", date)+
			fmt.Sprintf("\tCommit:   %s\n", commit)+
			fmt.Sprintf("\tBuilt By: %s\n", builtBy),
		),
		kong.UsageOnError(),
		opt,
	)
	if err != nil {
		return nil, err
	}

	if testOpts {
		parser.Exit = func(_ int) { panic("exit") }
	}

	_, err = parser.Parse(args)
	if err != nil {
		parser.FatalIfErrorf(err)
	}

	return &cli, nil
}

type ConfigIn struct {
	fx.In
	CLI *CLI
}

type ConfigOut struct {
	fx.Out
	GS  *goschtalt.Config
	Cfg *config.Config
}

func provideConfig(in ConfigIn) (ConfigOut, error) {
	gs, cfg, err := config.Load(config.CLI{Show: in.CLI.Show, Files: in.CLI.Files})
	if err != nil {
		return ConfigOut{}, err
	}
	return ConfigOut{GS: gs, Cfg: cfg}, nil
}

type LoggerIn struct {
	fx.In
	CLI *CLI
	Cfg *config.Config
}

func provideLogger(in LoggerIn) (*zap.Logger, error) {
	return config.BuildLogger(in.Cfg, in.CLI.Dev)
}

func onStart(srv *server.Server, logger *zap.Logger) func(context.Context) error {
	logger = logger.Named("on_start")

	return func(_ context.Context) error {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("stacktrace from panic", zap.String("stacktrace", string(debug.Stack())), zap.Any("panic", r))
			}
		}()

		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("server stopped", zap.Error(err))
			}
		}()

		return nil
	}
}

func onStop(srv *server.Server, shutdowner fx.Shutdowner, logger *zap.Logger) func(context.Context) error {
	logger = logger.Named("on_stop")

	return func(ctx context.Context) error {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("stacktrace from panic", zap.String("stacktrace", string(debug.Stack())), zap.Any("panic", r))
			}

			if err := shutdowner.Shutdown(); err != nil {
				logger.Error("encountered error trying to shutdown app: ", zap.Error(err))
			}
		}()

		return srv.Stop(ctx)
	}
}

func lifeCycle(in LifeCycleIn) {
	logger := in.Logger.Named("fx_lifecycle")
	in.LC.Append(
		fx.Hook{
			OnStart: onStart(in.Srv, logger),
			OnStop:  onStop(in.Srv, in.Shut, logger),
		},
	)
}
