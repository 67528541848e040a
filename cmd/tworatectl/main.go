package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tworate/internal/config"
	"tworate/internal/logging"
	"tworate/pkg/tworate"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

// app carries what every subcommand needs to build a client.
type app struct {
	v          *viper.Viper
	configPath string
}

func newRootCommand() *cobra.Command {
	a := &app{v: config.NewViper()}
	root := &cobra.Command{
		Use:           "tworatectl",
		Short:         "Simulate the two-rate interest model and analyse its paths",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "optional settings file (yaml)")
	flags.String("store", "memory", "store backend: memory|sqlite|postgres")
	flags.String("db-path", "tworate.db", "sqlite database path or postgres dsn")
	flags.String("runs-dir", "runs", "run artifacts directory")
	flags.String("exports-dir", "exports", "export output directory")
	flags.String("log-level", "info", "log level: debug|info|warn|error")
	flags.String("log-format", "console", "log format: console|json")
	for key, flag := range map[string]string{
		"store":       "store",
		"db_path":     "db-path",
		"runs_dir":    "runs-dir",
		"exports_dir": "exports-dir",
		"log_level":   "log-level",
		"log_format":  "log-format",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		a.simulateCommand(),
		a.lagSampleCommand(),
		a.regressCommand(),
		a.pipelineCommand(),
		a.runsCommand(),
		a.exportCommand(),
	)
	return root
}

func (a *app) client(cmd *cobra.Command) (*tworate.Client, error) {
	settings, err := config.Load(a.v, a.configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cmd.ErrOrStderr(), settings.LogLevel, settings.LogFormat)
	if err != nil {
		return nil, err
	}
	return tworate.New(tworate.Options{
		StoreKind:  settings.StoreKind,
		DBPath:     settings.DBPath,
		RunsDir:    settings.RunsDir,
		ExportsDir: settings.ExportsDir,
		Logger:     logger,
	})
}

// withClient opens a client for one command and always closes it.
func (a *app) withClient(cmd *cobra.Command, fn func(*tworate.Client) error) error {
	client, err := a.client(cmd)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(cmd.Context()); err != nil {
		return err
	}
	return fn(client)
}
