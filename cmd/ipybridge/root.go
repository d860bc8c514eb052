package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/ipybridge/bridge"
	"github.com/tailored-agentic-units/ipybridge/observability"
)

// debugFileEnv names a file that receives every event at debug level,
// independent of --verbose.
const debugFileEnv = "IPYBRIDGE_DEBUG_FILE"

// app is the state shared by every subcommand.
type app struct {
	configFile string
	verbose    bool
	observers  []string

	config   *bridge.Config
	observer observability.Observer
	closers  []io.Closer
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:                "ipybridge",
		Short:              "Jupyter shell for editors",
		Args:               cobra.NoArgs,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}
	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "path to a JSON or YAML config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log debug events to stderr")
	root.PersistentFlags().StringSliceVar(&a.observers, "observer", []string{"stderr"}, "registered observers receiving events (stderr, slog, noop)")

	root.AddCommand(
		newReplCommand(a),
		newServeCommand(a),
		newStatusCommand(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := bridge.LoadConfig(a.configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.config = cfg

	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	stderr := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(stderr)
	observability.RegisterObserver("stderr", observability.NewSlogObserver(stderr))

	var observers []observability.Observer
	for _, name := range a.observers {
		o, err := observability.GetObserver(name)
		if err != nil {
			return fmt.Errorf("%w (known: %s)", err, strings.Join(observability.Names(), ", "))
		}
		observers = append(observers, o)
	}

	if path := os.Getenv(debugFileEnv); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open debug file: %w", err)
		}
		a.closers = append(a.closers, f)
		debug := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
		observers = append(observers, observability.NewSlogObserver(debug))
	}

	a.observer = observability.NewMultiObserver(observers...)
	return nil
}

func (a *app) teardown(*cobra.Command, []string) error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
