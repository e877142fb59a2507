package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ritzau/navisys/pkg/config"
	"github.com/ritzau/navisys/pkg/live"
	"github.com/ritzau/navisys/pkg/logging"
	"github.com/ritzau/navisys/pkg/network"
	"github.com/ritzau/navisys/pkg/output"
	"github.com/ritzau/navisys/pkg/pubsub"
	"github.com/ritzau/navisys/pkg/routing"
	"github.com/ritzau/navisys/pkg/watcher"
	"github.com/ritzau/navisys/pkg/web"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	debounceQuiet   = 200 * time.Millisecond
	debounceMaxWait = 2 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "navisys",
		Short: "Traffic-aware shortest paths over a road network",
		Long: `navisys loads a road network, prints the shortest distance from a source
node to every other node and keeps them current as real-time traffic
changes arrive. With --web it serves the same over HTTP.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			logging.Configure(cmd.ErrOrStderr(), logging.ParseLevel(cfg.Verbosity, cfg.VerboseCnt), cfg.LogFormat)
			return run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
	config.Flags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	publisher := pubsub.NewRoutePublisher()
	defer publisher.Close()

	g, err := loadGraph(cfg.Graph,
		routing.WithObserver(routing.LogObserver()),
		routing.WithObserver(pubsub.RouteObserver(publisher)))
	if err != nil {
		return err
	}
	logging.Info("graph loaded", "nodes", g.Order(), "edges", g.Size())

	var runner *live.Runner
	if cfg.Changes != "" {
		runner = live.NewRunner(g, publisher, cfg.Changes, cfg.Source)
	}

	if cfg.WebMode {
		return runWeb(ctx, cfg, g, publisher, runner)
	}
	return runCLI(ctx, cfg, g, runner, out)
}

func loadGraph(path string, opts ...routing.Option) (*routing.Graph[string], error) {
	specs := network.DefaultNetwork()
	if path != "" {
		var err error
		if specs, err = network.LoadEdges(path); err != nil {
			return nil, fmt.Errorf("loading graph: %w", err)
		}
	} else {
		logging.Info("no edge file given, using demo network")
	}

	g := routing.New[string](opts...)
	network.Populate(g, specs)
	return g, nil
}

func runCLI(ctx context.Context, cfg *config.Config, g *routing.Graph[string], runner *live.Runner, out io.Writer) error {
	output.PrintDistances(out, cfg.Source, g.ShortestPathFrom(cfg.Source))

	if runner != nil {
		result, err := runner.Apply(ctx, "startup")
		if err := report(out, cfg.Source, result, err); err != nil {
			return err
		}
	}

	printRoute := func() {
		if cfg.Destination != "" {
			fmt.Fprintln(out)
			output.PrintRoute(out, g.RerouteTree(cfg.Source, cfg.Destination), cfg.Destination)
		}
	}
	printRoute()

	if !cfg.Watch {
		return nil
	}

	runner.Report = func(result *routing.UpdateResult[string], err error) {
		_ = report(out, cfg.Source, result, err)
		printRoute()
	}
	return watch(ctx, cfg.Changes, runner)
}

// report prints an update batch. Only failures other than a negative cycle
// are returned.
func report(out io.Writer, source string, result *routing.UpdateResult[string], err error) error {
	if result == nil {
		return err
	}
	fmt.Fprintln(out)
	output.PrintUpdateReport(out, result, err)
	fmt.Fprintln(out)
	output.PrintDistances(out, source, result.Distances)
	if err != nil && !errors.Is(err, routing.ErrNegativeCycle) {
		return err
	}
	return nil
}

func runWeb(ctx context.Context, cfg *config.Config, g *routing.Graph[string], publisher pubsub.Publisher, runner *live.Runner) error {
	server := web.NewServer(g, publisher)

	if runner != nil {
		if _, err := runner.Apply(ctx, "startup"); err != nil {
			logging.Warn("initial real-time update", "error", err)
		}
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return server.Run(ctx, cfg.Port)
	})
	if runner != nil && cfg.Watch {
		group.Go(func() error {
			return watch(ctx, cfg.Changes, runner)
		})
	}
	return group.Wait()
}

// watch applies the change file on every write until ctx is done
func watch(ctx context.Context, path string, runner *live.Runner) error {
	fw, err := watcher.NewFileWatcher(path)
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Stop()

	if err := fw.Start(ctx); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}

	debouncer := watcher.NewDebouncer(fw.Events(), debounceQuiet, debounceMaxWait)
	debouncer.Start(ctx)

	runner.Watch(ctx, debouncer.Output())
	return nil
}
