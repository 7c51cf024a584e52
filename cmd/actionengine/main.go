// Command actionengine is a demonstration CLI: it submits a UMRF graph
// read from a JSON file, runs it to completion, and dumps the resulting
// graph descriptors to stdout.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/temoto-action-engine/actionengine/pkg/eventbus"
	"github.com/temoto-action-engine/actionengine/pkg/executor"
	applog "github.com/temoto-action-engine/actionengine/pkg/log"
	"github.com/temoto-action-engine/actionengine/pkg/loader"
	"github.com/temoto-action-engine/actionengine/pkg/otelhelper"
	"github.com/temoto-action-engine/actionengine/pkg/reaper"
	"github.com/temoto-action-engine/actionengine/pkg/wire"
)

const serviceName = "actionengine"

func main() {
	cmd := &cli.Command{
		Name:                  "actionengine",
		EnableShellCompletion: true,
		Usage:                 "Submit and run a UMRF graph to completion",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "graph-file",
				Usage:    "path to a JSON file holding a graph submission (spec §6)",
				Required: true,
				Sources:  cli.EnvVars("GRAPH_FILE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "how long to wait for the graph to finish before giving up",
				Value: 30 * time.Second,
			},
			&cli.StringFlag{
				Name:    "instance-id",
				Usage:   "correlation id for this run's log lines, random if unset",
				Sources: cli.EnvVars("INSTANCE_ID"),
			},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	applog.Setup(command.String("log-level"))

	instanceID := command.String("instance-id")
	if instanceID == "" {
		instanceID = uuid.New().String()[:8]
	}

	logger := applog.NewEntry("actionengine").WithField("instance", instanceID)

	raw, err := os.ReadFile(command.String("graph-file"))
	if err != nil {
		return fmt.Errorf("reading graph file: %w", err)
	}

	name, nodes, err := wire.DecodeGraph(raw)
	if err != nil {
		return fmt.Errorf("decoding graph: %w", err)
	}

	opts := []executor.Option{
		executor.WithLogger(logger),
		executor.WithEventBus(eventbus.NoOp{}),
	}

	tracer, err := otelhelper.NewTracer(ctx, serviceName)
	if err != nil {
		logger.WithError(err).Warn("tracing disabled: could not start otlp exporter")
	} else {
		opts = append(opts, executor.WithTracer(tracer))
	}

	exec := executor.New(loader.New(logger), opts...)

	cleanupReaper := reaper.New(exec, logger)
	if err := cleanupReaper.Start(ctx); err != nil {
		return fmt.Errorf("starting cleanup reaper: %w", err)
	}

	defer func() {
		exec.StopAndCleanup()
		cleanupReaper.Stop()
	}()

	if err := exec.AddUmrfGraph(name, nodes); err != nil {
		return fmt.Errorf("admitting graph %q: %w", name, err)
	}

	logger.WithField("graph", name).Info("submitted graph")

	if err := exec.ExecuteUmrfGraph(ctx, name); err != nil {
		return fmt.Errorf("executing graph %q: %w", name, err)
	}

	timeout := command.Duration("timeout")
	deadline := time.Now().Add(timeout)

	var descriptor string

	for {
		desc, finished, ok := exec.GraphDescriptor(name)
		if !ok {
			// The reaper already swept it; nothing left to print.
			break
		}

		if finished {
			descriptor = desc

			break
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("graph %q did not finish within %s", name, timeout)
		}

		time.Sleep(50 * time.Millisecond)
	}

	if descriptor != "" {
		fmt.Println(descriptor)
	}

	logger.WithField("graph", name).Info("graph finished")

	return nil
}
