package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/mlpilot/mlpilot/internal/agent"
	"github.com/mlpilot/mlpilot/internal/config"
	"github.com/mlpilot/mlpilot/internal/events"
	"github.com/mlpilot/mlpilot/internal/orchestrator"
	"github.com/mlpilot/mlpilot/internal/persistence"
	"github.com/mlpilot/mlpilot/internal/plan"
	"github.com/mlpilot/mlpilot/internal/pool"
	"github.com/mlpilot/mlpilot/internal/request"
)

func main() {
	requestPath := flag.String("request", "", "path to a JSON task request file")
	datasetPath := flag.String("dataset", "", "path to the dataset file (overrides dataset_uri)")
	verbose := flag.Bool("verbose", false, "print task-level events as the run progresses")
	flag.Parse()

	if *requestPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: mlpilot -request request.json [-dataset data.csv]")
		os.Exit(2)
	}

	// Signal-aware context for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *requestPath, *datasetPath, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, requestPath, datasetPath string, verbose bool) error {
	cfg, err := config.LoadDefault()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	raw, err := readRequest(requestPath)
	if err != nil {
		return err
	}

	var dataset agent.DatasetHandle
	if datasetPath != "" {
		handle := agent.FileHandle{Path: datasetPath}
		dataset = handle
		raw.DatasetURI = handle.URI()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("getting home directory: %w", err)
	}
	store, err := persistence.NewSQLiteStore(ctx, filepath.Join(homeDir, ".mlpilot", "state.db"))
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer store.Close()

	bus := events.NewBus()
	defer bus.Close()

	workers := pool.New(cfg.Pool.Workers)
	defer workers.Close()

	manager, err := orchestrator.New(orchestrator.Config{
		Engine:    cfg,
		Store:     store,
		Bus:       bus,
		Pool:      workers,
		Knowledge: plan.DefaultKnowledge(),
		Agents: []agent.Agent{
			agent.NewDataAgent(nil),
			agent.NewModelAgent(),
			agent.NewOperationAgent(),
		},
	})
	if err != nil {
		return err
	}
	defer manager.Close()

	runID, err := manager.Submit(ctx, raw, dataset)
	if err != nil {
		return err
	}
	log.Printf("run %s accepted", runID)

	watchCtx, stopWatching := context.WithCancel(ctx)
	defer stopWatching()

	var g errgroup.Group

	eventCh := bus.SubscribeAll(64)
	g.Go(func() error {
		narrate(watchCtx, eventCh, verbose)
		return nil
	})

	g.Go(func() error {
		// Cancel the run if a shutdown signal arrives before it finishes.
		<-watchCtx.Done()
		manager.Cancel(runID)
		return nil
	})

	outcome, err := manager.Wait(context.Background(), runID)
	stopWatching()
	_ = g.Wait()
	if err != nil {
		return err
	}

	return report(outcome)
}

func readRequest(path string) (request.RawRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return request.RawRequest{}, fmt.Errorf("reading request file: %w", err)
	}
	var raw request.RawRequest
	if err := json.Unmarshal(data, &raw); err != nil {
		return request.RawRequest{}, fmt.Errorf("parsing request file: %w", err)
	}
	return raw, nil
}

// narrate prints bus events until the channel closes.
func narrate(ctx context.Context, ch <-chan events.Event, verbose bool) {
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			switch e := ev.(type) {
			case events.PhaseChangedEvent:
				if e.Note != "" {
					log.Printf("run %s: %s -> %s (%s)", e.Run, e.From, e.To, e.Note)
				} else {
					log.Printf("run %s: %s -> %s", e.Run, e.From, e.To)
				}
			case events.TaskDispatchedEvent:
				if verbose {
					log.Printf("run %s: dispatched %s task %s (attempt %d)", e.Run, e.Role, e.TaskID, e.Attempt)
				}
			case events.TaskFinishedEvent:
				if verbose {
					log.Printf("run %s: %s task %s %s in %s", e.Run, e.Role, e.TaskID, e.Status, e.Duration)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// report renders the terminal record and maps rejection onto a non-zero exit.
func report(outcome *persistence.Outcome) error {
	if outcome == nil {
		return fmt.Errorf("run finished without an outcome record")
	}

	switch outcome.Kind {
	case persistence.OutcomeCompleted:
		s := outcome.Summary
		fmt.Printf("Completed: plan %s\n", s.PlanID)
		fmt.Printf("  model: %s (family %s)\n", s.Artifact.Model.Name, s.Artifact.Model.Family)
		fmt.Printf("  rationale: %s\n", s.Rationale)
		for metric, value := range s.Performance {
			fmt.Printf("  expected %s: %.2f\n", metric, value)
		}
		return nil

	case persistence.OutcomeRejected:
		r := outcome.Rejection
		fmt.Printf("Rejected after %s: %s\n", r.LastPhase, r.Reason)
		for _, diag := range r.Diagnostics {
			fmt.Printf("  - %s\n", diag)
		}
		return fmt.Errorf("run rejected")

	default:
		return fmt.Errorf("unknown outcome kind %q", outcome.Kind)
	}
}
