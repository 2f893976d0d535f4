package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/agentfleet/hierarchy"
	"github.com/BaSui01/agentfleet/types"
)

// =============================================================================
// 🗄️ agents 命令（持久化 agent 管理）
// =============================================================================

// agentsFile is the import document: either a bare list of agents or a
// mapping with an "agents" list. JSON is accepted as YAML.
type agentsFile struct {
	Agents []hierarchy.PersistedAgent `yaml:"agents"`
}

// runAgents manages the persisted agents that seed hierarchy nodes:
//
//	agentfleet agents list
//	agentfleet agents import <file|->
//	agentfleet agents delete <id>...
//
// Every change invalidates the shared hierarchy cache.
func runAgents(args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("agents", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("agents: missing action (list, import, delete)")
	}
	action, rest := fs.Arg(0), fs.Args()[1:]

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if !cfg.Database.Enabled {
		return types.NewError(types.ErrStoreUnavailable, "agent store is not configured (database.enabled is false)")
	}
	cfg.Log.OutputPaths = []string{"stderr"}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = app.Close(context.Background()) }()
	if app.store == nil {
		return types.NewError(types.ErrStoreUnavailable, "agent store is not reachable")
	}
	if err := app.store.Migrate(ctx); err != nil {
		return err
	}

	switch action {
	case "list":
		return listAgents(ctx, app, out)
	case "import":
		if len(rest) != 1 {
			return errors.New("agents import: expected one file argument (use - for stdin)")
		}
		agents, err := readAgentsFile(rest[0], in)
		if err != nil {
			return err
		}
		if err := app.store.Save(ctx, agents...); err != nil {
			return err
		}
		fmt.Fprintf(out, "imported %d agents\n", len(agents))
	case "delete":
		if len(rest) == 0 {
			return errors.New("agents delete: expected at least one agent id")
		}
		for _, id := range rest {
			if err := app.store.Delete(ctx, id); err != nil {
				return err
			}
		}
		fmt.Fprintf(out, "deleted %d agents\n", len(rest))
	default:
		return fmt.Errorf("agents: unknown action %q", action)
	}

	if err := app.service.Invalidate(ctx); err != nil {
		logger.Warn("hierarchy cache not invalidated", zap.Error(err))
	}
	return nil
}

func listAgents(ctx context.Context, app *App, out io.Writer) error {
	agents, err := app.store.ListAgents(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS")
	for _, a := range agents {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", a.ID, a.Name, a.Status)
	}
	return tw.Flush()
}

func readAgentsFile(path string, stdin io.Reader) ([]hierarchy.PersistedAgent, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read agents file: %w", err)
	}
	return parseAgentsFile(data)
}

func parseAgentsFile(data []byte) ([]hierarchy.PersistedAgent, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parse agents file: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	root := node.Content[0]
	var agents []hierarchy.PersistedAgent
	if root.Kind == yaml.SequenceNode {
		if err := root.Decode(&agents); err != nil {
			return nil, fmt.Errorf("parse agents file: %w", err)
		}
		return agents, nil
	}
	var doc agentsFile
	if err := root.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse agents file: %w", err)
	}
	return doc.Agents, nil
}
