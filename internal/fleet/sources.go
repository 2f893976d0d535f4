package fleet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentfleet/config"
	"github.com/BaSui01/agentfleet/hierarchy"
	"github.com/BaSui01/agentfleet/hierarchy/extract"
	"github.com/BaSui01/agentfleet/internal/metrics"
)

// Source names used in logs and metric labels.
const (
	SourceConfig    = "config"
	SourceRuntime   = "runtime"
	SourceLegacy    = "legacy"
	SourceWorkspace = "workspace"
	SourceDatabase  = "database"
)

const errNotConfigured = "not configured"

// maxStderrBytes caps the stderr excerpt carried in runtime errors.
const maxStderrBytes = 512

// =============================================================================
// 🔌 外部依赖
// =============================================================================

// CommandRunner runs a command line and returns its standard output.
type CommandRunner interface {
	Run(ctx context.Context, commandLine string) ([]byte, error)
}

// AgentLister lists the agents known to the system of record.
type AgentLister interface {
	ListAgents(ctx context.Context) ([]hierarchy.PersistedAgent, error)
}

// ExecRunner runs commands as child processes. The command line is split
// with shell quoting rules but never passed to a shell.
type ExecRunner struct {
	Dir string
	Env []string
}

// Run implements CommandRunner.
func (r ExecRunner) Run(ctx context.Context, commandLine string) ([]byte, error) {
	args, err := shellquote.Split(commandLine)
	if err != nil {
		return nil, fmt.Errorf("parse command %q: %w", commandLine, err)
	}
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("run %s: %w", args[0], ctxErr)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			if len(msg) > maxStderrBytes {
				msg = msg[:maxStderrBytes] + "..."
			}
			return nil, fmt.Errorf("run %s: %w: %s", args[0], err, msg)
		}
		return nil, fmt.Errorf("run %s: %w", args[0], err)
	}
	return stdout.Bytes(), nil
}

// =============================================================================
// 📥 来源加载器
// =============================================================================

// SourceLoader reads every hierarchy source concurrently and turns them into
// a builder Input. Individual source failures are reported in the source
// status, never as errors.
type SourceLoader struct {
	cfg     config.SourcesConfig
	options hierarchy.Options
	runner  CommandRunner
	agents  AgentLister
	metrics *metrics.Collector
	logger  *zap.Logger
}

// LoaderOption configures a SourceLoader.
type LoaderOption func(*SourceLoader)

// WithRunner replaces the runtime command runner.
func WithRunner(r CommandRunner) LoaderOption {
	return func(l *SourceLoader) { l.runner = r }
}

// WithAgentLister sets the persisted agent source.
func WithAgentLister(a AgentLister) LoaderOption {
	return func(l *SourceLoader) { l.agents = a }
}

// WithLoaderMetrics records per-source load durations.
func WithLoaderMetrics(c *metrics.Collector) LoaderOption {
	return func(l *SourceLoader) { l.metrics = c }
}

// WithBuildOptions sets the builder options copied into every Input.
func WithBuildOptions(o hierarchy.Options) LoaderOption {
	return func(l *SourceLoader) { l.options = o }
}

// NewSourceLoader creates a loader for cfg.
func NewSourceLoader(cfg config.SourcesConfig, logger *zap.Logger, opts ...LoaderOption) *SourceLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &SourceLoader{
		cfg:    cfg,
		runner: ExecRunner{},
		logger: logger.With(zap.String("component", "source_loader")),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load fetches all sources. It only fails when ctx is done.
func (l *SourceLoader) Load(ctx context.Context) (hierarchy.Input, error) {
	var in hierarchy.Input
	in.Options = l.options

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer l.observe(SourceConfig, time.Now())
		in.ConfigRecords, in.Sources.Config = l.loadConfigDocument()
		return gctx.Err()
	})
	g.Go(func() error {
		defer l.observe(SourceRuntime, time.Now())
		in.Runtime, in.Sources.Runtime = l.loadRuntime(gctx)
		return gctx.Err()
	})
	g.Go(func() error {
		defer l.observe(SourceLegacy, time.Now())
		in.Legacy, in.Sources.Fallback = l.loadLegacy()
		return gctx.Err()
	})
	g.Go(func() error {
		defer l.observe(SourceWorkspace, time.Now())
		var err error
		in.FreeTextRecords, in.Sources.Workspace, err = l.loadWorkspace(gctx)
		return err
	})
	g.Go(func() error {
		defer l.observe(SourceDatabase, time.Now())
		in.PersistedAgents, in.Sources.Database = l.loadPersisted(gctx)
		return gctx.Err()
	})

	if err := g.Wait(); err != nil {
		return hierarchy.Input{}, err
	}
	if err := ctx.Err(); err != nil {
		return hierarchy.Input{}, err
	}

	// 仅当运行时不可用时才真正使用旧版配置
	if !in.Sources.Runtime.Available {
		in.Runtime = nil
	}
	in.Sources.Fallback.Used = in.Sources.Fallback.Available && !in.Sources.Runtime.Available

	l.logger.Debug("sources loaded",
		zap.Bool("config", in.Sources.Config.Available),
		zap.Bool("runtime", in.Sources.Runtime.Available),
		zap.Bool("legacy", in.Sources.Fallback.Available),
		zap.Bool("legacy_used", in.Sources.Fallback.Used),
		zap.Int("documents", in.Sources.Workspace.Count),
		zap.Int("persisted", len(in.PersistedAgents)),
	)
	return in, nil
}

func (l *SourceLoader) observe(source string, start time.Time) {
	if l.metrics != nil {
		l.metrics.RecordSourceLoad(source, time.Since(start))
	}
}

func (l *SourceLoader) unavailable(source, path string, err error) {
	l.logger.Warn("source unavailable",
		zap.String("source", source),
		zap.String("path", path),
		zap.Error(err),
	)
}

func (l *SourceLoader) loadConfigDocument() ([]hierarchy.AgentRelationshipRecord, hierarchy.SourceState) {
	path := l.cfg.ConfigPath
	state := hierarchy.SourceState{Path: path}
	if path == "" {
		state.Error = errNotConfigured
		return nil, state
	}

	data, err := os.ReadFile(path)
	if err == nil {
		var doc extract.ConfigDocument
		if doc, err = extract.ParseConfigDocument(data); err == nil {
			records := extract.ExtractConfigDocument(doc)
			state.Available = true
			state.Count = len(records)
			return records, state
		}
	}
	l.unavailable(SourceConfig, path, err)
	state.Error = err.Error()
	return nil, state
}

func (l *SourceLoader) loadRuntime(ctx context.Context) (*hierarchy.Overlay, hierarchy.RuntimeSourceState) {
	state := hierarchy.RuntimeSourceState{Command: l.cfg.RuntimeCommand}
	if strings.TrimSpace(l.cfg.RuntimeCommand) == "" || l.runner == nil {
		state.Error = errNotConfigured
		return nil, state
	}

	runCtx := ctx
	if l.cfg.RuntimeTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, l.cfg.RuntimeTimeout)
		defer cancel()
	}

	out, err := l.runner.Run(runCtx, l.cfg.RuntimeCommand)
	if err == nil {
		var agents []extract.RuntimeAgent
		if agents, err = extract.ParseRuntimeSnapshot(out); err == nil {
			state.Available = true
			return extract.ExtractRuntimeOverlay(agents), state
		}
	}
	l.unavailable(SourceRuntime, l.cfg.RuntimeCommand, err)
	state.Error = err.Error()
	return nil, state
}

func (l *SourceLoader) loadLegacy() (*hierarchy.Overlay, hierarchy.FallbackSourceState) {
	path := l.cfg.LegacyPath
	state := hierarchy.FallbackSourceState{Path: path}
	if path == "" {
		state.Error = errNotConfigured
		return nil, state
	}

	data, err := os.ReadFile(path)
	if err == nil {
		var cfg extract.LegacyConfig
		if cfg, err = extract.ParseLegacyConfig(data); err == nil {
			state.Available = true
			return extract.ExtractLegacyOverlay(cfg), state
		}
	}
	l.unavailable(SourceLegacy, path, err)
	state.Error = err.Error()
	return nil, state
}

// loadWorkspace walks the workspace root for documents whose base name
// matches one of the configured patterns. Hidden directories are skipped.
func (l *SourceLoader) loadWorkspace(ctx context.Context) ([]hierarchy.AgentRelationshipRecord, hierarchy.SourceState, error) {
	root := l.cfg.WorkspaceRoot
	state := hierarchy.SourceState{Path: root}
	if root == "" {
		state.Error = errNotConfigured
		return nil, state, nil
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		if err == nil {
			err = fmt.Errorf("%s is not a directory", root)
		}
		l.unavailable(SourceWorkspace, root, err)
		state.Error = err.Error()
		return nil, state, nil
	}

	var docs []extract.Document
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// 不可读的子目录直接跳过
			if d != nil && d.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !l.matchesDocument(d.Name()) {
			return nil
		}
		if doc, ok := l.readDocument(path, d); ok {
			docs = append(docs, doc)
		}
		return nil
	})
	if walkErr != nil {
		if ctx.Err() != nil {
			return nil, state, ctx.Err()
		}
		l.unavailable(SourceWorkspace, root, walkErr)
		state.Error = walkErr.Error()
		return nil, state, nil
	}

	state.Available = true
	state.Count = len(docs)
	return extract.ExtractFreeText(docs), state, nil
}

func (l *SourceLoader) matchesDocument(name string) bool {
	for _, pattern := range l.cfg.DocumentPatterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func (l *SourceLoader) readDocument(path string, d fs.DirEntry) (extract.Document, bool) {
	info, err := d.Info()
	if err != nil || !info.Mode().IsRegular() {
		return extract.Document{}, false
	}
	if limit := l.cfg.MaxDocumentBytes; limit > 0 && info.Size() > limit {
		l.logger.Debug("skipping oversized document", zap.String("path", path), zap.Int64("size", info.Size()))
		return extract.Document{}, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		l.logger.Debug("skipping unreadable document", zap.String("path", path), zap.Error(err))
		return extract.Document{}, false
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return extract.Document{}, false
	}
	return extract.Document{Path: path, Content: string(data)}, true
}

func (l *SourceLoader) loadPersisted(ctx context.Context) ([]hierarchy.PersistedAgent, hierarchy.SourceState) {
	var state hierarchy.SourceState
	if l.agents == nil {
		state.Error = errNotConfigured
		return nil, state
	}
	agents, err := l.agents.ListAgents(ctx)
	if err != nil {
		l.unavailable(SourceDatabase, "", err)
		state.Error = err.Error()
		return nil, state
	}
	state.Available = true
	state.Count = len(agents)
	return agents, state
}
