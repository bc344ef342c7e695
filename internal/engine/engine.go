// Package engine wires the blackboard, projector, agent registry, and
// conductor into a single entry point for running multi-agent tasks.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/hebbzhu/baton/internal/agent"
	"github.com/hebbzhu/baton/internal/conductor"
	"github.com/hebbzhu/baton/internal/config"
	"github.com/hebbzhu/baton/internal/llm"
	"github.com/hebbzhu/baton/internal/memory"
	"github.com/hebbzhu/baton/internal/observability"
	"github.com/hebbzhu/baton/pkg/blackboard"
)

// Options customizes engine construction. Zero values build the real
// thing; the client and store fields are seams for tests.
type Options struct {
	CustomAgents    []agent.Capability
	AgentClient     llm.Client
	ConductorClient llm.Client
	Store           blackboard.Store
}

// Engine owns one wired instance of the system. Construct once, run tasks
// through it; each Run gets fresh observability.
type Engine struct {
	cfg             *config.Config
	agentClient     llm.Client
	conductorClient llm.Client
	store           blackboard.Store
	board           *blackboard.Board
	projector       *memory.Projector
	registry        *agent.Registry

	// Observability from the most recent Run.
	metrics  *observability.Collector
	recorder *observability.Recorder
}

// New builds an engine from the configuration: LLM clients for the agent
// and conductor models, the configured store backend, the board, the
// projector with an LLM summarizer, and a registry holding the builtin
// agents plus any custom ones.
func New(cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	agentClient := opts.AgentClient
	if agentClient == nil {
		agentClient = llm.NewAnthropicClient(llm.Options{
			Model:       cfg.LLM.Model,
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			MaxTokens:   *cfg.LLM.MaxTokens,
			Temperature: *cfg.LLM.Temperature,
		})
	}
	conductorClient := opts.ConductorClient
	if conductorClient == nil {
		// Routing decisions should be near-deterministic.
		conductorClient = llm.NewAnthropicClient(llm.Options{
			Model:       cfg.LLM.ConductorModel,
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Temperature: 0.1,
		})
	}

	store := opts.Store
	if store == nil {
		var err error
		store, err = buildStore(cfg)
		if err != nil {
			return nil, err
		}
	}

	board := blackboard.NewBoard(store)
	board.SetConsensusMaxIterations(*cfg.Conductor.ConsensusMaxIterations)

	registry := agent.NewRegistry()
	for _, capability := range agent.Builtins(agentClient) {
		if err := registry.Register(capability); err != nil {
			return nil, err
		}
	}
	for _, capability := range opts.CustomAgents {
		if err := registry.Register(capability); err != nil {
			return nil, err
		}
	}

	e := &Engine{
		cfg:             cfg,
		agentClient:     agentClient,
		conductorClient: conductorClient,
		store:           store,
		board:           board,
		projector:       memory.NewProjector(board, memory.LLMSummarizer(agentClient)),
		registry:        registry,
	}

	slog.Info("engine initialized",
		"agents", registry.Len(), "backend", cfg.Blackboard.Backend)
	return e, nil
}

func buildStore(cfg *config.Config) (blackboard.Store, error) {
	switch cfg.Blackboard.Backend {
	case config.BackendRedis:
		redisOpts, err := redis.ParseURL(cfg.Blackboard.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		store, err := blackboard.NewRedisStore(redisOpts, cfg.Blackboard.Namespace)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return store, nil
	default:
		return blackboard.NewMemoryStore(), nil
	}
}

// RunOptions parameterizes a single task run.
type RunOptions struct {
	Objective        string
	Constraints      []string
	MaxSteps         int    // 0 takes the configured budget
	DisableRecording bool   // Recording is on unless switched off
	ExportDir        string // When set, metrics/recording/result JSON land here
}

// UsageTotals is one client's accumulated token counts.
type UsageTotals struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// TokenUsage breaks a run's token spend down by model role.
type TokenUsage struct {
	Conductor UsageTotals `json:"conductor"`
	Agents    UsageTotals `json:"agents"`
	Total     int         `json:"total"`
}

// Result is the outcome of one task run.
type Result struct {
	TaskID     string                  `json:"task_id"`
	Status     blackboard.GlobalStatus `json:"status"`
	Objective  string                  `json:"objective"`
	Workspace  map[string]any          `json:"workspace"`
	Steps      int                     `json:"steps"`
	TokenUsage TokenUsage              `json:"token_usage"`
	Metrics    *observability.Report   `json:"metrics"`
}

// Run executes one task end to end and returns its result. Only
// infrastructure failures (store, export) error out; task-level failures
// are reported through the result status.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	if opts.Objective == "" {
		return nil, fmt.Errorf("objective is required")
	}

	e.metrics = observability.NewCollector()
	e.recorder = nil
	if !opts.DisableRecording {
		e.recorder = observability.NewRecorder()
	}

	e.agentClient.ResetUsage()
	e.conductorClient.ResetUsage()

	state, err := e.board.Initialize(ctx, opts.Objective, opts.Constraints)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize task: %w", err)
	}
	slog.Info("task started", "task_id", state.TaskID, "objective", opts.Objective)
	if e.recorder != nil {
		e.recorder.RecordTaskStart(state.TaskID, state.Objective)
	}

	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = *e.cfg.Conductor.MaxSteps
	}
	cond := conductor.New(e.board, e.conductorClient, e.projector, e.registry, conductor.Options{
		MaxSteps: maxSteps,
		Metrics:  e.metrics,
		Recorder: e.recorder,
	})

	finalStatus, err := cond.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("conductor loop failed: %w", err)
	}
	e.metrics.MarkTaskComplete()

	conductorUsage := e.conductorClient.TotalUsage()
	agentUsage := e.agentClient.TotalUsage()
	total := conductorUsage.InputTokens + conductorUsage.OutputTokens +
		agentUsage.InputTokens + agentUsage.OutputTokens

	if e.recorder != nil {
		e.recorder.RecordTaskEnd(string(finalStatus), map[string]any{
			"steps":        cond.StepCount(),
			"total_tokens": total,
		})
	}

	final, err := e.board.State()
	if err != nil {
		return nil, err
	}
	workspace := make(map[string]any, len(final.Workspace))
	for k, v := range final.Workspace {
		workspace[k] = v
	}

	result := &Result{
		TaskID:    state.TaskID,
		Status:    finalStatus,
		Objective: opts.Objective,
		Workspace: workspace,
		Steps:     cond.StepCount(),
		TokenUsage: TokenUsage{
			Conductor: UsageTotals{Input: conductorUsage.InputTokens, Output: conductorUsage.OutputTokens},
			Agents:    UsageTotals{Input: agentUsage.InputTokens, Output: agentUsage.OutputTokens},
			Total:     total,
		},
		Metrics: e.metrics.Report(),
	}

	if opts.ExportDir != "" {
		if err := e.export(opts.ExportDir, result); err != nil {
			return nil, err
		}
	}

	slog.Info("task finished",
		"status", finalStatus, "steps", result.Steps, "total_tokens", total)
	return result, nil
}

// export writes the metrics, recording, and result documents for one run
// into dir, named by task id.
func (e *Engine) export(dir string, result *Result) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create export dir: %w", err)
	}

	metricsPath := filepath.Join(dir, result.TaskID+"_metrics.json")
	if err := writeJSON(metricsPath, result.Metrics); err != nil {
		return err
	}
	slog.Info("metrics exported", "path", metricsPath)

	if e.recorder != nil {
		if err := e.recorder.ExportJSON(filepath.Join(dir, result.TaskID+"_recording.json")); err != nil {
			return err
		}
	}

	resultPath := filepath.Join(dir, result.TaskID+"_result.json")
	if err := writeJSON(resultPath, result); err != nil {
		return err
	}
	slog.Info("result exported", "path", resultPath)
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Board exposes the blackboard for inspection and custom tooling.
func (e *Engine) Board() *blackboard.Board { return e.board }

// Registry exposes the agent registry.
func (e *Engine) Registry() *agent.Registry { return e.registry }

// Metrics returns the collector from the most recent Run, or nil.
func (e *Engine) Metrics() *observability.Collector { return e.metrics }

// Recorder returns the recorder from the most recent Run, or nil when
// recording was disabled.
func (e *Engine) Recorder() *observability.Recorder { return e.recorder }

// Close releases the underlying store.
func (e *Engine) Close() error {
	return e.store.Close()
}
