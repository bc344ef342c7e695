package observability

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType categorizes recordable events.
type EventType string

const (
	EventTaskStart         EventType = "task_start"
	EventTaskEnd           EventType = "task_end"
	EventStatusChange      EventType = "status_change"
	EventConductorThink    EventType = "conductor_think"
	EventConductorDecide   EventType = "conductor_decide"
	EventAgentStart        EventType = "agent_start"
	EventAgentEnd          EventType = "agent_end"
	EventWorkspaceWrite    EventType = "workspace_write"
	EventWorkspaceDelete   EventType = "workspace_delete"
	EventHypothesisPropose EventType = "hypothesis_propose"
	EventHypothesisResolve EventType = "hypothesis_resolve"
	EventConsensusStart    EventType = "consensus_start"
	EventConsensusReview   EventType = "consensus_review"
	EventConsensusEnd      EventType = "consensus_end"
	EventMemoryCompress    EventType = "memory_compress"
	EventLLMCall           EventType = "llm_call"
	EventError             EventType = "error"
)

// Event is a single entry in the recorded stream.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Step      int            `json:"step"`
	Data      map[string]any `json:"data"`
}

// Recorder captures a time-ordered event stream describing one task run,
// for post-hoc debugging and replay.
type Recorder struct {
	mu          sync.Mutex
	events      []Event
	currentStep int
	taskID      string
	objective   string
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends an event stamped with the current step.
func (r *Recorder) Record(eventType EventType, data map[string]any) Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	if data == nil {
		data = map[string]any{}
	}
	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Step:      r.currentStep,
		Data:      data,
	}
	r.events = append(r.events, event)
	return event
}

// SetStep updates the step counter stamped onto subsequent events.
func (r *Recorder) SetStep(step int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentStep = step
}

func (r *Recorder) RecordTaskStart(taskID, objective string) {
	r.mu.Lock()
	r.taskID = taskID
	r.objective = objective
	r.mu.Unlock()

	r.Record(EventTaskStart, map[string]any{
		"task_id":   taskID,
		"objective": objective,
	})
}

func (r *Recorder) RecordTaskEnd(status string, summary map[string]any) {
	data := map[string]any{"status": status}
	for k, v := range summary {
		data[k] = v
	}
	r.Record(EventTaskEnd, data)
}

func (r *Recorder) RecordStatusChange(from, to, reason string) {
	r.Record(EventStatusChange, map[string]any{
		"from":   from,
		"to":     to,
		"reason": reason,
	})
}

func (r *Recorder) RecordConductorThink(dashboard string) {
	r.Record(EventConductorThink, map[string]any{
		"dashboard": dashboard,
	})
}

func (r *Recorder) RecordConductorDecide(action, agentName, reasoning string) {
	r.Record(EventConductorDecide, map[string]any{
		"action":     action,
		"agent_name": agentName,
		"reasoning":  reasoning,
	})
}

func (r *Recorder) RecordAgentStart(agentName string, contextFields []string) {
	if contextFields == nil {
		contextFields = []string{}
	}
	r.Record(EventAgentStart, map[string]any{
		"agent_name":     agentName,
		"context_fields": contextFields,
	})
}

func (r *Recorder) RecordAgentEnd(agentName, status string, latency time.Duration, inputTokens, outputTokens int, errText string) {
	r.Record(EventAgentEnd, map[string]any{
		"agent_name":    agentName,
		"status":        status,
		"latency_s":     roundTo(latency.Seconds(), 3),
		"input_tokens":  inputTokens,
		"output_tokens": outputTokens,
		"error":         errText,
	})
}

// RecordWorkspaceWrite keeps only a bounded preview of the written value.
func (r *Recorder) RecordWorkspaceWrite(field, preview string) {
	r.Record(EventWorkspaceWrite, map[string]any{
		"field":   field,
		"preview": clip(preview, 200),
	})
}

func (r *Recorder) RecordConsensusStart(targetField string) {
	r.Record(EventConsensusStart, map[string]any{
		"target_field": targetField,
	})
}

func (r *Recorder) RecordConsensusReview(reviewer, verdict, critique string) {
	r.Record(EventConsensusReview, map[string]any{
		"reviewer": reviewer,
		"verdict":  verdict,
		"critique": clip(critique, 300),
	})
}

func (r *Recorder) RecordConsensusEnd(targetField, outcome string, iterations int) {
	r.Record(EventConsensusEnd, map[string]any{
		"target_field": targetField,
		"outcome":      outcome,
		"iterations":   iterations,
	})
}

func (r *Recorder) RecordMemoryCompress(field, summary string) {
	r.Record(EventMemoryCompress, map[string]any{
		"field":   field,
		"summary": clip(summary, 200),
	})
}

func (r *Recorder) RecordLLMCall(caller, model string, inputTokens, outputTokens int, latency time.Duration) {
	r.Record(EventLLMCall, map[string]any{
		"caller":        caller,
		"model":         model,
		"input_tokens":  inputTokens,
		"output_tokens": outputTokens,
		"latency_s":     roundTo(latency.Seconds(), 3),
	})
}

func (r *Recorder) RecordError(source, errText string) {
	r.Record(EventError, map[string]any{
		"source": source,
		"error":  errText,
	})
}

// Events returns a copy of the recorded stream.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// EventCount reports how many events have been recorded.
func (r *Recorder) EventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// EventsByType filters the stream by event type.
func (r *Recorder) EventsByType(eventType EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// EventsInStep returns all events recorded during one conductor step.
func (r *Recorder) EventsInStep(step int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for _, e := range r.events {
		if e.Step == step {
			out = append(out, e)
		}
	}
	return out
}

// Recording is the serialized form of a full event stream.
type Recording struct {
	TaskID     string  `json:"task_id"`
	Objective  string  `json:"objective"`
	EventCount int     `json:"event_count"`
	Events     []Event `json:"events"`
}

// Recording exports the stream with its task metadata.
func (r *Recorder) Recording() *Recording {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := append([]Event(nil), r.events...)
	if events == nil {
		events = []Event{}
	}
	return &Recording{
		TaskID:     r.taskID,
		Objective:  r.objective,
		EventCount: len(events),
		Events:     events,
	}
}

// ExportJSON writes the recording to path, creating parent directories.
func (r *Recorder) ExportJSON(path string) error {
	data, err := json.MarshalIndent(r.Recording(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal recording: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create recording directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write recording: %w", err)
	}

	slog.Info("recording exported", "path", path, "events", r.EventCount())
	return nil
}

// LoadRecording reads a previously exported recording from path.
func LoadRecording(path string) (*Recorder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recording: %w", err)
	}

	var rec Recording
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse recording: %w", err)
	}

	r := &Recorder{
		taskID:    rec.TaskID,
		objective: rec.Objective,
		events:    rec.Events,
	}
	for _, e := range rec.Events {
		if e.Step > r.currentStep {
			r.currentStep = e.Step
		}
	}
	return r, nil
}

// TimelineItem is the simplified per-event view for visualization.
type TimelineItem struct {
	Step      int       `json:"step"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Summary   string    `json:"summary"`
}

// Timeline renders one summary line per event.
func (r *Recorder) Timeline() []TimelineItem {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := make([]TimelineItem, 0, len(r.events))
	for _, e := range r.events {
		items = append(items, TimelineItem{
			Step:      e.Step,
			Timestamp: e.Timestamp,
			Type:      e.Type,
			Summary:   eventSummary(e),
		})
	}
	return items
}

func eventSummary(e Event) string {
	d := e.Data
	switch e.Type {
	case EventTaskStart:
		return fmt.Sprintf("Task started: %s", clip(dataString(d, "objective"), 60))
	case EventTaskEnd:
		return fmt.Sprintf("Task ended: %s", orDefault(dataString(d, "status"), "unknown"))
	case EventStatusChange:
		return fmt.Sprintf("Status: %s -> %s", orDefault(dataString(d, "from"), "?"), orDefault(dataString(d, "to"), "?"))
	case EventConductorDecide:
		summary := fmt.Sprintf("Conductor -> %s", orDefault(dataString(d, "action"), "?"))
		if agent := dataString(d, "agent_name"); agent != "" {
			summary += fmt.Sprintf(" (%s)", agent)
		}
		return summary
	case EventAgentStart:
		return fmt.Sprintf("Agent started: %s", orDefault(dataString(d, "agent_name"), "?"))
	case EventAgentEnd:
		return fmt.Sprintf("Agent finished: %s (%s, %.1fs)",
			orDefault(dataString(d, "agent_name"), "?"),
			orDefault(dataString(d, "status"), "?"),
			dataFloat(d, "latency_s"))
	case EventWorkspaceWrite:
		return fmt.Sprintf("Workspace write: %s", orDefault(dataString(d, "field"), "?"))
	case EventConsensusReview:
		return fmt.Sprintf("Review by %s: %s",
			orDefault(dataString(d, "reviewer"), "?"),
			orDefault(dataString(d, "verdict"), "?"))
	case EventConsensusEnd:
		return fmt.Sprintf("Consensus %s for %s",
			orDefault(dataString(d, "outcome"), "?"),
			orDefault(dataString(d, "target_field"), "?"))
	case EventMemoryCompress:
		return fmt.Sprintf("Memory compressed: %s", orDefault(dataString(d, "field"), "?"))
	case EventError:
		return fmt.Sprintf("Error in %s: %s",
			orDefault(dataString(d, "source"), "?"),
			clip(dataString(d, "error"), 60))
	default:
		return string(e.Type)
	}
}

func dataString(d map[string]any, key string) string {
	s, _ := d[key].(string)
	return s
}

// dataFloat tolerates both in-memory ints and JSON-decoded float64s.
func dataFloat(d map[string]any, key string) float64 {
	switch v := d[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
