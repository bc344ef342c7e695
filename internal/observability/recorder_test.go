package observability

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderStampsCurrentStep(t *testing.T) {
	r := NewRecorder()

	r.Record(EventTaskStart, nil)
	r.SetStep(3)
	r.Record(EventAgentStart, map[string]any{"agent_name": "planner"})

	events := r.Events()
	require.Len(t, events, 2)
	assert.Equal(t, 0, events[0].Step)
	assert.Equal(t, 3, events[1].Step)
}

func TestRecorderTruncatesPayloads(t *testing.T) {
	r := NewRecorder()

	r.RecordConsensusReview("critic", "REJECTED", strings.Repeat("x", 400))
	r.RecordWorkspaceWrite("code", strings.Repeat("y", 250))
	r.RecordMemoryCompress("research", strings.Repeat("z", 250))

	events := r.Events()
	assert.Len(t, events[0].Data["critique"], 300)
	assert.Len(t, events[1].Data["preview"], 200)
	assert.Len(t, events[2].Data["summary"], 200)
}

func TestRecorderEventsByTypeAndStep(t *testing.T) {
	r := NewRecorder()

	r.SetStep(1)
	r.RecordAgentStart("planner", []string{"objective"})
	r.RecordAgentEnd("planner", "success", time.Second, 10, 5, "")
	r.SetStep(2)
	r.RecordAgentStart("critic", []string{"code"})

	starts := r.EventsByType(EventAgentStart)
	require.Len(t, starts, 2)
	assert.Equal(t, "planner", starts[0].Data["agent_name"])

	stepOne := r.EventsInStep(1)
	assert.Len(t, stepOne, 2)
}

func TestRecorderTimelineSummaries(t *testing.T) {
	r := NewRecorder()

	r.RecordTaskStart("abc123", "Build a small web scraper for release notes pages and archives")
	r.RecordStatusChange("PLANNING", "EXECUTING", "First agent invoked: planner")
	r.RecordConductorDecide("invoke_agent", "planner", "start with a plan")
	r.RecordConductorDecide("complete", "", "all done")
	r.RecordAgentEnd("planner", "success", 1500*time.Millisecond, 10, 5, "")
	r.RecordConsensusEnd("code", "approved_after_revision", 2)
	r.RecordError("conductor", strings.Repeat("boom", 30))

	timeline := r.Timeline()
	require.Len(t, timeline, 7)

	assert.Equal(t, "Task started: Build a small web scraper for release notes pages and archiv", timeline[0].Summary)
	assert.Equal(t, "Status: PLANNING -> EXECUTING", timeline[1].Summary)
	assert.Equal(t, "Conductor -> invoke_agent (planner)", timeline[2].Summary)
	assert.Equal(t, "Conductor -> complete", timeline[3].Summary)
	assert.Equal(t, "Agent finished: planner (success, 1.5s)", timeline[4].Summary)
	assert.Equal(t, "Consensus approved_after_revision for code", timeline[5].Summary)
	assert.True(t, strings.HasPrefix(timeline[6].Summary, "Error in conductor: boom"))
}

func TestRecorderRecordingShape(t *testing.T) {
	r := NewRecorder()
	r.RecordTaskStart("deadbeef0123", "Write docs")
	r.RecordTaskEnd("COMPLETED", map[string]any{"steps": 4})

	rec := r.Recording()
	assert.Equal(t, "deadbeef0123", rec.TaskID)
	assert.Equal(t, "Write docs", rec.Objective)
	assert.Equal(t, 2, rec.EventCount)
	require.Len(t, rec.Events, 2)
	assert.Equal(t, EventTaskEnd, rec.Events[1].Type)
	assert.Equal(t, "COMPLETED", rec.Events[1].Data["status"])
}

func TestRecorderExportAndLoad(t *testing.T) {
	r := NewRecorder()
	r.RecordTaskStart("feedface0456", "Ship it")
	r.SetStep(5)
	r.RecordAgentEnd("writer", "success", 2*time.Second, 100, 40, "")

	path := filepath.Join(t.TempDir(), "exports", "run_recording.json")
	require.NoError(t, r.ExportJSON(path))

	loaded, err := LoadRecording(path)
	require.NoError(t, err)

	assert.Equal(t, 2, loaded.EventCount())
	rec := loaded.Recording()
	assert.Equal(t, "feedface0456", rec.TaskID)
	assert.Equal(t, "Ship it", rec.Objective)
	assert.Equal(t, EventAgentEnd, rec.Events[1].Type)
	assert.Equal(t, 5, rec.Events[1].Step)

	// Loaded recorders resume stamping from the highest recorded step.
	loaded.Record(EventError, map[string]any{"source": "test"})
	events := loaded.Events()
	assert.Equal(t, 5, events[len(events)-1].Step)
}

func TestLoadRecordingMissingFile(t *testing.T) {
	_, err := LoadRecording(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read recording")
}
