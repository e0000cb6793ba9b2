package upstream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLineSystem(t *testing.T) {
	msg, err := ParseLine([]byte(`{"type":"system","subtype":"init","session_id":"abc-123","message":{"model":"claude-sonnet"}}`))
	require.NoError(t, err)

	system, ok := msg.(SystemMessage)
	require.True(t, ok)
	require.Equal(t, "init", system.Subtype)
	require.Equal(t, "abc-123", system.ConversationID)
	require.Equal(t, "claude-sonnet", system.Model)
}

func TestParseLineAssistantBlocks(t *testing.T) {
	line := `{"type":"assistant","session_id":"abc","message":{"content":[` +
		`{"type":"text","text":"hello"},` +
		`{"type":"thinking","thinking":"hmm"},` +
		`{"type":"tool_use","id":"tool-1","name":"ReadFile","input":{"file_path":"/tmp/a"}}]}}`
	msg, err := ParseLine([]byte(line))
	require.NoError(t, err)

	assistant, ok := msg.(AssistantMessage)
	require.True(t, ok)
	require.Len(t, assistant.Blocks, 3)
	require.Equal(t, "hello", assistant.Blocks[0].Text)
	require.Equal(t, "hmm", assistant.Blocks[1].Thinking)
	require.Equal(t, "tool-1", assistant.Blocks[2].ToolUseID)
	require.Equal(t, "ReadFile", assistant.Blocks[2].ToolName)
	require.Equal(t, "/tmp/a", assistant.Blocks[2].ToolInput["file_path"])
}

func TestParseLineUserToolResult(t *testing.T) {
	line := `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"tool-1","content":"file contents","is_error":false}]}}`
	msg, err := ParseLine([]byte(line))
	require.NoError(t, err)

	user, ok := msg.(UserMessage)
	require.True(t, ok)
	require.Equal(t, "tool-1", user.ToolUseID)
	require.Equal(t, "file contents", user.Text)
	require.False(t, user.IsError)
}

func TestParseLineUserToolResultBlockArray(t *testing.T) {
	line := `{"type":"user","message":{"content":[{"type":"tool_result","tool_use_id":"t2","is_error":true,` +
		`"content":[{"type":"text","text":"line one"},{"type":"text","text":"line two"}]}]}}`
	msg, err := ParseLine([]byte(line))
	require.NoError(t, err)

	user := msg.(UserMessage)
	require.True(t, user.IsError)
	require.Equal(t, "line one\nline two", user.Text)
}

func TestParseLineResult(t *testing.T) {
	msg, err := ParseLine([]byte(`{"type":"result","session_id":"abc","is_error":false,"result":"done","num_turns":3,"duration_ms":1200}`))
	require.NoError(t, err)

	result, ok := msg.(ResultMessage)
	require.True(t, ok)
	require.Equal(t, "abc", result.ConversationID)
	require.Equal(t, "done", result.Text)
	require.Equal(t, 3, result.NumTurns)
	require.EqualValues(t, 1200, result.DurationMS)
}

func TestParseLineToolLifecycle(t *testing.T) {
	msg, err := ParseLine([]byte(`{"type":"tool_use_start","tool_use_id":"t1","tool_name":"Bash","input":{"command":"ls"}}`))
	require.NoError(t, err)
	start := msg.(ToolUseStartMessage)
	require.Equal(t, "Bash", start.ToolName)
	require.Equal(t, "ls", start.Input["command"])

	msg, err = ParseLine([]byte(`{"type":"tool_use_output","tool_use_id":"t1","output":"a.txt"}`))
	require.NoError(t, err)
	require.Equal(t, "a.txt", msg.(ToolOutputMessage).Output)

	msg, err = ParseLine([]byte(`{"type":"tool_use_error","tool_use_id":"t1","error":"permission denied"}`))
	require.NoError(t, err)
	require.Equal(t, "permission denied", msg.(ToolErrorMessage).Error)
}

func TestParseLineStreamEvents(t *testing.T) {
	msg, err := ParseLine([]byte(`{"type":"stream_event","event":{"type":"content_block_start","content_block":{"type":"text","text":"He"}}}`))
	require.NoError(t, err)
	event := msg.(StreamEventMessage)
	require.Equal(t, EventContentBlockStart, event.Event)
	require.Equal(t, "He", event.Text)

	msg, err = ParseLine([]byte(`{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"llo"}}}`))
	require.NoError(t, err)
	event = msg.(StreamEventMessage)
	require.Equal(t, EventContentBlockDelta, event.Event)
	require.Equal(t, "llo", event.Text)

	msg, err = ParseLine([]byte(`{"type":"stream_event","event":{"type":"content_block_stop"}}`))
	require.NoError(t, err)
	require.Equal(t, EventContentBlockStop, msg.(StreamEventMessage).Event)
}

func TestParseLineUnknownKind(t *testing.T) {
	msg, err := ParseLine([]byte(`{"type":"telemetry","payload":{"x":1}}`))
	require.NoError(t, err)

	unknown, ok := msg.(UnknownMessage)
	require.True(t, ok)
	require.Equal(t, "telemetry", unknown.RawKind)
	require.NotEmpty(t, unknown.Raw)
}

func TestParseLineMalformed(t *testing.T) {
	_, err := ParseLine([]byte(`{not json`))
	require.Error(t, err)
}
