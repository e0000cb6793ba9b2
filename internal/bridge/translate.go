package bridge

import (
	"context"
	"strconv"

	acp "github.com/coder/acp-go-sdk"

	"github.com/softkr/zed-claude-acp/internal/i18n"
	"github.com/softkr/zed-claude-acp/internal/logging"
	"github.com/softkr/zed-claude-acp/internal/truncate"
	"github.com/softkr/zed-claude-acp/internal/upstream"
)

// UpdateSender is the outbound side channel for session updates. The ACP
// agent-side connection satisfies it; tests substitute a recorder.
type UpdateSender interface {
	SessionUpdate(ctx context.Context, notification acp.SessionNotification) error
}

// StreamTranslator drains one upstream message sequence for a session and
// maps each message variant to zero or more protocol updates.
type StreamTranslator struct {
	sender         UpdateSender
	buffer         *TextBufferer
	loc            *i18n.Localizer
	maxOutputBytes int
	logger         logging.Logger
}

// NewStreamTranslator wires a translator.
func NewStreamTranslator(sender UpdateSender, buffer *TextBufferer, loc *i18n.Localizer, maxOutputBytes int, logger logging.Logger) *StreamTranslator {
	return &StreamTranslator{
		sender:         sender,
		buffer:         buffer,
		loc:            loc,
		maxOutputBytes: maxOutputBytes,
		logger:         logging.OrNop(logger),
	}
}

// Drain consumes the query sequentially. The cancellation signal is checked
// before each element; once it fires, no further updates are emitted.
func (t *StreamTranslator) Drain(ctx context.Context, session *Session, query *upstream.Query) {
	for {
		if query.Cancelled() || ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-query.Messages():
			if !ok {
				return
			}
			session.RecordMessage()
			t.handle(ctx, session, msg)
		}
	}
}

func (t *StreamTranslator) handle(ctx context.Context, session *Session, msg upstream.Message) {
	switch m := msg.(type) {
	case upstream.SystemMessage:
		session.SetConversationID(m.ConversationID)

	case upstream.AssistantMessage:
		session.SetConversationID(m.ConversationID)
		t.handleAssistant(ctx, session, m)

	case upstream.UserMessage:
		t.handleToolResult(ctx, session.ID, m)

	case upstream.ResultMessage:
		session.SetConversationID(m.ConversationID)

	case upstream.ToolUseStartMessage:
		t.sendToolStart(ctx, session.ID, m.ToolUseID, m.ToolName, m.Input)

	case upstream.ToolOutputMessage:
		t.sendToolFinish(ctx, session.ID, m.ToolUseID, acp.ToolCallStatusCompleted, m.Output)

	case upstream.ToolErrorMessage:
		t.sendToolFinish(ctx, session.ID, m.ToolUseID, acp.ToolCallStatusFailed, m.Error)

	case upstream.StreamEventMessage:
		switch m.Event {
		case upstream.EventContentBlockStart, upstream.EventContentBlockDelta:
			t.buffer.Append(session.ID, m.Text)
		case upstream.EventContentBlockStop:
			// boundary marker only
		}

	case upstream.UnknownMessage:
		t.logger.Debug("ignoring upstream message of unknown kind %q", m.RawKind)

	default:
		t.logger.Debug("ignoring unhandled upstream message kind %q", msg.Kind())
	}
}

func (t *StreamTranslator) handleAssistant(ctx context.Context, session *Session, msg upstream.AssistantMessage) {
	for _, block := range msg.Blocks {
		switch block.Type {
		case "text":
			t.buffer.Append(session.ID, block.Text)
		case "thinking":
			// internal reasoning stays off the transcript
		case "tool_use":
			t.sendToolStart(ctx, session.ID, block.ToolUseID, block.ToolName, block.ToolInput)
			if isTaskListTool(block.ToolName) {
				if report := renderTaskReport(t.loc, parseTaskItems(block.ToolInput)); report != "" {
					t.sendUpdate(ctx, session.ID, acp.UpdateAgentMessageText(report))
				}
			}
		}
	}
}

func (t *StreamTranslator) handleToolResult(ctx context.Context, sessionID string, msg upstream.UserMessage) {
	if msg.ToolUseID == "" {
		return
	}
	status := acp.ToolCallStatusCompleted
	if msg.IsError {
		status = acp.ToolCallStatusFailed
	}
	t.sendToolFinish(ctx, sessionID, msg.ToolUseID, status, msg.Text)
}

func (t *StreamTranslator) sendToolStart(ctx context.Context, sessionID, toolUseID, toolName string, input map[string]any) {
	// Flush pending text first so the transcript keeps arrival order.
	t.buffer.Flush(sessionID)

	opts := []acp.ToolCallStartOpt{
		acp.WithStartKind(toolKindForName(toolName)),
		acp.WithStartStatus(acp.ToolCallStatusPending),
	}
	if len(input) > 0 {
		opts = append(opts, acp.WithStartRawInput(input))
	}
	update := acp.StartToolCall(acp.ToolCallId(toolUseID), toolTitle(toolName, input), opts...)
	t.sendUpdate(ctx, sessionID, update)
}

func (t *StreamTranslator) sendToolFinish(ctx context.Context, sessionID, toolUseID string, status acp.ToolCallStatus, payload string) {
	t.buffer.Flush(sessionID)

	capped := t.capOutput(payload)
	opts := []acp.ToolCallUpdateOpt{acp.WithUpdateStatus(status)}
	if capped != "" {
		opts = append(opts, acp.WithUpdateContent([]acp.ToolCallContent{acp.ToolContent(acp.TextBlock(capped))}))
	}
	if payload != "" {
		opts = append(opts, acp.WithUpdateRawOutput(map[string]any{"output": capped}))
	}
	t.sendUpdate(ctx, sessionID, acp.UpdateToolCall(acp.ToolCallId(toolUseID), opts...))
}

// SendText emits one agent text chunk; the bufferer's flush path lands here.
func (t *StreamTranslator) SendText(ctx context.Context, sessionID, text string) {
	if text == "" {
		return
	}
	t.sendUpdate(ctx, sessionID, acp.UpdateAgentMessageText(text))
}

func (t *StreamTranslator) sendUpdate(ctx context.Context, sessionID string, update acp.SessionUpdate) {
	err := t.sender.SessionUpdate(ctx, acp.SessionNotification{
		SessionId: acp.SessionId(sessionID),
		Update:    update,
	})
	if err != nil {
		t.logger.Warn("session update failed for %s: %v", sessionID, err)
	}
}

func (t *StreamTranslator) capOutput(text string) string {
	return truncate.Cap(text, t.maxOutputBytes, func(omitted int) string {
		return t.loc.Render(i18n.MsgTruncationNote, map[string]string{"bytes": strconv.Itoa(omitted)})
	})
}

// toolTitle builds a human-readable tool-call title from the name and the
// most identifying input field.
func toolTitle(name string, input map[string]any) string {
	if name == "" {
		name = "tool"
	}
	if cmd := stringParam(input, "command"); cmd != "" {
		return name + ": " + cmd
	}
	for _, key := range []string{"file_path", "path", "url", "pattern", "query"} {
		if value := stringParam(input, key); value != "" {
			return name + ": " + value
		}
	}
	return name
}
