// Package upstream talks to the Claude Code CLI. A query yields a lazy,
// finite, non-restartable sequence of typed messages decoded from the CLI's
// stream-json output.
package upstream

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind discriminates the message union.
type Kind string

const (
	KindSystem        Kind = "system"
	KindUser          Kind = "user"
	KindAssistant     Kind = "assistant"
	KindResult        Kind = "result"
	KindToolUseStart  Kind = "tool_use_start"
	KindToolUseOutput Kind = "tool_use_output"
	KindToolUseError  Kind = "tool_use_error"
	KindStreamEvent   Kind = "stream_event"
)

// Message is the closed union of upstream stream messages. Unrecognized
// kinds decode to UnknownMessage so new CLI versions stay non-fatal.
type Message interface {
	Kind() Kind
}

// SystemMessage is session init bookkeeping; it carries the CLI's own
// conversation id used to resume multi-turn context.
type SystemMessage struct {
	Subtype        string
	ConversationID string
	Model          string
}

func (SystemMessage) Kind() Kind { return KindSystem }

// ContentBlock is one element of an assistant message's content array.
type ContentBlock struct {
	Type      string
	Text      string
	Thinking  string
	ToolUseID string
	ToolName  string
	ToolInput map[string]any
}

// AssistantMessage carries model output: text, thinking, and tool
// invocations.
type AssistantMessage struct {
	ConversationID string
	Blocks         []ContentBlock
}

func (AssistantMessage) Kind() Kind { return KindAssistant }

// UserMessage carries a tool result echoed back through the stream.
type UserMessage struct {
	ToolUseID string
	Text      string
	IsError   bool
}

func (UserMessage) Kind() Kind { return KindUser }

// ResultMessage terminates a query.
type ResultMessage struct {
	ConversationID string
	IsError        bool
	Text           string
	NumTurns       int
	DurationMS     int64
}

func (ResultMessage) Kind() Kind { return KindResult }

// ToolUseStartMessage announces a tool invocation before any output.
type ToolUseStartMessage struct {
	ToolUseID string
	ToolName  string
	Input     map[string]any
}

func (ToolUseStartMessage) Kind() Kind { return KindToolUseStart }

// ToolOutputMessage carries a tool's stdout-style payload.
type ToolOutputMessage struct {
	ToolUseID string
	Output    string
}

func (ToolOutputMessage) Kind() Kind { return KindToolUseOutput }

// ToolErrorMessage carries a tool failure payload.
type ToolErrorMessage struct {
	ToolUseID string
	Error     string
}

func (ToolErrorMessage) Kind() Kind { return KindToolUseError }

// StreamEventKind is the sub-protocol discriminator for incremental deltas.
type StreamEventKind string

const (
	EventContentBlockStart StreamEventKind = "content_block_start"
	EventContentBlockDelta StreamEventKind = "content_block_delta"
	EventContentBlockStop  StreamEventKind = "content_block_stop"
)

// StreamEventMessage carries one incremental token event.
type StreamEventMessage struct {
	Event StreamEventKind
	Text  string
}

func (StreamEventMessage) Kind() Kind { return KindStreamEvent }

// UnknownMessage preserves a message of an unrecognized kind.
type UnknownMessage struct {
	RawKind string
	Raw     json.RawMessage
}

func (UnknownMessage) Kind() Kind { return Kind("unknown") }

type rawEnvelope struct {
	Type      string          `json:"type"`
	Subtype   string          `json:"subtype"`
	SessionID string          `json:"session_id"`
	Message   *rawInnerMsg    `json:"message"`
	Event     *rawStreamEvent `json:"event"`
	Result    json.RawMessage `json:"result"`
	IsError   bool            `json:"is_error"`
	NumTurns  int             `json:"num_turns"`
	Duration  int64           `json:"duration_ms"`

	// tool_use_* kinds
	ToolUseID string         `json:"tool_use_id"`
	ToolName  string         `json:"tool_name"`
	Input     map[string]any `json:"input"`
	Output    string         `json:"output"`
	Error     string         `json:"error"`
}

type rawInnerMsg struct {
	Model   string          `json:"model"`
	Content json.RawMessage `json:"content"`
}

type rawContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Thinking  string          `json:"thinking"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     map[string]any  `json:"input"`
	ToolUseID string          `json:"tool_use_id"`
	Content   json.RawMessage `json:"content"`
	IsError   bool            `json:"is_error"`
}

type rawStreamEvent struct {
	Type         string           `json:"type"`
	ContentBlock *rawContentBlock `json:"content_block"`
	Delta        *rawDelta        `json:"delta"`
}

type rawDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ParseLine decodes one newline-delimited stream-json message.
func ParseLine(line []byte) (Message, error) {
	var env rawEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("decode stream message: %w", err)
	}

	switch Kind(env.Type) {
	case KindSystem:
		msg := SystemMessage{Subtype: env.Subtype, ConversationID: env.SessionID}
		if env.Message != nil {
			msg.Model = env.Message.Model
		}
		return msg, nil

	case KindAssistant:
		msg := AssistantMessage{ConversationID: env.SessionID}
		if env.Message != nil {
			msg.Blocks = parseBlocks(env.Message.Content)
		}
		return msg, nil

	case KindUser:
		return parseUser(env), nil

	case KindResult:
		return ResultMessage{
			ConversationID: env.SessionID,
			IsError:        env.IsError,
			Text:           decodeResultText(env.Result),
			NumTurns:       env.NumTurns,
			DurationMS:     env.Duration,
		}, nil

	case KindToolUseStart:
		return ToolUseStartMessage{ToolUseID: env.ToolUseID, ToolName: env.ToolName, Input: env.Input}, nil

	case KindToolUseOutput:
		return ToolOutputMessage{ToolUseID: env.ToolUseID, Output: env.Output}, nil

	case KindToolUseError:
		return ToolErrorMessage{ToolUseID: env.ToolUseID, Error: env.Error}, nil

	case KindStreamEvent:
		return parseStreamEvent(env.Event), nil

	default:
		return UnknownMessage{RawKind: env.Type, Raw: append(json.RawMessage(nil), line...)}, nil
	}
}

func parseBlocks(raw json.RawMessage) []ContentBlock {
	if len(raw) == 0 {
		return nil
	}
	var rawBlocks []rawContentBlock
	if err := json.Unmarshal(raw, &rawBlocks); err != nil {
		// A plain string content is valid for the inner message.
		var text string
		if json.Unmarshal(raw, &text) == nil && text != "" {
			return []ContentBlock{{Type: "text", Text: text}}
		}
		return nil
	}
	blocks := make([]ContentBlock, 0, len(rawBlocks))
	for _, rb := range rawBlocks {
		blocks = append(blocks, ContentBlock{
			Type:      rb.Type,
			Text:      rb.Text,
			Thinking:  rb.Thinking,
			ToolUseID: rb.ID,
			ToolName:  rb.Name,
			ToolInput: rb.Input,
		})
	}
	return blocks
}

func parseUser(env rawEnvelope) UserMessage {
	msg := UserMessage{}
	if env.Message == nil {
		return msg
	}
	var rawBlocks []rawContentBlock
	if err := json.Unmarshal(env.Message.Content, &rawBlocks); err != nil {
		var text string
		if json.Unmarshal(env.Message.Content, &text) == nil {
			msg.Text = text
		}
		return msg
	}
	for _, rb := range rawBlocks {
		if rb.Type != "tool_result" {
			continue
		}
		msg.ToolUseID = rb.ToolUseID
		msg.IsError = rb.IsError
		msg.Text = decodeToolResultContent(rb.Content)
		break
	}
	return msg
}

// decodeToolResultContent accepts both the string form and the block-array
// form the CLI emits for tool_result content.
func decodeToolResultContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var blocks []rawContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var parts []string
	for _, block := range blocks {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func decodeResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var data struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &data); err == nil {
		return data.Text
	}
	return ""
}

func parseStreamEvent(event *rawStreamEvent) Message {
	if event == nil {
		return StreamEventMessage{Event: EventContentBlockStop}
	}
	switch StreamEventKind(event.Type) {
	case EventContentBlockStart:
		msg := StreamEventMessage{Event: EventContentBlockStart}
		if event.ContentBlock != nil && event.ContentBlock.Type == "text" {
			msg.Text = event.ContentBlock.Text
		}
		return msg
	case EventContentBlockDelta:
		msg := StreamEventMessage{Event: EventContentBlockDelta}
		if event.Delta != nil && event.Delta.Type == "text_delta" {
			msg.Text = event.Delta.Text
		}
		return msg
	case EventContentBlockStop:
		return StreamEventMessage{Event: EventContentBlockStop}
	default:
		return UnknownMessage{RawKind: "stream_event/" + event.Type}
	}
}
