package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	acp "github.com/coder/acp-go-sdk"
	"github.com/stretchr/testify/require"

	"github.com/softkr/zed-claude-acp/internal/config"
	"github.com/softkr/zed-claude-acp/internal/permission"
	"github.com/softkr/zed-claude-acp/internal/upstream"
)

type scriptFunc func(ctx context.Context, q *upstream.Query)

// scriptedEngine runs one scripted goroutine per Start call, in order. Calls
// beyond the script list finish immediately with no messages.
type scriptedEngine struct {
	mu       sync.Mutex
	requests []upstream.QueryRequest
	scripts  []scriptFunc
	startErr error
}

func (e *scriptedEngine) Start(ctx context.Context, req upstream.QueryRequest) (*upstream.Query, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	var script scriptFunc
	if len(e.scripts) > 0 {
		script = e.scripts[0]
		e.scripts = e.scripts[1:]
	}
	e.mu.Unlock()

	if e.startErr != nil {
		return nil, e.startErr
	}

	queryCtx, cancel := context.WithCancel(ctx)
	query := upstream.NewQuery(cancel)
	go func() {
		if script != nil {
			script(queryCtx, query)
			return
		}
		query.Finish(nil)
	}()
	return query, nil
}

func (e *scriptedEngine) lastRequest(t *testing.T) upstream.QueryRequest {
	t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	require.NotEmpty(t, e.requests)
	return e.requests[len(e.requests)-1]
}

// waitCancelScript blocks until the query context closes, then finishes with
// the recorded abort reason the way the real engine classifies it.
func waitCancelScript(ctx context.Context, q *upstream.Query) {
	<-ctx.Done()
	if reason := q.CancelReason(); reason != "" {
		q.Finish(&upstream.AbortError{Reason: reason})
		return
	}
	q.Finish(ctx.Err())
}

func feedTextScript(text string) scriptFunc {
	return func(ctx context.Context, q *upstream.Query) {
		q.Feed(ctx, upstream.AssistantMessage{Blocks: []upstream.ContentBlock{{Type: "text", Text: text}}})
		q.Finish(nil)
	}
}

func testSettings() config.Settings {
	return config.Settings{
		DefaultPermissionMode: "default",
		QueryTimeout:          time.Second,
		Locale:                "en",
		AllowBypass:           true,
		FlushWindow:           0,
		FlushThresholdBytes:   4096,
		MaxOutputBytes:        16384,
		IdleTTL:               30 * time.Minute,
	}
}

func newTestAgent(settings config.Settings, engine upstream.Engine) (*Agent, *updateRecorder) {
	rec := &updateRecorder{}
	agent := NewAgent(settings, engine, nil)
	agent.SetUpdateSender(rec)
	return agent, rec
}

func promptBlocks(text string) []acp.ContentBlock {
	return []acp.ContentBlock{acp.TextBlock(text)}
}

func TestPromptUnknownSession(t *testing.T) {
	agent, _ := newTestAgent(testSettings(), &scriptedEngine{})

	_, err := agent.Prompt(context.Background(), acp.PromptRequest{
		SessionId: "no-such-session",
		Prompt:    promptBlocks("hi"),
	})
	require.ErrorContains(t, err, "no-such-session")
}

func TestPromptEndTurn(t *testing.T) {
	engine := &scriptedEngine{scripts: []scriptFunc{feedTextScript("done")}}
	agent, rec := newTestAgent(testSettings(), engine)

	created, err := agent.NewSession(context.Background(), acp.NewSessionRequest{})
	require.NoError(t, err)

	resp, err := agent.Prompt(context.Background(), acp.PromptRequest{
		SessionId: created.SessionId,
		Prompt:    promptBlocks("hello"),
	})
	require.NoError(t, err)
	require.Equal(t, acp.StopReasonEndTurn, resp.StopReason)

	notes := rec.all()
	require.Len(t, notes, 1)
	require.Equal(t, acp.UpdateAgentMessageText("done"), notes[0].Update)
	require.Equal(t, "hello", engine.lastRequest(t).Prompt)
}

func TestPromptAcceptEditsMarker(t *testing.T) {
	engine := &scriptedEngine{scripts: []scriptFunc{feedTextScript("done")}}
	agent, rec := newTestAgent(testSettings(), engine)

	created, err := agent.NewSession(context.Background(), acp.NewSessionRequest{})
	require.NoError(t, err)
	sessionID := string(created.SessionId)

	resp, err := agent.Prompt(context.Background(), acp.PromptRequest{
		SessionId: created.SessionId,
		Prompt:    promptBlocks("[ACP:ACCEPT_EDITS] refactor this"),
	})
	require.NoError(t, err)
	require.Equal(t, acp.StopReasonEndTurn, resp.StopReason)

	// The engine sees the marker-free prompt with the new mode applied.
	req := engine.lastRequest(t)
	require.Equal(t, "refactor this", req.Prompt)
	require.Equal(t, "acceptEdits", req.PermissionMode)

	// The switch is announced in-band before the assistant text.
	notes := rec.all()
	require.Len(t, notes, 2)
	require.Equal(t, acp.UpdateAgentMessageText("Permission mode switched to acceptEdits."), notes[0].Update)
	require.Equal(t, acp.UpdateAgentMessageText("done"), notes[1].Update)

	// The mode persists on the session.
	session, err := agent.Registry().Get(sessionID)
	require.NoError(t, err)
	require.Equal(t, permission.ModeAcceptEdits, session.Mode())

	// A cancel after the query finished is a silent no-op.
	require.NoError(t, agent.Cancel(context.Background(), acp.CancelNotification{SessionId: created.SessionId}))
	require.Len(t, rec.all(), 2)
}

func TestPromptBypassBlockedWhenDisallowed(t *testing.T) {
	settings := testSettings()
	settings.AllowBypass = false
	engine := &scriptedEngine{scripts: []scriptFunc{feedTextScript("done")}}
	agent, rec := newTestAgent(settings, engine)

	created, err := agent.NewSession(context.Background(), acp.NewSessionRequest{})
	require.NoError(t, err)

	_, err = agent.Prompt(context.Background(), acp.PromptRequest{
		SessionId: created.SessionId,
		Prompt:    promptBlocks("[ACP:BYPASS_PERMISSIONS] rm -rf"),
	})
	require.NoError(t, err)

	require.Equal(t, "default", engine.lastRequest(t).PermissionMode)

	notes := rec.all()
	require.NotEmpty(t, notes)
	require.Equal(t, acp.UpdateAgentMessageText("The bypassPermissions mode is not allowed by the current configuration."), notes[0].Update)

	session, err := agent.Registry().Get(string(created.SessionId))
	require.NoError(t, err)
	require.Equal(t, permission.ModeDefault, session.Mode())
}

func TestPromptUserCancel(t *testing.T) {
	engine := &scriptedEngine{scripts: []scriptFunc{waitCancelScript}}
	agent, _ := newTestAgent(testSettings(), engine)

	created, err := agent.NewSession(context.Background(), acp.NewSessionRequest{})
	require.NoError(t, err)
	session, err := agent.Registry().Get(string(created.SessionId))
	require.NoError(t, err)

	done := make(chan acp.PromptResponse, 1)
	go func() {
		resp, perr := agent.Prompt(context.Background(), acp.PromptRequest{
			SessionId: created.SessionId,
			Prompt:    promptBlocks("long task"),
		})
		require.NoError(t, perr)
		done <- resp
	}()

	require.Eventually(t, session.HasActiveQuery, time.Second, time.Millisecond)
	require.NoError(t, agent.Cancel(context.Background(), acp.CancelNotification{SessionId: created.SessionId}))

	select {
	case resp := <-done:
		require.Equal(t, acp.StopReasonCancelled, resp.StopReason)
	case <-time.After(2 * time.Second):
		t.Fatal("prompt did not return after cancel")
	}
	require.False(t, session.HasActiveQuery())
}

func TestPromptSupersedesActiveQuery(t *testing.T) {
	engine := &scriptedEngine{scripts: []scriptFunc{waitCancelScript, feedTextScript("second")}}
	agent, _ := newTestAgent(testSettings(), engine)

	created, err := agent.NewSession(context.Background(), acp.NewSessionRequest{})
	require.NoError(t, err)
	session, err := agent.Registry().Get(string(created.SessionId))
	require.NoError(t, err)

	first := make(chan acp.PromptResponse, 1)
	go func() {
		resp, perr := agent.Prompt(context.Background(), acp.PromptRequest{
			SessionId: created.SessionId,
			Prompt:    promptBlocks("first"),
		})
		require.NoError(t, perr)
		first <- resp
	}()
	require.Eventually(t, session.HasActiveQuery, time.Second, time.Millisecond)

	resp, err := agent.Prompt(context.Background(), acp.PromptRequest{
		SessionId: created.SessionId,
		Prompt:    promptBlocks("second"),
	})
	require.NoError(t, err)
	require.Equal(t, acp.StopReasonEndTurn, resp.StopReason)

	// The superseded prompt ends normally, not as a user cancellation.
	select {
	case firstResp := <-first:
		require.Equal(t, acp.StopReasonEndTurn, firstResp.StopReason)
	case <-time.After(2 * time.Second):
		t.Fatal("superseded prompt did not return")
	}
}

func TestPromptStartFailure(t *testing.T) {
	engine := &scriptedEngine{startErr: errors.New("spawn failed")}
	agent, rec := newTestAgent(testSettings(), engine)

	created, err := agent.NewSession(context.Background(), acp.NewSessionRequest{})
	require.NoError(t, err)

	resp, err := agent.Prompt(context.Background(), acp.PromptRequest{
		SessionId: created.SessionId,
		Prompt:    promptBlocks("hi"),
	})
	require.NoError(t, err)
	require.Equal(t, acp.StopReasonEndTurn, resp.StopReason)

	notes := rec.all()
	require.Len(t, notes, 1)
	require.Equal(t, acp.UpdateAgentMessageText("An error occurred while processing the request: spawn failed"), notes[0].Update)
}

func TestPromptUpstreamFailure(t *testing.T) {
	engine := &scriptedEngine{scripts: []scriptFunc{func(ctx context.Context, q *upstream.Query) {
		q.Finish(&upstream.FailureError{Op: "drain", Detail: "broken pipe"})
	}}}
	agent, rec := newTestAgent(testSettings(), engine)

	created, err := agent.NewSession(context.Background(), acp.NewSessionRequest{})
	require.NoError(t, err)

	resp, err := agent.Prompt(context.Background(), acp.PromptRequest{
		SessionId: created.SessionId,
		Prompt:    promptBlocks("hi"),
	})
	require.NoError(t, err)
	require.Equal(t, acp.StopReasonEndTurn, resp.StopReason)

	notes := rec.all()
	require.Len(t, notes, 1)
	require.Equal(t,
		acp.UpdateAgentMessageText("An error occurred while processing the request: upstream failure: drain: broken pipe"),
		notes[0].Update)
}

func TestPromptTimeout(t *testing.T) {
	settings := testSettings()
	settings.QueryTimeout = 30 * time.Millisecond
	engine := &scriptedEngine{scripts: []scriptFunc{waitCancelScript}}
	agent, rec := newTestAgent(settings, engine)

	created, err := agent.NewSession(context.Background(), acp.NewSessionRequest{})
	require.NoError(t, err)

	resp, err := agent.Prompt(context.Background(), acp.PromptRequest{
		SessionId: created.SessionId,
		Prompt:    promptBlocks("slow task"),
	})
	require.NoError(t, err)
	require.Equal(t, acp.StopReasonEndTurn, resp.StopReason)

	notes := rec.all()
	require.Len(t, notes, 1)
	require.Equal(t, acp.UpdateAgentMessageText("The request was aborted after 0s."), notes[0].Update)
}

func TestPromptThinkingBanner(t *testing.T) {
	settings := testSettings()
	settings.ShowThinking = true
	engine := &scriptedEngine{scripts: []scriptFunc{feedTextScript("answer")}}
	agent, rec := newTestAgent(settings, engine)

	created, err := agent.NewSession(context.Background(), acp.NewSessionRequest{})
	require.NoError(t, err)

	_, err = agent.Prompt(context.Background(), acp.PromptRequest{
		SessionId: created.SessionId,
		Prompt:    promptBlocks("hi"),
	})
	require.NoError(t, err)

	notes := rec.all()
	require.Len(t, notes, 2)
	require.Equal(t, acp.UpdateAgentMessageText("Thinking..."), notes[0].Update)
	require.Equal(t, acp.UpdateAgentMessageText("answer"), notes[1].Update)
}

func TestPromptResumesConversation(t *testing.T) {
	engine := &scriptedEngine{scripts: []scriptFunc{
		func(ctx context.Context, q *upstream.Query) {
			q.Feed(ctx, upstream.SystemMessage{Subtype: "init", ConversationID: "conv-42"})
			q.Finish(nil)
		},
		feedTextScript("resumed"),
	}}
	agent, _ := newTestAgent(testSettings(), engine)

	created, err := agent.NewSession(context.Background(), acp.NewSessionRequest{})
	require.NoError(t, err)

	_, err = agent.Prompt(context.Background(), acp.PromptRequest{
		SessionId: created.SessionId,
		Prompt:    promptBlocks("first"),
	})
	require.NoError(t, err)
	require.Empty(t, engine.requests[0].ConversationID)

	_, err = agent.Prompt(context.Background(), acp.PromptRequest{
		SessionId: created.SessionId,
		Prompt:    promptBlocks("second"),
	})
	require.NoError(t, err)
	require.Equal(t, "conv-42", engine.lastRequest(t).ConversationID)
}

func TestCancelUnknownSessionIsSilent(t *testing.T) {
	agent, _ := newTestAgent(testSettings(), &scriptedEngine{})
	require.NoError(t, agent.Cancel(context.Background(), acp.CancelNotification{SessionId: "ghost"}))
}

func TestSetSessionMode(t *testing.T) {
	agent, rec := newTestAgent(testSettings(), &scriptedEngine{})

	created, err := agent.NewSession(context.Background(), acp.NewSessionRequest{})
	require.NoError(t, err)

	_, err = agent.SetSessionMode(context.Background(), acp.SetSessionModeRequest{
		SessionId: created.SessionId,
		ModeId:    "plan",
	})
	require.NoError(t, err)

	session, err := agent.Registry().Get(string(created.SessionId))
	require.NoError(t, err)
	require.Equal(t, permission.ModePlan, session.Mode())
	require.Equal(t, acp.UpdateAgentMessageText("Permission mode switched to plan."), rec.all()[0].Update)

	_, err = agent.SetSessionMode(context.Background(), acp.SetSessionModeRequest{
		SessionId: "missing",
		ModeId:    "plan",
	})
	require.Error(t, err)
}

func TestLoadSessionIdempotent(t *testing.T) {
	agent, _ := newTestAgent(testSettings(), &scriptedEngine{})

	resp, err := agent.LoadSession(context.Background(), acp.LoadSessionRequest{SessionId: "external-7"})
	require.NoError(t, err)
	require.NotNil(t, resp.Modes)
	require.Equal(t, acp.SessionModeId("default"), resp.Modes.CurrentModeId)

	session, err := agent.Registry().Get("external-7")
	require.NoError(t, err)
	session.SetMode(permission.ModePlan)

	again, err := agent.LoadSession(context.Background(), acp.LoadSessionRequest{SessionId: "external-7"})
	require.NoError(t, err)
	require.Equal(t, acp.SessionModeId("plan"), again.Modes.CurrentModeId)
}
