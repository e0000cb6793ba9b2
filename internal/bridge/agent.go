package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	acp "github.com/coder/acp-go-sdk"

	"github.com/softkr/zed-claude-acp/internal/config"
	"github.com/softkr/zed-claude-acp/internal/i18n"
	"github.com/softkr/zed-claude-acp/internal/logging"
	"github.com/softkr/zed-claude-acp/internal/permission"
	"github.com/softkr/zed-claude-acp/internal/upstream"
)

// Agent is the ACP capability surface of the bridge. It orchestrates the
// registry, permission gating, the upstream engine, and the stream
// translator, and converts every prompt failure into a visible message plus
// a normal stop reason — a single prompt can never take the process down.
type Agent struct {
	settings   config.Settings
	registry   *Registry
	engine     upstream.Engine
	loc        *i18n.Localizer
	logger     logging.Logger
	buffer     *TextBufferer
	translator *StreamTranslator
	reaper     *IdleSessionReaper

	mu     sync.Mutex
	sender UpdateSender
}

var (
	_ acp.Agent       = (*Agent)(nil)
	_ acp.AgentLoader = (*Agent)(nil)
)

// NewAgent wires the bridge core from settings and an upstream engine.
func NewAgent(settings config.Settings, engine upstream.Engine, logger logging.Logger) *Agent {
	a := &Agent{
		settings: settings,
		engine:   engine,
		loc:      i18n.NewLocalizer(i18n.ParseLocale(settings.Locale)),
		logger:   logging.OrNop(logger),
		registry: NewRegistry(permission.ParseMode(settings.DefaultPermissionMode)),
	}
	a.buffer = NewTextBufferer(settings.FlushWindow, settings.FlushThresholdBytes, func(sessionID, text string) {
		a.translator.SendText(context.Background(), sessionID, text)
	})
	a.translator = NewStreamTranslator(a, a.buffer, a.loc, settings.MaxOutputBytes, a.logger)
	a.reaper = NewIdleSessionReaper(a.registry, a.buffer, settings.IdleTTL, a.logger)
	return a
}

// Reaper exposes the idle-session reaper for the bootstrap to run.
func (a *Agent) Reaper() *IdleSessionReaper {
	return a.reaper
}

// Registry exposes the session registry; used by the bootstrap and tests.
func (a *Agent) Registry() *Registry {
	return a.registry
}

// SetAgentConnection implements acp.AgentConnAware; the connection arrives
// after construction.
func (a *Agent) SetAgentConnection(conn *acp.AgentSideConnection) {
	a.SetUpdateSender(conn)
}

// SetUpdateSender installs the outbound update channel.
func (a *Agent) SetUpdateSender(sender UpdateSender) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sender = sender
}

// SessionUpdate forwards an update to the connection; updates emitted before
// the connection is bound are dropped with a warning.
func (a *Agent) SessionUpdate(ctx context.Context, notification acp.SessionNotification) error {
	a.mu.Lock()
	sender := a.sender
	a.mu.Unlock()
	if sender == nil {
		a.logger.Warn("dropping session update for %s: connection not bound", notification.SessionId)
		return nil
	}
	return sender.SessionUpdate(ctx, notification)
}

// Initialize implements acp.Agent; the bridge supports loading externally
// known sessions.
func (a *Agent) Initialize(ctx context.Context, params acp.InitializeRequest) (acp.InitializeResponse, error) {
	a.logger.Info("initialize: client capabilities=%+v", params.ClientCapabilities)
	return acp.InitializeResponse{
		ProtocolVersion: acp.ProtocolVersionNumber,
		AgentCapabilities: acp.AgentCapabilities{
			LoadSession: true,
		},
	}, nil
}

// NewSession implements acp.Agent.
func (a *Agent) NewSession(ctx context.Context, params acp.NewSessionRequest) (acp.NewSessionResponse, error) {
	session := a.registry.Create()
	a.logger.Info("created session %s (mode=%s)", session.ID, session.Mode())
	return acp.NewSessionResponse{
		SessionId: acp.SessionId(session.ID),
		Modes:     a.modeState(session),
	}, nil
}

// LoadSession implements acp.AgentLoader; loading is idempotent and a cold
// start of an unknown id creates a fresh entry.
func (a *Agent) LoadSession(ctx context.Context, params acp.LoadSessionRequest) (acp.LoadSessionResponse, error) {
	session := a.registry.Load(string(params.SessionId))
	a.logger.Info("loaded session %s", session.ID)
	return acp.LoadSessionResponse{
		Modes: a.modeState(session),
	}, nil
}

// Authenticate implements acp.Agent. Credentials live in the upstream CLI's
// own store; nothing to do here.
func (a *Agent) Authenticate(ctx context.Context, params acp.AuthenticateRequest) (acp.AuthenticateResponse, error) {
	return acp.AuthenticateResponse{}, nil
}

// SetSessionMode implements acp.Agent: the explicit mode-switch path,
// subject to the same bypass gating as in-band markers.
func (a *Agent) SetSessionMode(ctx context.Context, params acp.SetSessionModeRequest) (acp.SetSessionModeResponse, error) {
	session, err := a.registry.Get(string(params.SessionId))
	if err != nil {
		return acp.SetSessionModeResponse{}, fmt.Errorf("set mode: %w", err)
	}
	requested := permission.ParseMode(string(params.ModeId))
	a.applyModeSwitch(ctx, session, requested)
	return acp.SetSessionModeResponse{}, nil
}

// Cancel implements acp.Agent. A cancel for an unknown session or an idle
// session is a silent no-op.
func (a *Agent) Cancel(ctx context.Context, params acp.CancelNotification) error {
	session, err := a.registry.Get(string(params.SessionId))
	if err != nil {
		a.logger.Debug("cancel for unknown session %s ignored", params.SessionId)
		return nil
	}
	if query := session.TakeActiveQuery(); query != nil {
		query.Cancel(upstream.AbortUserCancel)
		a.logger.Info("cancelled active query for session %s", session.ID)
	}
	return nil
}

// Prompt implements acp.Agent: one full prompt cycle against the upstream
// engine.
func (a *Agent) Prompt(ctx context.Context, params acp.PromptRequest) (acp.PromptResponse, error) {
	sessionID := string(params.SessionId)
	session, err := a.registry.Get(sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return acp.PromptResponse{}, fmt.Errorf("%s", a.loc.Render(i18n.MsgSessionNotFound, map[string]string{"id": sessionID}))
		}
		return acp.PromptResponse{}, err
	}

	// A newer prompt supersedes any in-flight query.
	if prior := session.TakeActiveQuery(); prior != nil {
		a.logger.Debug("prompt for %s supersedes an active query", sessionID)
		prior.Cancel(upstream.AbortSuperseded)
	}
	session.Touch(time.Now())

	if a.settings.ShowThinking {
		a.translator.SendText(ctx, sessionID, a.loc.Render(i18n.MsgThinking, nil))
	}

	promptText := extractPromptText(params.Prompt)
	if mode, ok := permission.DetectMarker(promptText); ok {
		a.applyModeSwitch(ctx, session, mode)
		promptText = permission.StripMarkers(promptText)
	}

	queryCtx, cancelTimeout := context.WithTimeout(ctx, a.settings.QueryTimeout)
	defer cancelTimeout()

	query, err := a.engine.Start(queryCtx, upstream.QueryRequest{
		Prompt:         promptText,
		ConversationID: session.ConversationID(),
		PermissionMode: string(session.Mode()),
		WorkDir:        a.settings.WorkDir,
	})
	if err != nil {
		a.reportFailure(ctx, sessionID, err)
		return acp.PromptResponse{StopReason: acp.StopReasonEndTurn}, nil
	}
	session.SetActiveQuery(query)
	defer func() {
		session.ClearActiveQuery(query)
		a.buffer.Flush(sessionID)
	}()

	a.translator.Drain(queryCtx, session, query)

	return acp.PromptResponse{StopReason: a.stopReason(ctx, sessionID, query)}, nil
}

// stopReason classifies the query outcome by error identity: only an abort
// whose recorded reason is the user's cancellation yields a cancelled stop.
func (a *Agent) stopReason(ctx context.Context, sessionID string, query *upstream.Query) acp.StopReason {
	// Make sure the stream has settled so Err is meaningful.
	for range query.Messages() {
	}
	err := query.Err()
	if err == nil {
		return acp.StopReasonEndTurn
	}

	var abort *upstream.AbortError
	if errors.As(err, &abort) {
		if abort.Reason == upstream.AbortUserCancel {
			return acp.StopReasonCancelled
		}
		a.logger.Debug("query for %s aborted (%s)", sessionID, abort.Reason)
		if abort.Reason == upstream.AbortTimeout {
			a.reportTimeout(ctx, sessionID)
		}
		return acp.StopReasonEndTurn
	}
	if errors.Is(err, context.DeadlineExceeded) {
		a.reportTimeout(ctx, sessionID)
		return acp.StopReasonEndTurn
	}
	if errors.Is(err, context.Canceled) {
		// The connection context closed underneath us; nothing to render.
		return acp.StopReasonCancelled
	}
	a.reportFailure(ctx, sessionID, err)
	return acp.StopReasonEndTurn
}

func (a *Agent) reportTimeout(ctx context.Context, sessionID string) {
	seconds := strconv.Itoa(int(a.settings.QueryTimeout / time.Second))
	a.translator.SendText(ctx, sessionID, a.loc.Render(i18n.MsgQueryTimeout, map[string]string{"seconds": seconds}))
	a.logger.Warn("query for %s timed out after %ss", sessionID, seconds)
}

func (a *Agent) reportFailure(ctx context.Context, sessionID string, err error) {
	a.logger.Error("query for %s failed: %v", sessionID, err)
	message := a.loc.Render(i18n.MsgQueryFailed, map[string]string{"error": err.Error()})
	a.translator.SendText(ctx, sessionID, a.translator.capOutput(message))
}

// applyModeSwitch runs the gating rule, mutates the session when permitted,
// and notifies the user in-band either way.
func (a *Agent) applyModeSwitch(ctx context.Context, session *Session, requested permission.Mode) {
	outcome := permission.Decide(session.Mode(), requested, a.settings.AllowBypass)
	switch {
	case outcome.Blocked:
		a.logger.Warn("blocked bypassPermissions switch for session %s", session.ID)
		a.translator.SendText(ctx, session.ID, a.loc.Render(i18n.MsgBypassBlocked, nil))
	case outcome.Switched:
		session.SetMode(outcome.Mode)
		a.logger.Info("session %s permission mode -> %s", session.ID, outcome.Mode)
		a.translator.SendText(ctx, session.ID, a.loc.Render(i18n.MsgModeSwitched, map[string]string{"mode": string(outcome.Mode)}))
	}
}

func (a *Agent) modeState(session *Session) *acp.SessionModeState {
	modes := make([]acp.SessionMode, 0, len(permission.AllModes()))
	for _, mode := range permission.AllModes() {
		modes = append(modes, acp.SessionMode{
			Id:   acp.SessionModeId(mode),
			Name: string(mode),
		})
	}
	return &acp.SessionModeState{
		CurrentModeId:  acp.SessionModeId(session.Mode()),
		AvailableModes: modes,
	}
}

func extractPromptText(blocks []acp.ContentBlock) string {
	var text string
	for _, block := range blocks {
		if block.Text != nil {
			text += block.Text.Text
		}
	}
	return text
}
