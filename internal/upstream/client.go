package upstream

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/softkr/zed-claude-acp/internal/logging"
)

// maxStreamLineBytes bounds a single stream-json line; large tool results
// arrive as one line.
const maxStreamLineBytes = 10 << 20

// CLIEngine runs queries by spawning the Claude Code CLI in stream-json
// mode, one process per query. Credentials and tool execution belong to the
// CLI; this side only feeds the prompt and decodes the stream.
type CLIEngine struct {
	bin     string
	workDir string
	logger  logging.Logger
}

// NewCLIEngine creates an engine for the given binary and default working
// directory.
func NewCLIEngine(bin, workDir string, logger logging.Logger) *CLIEngine {
	if bin == "" {
		bin = "claude"
	}
	return &CLIEngine{bin: bin, workDir: workDir, logger: logging.OrNop(logger)}
}

// Start spawns one CLI process for the request. The returned query's channel
// closes when the process exits or the query is cancelled.
func (e *CLIEngine) Start(ctx context.Context, req QueryRequest) (*Query, error) {
	qctx, cancel := context.WithCancel(ctx)

	args := []string{"--print", "--output-format", "stream-json", "--verbose", "--include-partial-messages"}
	if req.PermissionMode != "" && req.PermissionMode != "default" {
		args = append(args, "--permission-mode", req.PermissionMode)
	}
	if req.ConversationID != "" {
		args = append(args, "--resume", req.ConversationID)
	}

	cmd := exec.CommandContext(qctx, e.bin, args...)
	if req.WorkDir != "" {
		cmd.Dir = req.WorkDir
	} else if e.workDir != "" {
		cmd.Dir = e.workDir
	}
	cmd.Stdin = strings.NewReader(req.Prompt)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, &FailureError{Op: "open stdout pipe", Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, &FailureError{Op: "open stderr pipe", Err: err}
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, &FailureError{Op: "start " + e.bin, Err: err}
	}
	e.logger.Debug("started %s (resume=%q mode=%q)", e.bin, req.ConversationID, req.PermissionMode)

	query := NewQuery(cancel)
	tail := &stderrTail{}

	group, gctx := errgroup.WithContext(qctx)
	group.Go(func() error {
		return e.drainStdout(gctx, query, stdout)
	})
	group.Go(func() error {
		tail.consume(stderr)
		return nil
	})

	go func() {
		drainErr := group.Wait()
		waitErr := cmd.Wait()
		query.Finish(e.classify(qctx, query, drainErr, waitErr, tail))
	}()

	return query, nil
}

func (e *CLIEngine) drainStdout(ctx context.Context, query *Query, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxStreamLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		msg, err := ParseLine([]byte(line))
		if err != nil {
			e.logger.Warn("skipping undecodable stream line: %v", err)
			continue
		}
		if !query.Feed(ctx, msg) {
			return ctx.Err()
		}
	}
	return scanner.Err()
}

// classify turns the raw exit state into the error taxonomy. The recorded
// cancel reason wins over everything so user cancellation is never mistaken
// for a process failure.
func (e *CLIEngine) classify(ctx context.Context, query *Query, drainErr, waitErr error, tail *stderrTail) error {
	if reason := query.CancelReason(); reason != "" {
		return &AbortError{Reason: reason}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if drainErr != nil {
		return &FailureError{Op: "drain stream", Err: drainErr}
	}
	if waitErr != nil {
		return &FailureError{Op: e.bin + " exited", Detail: tail.String(), Err: waitErr}
	}
	return nil
}

// stderrTail keeps the last few stderr lines for failure diagnostics.
type stderrTail struct {
	mu    sync.Mutex
	lines []string
}

const stderrTailLines = 20

func (t *stderrTail) consume(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		t.mu.Lock()
		t.lines = append(t.lines, line)
		if len(t.lines) > stderrTailLines {
			t.lines = t.lines[1:]
		}
		t.mu.Unlock()
	}
}

func (t *stderrTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}
