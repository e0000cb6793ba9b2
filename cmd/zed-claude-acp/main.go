// zed-claude-acp bridges an ACP client speaking JSON-RPC over stdio to the
// Claude Code CLI's stream-json interface. stdout belongs to the protocol;
// all diagnostics go to stderr.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	acp "github.com/coder/acp-go-sdk"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/softkr/zed-claude-acp/internal/bridge"
	"github.com/softkr/zed-claude-acp/internal/config"
	"github.com/softkr/zed-claude-acp/internal/logging"
	"github.com/softkr/zed-claude-acp/internal/upstream"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "zed-claude-acp",
		Short: "ACP bridge between an editor and the Claude Code CLI",
		Long: `zed-claude-acp exposes the Claude Code CLI as an ACP agent.

An editor launches this binary and speaks the Agent Client Protocol over
stdin/stdout; each prompt is relayed to the CLI's stream-json interface and
the reply stream is translated back into session updates.

Configuration is read from ZED_CLAUDE_* environment variables (see README).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func serve() error {
	// Local overrides for development; absence is not an error.
	_ = godotenv.Load()

	settings := config.Load(config.ProcessEnvLookup())

	sink := logging.NewStderrSink(settings.Debug)
	logging.SetDefaultSink(sink)
	logger := sink.Component("bridge")

	if settings.InterceptConsole {
		// Stray stdlib logging must never reach stdout: that stream carries
		// protocol frames.
		log.SetOutput(os.Stderr)
	}

	logger.Info("starting zed-claude-acp %s (bin=%s locale=%s mode=%s)",
		version, settings.ClaudeBin, settings.Locale, settings.DefaultPermissionMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := upstream.NewCLIEngine(settings.ClaudeBin, settings.WorkDir, sink.Component("upstream"))
	agent := bridge.NewAgent(settings, engine, logger)

	conn := acp.NewAgentSideConnection(agent, os.Stdout, os.Stdin)
	conn.SetLogger(slog.New(logging.NewSlogHandler(sink.Component("acp"))))
	agent.SetAgentConnection(conn)

	go agent.Reaper().Run(ctx)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case <-conn.Done():
		logger.Info("client disconnected")
	}
	return nil
}
