package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/gxp-audit/gxa/pkg/color"
	"github.com/gxp-audit/gxa/pkg/config"
	"github.com/gxp-audit/gxa/pkg/gxa"
	"github.com/gxp-audit/gxa/pkg/logging"
	"github.com/gxp-audit/gxa/pkg/model"
)

// sessionID identifies this CLI invocation on every audit entry it writes.
var sessionID = uuid.NewString()

func loadConfig() (*config.Config, error) {
	return config.LoadAll(configPath, envFile)
}

// setupLogging applies the configured format. The CLI logs at warn unless
// --log-level says otherwise; serve passes the configured level.
func setupLogging(cfg *config.Config, defaultLevel string) error {
	lvl := logLevel
	if lvl == "" {
		lvl = defaultLevel
	}
	level, err := logging.ParseLevel(lvl)
	if err != nil {
		return err
	}
	l := logging.NewLogger(level)
	if cfg.Logging.Format == string(logging.FormatText) {
		l.SetFormat(logging.FormatText)
	}
	logging.SetGlobal(l)
	return nil
}

// openClient loads configuration and returns an initialized client. The
// caller must Close it.
func openClient(cmd *cobra.Command) (*gxa.Client, error) {
	color.Init(noColor)
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	defaultLevel := string(logging.LevelWarn)
	if cmd.Name() == "serve" {
		defaultLevel = cfg.Logging.Level
	}
	if err := setupLogging(cfg, defaultLevel); err != nil {
		return nil, err
	}
	client, err := gxa.New(cfg, gxa.WithLogger(logging.Default()))
	if err != nil {
		return nil, err
	}
	if err := client.Initialize(cmdContext(cmd)); err != nil {
		return nil, err
	}
	return client, nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// requestContext describes the operator running this command.
func requestContext() model.RequestContext {
	actor := actorFlag
	if actor == "" {
		actor = os.Getenv("GXA_ACTOR")
	}
	if actor == "" {
		actor = os.Getenv("USER")
	}
	host, _ := os.Hostname()
	return model.RequestContext{
		ActorID:     actor,
		ActorIP:     "local",
		ActorDevice: "cli@" + host,
		SessionID:   sessionID,
		RequestID:   uuid.NewString(),
	}
}

func fmtErr(format string, args ...any) {
	prefix := "gxa: "
	if color.Enabled() {
		prefix = color.Error("gxa:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}
