package shared

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tombee/apiclient/internal/config"
	"github.com/tombee/apiclient/internal/log"
	"github.com/tombee/apiclient/internal/secrets"
	"github.com/tombee/apiclient/internal/tracing"
)

// keychainService is the keyring service keychain: references are read from.
const keychainService = "apiclient"

// Env is the per-invocation state shared by commands that talk to an API.
type Env struct {
	Config      *config.Config
	Profile     *config.Profile
	ProfileName string
	Components  *config.Components
	Logger      *slog.Logger

	tp *sdktrace.TracerProvider
}

// Close releases the session and flushes pending spans.
func (e *Env) Close() error {
	var errs []error
	if e.Components != nil {
		errs = append(errs, e.Components.Close())
	}
	if e.tp != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = append(errs, e.tp.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// NewLogger returns the CLI logger: text on stderr, debug with --verbose,
// otherwise the config file level and environment overrides.
func NewLogger(cfg *config.Config, stderr io.Writer) *slog.Logger {
	lc := log.FromEnv()
	if os.Getenv("LOG_FORMAT") == "" {
		lc.Format = log.FormatText
	}
	lc.Output = stderr
	if cfg != nil {
		if cfg.Log.Level != "" && os.Getenv("APICLIENT_LOG_LEVEL") == "" && os.Getenv("LOG_LEVEL") == "" {
			lc.Level = cfg.Log.Level
		}
		if cfg.Log.Format == string(log.FormatJSON) {
			lc.Format = log.FormatJSON
		}
	}
	if GetVerbose() {
		lc.Level = "debug"
	}
	return log.New(lc)
}

// LoadEnv loads the configuration and resolves the selected profile without
// building anything.
func LoadEnv(cmd *cobra.Command) (*Env, error) {
	cfg, err := config.Load(GetConfigPath())
	if err != nil {
		return nil, NewConfigError("failed to load configuration", err)
	}
	profile, name, err := cfg.Profile(GetProfile())
	if err != nil {
		return nil, NewConfigError("failed to select profile", err)
	}
	logger := log.WithComponent(NewLogger(cfg, cmd.ErrOrStderr()), "cli")
	warnPlaintextSecrets(logger)

	if err := profile.ResolveSecrets(cmd.Context(), secrets.NewDefaultRegistry(keychainService)); err != nil {
		return nil, NewConfigError("failed to resolve secrets for profile "+name, err)
	}
	return &Env{
		Config:      cfg,
		Profile:     profile,
		ProfileName: name,
		Logger:      logger,
	}, nil
}

func warnPlaintextSecrets(logger *slog.Logger) {
	path := GetConfigPath()
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return
		}
		path = p
	}
	warnings, err := config.CheckPlaintextSecrets(path)
	if err != nil {
		return
	}
	for _, w := range warnings {
		logger.Warn(w)
	}
}

// BuildEnv loads the configuration and builds the selected profile's
// session. The caller must Close the result.
func BuildEnv(cmd *cobra.Command) (*Env, error) {
	env, err := LoadEnv(cmd)
	if err != nil {
		return nil, err
	}

	opts := config.BuildOptions{Logger: env.Logger}
	if exporter := GetTraceExporter(); exporter != "" {
		v, _, _ := GetVersion()
		tp, err := tracing.NewProvider(cmd.Context(), tracing.Config{
			ServiceVersion: v,
			Exporter:       exporter,
			Output:         cmd.ErrOrStderr(),
		})
		if err != nil {
			return nil, NewConfigError("failed to start tracing", err)
		}
		env.tp = tp
		opts.TracerProvider = tp
	}

	components, err := config.BuildSession(cmd.Context(), env.Profile, opts)
	if err != nil {
		_ = env.Close()
		return nil, NewConfigError("failed to build profile "+env.ProfileName, err)
	}
	env.Components = components
	return env, nil
}
