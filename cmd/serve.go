package cmd

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"habitcoach/config"
	"habitcoach/server"
	"habitcoach/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the coach API",
	Long: `Run the HTTP service the cloud backend talks to. Chat requests are
forwarded to an upstream provider (ollama, openai, openrouter or anthropic)
and every call is recorded in a SQLite usage log.

Every flag can also be set through HABITCOACH_SERVE_<FLAG>, e.g.
HABITCOACH_SERVE_UPSTREAM=anthropic. The upstream API key is read from
HABITCOACH_SERVE_UPSTREAM_KEY or from the credential store under the
upstream's name.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("addr", server.DefaultAddr, "listen address")
	f.String("upstream", "ollama", "upstream provider: ollama, openai, openrouter or anthropic")
	f.String("model", "", "upstream model (provider default when empty)")
	f.String("base-url", "", "upstream base URL (provider default when empty)")
	f.String("upstream-key", "", "upstream API key")
	f.String("auth-token", "", "bearer token clients must present; empty disables auth")
	f.Float64("rate", 2, "sustained chat requests per second; 0 disables limiting")
	f.Int("burst", 5, "chat request burst size")
	f.String("db", "", "usage database path (default <data dir>/usage.db)")
	f.Bool("debug", false, "debug logging")

	f.VisitAll(func(flag *pflag.Flag) {
		_ = viper.BindPFlag("serve."+flag.Name, flag)
	})

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewServerLogger(viper.GetBool("serve.debug"))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	upstreamName := strings.ToLower(viper.GetString("serve.upstream"))
	apiKey := viper.GetString("serve.upstream-key")
	if apiKey == "" && upstreamName != "ollama" {
		creds, err := openCredentials(cfg)
		if err != nil {
			return fmt.Errorf("failed to open credentials: %w", err)
		}
		apiKey = creds.Get(upstreamName)
	}

	upstream, err := server.NewUpstream(server.UpstreamConfig{
		Provider: upstreamName,
		Model:    viper.GetString("serve.model"),
		BaseURL:  viper.GetString("serve.base-url"),
		APIKey:   apiKey,
	}, logger)
	if err != nil {
		return err
	}

	dbPath := viper.GetString("serve.db")
	if dbPath == "" {
		dbPath = config.UsageDBPath(cfg.DataDir())
	}
	usage, err := storage.NewSQLiteUsageRepository(config.ExpandPath(dbPath))
	if err != nil {
		return err
	}
	defer usage.Close()

	srv, err := server.New(server.Config{
		Addr:      viper.GetString("serve.addr"),
		APIKey:    viper.GetString("serve.auth-token"),
		RateLimit: viper.GetFloat64("serve.rate"),
		Burst:     viper.GetInt("serve.burst"),
	}, upstream, usage, logger)
	if err != nil {
		return err
	}

	logger.Info("usage log opened", zap.String("path", dbPath))
	return srv.Run(ctx)
}
