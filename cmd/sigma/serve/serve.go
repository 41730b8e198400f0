package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sigmachat/sigma/pkg/config"
	"github.com/sigmachat/sigma/pkg/failover"
	"github.com/sigmachat/sigma/pkg/logger"
	"github.com/sigmachat/sigma/pkg/provider"
	"github.com/sigmachat/sigma/proxy"
)

const serveLongDesc string = `Run the SIGMA gateway.

The provider preference chain comes from the TOML file given with --config,
or from the built-in defaults (an OpenAI-compatible gateway, then Gemini).
API keys are read from the environment, optionally seeded from a .env file.

Examples:
  sigma serve
  sigma serve --config sigma.toml --listen :9090
  sigma serve --env /etc/sigma/.env --json-logs`

const serveShortDesc string = "Run the chat gateway"

type serveCommander struct {
	configPath string
	envPath    string
	listen     string
	debug      bool
	jsonLogs   bool
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to a TOML config file")
	cmd.Flags().StringVar(&cmder.envPath, "env", ".env", "Path to a .env file with provider API keys")
	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address to listen on (overrides the config file)")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json-logs", false, "Emit logs as JSON")

	return cmd
}

func (c *serveCommander) run(ctx context.Context, cmd *cobra.Command) error {
	log := logger.New(logger.Options{
		Debug:  c.debug,
		JSON:   c.jsonLogs,
		Output: cmd.ErrOrStderr(),
	})
	defer func() { _ = log.Sync() }()

	if err := config.LoadEnv(c.envPath); err != nil {
		return err
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.listen != "" {
		cfg.ListenAddr = c.listen
	}

	specs, missing := cfg.Specs()
	for _, name := range missing {
		log.Warn("no API key configured for provider, it will fail over immediately",
			zap.String("provider", name),
		)
	}

	chain, err := provider.BuildChain(specs, provider.NewHTTPClient(cfg.HeaderTimeout))
	if err != nil {
		return fmt.Errorf("could not build provider chain: %w", err)
	}

	names := make([]string, 0, len(chain))
	for _, cand := range chain {
		names = append(names, cand.Adapter.Name())
	}
	log.Info("sigma gateway starting",
		zap.String("listen", cfg.ListenAddr),
		zap.Strings("chain", names),
		zap.Bool("forward_rate_limit_status", cfg.ForwardRateLimitStatus),
		zap.Bool("debug", c.debug),
	)

	p, err := proxy.New(proxy.Config{
		ListenAddr:             cfg.ListenAddr,
		Personas:               cfg.GatePersonas(),
		ForwardRateLimitStatus: cfg.ForwardRateLimitStatus,
	}, failover.New(chain, log), log)
	if err != nil {
		return fmt.Errorf("could not create gateway: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Run()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("gateway server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("shutting down gateway")
		if err := p.Close(); err != nil {
			return fmt.Errorf("could not shut down gateway: %w", err)
		}
		<-errCh
		return nil
	}
}
