// Command nexus runs the assistant gateway: channel adapters in, agent
// loop in the middle, scheduled jobs on the side.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/gateway"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "nexus",
		Short: "Multi-channel AI assistant gateway",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	rootCmd.AddCommand(serveCmd)
	return rootCmd
}

func runServe(ctx context.Context, configPath string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	server, err := gateway.NewServer(cfg, provider, logger)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(runCtx); err != nil {
		return err
	}
	<-runCtx.Done()
	return server.Stop(context.Background())
}

// buildProvider resolves the configured LLM provider. Provider clients
// are external collaborators; only their construction is composed here.
func buildProvider(cfg *config.Config) (agent.LLMProvider, error) {
	switch cfg.Agent.Provider {
	case "", "anthropic":
		apiKey := cfg.Agent.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("anthropic provider requires an API key (config agent.api_key or ANTHROPIC_API_KEY)")
		}
		return newAnthropicProvider(apiKey, cfg.Agent.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Agent.Provider)
	}
}
