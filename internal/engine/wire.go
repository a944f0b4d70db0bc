package engine

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/claimguard/internal/analyze"
	"github.com/ppiankov/claimguard/internal/correct"
	"github.com/ppiankov/claimguard/internal/gateway"
	"github.com/ppiankov/claimguard/internal/llm"
	"github.com/ppiankov/claimguard/internal/logging"
	"github.com/ppiankov/claimguard/internal/model"
	"github.com/ppiankov/claimguard/internal/reasoning"
	"github.com/ppiankov/claimguard/internal/worker"
)

// FromConfig wires the gateway transports, reasoning provider and rule catalog.
// The returned closer releases transport connections.
func FromConfig(cfg *model.Config, log logrus.FieldLogger) (*Engine, io.Closer, error) {
	log = logging.OrDiscard(log)
	if err := cfg.Engine.Validate(); err != nil {
		return nil, nil, err
	}
	gw, err := NewGateway(cfg.Gateway, log)
	if err != nil {
		return nil, nil, err
	}

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		_ = gw.Close()
		return nil, nil, fmt.Errorf("reasoning provider: %w", err)
	}
	if provider == nil {
		log.Warn("No reasoning provider configured; predictions will fail with ReasoningUnavailable")
	}
	limiter := worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)
	reasoner := reasoning.NewLLMService(provider, limiter, time.Duration(cfg.LLM.Timeout)*time.Second).WithLogger(log)

	rubric, err := analyze.RubricFromConfig(cfg.Rubric)
	if err != nil {
		_ = gw.Close()
		return nil, nil, err
	}

	catalog, err := correct.LoadCatalog(cfg.Rules.Path)
	if err != nil {
		_ = gw.Close()
		return nil, nil, err
	}

	eng, err := New(Options{
		Repository: gw,
		Reasoner:   reasoner,
		Catalog:    catalog,
		Engine:     cfg.Engine,
		Rubric:     rubric,
		Logger:     log,
	})
	if err != nil {
		_ = gw.Close()
		return nil, nil, err
	}
	return eng, gw, nil
}

// NewGateway builds the transport chain: fixtures in mock mode, otherwise MCP
// first and REST as the fallback, each only when configured
func NewGateway(cfg model.GatewayConfig, log logrus.FieldLogger) (*gateway.Gateway, error) {
	var transports []gateway.Transport

	switch cfg.Mode {
	case "mock":
		if cfg.Fixtures == "" {
			return nil, fmt.Errorf("gateway.mode is mock but gateway.fixtures is not set")
		}
		mem, err := gateway.LoadFixtures(cfg.Fixtures)
		if err != nil {
			return nil, err
		}
		transports = append(transports, mem)

	case "", "live":
		if cfg.MCP.Command != "" || cfg.MCP.Endpoint != "" {
			t, err := gateway.NewMCPTransport(cfg.MCP, log)
			if err != nil {
				return nil, fmt.Errorf("mcp transport: %w", err)
			}
			transports = append(transports, t)
		}
		if cfg.REST.BaseURL != "" {
			t, err := gateway.NewRESTTransport(cfg.REST, log)
			if err != nil {
				return nil, fmt.Errorf("rest transport: %w", err)
			}
			transports = append(transports, t)
		}
		if len(transports) == 0 {
			return nil, fmt.Errorf("no gateway transport configured: set gateway.mcp.command, gateway.mcp.endpoint or gateway.rest.base_url")
		}

	default:
		return nil, fmt.Errorf("unknown gateway.mode %q (live, mock)", cfg.Mode)
	}

	return gateway.New(cfg.Timeout, log, transports...), nil
}
