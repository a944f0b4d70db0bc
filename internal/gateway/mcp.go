package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/ppiankov/claimguard/internal/errs"
	"github.com/ppiankov/claimguard/internal/logging"
	"github.com/ppiankov/claimguard/internal/model"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// lineFetchConcurrency bounds parallel service-line lookups per query
const lineFetchConcurrency = 4

// Connector opens a client session to an MCP server
type Connector func(ctx context.Context) (*mcp.ClientSession, error)

// MCPTransport reaches the repository through a Model Context Protocol server
// exposing a SQL read tool. The session is opened lazily and kept until it fails.
type MCPTransport struct {
	cfg     model.MCPConfig
	sql     sqlBuilder
	connect Connector
	log     logrus.FieldLogger

	mu      sync.Mutex
	session *mcp.ClientSession
}

// NewMCPTransport builds the transport from configuration.
// Command launches a stdio server process; Endpoint dials a streamable HTTP server.
func NewMCPTransport(cfg model.MCPConfig, log logrus.FieldLogger) (*MCPTransport, error) {
	client := mcp.NewClient(&mcp.Implementation{Name: "claimguard", Version: "v0.1.0"}, nil)

	var connect Connector
	switch {
	case cfg.Command != "":
		connect = func(ctx context.Context) (*mcp.ClientSession, error) {
			cmd := exec.Command(cfg.Command, cfg.Args...)
			return client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
		}
	case cfg.Endpoint != "":
		connect = func(ctx context.Context) (*mcp.ClientSession, error) {
			return client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: cfg.Endpoint}, nil)
		}
	default:
		return nil, fmt.Errorf("mcp transport needs either a command or an endpoint")
	}
	return NewMCPTransportWith(cfg, connect, log), nil
}

// NewMCPTransportWith uses a caller-supplied connector (in-memory servers, tests)
func NewMCPTransportWith(cfg model.MCPConfig, connect Connector, log logrus.FieldLogger) *MCPTransport {
	defaults := model.DefaultConfig().Gateway.MCP
	if cfg.Tool == "" {
		cfg.Tool = defaults.Tool
	}
	if cfg.ClaimTable == "" {
		cfg.ClaimTable = defaults.ClaimTable
	}
	if cfg.LineTable == "" {
		cfg.LineTable = defaults.LineTable
	}
	return &MCPTransport{
		cfg:     cfg,
		sql:     sqlBuilder{claimTable: cfg.ClaimTable, lineTable: cfg.LineTable},
		connect: connect,
		log:     logging.OrDiscard(log).WithField("transport", "mcp"),
	}
}

// Name returns the transport name
func (t *MCPTransport) Name() string {
	return "mcp"
}

// Fetch looks the claim up by GUID (or by name) and loads its service lines
func (t *MCPTransport) Fetch(ctx context.Context, claimID string) (model.Claim, error) {
	rows, err := t.readQuery(ctx, t.sql.fetch(claimID))
	if err != nil {
		return model.Claim{}, err
	}
	if len(rows) == 0 {
		return model.Claim{}, errs.E(errs.KindNotFound, "gateway.fetch", fmt.Errorf("no claim matches %q", claimID)).WithClaim(claimID)
	}

	claim := claimFromRow(rows[0])
	lines, err := t.readQuery(ctx, t.sql.lines(claim.ID))
	if err != nil {
		return model.Claim{}, fmt.Errorf("service lines: %w", err)
	}
	claim.Lines = linesFromRows(lines)
	return claim, nil
}

// Query runs the translated query and enriches every hit with its service lines
func (t *MCPTransport) Query(ctx context.Context, q model.StructuredQuery, limit int) ([]model.Claim, error) {
	sql, err := t.sql.query(q, limit)
	if err != nil {
		return nil, fmt.Errorf("translate query: %w", err)
	}
	rows, err := t.readQuery(ctx, sql)
	if err != nil {
		return nil, err
	}

	claims := make([]model.Claim, len(rows))
	for i, r := range rows {
		claims[i] = claimFromRow(r)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lineFetchConcurrency)
	for i := range claims {
		i := i
		g.Go(func() error {
			lines, err := t.readQuery(gctx, t.sql.lines(claims[i].ID))
			if err != nil {
				return fmt.Errorf("service lines for %s: %w", claims[i].ID, err)
			}
			claims[i].Lines = linesFromRows(lines)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return claims, nil
}

// Close ends the session, if any
func (t *MCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == nil {
		return nil
	}
	err := t.session.Close()
	t.session = nil
	return err
}

func (t *MCPTransport) sessionFor(ctx context.Context) (*mcp.ClientSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session != nil {
		return t.session, nil
	}
	session, err := t.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	t.log.Debug("mcp session established")
	t.session = session
	return session, nil
}

// drop discards a session after a protocol failure so the next call reconnects
func (t *MCPTransport) drop(session *mcp.ClientSession) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.session == session {
		_ = session.Close()
		t.session = nil
	}
}

func (t *MCPTransport) readQuery(ctx context.Context, sql string) ([]row, error) {
	session, err := t.sessionFor(ctx)
	if err != nil {
		return nil, err
	}

	t.log.WithField("sql", sql).Debug("read_query")
	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      t.cfg.Tool,
		Arguments: map[string]any{"querytext": sql},
	})
	if err != nil {
		if ctx.Err() == nil {
			t.drop(session)
		}
		return nil, fmt.Errorf("call %s: %w", t.cfg.Tool, err)
	}

	text := resultText(res)
	if res.IsError {
		return nil, fmt.Errorf("%s returned error: %s", t.cfg.Tool, strings.TrimSpace(text))
	}
	return decodeRows([]byte(text))
}

// resultText returns the first text content, falling back to structured content
func resultText(res *mcp.CallToolResult) string {
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			return tc.Text
		}
	}
	if res.StructuredContent != nil {
		data, err := json.Marshal(res.StructuredContent)
		if err == nil {
			return string(data)
		}
	}
	return ""
}
