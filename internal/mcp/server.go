// Package mcp provides an MCP (Model Context Protocol) server exposing the
// activation reader to agents.
package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/actprobe/internal/activations"
	"github.com/nvandessel/actprobe/internal/catalog"
	"github.com/nvandessel/actprobe/internal/ratelimit"
	"github.com/nvandessel/actprobe/internal/reader"
)

// Server wraps the MCP SDK server around one activations directory.
type Server struct {
	server *sdk.Server

	// mu serialises reader access; the reader caches a single matrix.
	mu     sync.Mutex
	reader *reader.Reader

	catalog     *catalog.Catalog
	outputDir   string
	ratio       float64
	logger      *slog.Logger
	auditLogger *AuditLogger
	limits      *ratelimit.Set
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "actprobe")
	Version string // Server version

	Store     activations.Store
	OutputDir string   // root for exported splits
	Ratio     *float64 // default training fraction; nil selects reader.DefaultSplitRatio

	// RateLimits throttles each tool; nil selects ratelimit.DefaultRules.
	RateLimits ratelimit.Rules

	// CatalogPath enables recording of exported splits when set.
	CatalogPath string

	// AuditDir receives audit.jsonl when set.
	AuditDir string

	Logger *slog.Logger
}

// NewServer creates a new MCP server with the probe tools.
func NewServer(cfg *Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ratio := reader.DefaultSplitRatio
	if cfg.Ratio != nil {
		ratio = *cfg.Ratio
	}
	if ratio < 0 || ratio > 1 {
		return nil, fmt.Errorf("split ratio must be in [0, 1], got %v", ratio)
	}
	rules := cfg.RateLimits
	if rules == nil {
		rules = ratelimit.DefaultRules()
	}
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit: %w", err)
	}

	s := &Server{
		reader:    reader.New(cfg.Store, reader.WithLogger(logger)),
		outputDir: cfg.OutputDir,
		ratio:     ratio,
		logger:    logger,
		limits:    ratelimit.NewSet(rules),
	}

	if cfg.CatalogPath != "" {
		c, err := catalog.Open(context.Background(), cfg.CatalogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open catalog: %w", err)
		}
		s.catalog = c
	}
	if cfg.AuditDir != "" {
		s.auditLogger = NewAuditLogger(cfg.AuditDir)
	}

	s.server = sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})
	s.registerTools()

	return s, nil
}

// Run serves over stdio until the client disconnects, ctx is cancelled or
// the process is interrupted.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close releases the cached matrix, the catalog and the audit log.
func (s *Server) Close() error {
	s.mu.Lock()
	s.reader.Release()
	s.mu.Unlock()

	var firstErr error
	if s.catalog != nil {
		if err := s.catalog.Close(); err != nil {
			firstErr = err
		}
	}
	if err := s.auditLogger.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
