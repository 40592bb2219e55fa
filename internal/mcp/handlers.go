package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/actprobe/internal/activations"
	"github.com/nvandessel/actprobe/internal/catalog"
	"github.com/nvandessel/actprobe/internal/export"
	"github.com/nvandessel/actprobe/internal/pathutil"
	"github.com/nvandessel/actprobe/internal/reader"
)

// defaultIndexLimit caps the rows returned by probe_index.
const defaultIndexLimit = 20

// registerTools registers the probe tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "probe_identities",
		Description: "List the activation streams (layer and name) available in the activations directory, with label and row counts",
	}, s.handleProbeIdentities)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "probe_index",
		Description: "Read activation rows by sequence position, corpus key or raw row using a selector like '8', '[0,4,6]/key', ':20/all' or '8@cx0'",
	}, s.handleProbeIndex)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "probe_split",
		Description: "Create a random train/test split of one activation stream and export it as Arrow files",
	}, s.handleProbeSplit)
}

func (s *Server) handleProbeIdentities(ctx context.Context, req *sdk.CallToolRequest, args ProbeIdentitiesInput) (_ *sdk.CallToolResult, _ ProbeIdentitiesOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("probe_identities", start, retErr, sanitizeToolParams(map[string]any{}))
	}()

	if err := s.limits.Allow("probe_identities"); err != nil {
		return nil, ProbeIdentitiesOutput{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	store := s.reader.Store()
	ids, err := store.Identities()
	if err != nil {
		return nil, ProbeIdentitiesOutput{}, fmt.Errorf("failed to list activation streams: %w", err)
	}
	n, err := s.reader.SequenceCount()
	if err != nil {
		return nil, ProbeIdentitiesOutput{}, err
	}
	table, err := s.reader.Ranges()
	if err != nil {
		return nil, ProbeIdentitiesOutput{}, err
	}

	out := ProbeIdentitiesOutput{
		Dir:        store.Dir,
		Identities: make([]IdentityInfo, 0, len(ids)),
		Labels:     n,
		Rows:       table.TotalRows(),
		MaxKey:     table.MaxKey(),
	}
	for _, id := range ids {
		out.Identities = append(out.Identities, IdentityInfo{
			Name:  id.Name,
			Layer: id.Layer,
			Path:  pathutil.RedactPath(store.DumpPath(id)),
		})
	}
	return nil, out, nil
}

func (s *Server) handleProbeIndex(ctx context.Context, req *sdk.CallToolRequest, args ProbeIndexInput) (_ *sdk.CallToolResult, _ ProbeIndexOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("probe_index", start, retErr, sanitizeToolParams(map[string]any{
			"selector": args.Selector, "identity": args.Identity, "limit": args.Limit,
		}))
	}()

	if err := s.limits.Allow("probe_index"); err != nil {
		return nil, ProbeIndexOutput{}, err
	}

	sel, err := reader.ParseSelector(args.Selector)
	if err != nil {
		return nil, ProbeIndexOutput{}, err
	}
	if sel.Identity == nil && args.Identity != "" {
		id, err := activations.ParseIdentity(args.Identity)
		if err != nil {
			return nil, ProbeIndexOutput{}, err
		}
		sel = sel.On(id)
	}
	limit := args.Limit
	if limit <= 0 {
		limit = defaultIndexLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.reader.Index(sel)
	if err != nil {
		if errors.Is(err, reader.ErrNoActivations) {
			return nil, ProbeIndexOutput{}, fmt.Errorf("%w: pass identity or end the selector with @<identity>", err)
		}
		return nil, ProbeIndexOutput{}, err
	}
	current, _ := s.reader.Current()

	rows, cols := m.Dims()
	n := min(rows, limit)
	values := make([][]float64, n)
	for i := range n {
		values[i] = append([]float64(nil), m.RawRowView(i)...)
	}

	return nil, ProbeIndexOutput{
		Identity:  current.String(),
		Selector:  sel.String(),
		Rows:      rows,
		Cols:      cols,
		Values:    values,
		Truncated: rows > n,
	}, nil
}

func (s *Server) handleProbeSplit(ctx context.Context, req *sdk.CallToolRequest, args ProbeSplitInput) (_ *sdk.CallToolResult, _ ProbeSplitOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("probe_split", start, retErr, sanitizeToolParams(map[string]any{
			"identity": args.Identity, "subset_size": args.SubsetSize, "ratio": args.Ratio,
			"seed": args.Seed, "output_dir": args.OutputDir,
		}))
	}()

	if err := s.limits.Allow("probe_split"); err != nil {
		return nil, ProbeSplitOutput{}, err
	}

	id, err := activations.ParseIdentity(args.Identity)
	if err != nil {
		return nil, ProbeSplitOutput{}, err
	}
	size := args.SubsetSize
	if size == 0 {
		size = reader.All
	}
	ratio := s.ratio
	if args.Ratio != nil {
		ratio = *args.Ratio
	}
	dir, err := pathutil.ResolveOutputDir(s.outputDir, args.OutputDir)
	if err != nil {
		return nil, ProbeSplitOutput{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if args.Seed != nil {
		s.reader.SetRand(reader.NewRand(*args.Seed))
		defer s.reader.SetRand(nil)
	}

	split, err := s.reader.CreateDataSplit(id, size, ratio)
	if err != nil {
		return nil, ProbeSplitOutput{}, err
	}

	source := s.reader.Store().Dir
	m, err := export.WriteSplit(dir, split, export.Options{
		Source:     source,
		SubsetSize: size,
		Ratio:      ratio,
		Seed:       args.Seed,
	})
	if err != nil {
		return nil, ProbeSplitOutput{}, fmt.Errorf("failed to export split: %w", err)
	}

	if s.catalog != nil {
		if err := s.catalog.RecordSplit(ctx, catalog.SplitRecord{
			ID:         m.ID,
			Dir:        source,
			Identity:   id,
			SubsetSize: size,
			Ratio:      ratio,
			TrainRows:  m.TrainRows,
			TestRows:   m.TestRows,
			Seed:       args.Seed,
			OutputDir:  m.Dir,
			CreatedAt:  m.CreatedAt,
		}); err != nil {
			return nil, ProbeSplitOutput{}, err
		}
	}

	s.logger.Info("split exported",
		"identity", id.String(),
		"id", m.ID,
		"train", m.TrainRows,
		"test", m.TestRows,
	)

	return nil, ProbeSplitOutput{
		ID:        m.ID,
		Identity:  m.Identity,
		Dir:       pathutil.RedactPath(m.Dir),
		TrainRows: m.TrainRows,
		TestRows:  m.TestRows,
		Width:     m.Width,
		Message:   fmt.Sprintf("exported %d training and %d test rows of %s", m.TrainRows, m.TestRows, m.Identity),
	}, nil
}
