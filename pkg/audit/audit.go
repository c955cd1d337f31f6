// Package audit drives the three parties of a blind taint audit: the client
// that correlates and encrypts a PHP project, the auditor that searches the
// encrypted map, and the client-side decryption of the auditor's findings.
// It also offers plaintext variants of the pipeline for local use.
package audit

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/l3aro/blindtaint/internal/log"
	"github.com/l3aro/blindtaint/internal/scanner"
	"github.com/l3aro/blindtaint/pkg/artifact"
	"github.com/l3aro/blindtaint/pkg/correlator"
	"github.com/l3aro/blindtaint/pkg/detector"
	"github.com/l3aro/blindtaint/pkg/knowledge"
	"github.com/l3aro/blindtaint/pkg/lexer"
	"github.com/l3aro/blindtaint/pkg/seal"
	"github.com/l3aro/blindtaint/pkg/token"
)

var (
	// ErrPathNotFound is returned when an input directory or artifact does
	// not exist.
	ErrPathNotFound = errors.New("path not found")

	// ErrNoSources is returned when a project holds no PHP units.
	ErrNoSources = errors.New("no PHP source files found")

	// ErrInvalidVuln is returned for an unsupported vulnerability kind.
	ErrInvalidVuln = token.ErrInvalidVuln
)

// Options configures every audit operation. The zero value is usable.
type Options struct {
	// Knowledge classifies inputs, sinks and sanitizers. Nil selects the
	// built-in PHP knowledge.
	Knowledge *knowledge.Source

	// Workers bounds the units lexed and correlated concurrently.
	Workers int

	// MaxNesting bounds block nesting per unit.
	MaxNesting int

	// Detector bounds the path search.
	Detector detector.Options

	Logger log.Logger
}

func (o Options) withDefaults() Options {
	if o.Knowledge == nil {
		o.Knowledge = knowledge.Default()
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxNesting <= 0 {
		o.MaxNesting = correlator.DefaultMaxNesting
	}
	def := detector.DefaultOptions()
	if o.Detector.MaxPathLength <= 0 {
		o.Detector.MaxPathLength = def.MaxPathLength
	}
	if o.Detector.MaxSteps <= 0 {
		o.Detector.MaxSteps = def.MaxSteps
	}
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	return o
}

// ClientRequest names the inputs of the client side.
type ClientRequest struct {
	SecretPassword string
	SharedPassword string
	SourceDir      string
	OutputDir      string

	// LegendDir receives the identifier legend. Empty selects OutputDir.
	LegendDir string
}

// ClientResult describes the artifacts written by Client.
type ClientResult struct {
	RunID      string
	OutputPath string
	LegendPath string
	Units      int
	Scopes     int
	Tokens     int
}

// Client correlates every PHP unit under req.SourceDir, encrypts the merged
// Correlation Map and writes the client output and identifier legend.
// Nothing is written if ctx is cancelled or any unit fails.
func Client(ctx context.Context, req ClientRequest, opts Options) (*ClientResult, error) {
	opts = opts.withDefaults()

	keys, err := seal.DeriveKeys(req.SecretPassword, req.SharedPassword)
	if err != nil {
		return nil, fmt.Errorf("deriving keys: %w", err)
	}

	project, err := correlate(ctx, req.SourceDir, opts)
	if err != nil {
		return nil, err
	}

	enc, err := seal.NewEncoder(keys)
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}
	encoded, err := enc.EncodeMap(project.Map)
	if err != nil {
		return nil, fmt.Errorf("encoding correlation map: %w", err)
	}
	memo := enc.MemoStats()
	opts.Logger.Debug("Encoded correlation map",
		"scopes", len(encoded),
		"tokens", encoded.TokenCount(),
		"sse_memo_entries", memo.SSE.Length,
		"sse_memo_hit_rate", memo.SSE.HitRate(),
		"ope_memo_entries", memo.OPE.Length,
		"ope_memo_hit_rate", memo.OPE.HitRate())

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &artifact.ClientOutput{
		Header: artifact.NewHeader(),
		Units:  len(project.Units),
		Map:    encoded,
	}
	legend := &artifact.Legend{
		Header:      artifact.NewHeader(),
		ClientRunID: out.RunID,
		Names:       project.Legend,
	}

	legendDir := req.LegendDir
	if legendDir == "" {
		legendDir = req.OutputDir
	}
	legendPath, err := artifact.WriteLegend(legendDir, keys.Legend, legend)
	if err != nil {
		return nil, err
	}
	outputPath, err := artifact.WriteClient(req.OutputDir, keys.Shared.Envelope, out)
	if err != nil {
		return nil, err
	}
	opts.Logger.Info("Wrote client output", "path", outputPath, "units", out.Units, "run_id", out.RunID)

	return &ClientResult{
		RunID:      out.RunID,
		OutputPath: outputPath,
		LegendPath: legendPath,
		Units:      out.Units,
		Scopes:     len(encoded),
		Tokens:     encoded.TokenCount(),
	}, nil
}

// AuditRequest names the inputs of the auditor side.
type AuditRequest struct {
	SharedPassword string
	ClientOutput   string
	Vuln           string
	OutputDir      string
}

// AuditResult describes the auditor output written by Audit.
type AuditResult struct {
	RunID      string
	OutputPath string
	Vuln       token.Vuln
	Paths      int
	Stats      detector.Stats
}

// Audit searches an encrypted Correlation Map for paths of the requested
// vulnerability kind and writes them, still encrypted, to the auditor output.
func Audit(ctx context.Context, req AuditRequest, opts Options) (*AuditResult, error) {
	opts = opts.withDefaults()

	vuln, err := token.ParseVuln(req.Vuln)
	if err != nil {
		return nil, err
	}
	if err := exists(req.ClientOutput); err != nil {
		return nil, err
	}

	sk, err := seal.DeriveSharedKeys(req.SharedPassword)
	if err != nil {
		return nil, fmt.Errorf("deriving keys: %w", err)
	}
	in, err := artifact.ReadClient(req.ClientOutput, sk.Envelope)
	if err != nil {
		return nil, err
	}
	vocab, err := seal.NewVocabulary(sk.Vocab)
	if err != nil {
		return nil, fmt.Errorf("creating vocabulary: %w", err)
	}

	opts.Logger.Debug("Searching encrypted map", "vuln", vuln, "scopes", len(in.Map), "client_run_id", in.RunID)
	res, err := detector.New(in.Map, vocab, opts.Detector).Detect(vuln)
	if err != nil {
		return nil, err
	}
	if res.Stats.Truncated > 0 {
		opts.Logger.Warn("Path search truncated", "sinks", res.Stats.Truncated, "steps", res.Stats.Steps)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &artifact.AuditorOutput{
		Header:      artifact.NewHeader(),
		ClientRunID: in.RunID,
		Vuln:        vuln,
		Paths:       res.Paths,
		Stats:       res.Stats,
	}
	path, err := artifact.WriteAuditor(req.OutputDir, sk.Envelope, out)
	if err != nil {
		return nil, err
	}
	opts.Logger.Info("Wrote auditor output", "path", path, "paths", len(res.Paths), "run_id", out.RunID)

	return &AuditResult{
		RunID:      out.RunID,
		OutputPath: path,
		Vuln:       vuln,
		Paths:      len(res.Paths),
		Stats:      res.Stats,
	}, nil
}

// DecryptRequest names the inputs of the decryption step.
type DecryptRequest struct {
	SecretPassword string
	SharedPassword string
	AuditorOutput  string

	// LegendPath locates the identifier legend. A missing legend leaves
	// abstract ids in the report.
	LegendPath string
}

// Decrypt opens the auditor output and decodes its paths for the client.
func Decrypt(ctx context.Context, req DecryptRequest, opts Options) (*Report, error) {
	opts = opts.withDefaults()

	if err := exists(req.AuditorOutput); err != nil {
		return nil, err
	}
	keys, err := seal.DeriveKeys(req.SecretPassword, req.SharedPassword)
	if err != nil {
		return nil, fmt.Errorf("deriving keys: %w", err)
	}

	in, err := artifact.ReadAuditor(req.AuditorOutput, keys.Shared.Envelope)
	if err != nil {
		return nil, err
	}
	dec, err := seal.NewDecoder(keys)
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}
	paths, err := dec.DecodePaths(in.Paths)
	if err != nil {
		return nil, fmt.Errorf("decoding paths: %w", err)
	}

	names, err := readLegend(req.LegendPath, keys.Legend, in.ClientRunID, opts.Logger)
	if err != nil {
		return nil, err
	}

	return &Report{
		Vuln:  in.Vuln,
		Paths: paths,
		Stats: in.Stats,
		Names: names,
	}, ctx.Err()
}

func readLegend(path string, key []byte, clientRunID string, logger log.Logger) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	legend, err := artifact.ReadLegend(path, key)
	if errors.Is(err, os.ErrNotExist) {
		logger.Debug("No identifier legend", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if legend.ClientRunID != clientRunID {
		logger.Warn("Identifier legend belongs to another client run, ignoring it",
			"legend_run_id", legend.ClientRunID, "client_run_id", clientRunID)
		return nil, nil
	}
	return legend.Names, nil
}

// Scan runs the whole pipeline over plaintext, without encryption.
func Scan(ctx context.Context, sourceDir, vuln string, opts Options) (*Report, error) {
	opts = opts.withDefaults()

	v, err := token.ParseVuln(vuln)
	if err != nil {
		return nil, err
	}
	project, err := correlate(ctx, sourceDir, opts)
	if err != nil {
		return nil, err
	}
	res, err := detector.New(project.Map, token.Plain, opts.Detector).Detect(v)
	if err != nil {
		return nil, err
	}
	return &Report{
		Vuln:  v,
		Paths: res.Paths,
		Stats: res.Stats,
		Names: project.Legend,
	}, nil
}

// Project is the plaintext correlation of a source tree.
type Project struct {
	Units  []string
	Map    token.Map
	Legend map[string]string
}

// Correlate lexes and correlates every PHP unit under sourceDir.
func Correlate(ctx context.Context, sourceDir string, opts Options) (*Project, error) {
	return correlate(ctx, sourceDir, opts.withDefaults())
}

// correlate builds one map per unit on a bounded worker group and merges
// them once every unit has finished.
func correlate(ctx context.Context, sourceDir string, opts Options) (*Project, error) {
	if err := exists(sourceDir); err != nil {
		return nil, err
	}
	files, err := scanner.Scan(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", sourceDir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSources, sourceDir)
	}

	units := make([]string, len(files))
	for i, f := range files {
		units[i] = f.Path
	}
	lx := lexer.New(opts.Knowledge, lexer.NewAbstractor()).WithUnits(units)
	maps := make([]token.Map, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, unit := range units {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			stream, err := lx.LexFile(sourceDir, unit)
			if err != nil {
				return err
			}
			m, err := correlator.Correlate(stream, unit, correlator.Options{MaxNesting: opts.MaxNesting})
			if err != nil {
				return err
			}
			maps[i] = m
			opts.Logger.Debug("Correlated unit", "unit", unit, "lexemes", stream.Len(), "scopes", len(m))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := token.Map{}
	for _, m := range maps {
		merged.Merge(m)
	}
	opts.Logger.Info("Correlated project", "units", len(units), "scopes", len(merged), "tokens", merged.TokenCount())

	return &Project{
		Units:  units,
		Map:    merged,
		Legend: lx.Abstractor().Legend(),
	}, nil
}

func exists(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrPathNotFound, path)
		}
		return err
	}
	return nil
}
