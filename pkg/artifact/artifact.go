// Package artifact reads and writes the sealed files exchanged between
// client and auditor.
package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/blindtaint/pkg/detector"
	"github.com/l3aro/blindtaint/pkg/seal"
	"github.com/l3aro/blindtaint/pkg/token"
)

// File names of the artifacts inside an output directory. They double as
// the envelope labels.
const (
	ClientOutputName  = "client_side_output"
	AuditorOutputName = "auditor_side_output"
	LegendName        = "client_side_legend"
)

// Version is the current payload format version.
const Version = 1

// ErrVersion is returned for payloads written by an incompatible version.
var ErrVersion = errors.New("unsupported artifact version")

// Header is common to every artifact.
type Header struct {
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NewHeader returns a header with a fresh run id.
func NewHeader() Header {
	return Header{
		Version:   Version,
		RunID:     uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
}

// ClientOutput carries the encoded Correlation Map.
type ClientOutput struct {
	Header
	Units int       `json:"units"`
	Map   token.Map `json:"map"`
}

// AuditorOutput carries the encoded vulnerable paths.
type AuditorOutput struct {
	Header
	ClientRunID string         `json:"client_run_id"`
	Vuln        token.Vuln     `json:"vuln"`
	Paths       []token.Path   `json:"paths"`
	Stats       detector.Stats `json:"stats"`
}

// Legend maps abstract identifier ids back to source names.
type Legend struct {
	Header
	ClientRunID string            `json:"client_run_id"`
	Names       map[string]string `json:"names"`
}

// Write seals v with key under label and atomically replaces path. The
// payload is fully encoded before anything touches the file system.
func Write(path, label string, key []byte, v any) error {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", label, err)
	}

	sealed, err := seal.Seal(key, label, buf.Bytes())
	if err != nil {
		return fmt.Errorf("sealing %s: %w", label, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := renameio.WriteFile(path, sealed, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Read opens the sealed file at path and decodes it into v, which must
// embed a Header.
func Read(path, label string, key []byte, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", label, err)
	}

	payload, err := seal.Open(key, label, data)
	if err != nil {
		return fmt.Errorf("opening %s: %w", label, err)
	}

	dec := msgpack.NewDecoder(bytes.NewReader(payload))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", label, err)
	}

	if h, ok := v.(interface{ version() int }); ok && h.version() != Version {
		return fmt.Errorf("%w: %s has version %d, expected %d", ErrVersion, label, h.version(), Version)
	}
	return nil
}

func (h *Header) version() int {
	return h.Version
}

// WriteClient writes the client output into dir.
func WriteClient(dir string, key []byte, out *ClientOutput) (string, error) {
	path := filepath.Join(dir, ClientOutputName)
	return path, Write(path, ClientOutputName, key, out)
}

// ReadClient reads a client output file.
func ReadClient(path string, key []byte) (*ClientOutput, error) {
	var out ClientOutput
	if err := Read(path, ClientOutputName, key, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WriteAuditor writes the auditor output into dir.
func WriteAuditor(dir string, key []byte, out *AuditorOutput) (string, error) {
	path := filepath.Join(dir, AuditorOutputName)
	return path, Write(path, AuditorOutputName, key, out)
}

// ReadAuditor reads an auditor output file.
func ReadAuditor(path string, key []byte) (*AuditorOutput, error) {
	var out AuditorOutput
	if err := Read(path, AuditorOutputName, key, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WriteLegend writes the identifier legend into dir.
func WriteLegend(dir string, key []byte, legend *Legend) (string, error) {
	path := filepath.Join(dir, LegendName)
	return path, Write(path, LegendName, key, legend)
}

// ReadLegend reads an identifier legend file.
func ReadLegend(path string, key []byte) (*Legend, error) {
	var legend Legend
	if err := Read(path, LegendName, key, &legend); err != nil {
		return nil, err
	}
	return &legend, nil
}
