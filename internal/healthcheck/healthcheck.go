package healthcheck

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/l3aro/blindtaint/internal/config"
	"github.com/l3aro/blindtaint/pkg/knowledge"
	"github.com/l3aro/blindtaint/pkg/lexer"
)

// Status values reported for each check.
const (
	StatusReady   = "ready"
	StatusMissing = "missing"
	StatusError   = "error"
)

// CheckStatus represents the outcome of a single check.
type CheckStatus struct {
	Name   string
	Detail string
	Status string // "ready", "missing" (created on first use) or "error"
	Error  string
}

// HealthCheckResult contains the full health check output for display.
type HealthCheckResult struct {
	SavedPath      string
	SavedScope     string // "global" or "project"
	EffectivePath  string
	EffectiveScope string // "global" or "project"

	Knowledge     CheckStatus
	Parser        CheckStatus
	ClientOutput  CheckStatus
	AuditorOutput CheckStatus
	LegendOutput  CheckStatus
}

// Checks returns every check in display order.
func (r *HealthCheckResult) Checks() []CheckStatus {
	return []CheckStatus{r.Knowledge, r.Parser, r.ClientOutput, r.AuditorOutput, r.LegendOutput}
}

// Failed reports whether any check ended in error.
func (r *HealthCheckResult) Failed() bool {
	for _, c := range r.Checks() {
		if c.Status == StatusError {
			return true
		}
	}
	return false
}

// Check performs a health check against the given config.
// savedPath is where the user saved config (may be empty outside init).
// effectivePath is the config file actually in use (considering priority).
func Check(cfg *config.Config, savedPath string, effectivePath string) (*HealthCheckResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	result := &HealthCheckResult{
		SavedPath:      savedPath,
		SavedScope:     scopeFromPath(savedPath),
		EffectivePath:  effectivePath,
		EffectiveScope: scopeFromPath(effectivePath),
	}

	know, status := checkKnowledge(cfg.KnowledgePath)
	result.Knowledge = status
	result.Parser = checkParser(know)
	result.ClientOutput = checkOutputDir("Client output", cfg.ClientOutput)
	result.AuditorOutput = checkOutputDir("Auditor output", cfg.AuditorOutput)
	result.LegendOutput = checkOutputDir("Legend output", cfg.EffectiveLegendOutput())

	return result, nil
}

// scopeFromPath determines "global" or "project" scope from a config file path.
// Returns empty string if path is empty.
func scopeFromPath(path string) string {
	if path == "" {
		return ""
	}

	home, err := os.UserHomeDir()
	if err == nil {
		globalDir := filepath.Join(home, ".blindtaint")
		if strings.HasPrefix(path, globalDir+string(filepath.Separator)) {
			return "global"
		}
	}

	return "project"
}

// checkKnowledge loads the configured knowledge file, or the built-in one.
func checkKnowledge(path string) (*knowledge.Source, CheckStatus) {
	status := CheckStatus{Name: "Knowledge", Detail: path}
	if path == "" {
		status.Detail = "built-in"
		status.Status = StatusReady
		return knowledge.Default(), status
	}

	know, err := knowledge.Load(path)
	if err != nil {
		status.Status = StatusError
		status.Error = err.Error()
		return knowledge.Default(), status
	}
	status.Status = StatusReady
	return know, status
}

// checkParser lexes a small PHP sample end to end.
func checkParser(know *knowledge.Source) CheckStatus {
	status := CheckStatus{Name: "PHP parser", Detail: "tree-sitter"}

	stream, err := lexer.New(know, nil).Lex("healthcheck.php", []byte("<?php $x = $_GET['q']; echo $x;"))
	if err != nil {
		status.Status = StatusError
		status.Error = err.Error()
		return status
	}
	if stream.Len() == 0 {
		status.Status = StatusError
		status.Error = "parser produced no lexemes"
		return status
	}
	status.Status = StatusReady
	return status
}

// checkOutputDir verifies that artifacts can be written to dir. A missing
// directory is fine as long as its closest existing parent is a directory.
func checkOutputDir(name, dir string) CheckStatus {
	status := CheckStatus{Name: name, Detail: dir}
	if dir == "" {
		status.Status = StatusError
		status.Error = "directory is not configured"
		return status
	}

	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		probe, err := os.CreateTemp(dir, ".blindtaint-probe-*")
		if err != nil {
			status.Status = StatusError
			status.Error = fmt.Sprintf("not writable: %v", err)
			return status
		}
		probe.Close()
		os.Remove(probe.Name())
		status.Status = StatusReady
	case err == nil:
		status.Status = StatusError
		status.Error = "not a directory"
	case os.IsNotExist(err):
		parent := filepath.Dir(filepath.Clean(dir))
		for {
			pinfo, perr := os.Stat(parent)
			if perr == nil {
				if !pinfo.IsDir() {
					status.Status = StatusError
					status.Error = fmt.Sprintf("%s is not a directory", parent)
					return status
				}
				break
			}
			next := filepath.Dir(parent)
			if next == parent {
				break
			}
			parent = next
		}
		status.Status = StatusMissing
	default:
		status.Status = StatusError
		status.Error = err.Error()
	}
	return status
}
