// Package placement decides where the content of a new file should be
// stored. The engine only depends on the Policy interface; deployments
// plug in their own implementation or configure the built-in rule policy.
package placement

import (
	"fmt"
	"strings"
	"time"

	"dstash/internal/config"
	"dstash/internal/model"
)

// FileInfo describes a file about to be stored.
type FileInfo struct {
	Path       string // tree path the file will be linked at
	Size       int64
	Mtime      time.Time
	Executable bool
}

// Desire names the storage domains a new file's content should land in.
// A file may be wanted in several places at once.
type Desire struct {
	Inline      bool
	Piles       []int64  // pile ids to write a cell entry to
	RemotePools []string // credential pools to upload a chunk sequence with
}

// Empty reports whether the desire names no storage at all.
func (d Desire) Empty() bool {
	return !d.Inline && len(d.Piles) == 0 && len(d.RemotePools) == 0
}

// Policy is the placement contract the write pipeline consults.
type Policy interface {
	NewFileDesire(info FileInfo) (Desire, error)
}

// RulePolicy is the built-in config-driven policy: ordered rules matched
// on path and size, first match wins.
type RulePolicy struct {
	rules []config.PlacementRule
}

var _ Policy = (*RulePolicy)(nil)

// NewRulePolicy builds a policy from configuration.
func NewRulePolicy(cfg config.PlacementConfig) (*RulePolicy, error) {
	for i, r := range cfg.Rules {
		if r.MinSize < 0 || r.MaxSize < 0 {
			return nil, fmt.Errorf("%w: placement rule %d has negative size bound", model.ErrInvalidArgument, i)
		}
		if r.MaxSize > 0 && r.MinSize > r.MaxSize {
			return nil, fmt.Errorf("%w: placement rule %d has min_size > max_size", model.ErrInvalidArgument, i)
		}
	}
	return &RulePolicy{rules: cfg.Rules}, nil
}

// NewFileDesire returns the desire of the first matching rule.
func (p *RulePolicy) NewFileDesire(info FileInfo) (Desire, error) {
	for _, r := range p.rules {
		if !matches(r, info) {
			continue
		}
		return Desire{
			Inline:      r.Inline,
			Piles:       r.Piles,
			RemotePools: r.RemotePools,
		}, nil
	}
	return Desire{}, fmt.Errorf("%w: no placement rule matches %q (%d bytes)",
		model.ErrNotFound, info.Path, info.Size)
}

func matches(r config.PlacementRule, info FileInfo) bool {
	if r.PathPrefix != "" && !strings.HasPrefix(info.Path, r.PathPrefix) {
		return false
	}
	if r.PathSuffix != "" && !strings.HasSuffix(info.Path, r.PathSuffix) {
		return false
	}
	if info.Size < r.MinSize {
		return false
	}
	if r.MaxSize > 0 && info.Size > r.MaxSize {
		return false
	}
	return true
}
