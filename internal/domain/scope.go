package domain

import (
	"strconv"
	"strings"
)

// ScopeRequest selects the systems a run covers. Exactly one mode must be set:
// explicit config ids (per source), All, or NodeIDs.
type ScopeRequest struct {
	ConfigIDs          map[Source][]uint `json:"config_ids,omitempty"`
	All                bool              `json:"all,omitempty"`
	NodeIDs            []uint            `json:"node_ids,omitempty"`
	IncludeDescendants bool              `json:"include_descendants,omitempty"`
}

// ScopeMode names the active selection mode of a ScopeRequest.
type ScopeMode string

const (
	ScopeModeNone     ScopeMode = ""
	ScopeModeExplicit ScopeMode = "explicit"
	ScopeModeAll      ScopeMode = "all"
	ScopeModeNodes    ScopeMode = "nodes"
)

// Modes returns every selection mode set on the request.
func (r ScopeRequest) Modes() []ScopeMode {
	var modes []ScopeMode
	for _, ids := range r.ConfigIDs {
		if len(ids) > 0 {
			modes = append(modes, ScopeModeExplicit)
			break
		}
	}
	if r.All {
		modes = append(modes, ScopeModeAll)
	}
	if len(r.NodeIDs) > 0 {
		modes = append(modes, ScopeModeNodes)
	}
	return modes
}

// Mode returns the single active mode, or ScopeModeNone when zero or several are set.
func (r ScopeRequest) Mode() ScopeMode {
	modes := r.Modes()
	if len(modes) != 1 {
		return ScopeModeNone
	}
	return modes[0]
}

// Label renders the human-readable scope stored on the run row.
func (r ScopeRequest) Label() string {
	switch r.Mode() {
	case ScopeModeAll:
		return ScopeAll
	case ScopeModeNodes:
		return joinIDs(r.NodeIDs)
	case ScopeModeExplicit:
		parts := make([]string, 0, len(Sources))
		for _, src := range Sources {
			if ids := r.ConfigIDs[src]; len(ids) > 0 {
				parts = append(parts, string(src)+":"+joinIDs(ids))
			}
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}

func joinIDs(ids []uint) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, ",")
}
