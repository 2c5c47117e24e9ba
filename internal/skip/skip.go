// Package skip implements InferSkipReason: given state and graph,
// explain why a node was not executed by tracing its inbound edges,
// recursively.
package skip

import (
	"github.com/gorax/workflow-core/internal/execstate"
	"github.com/gorax/workflow-core/internal/graph"
)

const (
	ReasonUpstreamFailure = "upstream_failure"
	ReasonConditionalBranch = "conditional_branch"
)

// InferSkipReason returns why nodeID was not executed, recursively tracing
// upstream. Pure and non-mutating; failure beats conditional.
func InferSkipReason(w *graph.Workflow, s *execstate.State, nodeID string) (reason string, blockedBy []string) {
	return inferSkipReason(w, s, nodeID, make(map[string]bool))
}

func inferSkipReason(w *graph.Workflow, s *execstate.State, nodeID string, visiting map[string]bool) (string, []string) {
	if visiting[nodeID] {
		// Defensive: cycles are rejected at validation, so this should
		// never trigger in practice.
		return ReasonUpstreamFailure, nil
	}
	visiting[nodeID] = true

	var failureBlockers, conditionalBlockers []string

	for _, e := range graph.InboundEdges(w, nodeID) {
		src := e.Source
		if _, errored := s.Error(src); errored {
			failureBlockers = append(failureBlockers, src)
			continue
		}
		if s.IsSkipped(src) {
			upstreamReason, _ := inferSkipReasonCached(w, s, src, visiting)
			if upstreamReason == ReasonUpstreamFailure {
				failureBlockers = append(failureBlockers, src)
			} else {
				conditionalBlockers = append(conditionalBlockers, src)
			}
			continue
		}
		if outputs, executed := s.Outputs(src); executed {
			if _, has := outputs.Get(e.SourceOutput); has {
				continue
			}
			if _, hasSeq := outputs.GetSequence(e.SourceOutput); hasSeq {
				continue
			}
			// src is a conditional fork that didn't populate this branch.
			conditionalBlockers = append(conditionalBlockers, src)
			continue
		}
		// src neither errored, skipped, nor executed: still pending.
		// This can't happen for a correctly leveled scheduler (upstream
		// nodes always resolve before downstream ones are inferred), but
		// treat conservatively as non-blocking rather than panic.
	}

	if len(failureBlockers) > 0 {
		return ReasonUpstreamFailure, failureBlockers
	}
	if len(conditionalBlockers) > 0 {
		return ReasonConditionalBranch, conditionalBlockers
	}
	return ReasonUpstreamFailure, nil
}

func inferSkipReasonCached(w *graph.Workflow, s *execstate.State, nodeID string, visiting map[string]bool) (string, []string) {
	if info, ok := s.SkipInfo(nodeID); ok {
		return info.Reason, info.BlockedBy
	}
	return inferSkipReason(w, s, nodeID, visiting)
}
