package nodes

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorax/workflow-core/internal/registry"
	"github.com/gorax/workflow-core/internal/value"
)

// DelayConfig is a fixed pause before the node completes.
type DelayConfig struct {
	DurationMs int `json:"durationMs"`
}

type delayNode struct {
	cfg DelayConfig
}

func NewDelayNode() registry.Constructor {
	return func(config map[string]any) (registry.Executable, error) {
		raw, err := json.Marshal(config)
		if err != nil {
			return nil, fmt.Errorf("delay node: marshal config: %w", err)
		}
		var cfg DelayConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("delay node: parse config: %w", err)
		}
		return &delayNode{cfg: cfg}, nil
	}
}

// Execute blocks for the configured duration itself, returning early
// with an error if the node context is cancelled. It does not use the
// step package's Sleep; under a durable step runner a replayed node run
// returns its cached result without calling Execute again.
func (n *delayNode) Execute(nctx *registry.NodeContext) (registry.Result, error) {
	d := time.Duration(n.cfg.DurationMs) * time.Millisecond
	select {
	case <-time.After(d):
	case <-nctx.Context.Done():
		return registry.Errored("delay node: cancelled", 0), nctx.Context.Err()
	}
	return registry.Completed(value.NodeRuntimeValues{}, 0), nil
}

func DelayMeta() registry.NodeTypeMeta {
	return registry.NodeTypeMeta{
		ID: "action:delay",
		Tags: []string{"action", "control"},
		Usage: 0,
		Documentation: "Pauses execution for a fixed duration.",
	}
}
