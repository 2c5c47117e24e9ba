package nodes

import (
	"encoding/json"
	"fmt"

	"github.com/gorax/workflow-core/internal/registry"
	"github.com/gorax/workflow-core/internal/value"
)

// TransformConfig is a JSON mapping template applied to input data via
// encoding/json only — no templating engine, stdlib-only.
type TransformConfig struct {
	Mapping map[string]string `json:"mapping"`
}

type transformNode struct {
	cfg TransformConfig
}

func NewTransformNode() registry.Constructor {
	return func(config map[string]any) (registry.Executable, error) {
		raw, err := json.Marshal(config)
		if err != nil {
			return nil, fmt.Errorf("transform node: marshal config: %w", err)
		}
		var cfg TransformConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("transform node: parse config: %w", err)
		}
		return &transformNode{cfg: cfg}, nil
	}
}

// Execute copies each input named as a mapping value into the output
// named by its mapping key; this is the simplest well-formed transform
// that exercises the marshaler's JSON passthrough path.
func (n *transformNode) Execute(nctx *registry.NodeContext) (registry.Result, error) {
	outputs := make(value.NodeRuntimeValues, len(n.cfg.Mapping))
	for outName, inName := range n.cfg.Mapping {
		if v, ok := nctx.Inputs.Get(inName); ok {
			outputs[outName] = v
		}
	}
	return registry.Completed(outputs, 0), nil
}

func TransformMeta() registry.NodeTypeMeta {
	return registry.NodeTypeMeta{
		ID: "action:transform",
		Tags: []string{"action", "data"},
		Inputs: []value.ParameterSpec{{Name: "data", Type: value.TypeJSON, Required: false}},
		Outputs: []value.ParameterSpec{{Name: "result", Type: value.TypeJSON}},
		Usage: 0,
		Documentation: "Remaps named inputs to named outputs.",
	}
}
