package nodes

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/gorax/workflow-core/internal/registry"
	"github.com/gorax/workflow-core/internal/value"
)

// ScriptConfig is a goja-evaluated JavaScript snippet with an optional
// timeout.
type ScriptConfig struct {
	Script string `json:"script"`
	Timeout int `json:"timeout,omitempty"` // milliseconds
}

// forbiddenGlobals is removed from the runtime before the script runs
// so it cannot reach outside the sandbox.
var forbiddenGlobals = []string{
	"require", "module", "exports", "__dirname", "__filename", "process",
	"Buffer", "global", "globalThis", "window", "document", "location",
	"navigator", "fetch", "XMLHttpRequest", "WebSocket", "eval", "Function",
}

type scriptNode struct {
	cfg ScriptConfig
}

func NewScriptNode() registry.Constructor {
	return func(config map[string]any) (registry.Executable, error) {
		raw, err := json.Marshal(config)
		if err != nil {
			return nil, fmt.Errorf("script node: marshal config: %w", err)
		}
		var cfg ScriptConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("script node: parse config: %w", err)
		}
		if cfg.Script == "" {
			return nil, fmt.Errorf("script node: script is required")
		}
		return &scriptNode{cfg: cfg}, nil
	}
}

func (n *scriptNode) Execute(nctx *registry.NodeContext) (registry.Result, error) {
	vm := goja.New()
	for _, g := range forbiddenGlobals {
		_ = vm.GlobalObject().Delete(g)
	}

	inputs := make(map[string]any, len(nctx.Inputs))
	for k, v := range nctx.Inputs {
		if val, ok := v.(value.Value); ok {
			inputs[k] = renderValue(val)
		}
	}
	if err := vm.Set("inputs", inputs); err != nil {
		return registry.Errored(fmt.Sprintf("script node: bind inputs: %v", err), 0), nil
	}

	timeout := time.Duration(n.cfg.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	timer := time.AfterFunc(timeout, func() {
			vm.Interrupt("script timeout exceeded")
	})
	defer timer.Stop()

	result, err := vm.RunString(n.cfg.Script)
	if err != nil {
		return registry.Errored(fmt.Sprintf("script node: execution failed: %v", err), 0), nil
	}

	return registry.Completed(value.NodeRuntimeValues{
			"result": value.JSON(result.Export()),
		}, 0), nil
}

func ScriptMeta() registry.NodeTypeMeta {
	return registry.NodeTypeMeta{
		ID: "action:script",
		Tags: []string{"action", "compute"},
		Outputs: []value.ParameterSpec{{Name: "result", Type: value.TypeJSON}},
		Usage: 1,
		Documentation: "Runs a sandboxed JavaScript snippet (goja) against the node's inputs.",
	}
}
