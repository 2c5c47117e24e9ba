package nodes

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gorax/workflow-core/internal/registry"
	"github.com/gorax/workflow-core/internal/value"
)

// FormulaConfig is an expr-lang expression evaluated against the
// node's inputs.
type FormulaConfig struct {
	Expression string `json:"expression"`
}

// formulaCache is a compiled-program cache shared by every formula
// node instance (no package-level singleton: the cache is built once
// by NewFormulaNode's caller via NewFormulaCache and threaded through).
type formulaCache struct {
	mu sync.Mutex
	cache *lru.Cache[string, *vm.Program]
}

func NewFormulaCache(size int) *formulaCache {
	c, err := lru.New[string, *vm.Program](size)
	if err != nil {
		panic("formula node: failed to create cache: " + err.Error())
	}
	return &formulaCache{cache: c}
}

type formulaNode struct {
	cfg FormulaConfig
	cache *formulaCache
}

func NewFormulaNode(cache *formulaCache) registry.Constructor {
	if cache == nil {
		cache = NewFormulaCache(256)
	}
	return func(config map[string]any) (registry.Executable, error) {
		raw, err := json.Marshal(config)
		if err != nil {
			return nil, fmt.Errorf("formula node: marshal config: %w", err)
		}
		var cfg FormulaConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("formula node: parse config: %w", err)
		}
		if cfg.Expression == "" {
			return nil, fmt.Errorf("formula node: expression is required")
		}
		return &formulaNode{cfg: cfg, cache: cache}, nil
	}
}

func (n *formulaNode) Execute(nctx *registry.NodeContext) (registry.Result, error) {
	env := make(map[string]any, len(nctx.Inputs))
	for k, v := range nctx.Inputs {
		switch val := v.(type) {
		case value.Value:
			env[k] = renderValue(val)
		case value.Sequence:
			seq := make([]any, len(val.Values))
			for i, e := range val.Values {
				seq[i] = renderValue(e)
			}
			env[k] = seq
		}
	}

	n.cache.mu.Lock()
	program, found := n.cache.cache.Get(n.cfg.Expression)
	n.cache.mu.Unlock()

	if !found {
		compiled, err := expr.Compile(n.cfg.Expression, expr.Env(env))
		if err != nil {
			return registry.Errored(fmt.Sprintf("formula node: compile: %v", err), 0), nil
		}
		program = compiled
		n.cache.mu.Lock()
		n.cache.cache.Add(n.cfg.Expression, program)
		n.cache.mu.Unlock()
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return registry.Errored(fmt.Sprintf("formula node: evaluate: %v", err), 0), nil
	}

	return registry.Completed(value.NodeRuntimeValues{
			"result": value.JSON(result),
		}, 0), nil
}

func FormulaMeta() registry.NodeTypeMeta {
	return registry.NodeTypeMeta{
		ID: "action:formula",
		Tags: []string{"action", "compute"},
		Outputs: []value.ParameterSpec{{Name: "result", Type: value.TypeJSON}},
		Usage: 0,
		Documentation: "Evaluates an expr-lang expression against the node's inputs.",
	}
}
