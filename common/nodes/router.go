package nodes

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// routeSpec is one entry of a router's routes config: a handle name plus a
// CEL predicate over the variable "input". An empty condition always matches
// and serves as the default route.
type routeSpec struct {
	Handle    string
	Condition string
}

// RouterNode evaluates its routes in config order and emits the full input on
// the first matching handle; every other handle carries nil, which cancels
// the consumers on it.
type RouterNode struct {
	title  string
	routes []routeSpec
}

func NewRouterNode(title string, config map[string]any) (Instance, error) {
	rawRoutes, ok := config["routes"].([]any)
	if !ok || len(rawRoutes) == 0 {
		return nil, fmt.Errorf("router requires a non-empty routes list")
	}

	n := &RouterNode{title: title}
	for i, raw := range rawRoutes {
		entry, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("route %d is not an object", i)
		}
		handle, _ := entry["handle"].(string)
		if handle == "" {
			return nil, fmt.Errorf("route %d has no handle", i)
		}
		condition, _ := entry["condition"].(string)
		if condition != "" {
			if _, err := compileCondition(condition); err != nil {
				return nil, fmt.Errorf("route %q: %w", handle, err)
			}
		}
		n.routes = append(n.routes, routeSpec{Handle: handle, Condition: condition})
	}
	return n, nil
}

func (n *RouterNode) Call(_ context.Context, input map[string]any) (Output, error) {
	routes := make(map[string]Output, len(n.routes))
	for _, r := range n.routes {
		routes[r.Handle] = nil
	}

	for _, r := range n.routes {
		matched := true
		if r.Condition != "" {
			var err error
			matched, err = evalCondition(r.Condition, input)
			if err != nil {
				return nil, fmt.Errorf("evaluate route %q: %w", r.Handle, err)
			}
		}
		if matched {
			routes[r.Handle] = MapOutput(input)
			break
		}
	}

	return &RouterOutput{Routes: routes}, nil
}

func (n *RouterNode) OutputModel() OutputModel { return routerModel{} }

// routerModel rebuilds a RouterOutput from its recorded fields, used when a
// router's output is injected as precomputed state on resume.
type routerModel struct{}

func (routerModel) Validate(raw map[string]any) (Output, error) {
	routes := make(map[string]Output, len(raw))
	for handle, v := range raw {
		if v == nil {
			routes[handle] = nil
			continue
		}
		m, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("route %q is neither null nor an object", handle)
		}
		routes[handle] = MapOutput(m)
	}
	return &RouterOutput{Routes: routes}, nil
}

var (
	programMu    sync.RWMutex
	programCache = make(map[string]cel.Program)
)

// compileCondition compiles a CEL predicate, caching programs by source.
// Conditions see the assembled input as the dyn variable "input".
func compileCondition(condition string) (cel.Program, error) {
	programMu.RLock()
	prg, ok := programCache[condition]
	programMu.RUnlock()
	if ok {
		return prg, nil
	}

	env, err := cel.NewEnv(cel.Variable("input", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("create cel environment: %w", err)
	}
	ast, issues := env.Compile(condition)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile condition: %w", issues.Err())
	}
	prg, err = env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build cel program: %w", err)
	}

	programMu.Lock()
	programCache[condition] = prg
	programMu.Unlock()
	return prg, nil
}

func evalCondition(condition string, input map[string]any) (bool, error) {
	prg, err := compileCondition(condition)
	if err != nil {
		return false, err
	}
	out, _, err := prg.Eval(map[string]any{"input": input})
	if err != nil {
		return false, fmt.Errorf("evaluate condition: %w", err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition result is %T, want bool", out.Value())
	}
	return matched, nil
}
