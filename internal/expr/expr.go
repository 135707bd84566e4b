// Package expr evaluates the ${...} JavaScript expressions embedded in
// pipeline documents: script templates, glob patterns, publish dir
// templates, and map_ids transforms. Evaluation runs on goja with a
// fresh VM per call so expressions cannot leak state into each other.
package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

// Context carries the variables visible to an expression.
type Context struct {
	vars map[string]any
}

// NewContext creates an empty expression context.
func NewContext() *Context {
	return &Context{vars: make(map[string]any)}
}

// WithParams binds the pipeline params map as `params`.
func (c *Context) WithParams(params map[string]any) *Context {
	if params == nil {
		params = map[string]any{}
	}
	c.vars["params"] = params
	return c
}

// WithSample binds `sample` with `id` and `files` fields. The file
// list is also aliased as a top-level `files` for terse templates.
func (c *Context) WithSample(id string, files []string) *Context {
	fs := make([]any, len(files))
	for i, f := range files {
		fs[i] = f
	}
	c.vars["sample"] = map[string]any{"id": id, "files": fs}
	c.vars["files"] = fs
	return c
}

// WithTask binds `task` resource directives (cpus, env).
func (c *Context) WithTask(cpus int, env string) *Context {
	c.vars["task"] = map[string]any{"cpus": cpus, "env": env}
	return c
}

// WithID binds a bare `id` variable (used by map_ids transforms).
func (c *Context) WithID(id string) *Context {
	c.vars["id"] = id
	return c
}

// Evaluator renders templates containing ${...} expressions.
type Evaluator struct{}

// New creates an Evaluator.
func New() *Evaluator {
	return &Evaluator{}
}

func (e *Evaluator) setupVM(ctx *Context) (*goja.Runtime, error) {
	vm := goja.New()
	for name, val := range ctx.vars {
		if err := vm.Set(name, val); err != nil {
			return nil, fmt.Errorf("set %s: %w", name, err)
		}
	}
	return vm, nil
}

// Render interpolates every ${...} occurrence in the template and
// returns the resulting string. Literals pass through untouched and
// \${ escapes a literal dollar-brace.
func (e *Evaluator) Render(template string, ctx *Context) (string, error) {
	if !strings.Contains(template, "${") {
		return strings.ReplaceAll(template, `\$`, "$"), nil
	}

	vm, err := e.setupVM(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	rest := template
	for {
		idx := strings.Index(rest, "${")
		if idx < 0 {
			b.WriteString(rest)
			break
		}
		// Honor the \${ escape.
		if idx > 0 && rest[idx-1] == '\\' {
			b.WriteString(rest[:idx-1])
			b.WriteString("${")
			rest = rest[idx+2:]
			continue
		}
		b.WriteString(rest[:idx])

		body := rest[idx+1:] // starts at the opening brace
		end := findMatchingBrace(body)
		if end < 0 {
			return "", fmt.Errorf("unterminated ${...} expression in %q", template)
		}
		code := body[1:end]
		val, err := vm.RunString(code)
		if err != nil {
			return "", fmt.Errorf("evaluate ${%s}: %w", code, err)
		}
		b.WriteString(toString(val.Export()))
		rest = body[end+1:]
	}
	return b.String(), nil
}

// EvalString evaluates a bare JavaScript expression (no ${} wrapper)
// and returns its string value. Used by map_ids transforms.
func (e *Evaluator) EvalString(code string, ctx *Context) (string, error) {
	vm, err := e.setupVM(ctx)
	if err != nil {
		return "", err
	}
	val, err := vm.RunString(code)
	if err != nil {
		return "", fmt.Errorf("evaluate %q: %w", code, err)
	}
	out := val.Export()
	s, ok := out.(string)
	if !ok {
		return "", fmt.Errorf("expression %q returned %T, want string", code, out)
	}
	return s, nil
}

// findMatchingBrace returns the index of the brace closing the block
// that starts at s[0] ('{'), or -1. Braces inside single- or
// double-quoted strings are ignored.
func findMatchingBrace(s string) int {
	if len(s) == 0 || s[0] != '{' {
		return -1
	}
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == '\\' {
				i++
				continue
			}
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// toString converts an exported goja value to its template rendering.
func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}
