package template

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/sophialabs/mimicry/internal/domain/match"
)

// ExprCompiler compiles templates using the Expr language with ${ } interpolation.
type ExprCompiler struct{}

// Compile splits the source on ${ } delimiters and compiles each expression.
func (c *ExprCompiler) Compile(name, source string) (match.BodyRenderer, error) {
	segments, err := parseExprSegments(source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse expr template %q: %w", name, err)
	}

	for _, seg := range segments {
		if seg.program != nil {
			return &exprRenderer{segments: segments}, nil
		}
	}
	return &staticRenderer{body: []byte(source)}, nil
}

type exprSegment struct {
	static  string
	program *vm.Program
}

func parseExprSegments(source string) ([]exprSegment, error) {
	var segments []exprSegment
	rest := source

	for rest != "" {
		before, after, found := strings.Cut(rest, "${")
		if before != "" {
			segments = append(segments, exprSegment{static: before})
		}
		if !found {
			break
		}

		end := closingBrace(after)
		if end < 0 {
			return nil, fmt.Errorf("unclosed ${ at offset %d", len(source)-len(after)-2)
		}

		expression := after[:end]
		program, err := expr.Compile(expression, expr.Env(exprEnv{}))
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression %q: %w", expression, err)
		}
		segments = append(segments, exprSegment{program: program})
		rest = after[end+1:]
	}

	return segments, nil
}

// closingBrace finds the } closing an expression, skipping nested braces
// and quoted strings.
func closingBrace(s string) int {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			switch ch {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"', '`':
			quote = ch
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}

// exprEnv defines the environment available to Expr expressions.
type exprEnv struct {
	Request    map[string]any       `expr:"request"`
	Now        string               `expr:"now"`
	PathParam  func(string) string  `expr:"pathParam"`
	QueryParam func(string) string  `expr:"queryParam"`
	Header     func(string) string  `expr:"header"`
	NowFormat  func(string) string  `expr:"nowFormat"`
	UUID       func() string        `expr:"uuid"`
	RandomInt  func(int, int) int   `expr:"randomInt"`
	Seq        func(int, int) []int `expr:"seq"`
	ToJSON     func(any) string     `expr:"toJSON"`
	JSONPath   func(string) string  `expr:"jsonPath"`
}

func newExprEnv(ctx match.RenderContext) exprEnv {
	return exprEnv{
		Request:    requestView(ctx),
		Now:        ctx.Now,
		PathParam:  func(name string) string { return lookupFold(ctx.PathParams, name) },
		QueryParam: func(name string) string { return lookupFold(ctx.Query, name) },
		Header:     func(name string) string { return lookupFold(ctx.Headers, name) },
		NowFormat:  func(layout string) string { return formatNow(ctx.Now, layout) },
		UUID:       newUUID,
		RandomInt:  randomInt,
		Seq:        seqInts,
		ToJSON:     toJSONString,
		JSONPath:   func(expression string) string { return extractJSONPath(ctx.Body, expression) },
	}
}

type exprRenderer struct {
	segments []exprSegment
}

func (r *exprRenderer) Render(ctx match.RenderContext) ([]byte, error) {
	env := newExprEnv(ctx)

	var buf strings.Builder
	for _, seg := range r.segments {
		if seg.program == nil {
			buf.WriteString(seg.static)
			continue
		}
		out, err := expr.Run(seg.program, env)
		if err != nil {
			return nil, fmt.Errorf("expression evaluation failed: %w", err)
		}
		fmt.Fprintf(&buf, "%v", out)
	}
	return []byte(buf.String()), nil
}

// staticRenderer returns a fixed body; used when a template has no expressions.
type staticRenderer struct {
	body []byte
}

func (r *staticRenderer) Render(match.RenderContext) ([]byte, error) {
	return r.body, nil
}
