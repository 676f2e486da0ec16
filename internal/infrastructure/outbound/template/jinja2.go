package template

import (
	"fmt"

	"github.com/flosch/pongo2/v6"

	"github.com/sophialabs/mimicry/internal/domain/match"
)

// Jinja2Compiler compiles templates using Pongo2 (Django/Jinja2-style).
type Jinja2Compiler struct{}

// Compile parses the source as a Pongo2 template.
func (c *Jinja2Compiler) Compile(name, source string) (match.BodyRenderer, error) {
	tpl, err := pongo2.FromString(source)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jinja2 template %q: %w", name, err)
	}
	return &jinja2Renderer{tpl: tpl}, nil
}

type jinja2Renderer struct {
	tpl *pongo2.Template
}

func (r *jinja2Renderer) Render(ctx match.RenderContext) ([]byte, error) {
	pctx := pongo2.Context{
		"request": requestView(ctx),
		"now":     ctx.Now,

		"pathParam":  func(name string) string { return lookupFold(ctx.PathParams, name) },
		"queryParam": func(name string) string { return lookupFold(ctx.Query, name) },
		"header":     func(name string) string { return lookupFold(ctx.Headers, name) },
		"uuid":       newUUID,
		"randomInt":  randomInt,
		"seq":        seqInts,
		"toJSON":     toJSONString,
		"jsonPath":   func(expression string) string { return extractJSONPath(ctx.Body, expression) },
		"nowFormat":  func(layout string) string { return formatNow(ctx.Now, layout) },
	}

	out, err := r.tpl.ExecuteBytes(pctx)
	if err != nil {
		return nil, fmt.Errorf("jinja2 template render failed: %w", err)
	}
	return out, nil
}
