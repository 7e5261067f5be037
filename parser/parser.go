// Package parser owns the fixed, ordered pipeline that turns one
// template's raw source into fully rendered output: resolve
// inheritance once, then run each directive family in the order
// blade/parser.py's TemplateParser.process_template defines, finishing
// with variable interpolation. It implements handlers.Renderer so
// handlers can recurse back into the whole pipeline for @include,
// @extends and component bodies without an import cycle.
package parser

import (
	"github.com/packalyst/swiftblade/evaluator"
	"github.com/packalyst/swiftblade/handlers"
	"github.com/packalyst/swiftblade/runtime"
)

// Resolver resolves a template name to its raw source text. The engine
// package implements this over its filesystem and cache layers.
type Resolver interface {
	Resolve(name string) (string, error)
}

// Parser drives one render's full directive pipeline.
type Parser struct {
	eval       *evaluator.Evaluator
	resolver   Resolver
	directives *handlers.DirectiveRegistry
}

func New(eval *evaluator.Evaluator, resolver Resolver, directives *handlers.DirectiveRegistry) *Parser {
	return &Parser{eval: eval, resolver: resolver, directives: directives}
}

// Resolve satisfies handlers.Renderer by delegating to the engine's
// template resolver.
func (p *Parser) Resolve(name string) (string, error) {
	return p.resolver.Resolve(name)
}

// Render resolves inheritance for source then runs the full directive
// pipeline against ctx, fresh RenderState included — the entry point for
// a top-level render call.
func (p *Parser) Render(source string, ctx runtime.Context, maxRecursion int) (string, error) {
	state := runtime.NewRenderState(maxRecursion)
	return p.RenderWithState(source, ctx, state)
}

func (p *Parser) RenderWithState(source string, ctx runtime.Context, state *runtime.RenderState) (string, error) {
	extended, err := handlers.ResolveExtends(source, p.eval, ctx, state, p)
	if err != nil {
		return "", err
	}
	return p.Process(extended, ctx, state)
}

// Process runs the fixed pipeline over source, already past inheritance
// resolution: x-components, legacy components, include, custom
// directives, control structures (misc, switch, loop, conditional),
// stacks, then variables. Grounded on blade/parser.py's
// process_template ordering.
func (p *Parser) Process(source string, ctx runtime.Context, state *runtime.RenderState) (string, error) {
	return handlers.ProcessInline(source, p.eval, ctx, state, p, p.directives)
}
