// Package swiftblade provides a Laravel Blade-compatible template
// engine for Go: expression evaluation, template inheritance, loops,
// conditionals, includes, legacy and x- components, stacks, and a
// two-tier cache, all driven by a sandboxed expression/statement
// evaluator rather than a transpile-to-html/template step.
//
// # Basic usage
//
//	eng := swiftblade.New("./resources/views")
//	out, err := eng.RenderString("pages.home", map[string]interface{}{
//	    "title": "Welcome",
//	})
//
// # Template syntax
//
//   - {{ $variable }} - escaped output
//   - {!! $variable !!} - raw/unescaped output
//   - {{-- comment --}} - comments (not rendered)
//   - @if($condition)...@endif, @unless...@endunless - conditionals
//   - @foreach(item in items)...@endforeach, @for(i in range), @while - loops
//   - @extends('layout'), @section...@endsection, @yield - inheritance
//   - @include('partial'), @includeIf - includes
//   - @component('alert')...@endcomponent, <x-alert> - components
//   - @push/@prepend/@stack - stacks
//
// See DESIGN.md for how each package was built and the design decisions
// behind it.
package swiftblade

import (
	"io"
	"time"

	"github.com/spf13/afero"

	"github.com/packalyst/swiftblade/engine"
	"github.com/packalyst/swiftblade/handlers"
)

// Engine is an alias for engine.Engine.
type Engine = engine.Engine

// Option is an alias for engine.Option.
type Option = engine.Option

// DirectiveFunc is an alias for handlers.DirectiveFunc, the signature a
// custom directive registered via RegisterDirective must satisfy.
type DirectiveFunc = handlers.DirectiveFunc

// CacheStorage is an alias for engine.CacheStorage.
type CacheStorage = engine.CacheStorage

// Cache storage kinds, see WithCacheStorage.
const (
	CacheMemory = engine.CacheMemory
	CacheDisk   = engine.CacheDisk
)

// New creates a new template engine rooted at viewsPath.
//
// Example:
//
//	eng := swiftblade.New("./resources/views")
//	eng := swiftblade.New("./views", swiftblade.WithExtension(".blade"))
func New(viewsPath string, opts ...Option) *Engine {
	return engine.New(viewsPath, opts...)
}

// WithExtension sets the template file extension (default: .html).
func WithExtension(ext string) Option { return engine.WithExtension(ext) }

// WithDevelopment enables development mode (disables caching).
func WithDevelopment(dev bool) Option { return engine.WithDevelopment(dev) }

// WithFilesystem overrides the afero.Fs collaborator used for template
// I/O, e.g. afero.NewMemMapFs() in tests.
func WithFilesystem(fs afero.Fs) Option { return engine.WithFilesystem(fs) }

// WithCacheStorage selects memory or disk backing for the raw-source
// cache tier.
func WithCacheStorage(storage engine.CacheStorage, cacheDir string) Option {
	return engine.WithCacheStorage(storage, cacheDir)
}

// WithCacheMaxSize bounds the number of entries each cache tier holds.
func WithCacheMaxSize(n int) Option { return engine.WithCacheMaxSize(n) }

// WithCacheTTL sets how long a compiled-token entry of the memory cache
// stays fresh (0 = infinite); raw-source entries carry no TTL.
func WithCacheTTL(ttl time.Duration) Option { return engine.WithCacheTTL(ttl) }

// WithStrictMode toggles whether an undefined variable in {{ }}/{!! !!}
// raises (true) or renders empty (false, the default).
func WithStrictMode(strict bool) Option { return engine.WithStrictMode(strict) }

// WithAllowPythonBlocks enables @python/@endpython blocks (default off).
func WithAllowPythonBlocks(allow bool) Option { return engine.WithAllowPythonBlocks(allow) }

// WithMaxLoopIterations bounds @for/@while/@foreach iteration counts.
func WithMaxLoopIterations(n int) Option { return engine.WithMaxLoopIterations(n) }

// WithMaxRecursionDepth bounds @include/@extends/component nesting.
func WithMaxRecursionDepth(n int) Option { return engine.WithMaxRecursionDepth(n) }

// WithMaxTemplateSize bounds the byte size of any single template.
func WithMaxTemplateSize(n int) Option { return engine.WithMaxTemplateSize(n) }

// Render is a convenience function that creates an engine and renders a
// template to w.
func Render(w io.Writer, viewsPath, name string, data map[string]interface{}) error {
	return New(viewsPath).Render(w, name, data)
}

// RenderString is a convenience function that creates an engine and
// renders a template to string.
func RenderString(viewsPath, name string, data map[string]interface{}) (string, error) {
	return New(viewsPath).RenderString(name, data)
}

// Directives lists every directive this engine recognises.
var Directives = []string{
	// Output
	"{{ }}", "{!! !!}", "{{-- --}}",

	// Inheritance
	"@extends", "@section", "@endsection", "@show", "@yield", "@parent",

	// Includes
	"@include", "@includeIf",

	// Conditionals
	"@if", "@elseif", "@else", "@endif",
	"@unless", "@endunless",
	"@isset", "@endisset", "@empty", "@endempty",
	"@switch", "@case", "@break", "@default", "@endswitch",

	// Loops
	"@for", "@endfor", "@foreach", "@endforeach",
	"@forelse", "@empty", "@endforelse",
	"@while", "@endwhile",
	"@continue",

	// Stacks
	"@push", "@endpush", "@prepend", "@endprepend", "@stack",

	// Components
	"@component", "@endcomponent", "@slot", "@endslot",
	"<x- ... />", "<x-slot:... />", "@props",

	// Misc
	"@python", "@endpython",
}
