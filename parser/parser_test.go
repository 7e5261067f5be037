package parser

import (
	"strings"
	"testing"

	"github.com/packalyst/swiftblade/evaluator"
	"github.com/packalyst/swiftblade/runtime"
)

type stubResolver struct {
	templates map[string]string
}

func (s stubResolver) Resolve(name string) (string, error) {
	src, ok := s.templates[name]
	if !ok {
		return "", errNotFound(name)
	}
	return src, nil
}

type notFoundErr string

func (e notFoundErr) Error() string { return "template not found: " + string(e) }
func errNotFound(name string) error { return notFoundErr(name) }

func newTestParser(templates map[string]string) *Parser {
	return New(evaluator.New(), stubResolver{templates: templates}, nil)
}

func TestParser_VariableInterpolation(t *testing.T) {
	p := newTestParser(nil)
	out, err := p.Render("Hello {{ name }}!", runtime.Map{"name": "World"}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Hello World!" {
		t.Fatalf("expected %q, got %q", "Hello World!", out)
	}
}

func TestParser_EscapesByDefault(t *testing.T) {
	p := newTestParser(nil)
	out, err := p.Render("{{ value }}", runtime.Map{"value": "<b>x</b>"}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out, "<b>") {
		t.Fatalf("expected escaped output, got %q", out)
	}
}

func TestParser_RawEchoSkipsEscaping(t *testing.T) {
	p := newTestParser(nil)
	out, err := p.Render("{!! value !!}", runtime.Map{"value": "<b>x</b>"}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "<b>x</b>" {
		t.Fatalf("expected raw output, got %q", out)
	}
}

func TestParser_IfDirective(t *testing.T) {
	p := newTestParser(nil)
	tmpl := "@if(show)visible@else hidden@endif"
	out, err := p.Render(tmpl, runtime.Map{"show": true}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "visible" {
		t.Fatalf("expected %q, got %q", "visible", out)
	}

	out, err = p.Render(tmpl, runtime.Map{"show": false}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(out) != "hidden" {
		t.Fatalf("expected %q, got %q", "hidden", out)
	}
}

func TestParser_ForeachDirective(t *testing.T) {
	p := newTestParser(nil)
	tmpl := "@foreach(item in items){{ item }},@endforeach"
	out, err := p.Render(tmpl, runtime.Map{"items": []interface{}{"a", "b", "c"}}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "a,b,c," {
		t.Fatalf("expected %q, got %q", "a,b,c,", out)
	}
}

func TestParser_ForeachBreakInsideIf(t *testing.T) {
	p := newTestParser(nil)
	tmpl := "@foreach(i in range(5))@if(i == 3)@break @endif{{ i }}@endforeach"
	out, err := p.Render(tmpl, runtime.Map{}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "012" {
		t.Fatalf("expected %q, got %q", "012", out)
	}
}

func TestParser_ForeachKeyValueBinding(t *testing.T) {
	p := newTestParser(nil)
	tmpl := "@foreach(i => item in items){{ i }}:{{ item }},@endforeach"
	out, err := p.Render(tmpl, runtime.Map{"items": []interface{}{"a", "b"}}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "0:a,1:b," {
		t.Fatalf("expected %q, got %q", "0:a,1:b,", out)
	}
}

func TestParser_ForDirective(t *testing.T) {
	p := newTestParser(nil)
	tmpl := "@for(i in range(3)){{ i }}@endfor"
	out, err := p.Render(tmpl, runtime.Map{}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "012" {
		t.Fatalf("expected %q, got %q", "012", out)
	}
}

func TestParser_ForeachMalformedHeader(t *testing.T) {
	p := newTestParser(nil)
	_, err := p.Render("@foreach(items as item){{ item }}@endforeach", runtime.Map{"items": []interface{}{"a"}}, 10)
	if err == nil {
		t.Fatalf("expected error for Laravel-style header, got nil")
	}
}

func TestParser_Include(t *testing.T) {
	p := newTestParser(map[string]string{
		"partial": "partial: {{ name }}",
	})
	out, err := p.Render(`@include('partial')`, runtime.Map{"name": "x"}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "partial: x" {
		t.Fatalf("expected %q, got %q", "partial: x", out)
	}
}

func TestParser_Extends(t *testing.T) {
	p := newTestParser(map[string]string{
		"layout": "before @yield('content') after",
	})
	out, err := p.Render("@extends('layout')\n@section('content')middle@endsection", runtime.Map{}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "before middle after" {
		t.Fatalf("expected %q, got %q", "before middle after", out)
	}
}
