package parser

import (
	"strings"
	"testing"

	"github.com/packalyst/swiftblade/runtime"
)

func TestParser_XComponentProps(t *testing.T) {
	p := newTestParser(map[string]string{
		"components.alert": "@props(['type' => 'info', 'dismissible' => false])" +
			"<div class=\"alert-{{ type }}\" {{ attributes }}>{{ slot }}</div>",
	})
	tmpl := `<x-alert id="box" :type="'danger'">careful</x-alert>`
	out, err := p.Render(tmpl, runtime.Map{}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `alert-danger`) {
		t.Fatalf("expected overridden prop in output, got %q", out)
	}
	if !strings.Contains(out, `id="box"`) {
		t.Fatalf("expected pass-through attribute in output, got %q", out)
	}
	if !strings.Contains(out, "careful") {
		t.Fatalf("expected default slot content in output, got %q", out)
	}
}

func TestParser_XComponentPropDefaultUnset(t *testing.T) {
	p := newTestParser(map[string]string{
		"components.badge": "@props(['color' => 'gray'])<span>{{ color }}</span>",
	})
	out, err := p.Render(`<x-badge />`, runtime.Map{}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "<span>gray</span>" {
		t.Fatalf("expected default to apply, got %q", out)
	}
}

func TestParser_XComponentNamedSlotColonSyntax(t *testing.T) {
	p := newTestParser(map[string]string{
		"components.card": "<div>{{ title }}{{ slot }}</div>",
	})
	tmpl := `<x-card><x-slot:title>Header</x-slot:title>Body</x-card>`
	out, err := p.Render(tmpl, runtime.Map{}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "<div>HeaderBody</div>" {
		t.Fatalf("expected %q, got %q", "<div>HeaderBody</div>", out)
	}
}

func TestParser_LegacyComponentSlots(t *testing.T) {
	p := newTestParser(map[string]string{
		"alert-box": "<div>{{ title }} - {{ slot }}</div>",
	})
	tmpl := `@component('alert-box')
@slot('title')Warning@endslot
body text
@endcomponent`
	out, err := p.Render(tmpl, runtime.Map{}, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Warning") || !strings.Contains(out, "body text") {
		t.Fatalf("expected slot and default content in output, got %q", out)
	}
}
