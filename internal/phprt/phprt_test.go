package phprt

import (
	"strings"
	"testing"
)

func TestSourceStartsWithPHPOpenTag(t *testing.T) {
	src := Source()
	if !strings.HasPrefix(string(src), "<?php") {
		t.Errorf("expected bootstrap source to start with <?php")
	}
	if !strings.Contains(string(src), "PhpWorldRuntime") {
		t.Errorf("expected bootstrap source to define PhpWorldRuntime")
	}
}

func TestSourceReturnsACopy(t *testing.T) {
	a := Source()
	a[0] = 'X'
	b := Source()
	if b[0] == 'X' {
		t.Error("Source() must return an independent copy each call")
	}
}

func TestInlineStripsOpenTagForDashR(t *testing.T) {
	s := string(Inline())
	if strings.HasPrefix(s, "<?php") {
		t.Error("php -r code must not carry the <?php tag")
	}
	if !strings.Contains(s, "PhpWorldRuntime") {
		t.Error("expected inline source to still contain the runtime body")
	}
}

func TestRenderInjectsInlineHelo(t *testing.T) {
	rendered := Render("abc def")
	s := string(rendered)
	if !strings.HasPrefix(s, "<?php const PHP_WORLD_INLINE_HELO = 'abc def';") {
		t.Errorf("expected inline HELO prelude, got prefix %q", s[:min(80, len(s))])
	}
	if !strings.Contains(s, "PhpWorldRuntime") {
		t.Error("expected rendered script to still contain the runtime body")
	}
}

func TestRenderEscapesQuotes(t *testing.T) {
	rendered := Render(`it's a test \ value`)
	s := string(rendered)
	if !strings.Contains(s, `it\'s a test \\ value`) {
		t.Errorf("expected escaped HELO literal, got %q", s[:min(120, len(s))])
	}
}
