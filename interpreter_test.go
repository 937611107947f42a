package phpworld

import (
	"log/slog"
	"testing"

	"github.com/sadewadee/phpworld/internal/inspector"
)

func TestDefaultSettingsMatchesTeacherStyleDefaults(t *testing.T) {
	s := DefaultSettings()
	if s.Transport != TransportCLI {
		t.Fatalf("expected CLI transport by default, got %v", s.Transport)
	}
	if s.PHPBinary != "php" {
		t.Fatalf("expected php binary \"php\", got %q", s.PHPBinary)
	}
}

func TestOnSymbolResolverWiredIntoHost(t *testing.T) {
	i := New(DefaultSettings())
	called := false
	i.OnSymbol(func(name string) (any, bool) {
		called = true
		if name != "Foo" {
			t.Fatalf("expected to be asked about Foo, got %q", name)
		}
		return 42, true
	})

	v, ok := i.host.ResolveSymbol("Foo")
	if !called || !ok || v.(int) != 42 {
		t.Fatalf("expected resolver to answer, got %v %v (called=%v)", v, ok, called)
	}
}

func TestWithLoggerOption(t *testing.T) {
	logger := slog.Default()
	i := New(DefaultSettings(), WithLogger(logger))
	if i.logger != logger {
		t.Fatal("expected WithLogger to set the interpreter's logger")
	}
}

func TestWithInspectorOptionAttachesTracer(t *testing.T) {
	insp := inspector.New(slog.Default())
	i := New(DefaultSettings(), WithInspector(insp))
	if i.Inspector() != insp {
		t.Fatal("expected WithInspector to be retrievable via Inspector()")
	}
	// A freshly attached inspector with no connected clients must never
	// block or panic when the controller traces a frame.
	i.ctrl.SetTracer(insp)
}

func TestInspectorWithoutOptionIsNil(t *testing.T) {
	i := New(DefaultSettings())
	if i.Inspector() != nil {
		t.Fatal("expected no inspector attached by default")
	}
}
