package phpworld

import (
	"context"
	"testing"
)

func newTestInterpreter() *Interpreter {
	return New(DefaultSettings())
}

// These exercise only the validation that happens before any protocol
// I/O: building a malformed path is rejected synchronously, well before the
// interpreter would ever need to be live.

func TestProxyRejectsSpaceInName(t *testing.T) {
	i := newTestInterpreter()
	p := i.Global("$bad name")
	if p.Err() == nil {
		t.Fatal("expected a validation error for a space in a global name")
	}
	if _, _, err := p.Await(context.Background()); err == nil {
		t.Fatal("expected Await to surface the same error")
	}
}

func TestProxyRejectsSpaceInIndex(t *testing.T) {
	i := newTestInterpreter()
	p := i.Global("$v").Index("bad key")
	if p.Err() == nil {
		t.Fatal("expected a validation error for a space in a subscript key")
	}
}

func TestProxyClassRootErrorWithoutRootingClass(t *testing.T) {
	i := newTestInterpreter()
	p := i.Class().Get("$c").Index("k1")
	if _, _, err := p.Await(context.Background()); err == nil {
		t.Fatal("expected an error: a class-static chain needs a rooting class")
	}
}

func TestProxyInvalidClassSegment(t *testing.T) {
	i := newTestInterpreter()
	p := i.Class("A-B", "X")
	if _, _, err := p.Await(context.Background()); err == nil {
		t.Fatal("expected an error for an invalid class segment")
	}
}

func TestProxyEmptyPathIsNotReadable(t *testing.T) {
	i := newTestInterpreter()
	if _, _, err := i.Class().Await(context.Background()); err == nil {
		t.Fatal("expected an error for an empty path")
	}
}

func TestProxyConstantsAreNotAssignableOrDeletable(t *testing.T) {
	i := newTestInterpreter()
	p := i.Global("MY_CONST")
	if err := p.Set(context.Background(), 1); err == nil {
		t.Fatal("expected constants to reject assignment")
	}
	if err := p.Delete(context.Background()); err == nil {
		t.Fatal("expected constants to reject deletion")
	}
}

func TestProxyClassStaticSetRejectsSubscript(t *testing.T) {
	i := newTestInterpreter()
	p := i.Class("A", "B").Get("$c").Index("k1")
	if err := p.Set(context.Background(), 1); err == nil {
		t.Fatal("expected subscripted class-static assignment to be rejected")
	}
}

func TestProxyOnlyNamePathsAreCallable(t *testing.T) {
	i := newTestInterpreter()
	p := i.Global("$v")
	if _, err := p.Call(context.Background()); err == nil {
		t.Fatal("expected a $variable path to reject Call")
	}
}

func TestSpecialFunctionsValidateArgCounts(t *testing.T) {
	i := newTestInterpreter()
	ctx := context.Background()

	if _, err := i.Global("eval").Call(ctx); err == nil {
		t.Fatal("expected eval with no arguments to be rejected locally")
	}
	if _, err := i.Global("eval").Call(ctx, 42); err == nil {
		t.Fatal("expected eval with a non-string argument to be rejected locally")
	}
	if _, err := i.Global("echo").Call(ctx); err == nil {
		t.Fatal("expected echo with no arguments to be rejected locally")
	}
	if _, err := i.Global("require_once").Call(ctx, "a.php", "b.php"); err == nil {
		t.Fatal("expected require_once with two arguments to be rejected locally")
	}
	if _, err := i.Global("exit").Call(ctx, 1); err == nil {
		t.Fatal("expected exit with arguments to be rejected locally")
	}
}

func TestProxyErrorShortCircuitsChaining(t *testing.T) {
	i := newTestInterpreter()
	p := i.Global("$bad name").Get("nested").Index("more")
	if p.Err() == nil {
		t.Fatal("expected the original error to survive further chaining")
	}
}

func TestProxyEvalOnlyChainsThis(t *testing.T) {
	i := newTestInterpreter()
	p := i.Eval("1+1")
	if p.Err() != nil {
		t.Fatalf("unexpected error building an eval proxy: %v", p.Err())
	}
	if chained := p.Get("somethingElse"); chained.Err() == nil {
		t.Fatal("expected eval proxies to reject chaining other than.Prop(\"this\")")
	}
	withThis := p.Prop("this")
	if withThis.Err() != nil {
		t.Fatalf("unexpected error for eval.Prop(\"this\"): %v", withThis.Err())
	}
	if !withThis.asThis {
		t.Fatal("expected asThis to be set")
	}
}

func TestProxyNewRequiresClassRootedPath(t *testing.T) {
	i := newTestInterpreter()
	if _, err := i.Global("notAClass").New(context.Background()); err == nil {
		t.Fatal("expected New on a non-class proxy to fail")
	}
	if _, err := i.Class("A", "$var").New(context.Background()); err == nil {
		t.Fatal("expected New on a variable path to fail")
	}
}

func TestProxyIterateRequiresBareInstance(t *testing.T) {
	i := newTestInterpreter()
	inst := instanceProxy(i, 5)
	if _, err := inst.Get("prop").Iterate(context.Background()); err == nil {
		t.Fatal("expected Iterate to require a bare instance proxy")
	}
}

func TestProxyInstanceOnlyOpsRequireBareInstance(t *testing.T) {
	i := newTestInterpreter()
	ctx := context.Background()
	chained := instanceProxy(i, 5).Get("prop")

	if _, err := chained.ToString(ctx); err == nil {
		t.Fatal("expected ToString to require a bare instance proxy")
	}
	if _, err := chained.Props(ctx); err == nil {
		t.Fatal("expected Props to require a bare instance proxy")
	}
	if _, err := instanceProxy(i, 5).Isset(ctx, "bad name"); err == nil {
		t.Fatal("expected Isset to reject a property name with spaces")
	}
}

func TestProxyInstanceOfRequiresBareInstance(t *testing.T) {
	i := newTestInterpreter()
	inst := instanceProxy(i, 5)
	if _, err := inst.Get("prop").InstanceOf(context.Background(), "Foo"); err == nil {
		t.Fatal("expected InstanceOf to require a bare instance proxy")
	}
}

func TestProxyPropThisKeepsInstanceHandle(t *testing.T) {
	i := newTestInterpreter()
	inst := instanceProxy(i, 5)
	this := inst.Prop("this")
	if this.kind != kindInstance || this.instanceID != 5 {
		t.Fatalf("expected Prop(\"this\") to stay a handle to the same instance, got %#v", this)
	}
}

func TestEncodeArgRejectsUnawaitedProxy(t *testing.T) {
	i := newTestInterpreter()
	p := i.Global("SomeGlobal")
	if _, err := i.encodeArg(context.Background(), p); err == nil {
		t.Fatal("expected encodeArg to reject a non-instance proxy argument")
	}
}

func TestEncodeArgPassesThroughBasicValues(t *testing.T) {
	i := newTestInterpreter()
	v, err := i.encodeArg(context.Background(), 42)
	if err != nil {
		t.Fatalf("encodeArg: %v", err)
	}
	if v.(int) != 42 {
		t.Fatalf("got %v", v)
	}
}

func TestEncodeArgMarksMaterializedInstance(t *testing.T) {
	i := newTestInterpreter()
	inst := instanceProxy(i, 9)
	v, err := i.encodeArg(context.Background(), inst)
	if err != nil {
		t.Fatalf("encodeArg: %v", err)
	}
	m, ok := v.(map[string]int32)
	if !ok || m["PHP_WORLD_INST_ID"] != 9 {
		t.Fatalf("expected a PHP marker for id 9, got %#v", v)
	}
}
