package proxypath

import "testing"

func mustAppendName(t *testing.T, p Path, name string) Path {
	t.Helper()
	np, err := AppendName(p, name)
	if err != nil {
		t.Fatalf("AppendName(%q): %v", name, err)
	}
	return np
}

func TestClassifyConstant(t *testing.T) {
	p := mustAppendName(t, nil, "A")
	p = mustAppendName(t, p, "B")
	shape, err := Classify(p, false)
	if err != nil || shape != ShapeConstant {
		t.Fatalf("got %v, %v", shape, err)
	}
}

func TestClassifyGlobalVar(t *testing.T) {
	p := mustAppendName(t, nil, "$v")
	shape, err := Classify(p, false)
	if err != nil || shape != ShapeGlobalVar {
		t.Fatalf("got %v, %v", shape, err)
	}
}

func TestClassifyClassConstant(t *testing.T) {
	p := mustAppendName(t, nil, "A")
	p = mustAppendName(t, p, "B")
	p = mustAppendName(t, p, "X")
	shape, err := Classify(p, true)
	if err != nil || shape != ShapeClassConstant {
		t.Fatalf("got %v, %v", shape, err)
	}
}

func TestClassifyClassStaticVarAndSplit(t *testing.T) {
	p := mustAppendName(t, nil, "A")
	p = mustAppendName(t, p, "B")
	p = mustAppendName(t, p, "$c")
	var err error
	p, err = AppendIndex(p, "k1")
	if err != nil {
		t.Fatal(err)
	}

	shape, err := Classify(p, true)
	if err != nil || shape != ShapeClassStaticVar {
		t.Fatalf("got %v, %v", shape, err)
	}

	classPath, varName, subscript := Split(p)
	if JoinClassName(classPath) != `A\B` {
		t.Fatalf("class path: %v", classPath)
	}
	if varName != "$c" {
		t.Fatalf("var name: %v", varName)
	}
	if len(subscript) != 1 || subscript[0].Name != "k1" {
		t.Fatalf("subscript: %v", subscript)
	}
}

func TestClassifyClassRootError(t *testing.T) {
	p := mustAppendName(t, nil, "$c")
	p, _ = AppendIndex(p, "k1")
	shape, err := Classify(p, true)
	if shape != ShapeClassRootError || err == nil {
		t.Fatalf("expected root error, got %v, %v", shape, err)
	}
}

func TestAppendNameRejectsSpaces(t *testing.T) {
	_, err := AppendName(nil, "bad name")
	if err == nil {
		t.Fatal("expected error for space in name")
	}
	var spaceErr *ErrSpaceInName
	if !asSpaceErr(err, &spaceErr) {
		t.Fatalf("expected ErrSpaceInName, got %T: %v", err, err)
	}
}

func asSpaceErr(err error, target **ErrSpaceInName) bool {
	e, ok := err.(*ErrSpaceInName)
	if ok {
		*target = e
	}
	return ok
}

func TestValidateClassSegmentsRejectsInvalid(t *testing.T) {
	p := mustAppendName(t, nil, "A-B")
	if err := ValidateClassSegments(p); err == nil {
		t.Fatal("expected invalid class segment error")
	}
}
