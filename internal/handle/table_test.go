package handle

import "testing"

func TestAllocReleaseCount(t *testing.T) {
	tbl := New[string](2)

	id1 := tbl.Alloc("a")
	id2 := tbl.Alloc("b")
	if id1 != 2 || id2 != 3 {
		t.Fatalf("unexpected ids: %d, %d", id1, id2)
	}
	if tbl.Count() != 2 {
		t.Fatalf("expected count 2, got %d", tbl.Count())
	}

	if !tbl.Release(id1) {
		t.Fatal("expected release to succeed")
	}
	if tbl.Release(id1) {
		t.Fatal("expected second release to report absent")
	}
	if tbl.Count() != 1 {
		t.Fatalf("expected count 1, got %d", tbl.Count())
	}
}

func TestDropAbove(t *testing.T) {
	tbl := New[int](0)
	mark := tbl.HighWaterMark()
	tbl.Alloc(1)
	tbl.Alloc(2)
	tbl.Alloc(3)

	var dropped []int32
	tbl.DropAbove(mark, func(id int32, v int) {
		dropped = append(dropped, id)
	})

	if tbl.Count() != 0 {
		t.Fatalf("expected all entries dropped, got %d remaining", tbl.Count())
	}
	if len(dropped) != 3 {
		t.Fatalf("expected 3 drops, got %d", len(dropped))
	}
}

func TestPreseededIdsAndHighWaterMark(t *testing.T) {
	tbl := New[string](2)
	tbl.Put(0, "controller")
	tbl.Put(1, "global")

	id := tbl.Alloc("first user object")
	if id != 2 {
		t.Fatalf("expected first user id to be 2, got %d", id)
	}
}

func TestStackPushPopOnEmpty(t *testing.T) {
	var s Stack
	if _, err := s.Pop(); err != ErrEmptyStack {
		t.Fatalf("expected ErrEmptyStack, got %v", err)
	}

	s.Push(5)
	s.Push(9)
	if s.Depth() != 2 {
		t.Fatalf("expected depth 2, got %d", s.Depth())
	}

	v, err := s.Pop()
	if err != nil || v != 9 {
		t.Fatalf("expected 9, got %d (err=%v)", v, err)
	}
	v, err = s.Pop()
	if err != nil || v != 5 {
		t.Fatalf("expected 5, got %d (err=%v)", v, err)
	}
	if s.Depth() != 0 {
		t.Fatalf("expected depth 0, got %d", s.Depth())
	}
}

func TestResetRecreatesIds(t *testing.T) {
	tbl := New[string](2)
	tbl.Put(0, "controller")
	tbl.Alloc("x")
	tbl.Reset(2)
	if tbl.Count() != 0 {
		t.Fatalf("expected empty table after reset, got %d", tbl.Count())
	}
	id := tbl.Alloc("y")
	if id != 2 {
		t.Fatalf("expected id 2 after reset, got %d", id)
	}
}
