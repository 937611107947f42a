package scheduler

import (
	"errors"
	"testing"
	"time"
)

func TestOpsRunInSubmissionOrder(t *testing.T) {
	q := New()
	var order []int
	ch := make(chan struct{})

	chans := make([]<-chan struct {
		Val any
		Err error
	}, 0, 5)
	for i := 0; i < 5; i++ {
		i := i
		chans = append(chans, q.Submit(func() (any, error) {
			order = append(order, i)
			return i, nil
		}))
	}
	go func() {
		for _, c := range chans {
			Await(c)
		}
		close(ch)
	}()

	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ops")
	}

	for i, v := range order {
		if v != i {
			t.Fatalf("ops ran out of order: %v", order)
		}
	}
}

func TestErrorDoesNotStallLane(t *testing.T) {
	q := New()
	first := q.Submit(func() (any, error) {
		return nil, errors.New("boom")
	})
	second := q.Submit(func() (any, error) {
		return "ok", nil
	})

	_, err := Await(first)
	if err == nil {
		t.Fatal("expected error from first op")
	}
	v, err := Await(second)
	if err != nil || v != "ok" {
		t.Fatalf("second op should have run regardless: %v, %v", v, err)
	}
}

func TestNestAllowsReentrantOpsBeforeOuterReply(t *testing.T) {
	q := New()

	var trace []string
	outerDone := make(chan struct{})

	outer := q.Submit(func() (any, error) {
		// Simulate servicing an inbound callback: nest a level, run a
		// host-issued op at the deeper level, then unnest before
		// "replying".
		q.Nest()
		nestedCh := q.Submit(func() (any, error) {
			trace = append(trace, "nested")
			return nil, nil
		})
		Await(nestedCh)
		q.Unnest()
		trace = append(trace, "outer-reply")
		close(outerDone)
		return nil, nil
	})

	Await(outer)
	<-outerDone

	if len(trace) != 2 || trace[0] != "nested" || trace[1] != "outer-reply" {
		t.Fatalf("unexpected trace: %v", trace)
	}
	if q.Level() != 0 {
		t.Fatalf("expected level 0 after unnest, got %d", q.Level())
	}
}
