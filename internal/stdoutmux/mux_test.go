package stdoutmux

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
)

func TestGetReaderSplitsOnMark(t *testing.T) {
	mark := []byte("END1234END1234END1234END1234AB")
	upstream := strings.NewReader("hello world" + string(mark) + "trailing garbage")

	m := New(upstream, mark)
	r, err := m.GetReader(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q", got)
	}
}

// slowReader trickles bytes one at a time to exercise the
// straddling-boundary retention logic.
type slowReader struct {
	data []byte
	pos  int
}

func (s *slowReader) Read(p []byte) (int, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	p[0] = s.data[s.pos]
	s.pos++
	return 1, nil
}

func TestGetReaderMarkStraddlesReads(t *testing.T) {
	mark := []byte("SENTINEL")
	payload := []byte("abcdefgh" + string(mark))

	m := New(&slowReader{data: payload}, mark)
	r, err := m.GetReader(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out.Write(buf[:n])
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			t.Fatal(err)
		}
	}
	if out.String() != "abcdefgh" {
		t.Fatalf("got %q", out.String())
	}
}

func TestSetNoneDrainsActiveSegment(t *testing.T) {
	mark := []byte("MARK----")
	upstream := strings.NewReader("some output" + string(mark))
	m := New(upstream, mark)

	if err := m.SetNone(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestAbandonedReaderCarriesBytesToNextConsumer(t *testing.T) {
	mark := []byte("MARKMARK")
	upstream := strings.NewReader("leftover-bytes" + string(mark))
	m := New(upstream, mark)

	r1, err := m.GetReader(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// Read just a little, then abandon the reader mid-segment.
	buf := make([]byte, 4)
	n, err := io.ReadFull(r1, buf)
	if err != nil {
		t.Fatal(err)
	}
	r1.Close()

	r2, err := m.GetReader(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	rest, err := io.ReadAll(r2)
	if err != nil {
		t.Fatal(err)
	}
	if got := string(buf[:n]) + string(rest); got != "leftover-bytes" {
		t.Fatalf("bytes lost across reader handoff: got %q", got)
	}
}

func TestReaderRetainsBytesAfterMarkForNextSegment(t *testing.T) {
	mark := []byte("MARKMARK")
	upstream := strings.NewReader("first" + string(mark) + "second" + string(mark))
	m := New(upstream, mark)

	r1, _ := m.GetReader(context.Background())
	got, err := io.ReadAll(r1)
	if err != nil || string(got) != "first" {
		t.Fatalf("first segment: %q %v", got, err)
	}
	r1.Close()

	r2, _ := m.GetReader(context.Background())
	got, err = io.ReadAll(r2)
	if err != nil || string(got) != "second" {
		t.Fatalf("second segment: %q %v", got, err)
	}
	r2.Close()
}

func TestSecondReaderWaitsForFirst(t *testing.T) {
	mark := []byte("MARKMARK")
	upstream := strings.NewReader("first" + string(mark))
	m := New(upstream, mark)

	r1, err := m.GetReader(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		r2, err := m.GetReader(ctx)
		if err == nil {
			r2.Close()
		}
		close(done)
	}()

	io.ReadAll(r1)
	r1.Close()

	select {
	case <-done:
	case <-context.Background().Done():
	}
}
