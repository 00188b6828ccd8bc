package fn

import (
	"context"
	"errors"
	"strconv"
	"testing"
)

func TestResultBasics(t *testing.T) {
	r := Ok(7)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("Ok result misreports state")
	}
	v, err := r.Unwrap()
	if v != 7 || err != nil {
		t.Fatalf("unwrap = (%d, %v)", v, err)
	}

	boom := errors.New("boom")
	e := Err[int](boom)
	if e.IsOk() {
		t.Fatal("Err result misreports state")
	}
	if _, err := e.Unwrap(); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if got := e.UnwrapOr(42); got != 42 {
		t.Fatalf("UnwrapOr = %d", got)
	}
}

func TestFromPair(t *testing.T) {
	if r := FromPair(1, nil); r.IsErr() {
		t.Fatal("FromPair with nil error should be ok")
	}
	if r := FromPair(0, errors.New("x")); r.IsOk() {
		t.Fatal("FromPair with error should be err")
	}
}

func TestThenShortCircuits(t *testing.T) {
	boom := errors.New("boom")
	var secondRan bool

	first := Stage[int, string](func(_ context.Context, _ int) Result[string] {
		return Err[string](boom)
	})
	second := Stage[string, int](func(_ context.Context, s string) Result[int] {
		secondRan = true
		return FromPair(strconv.Atoi(s))
	})

	r := Then(first, second)(context.Background(), 1)
	if _, err := r.Unwrap(); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if secondRan {
		t.Fatal("second stage ran after failure")
	}
}

func TestThenComposes(t *testing.T) {
	double := Stage[int, int](func(_ context.Context, v int) Result[int] { return Ok(v * 2) })
	str := Stage[int, string](func(_ context.Context, v int) Result[string] { return Ok(strconv.Itoa(v)) })

	r := Then(double, str)(context.Background(), 21)
	v, err := r.Unwrap()
	if err != nil || v != "42" {
		t.Fatalf("result = (%q, %v)", v, err)
	}
}

func TestTracedStagePassesThrough(t *testing.T) {
	stage := TracedStage("test", Stage[int, int](func(_ context.Context, v int) Result[int] {
		return Ok(v + 1)
	}))
	v, err := stage(context.Background(), 1).Unwrap()
	if err != nil || v != 2 {
		t.Fatalf("result = (%d, %v)", v, err)
	}

	boom := errors.New("boom")
	failing := TracedStage("fail", Stage[int, int](func(_ context.Context, _ int) Result[int] {
		return Err[int](boom)
	}))
	if _, err := failing(context.Background(), 1).Unwrap(); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestMap(t *testing.T) {
	got := Map([]int{1, 2, 3}, strconv.Itoa)
	if len(got) != 3 || got[2] != "3" {
		t.Fatalf("got %v", got)
	}
}

func TestChunk(t *testing.T) {
	chunks := Chunk([]int{1, 2, 3, 4, 5}, 2)
	if len(chunks) != 3 || len(chunks[2]) != 1 || chunks[2][0] != 5 {
		t.Fatalf("chunks = %v", chunks)
	}
	if Chunk([]int{1}, 0) != nil {
		t.Fatal("chunk size 0 should return nil")
	}
}
