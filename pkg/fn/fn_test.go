package fn

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestResultBasics(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("Ok result misreported")
	}
	v, err := r.Unwrap()
	if v != 42 || err != nil {
		t.Fatalf("unexpected unwrap: %v %v", v, err)
	}

	e := Err[int](errors.New("boom"))
	if e.IsOk() {
		t.Fatal("Err result misreported")
	}
	if got := e.UnwrapOr(7); got != 7 {
		t.Fatalf("UnwrapOr: got %d", got)
	}
}

func TestFromPair(t *testing.T) {
	if r := FromPair(1, nil); r.IsErr() {
		t.Fatal("expected ok")
	}
	if r := FromPair(0, errors.New("x")); r.IsOk() {
		t.Fatal("expected error")
	}
}

func TestCollect(t *testing.T) {
	ok := Collect([]Result[int]{Ok(1), Ok(2)})
	vals, err := ok.Unwrap()
	if err != nil || len(vals) != 2 {
		t.Fatalf("unexpected: %v %v", vals, err)
	}
	bad := Collect([]Result[int]{Ok(1), Err[int](errors.New("mid"))})
	if bad.IsOk() {
		t.Fatal("expected first error to propagate")
	}
}

func TestThenShortCircuits(t *testing.T) {
	calls := 0
	first := func(_ context.Context, s string) Result[int] { return Err[int](errors.New("nope")) }
	second := func(_ context.Context, n int) Result[string] {
		calls++
		return Ok("x")
	}
	r := Then(first, second)(context.Background(), "in")
	if r.IsOk() || calls != 0 {
		t.Fatalf("second stage ran after error (calls=%d)", calls)
	}
}

func TestPipelineOrder(t *testing.T) {
	inc := func(_ context.Context, n int) Result[int] { return Ok(n + 1) }
	double := func(_ context.Context, n int) Result[int] { return Ok(n * 2) }
	r := Pipeline(inc, double)(context.Background(), 3)
	v, _ := r.Unwrap()
	if v != 8 {
		t.Fatalf("got %d, want 8", v)
	}
}

func TestTracedStagePassThrough(t *testing.T) {
	stage := TracedStage("test", MapStage(func(n int) int { return n * 3 }))
	v, err := stage(context.Background(), 2).Unwrap()
	if err != nil || v != 6 {
		t.Fatalf("unexpected: %v %v", v, err)
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	r := Retry(context.Background(), RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond},
		func(_ context.Context) Result[string] {
			attempts++
			if attempts < 3 {
				return Err[string](errors.New("flaky"))
			}
			return Ok("done")
		})
	if r.IsErr() || attempts != 3 {
		t.Fatalf("attempts=%d result=%v", attempts, r)
	}
}

func TestRetryRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := Retry(ctx, RetryOpts{MaxAttempts: 5, InitialWait: 10 * time.Millisecond, MaxWait: time.Second},
		func(_ context.Context) Result[int] { return Err[int](errors.New("always")) })
	if r.IsOk() {
		t.Fatal("expected failure")
	}
}
