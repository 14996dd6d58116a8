package polling

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"genesis/internal/domain"
)

func isDone(s string) bool   { return s == "COMPLETED" }
func isFailed(s string) bool { return s == "FAILED" }

func scripted(statuses []string, calls *int32) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		n := atomic.AddInt32(calls, 1)
		if int(n) > len(statuses) {
			return statuses[len(statuses)-1], nil
		}
		return statuses[n-1], nil
	}
}

func TestPollSucceedsAfterKPending(t *testing.T) {
	for _, k := range []int{0, 1, 4} {
		statuses := make([]string, 0, k+1)
		for i := 0; i < k; i++ {
			statuses = append(statuses, "IN_PROGRESS")
		}
		statuses = append(statuses, "COMPLETED", "UNREACHABLE")

		var calls int32
		got, attempts, err := Poll(context.Background(), Budget{Interval: time.Millisecond, MaxAttempts: 10}, scripted(statuses, &calls), isDone, isFailed)
		if err != nil {
			t.Fatalf("k=%d: Poll error: %v", k, err)
		}
		if got != "COMPLETED" {
			t.Fatalf("k=%d: status = %q", k, got)
		}
		if attempts != k+1 || int(atomic.LoadInt32(&calls)) != k+1 {
			t.Fatalf("k=%d: attempts = %d calls = %d, want %d", k, attempts, calls, k+1)
		}
	}
}

func TestPollTimesOutAfterExactlyMaxAttempts(t *testing.T) {
	var calls int32
	start := time.Now()
	_, attempts, err := Poll(context.Background(), Budget{Interval: 5 * time.Millisecond, MaxAttempts: 5}, scripted([]string{"PENDING"}, &calls), isDone, isFailed)
	if !errors.Is(err, domain.ErrPollingTimeout) {
		t.Fatalf("err = %v, want ErrPollingTimeout", err)
	}
	if attempts != 5 || atomic.LoadInt32(&calls) != 5 {
		t.Fatalf("attempts = %d calls = %d, want 5", attempts, calls)
	}
	// four sleeps between five calls, none after the last
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("elapsed %s shorter than 4 intervals", elapsed)
	}
}

func TestPollUnknownStatusKeepsPolling(t *testing.T) {
	var calls int32
	statuses := []string{"CREATED", "weird-value", "", "COMPLETED"}
	_, attempts, err := Poll(context.Background(), Budget{Interval: time.Millisecond, MaxAttempts: 10}, scripted(statuses, &calls), isDone, isFailed)
	if err != nil || attempts != 4 {
		t.Fatalf("Poll = %d, %v; want 4, nil", attempts, err)
	}
}

func TestPollFailureIsTerminal(t *testing.T) {
	var calls int32
	got, attempts, err := Poll(context.Background(), Budget{Interval: time.Millisecond, MaxAttempts: 10}, scripted([]string{"RUNNING", "FAILED", "COMPLETED"}, &calls), isDone, isFailed)
	if !errors.Is(err, domain.ErrProviderGeneration) {
		t.Fatalf("err = %v, want ErrProviderGeneration", err)
	}
	if got != "FAILED" || attempts != 2 {
		t.Fatalf("got %q after %d attempts", got, attempts)
	}
}

func TestPollStatusErrorAborts(t *testing.T) {
	boom := errors.New("status endpoint 500")
	var calls int
	_, attempts, err := Poll(context.Background(), Budget{Interval: time.Millisecond, MaxAttempts: 10}, func(context.Context) (string, error) {
		calls++
		return "", boom
	}, isDone, isFailed)
	if !errors.Is(err, boom) || attempts != 1 || calls != 1 {
		t.Fatalf("Poll = %d, %v after %d calls", attempts, err, calls)
	}
}

func TestPollStopsPromptlyOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, _, err := Poll(ctx, Budget{Interval: time.Hour, MaxAttempts: 100}, scripted([]string{"PENDING"}, &calls), isDone, isFailed)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("Poll did not return promptly after cancel")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestPollRejectsEmptyBudget(t *testing.T) {
	if _, _, err := Poll(context.Background(), Budget{}, scripted([]string{"COMPLETED"}, new(int32)), isDone, isFailed); err == nil {
		t.Fatalf("expected error for zero attempts")
	}
}

func TestBudgetWall(t *testing.T) {
	if got := (Budget{Interval: 2 * time.Second, MaxAttempts: 30}).Wall(); got != 58*time.Second {
		t.Fatalf("Wall = %s, want 58s", got)
	}
}
