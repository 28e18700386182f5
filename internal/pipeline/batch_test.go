package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Pahihq/ctfd-parser/internal/config"
	"github.com/Pahihq/ctfd-parser/internal/model"
)

func okTask(_ context.Context, locator string) (*model.Outcome, error) {
	return &model.Outcome{Record: model.ChallengeRecord{Title: locator, Source: locator}}, nil
}

func TestNewBatchProcessor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts []BatchOption
		want int
	}{
		{name: "default", want: config.DefaultConcurrency},
		{name: "explicit", opts: []BatchOption{WithConcurrency(8)}, want: 8},
		{name: "zero becomes one", opts: []BatchOption{WithConcurrency(0)}, want: 1},
		{name: "negative becomes one", opts: []BatchOption{WithConcurrency(-3)}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := NewBatchProcessor(okTask, tt.opts...).Concurrency(); got != tt.want {
				t.Errorf("Concurrency() = %d, want %d", got, tt.want)
			}
		})
	}
}

// trackingTask records the peak number of concurrently running tasks.
// Tasks hold until `hold` of them are running at once, so a limit of at
// least `hold` is observably reached.
type trackingTask struct {
	hold    int32
	active  atomic.Int32
	peak    atomic.Int32
	once    sync.Once
	release chan struct{}
}

func newTrackingTask(hold int) *trackingTask {
	return &trackingTask{hold: int32(hold), release: make(chan struct{})}
}

func (tt *trackingTask) run(_ context.Context, locator string) (*model.Outcome, error) {
	cur := tt.active.Add(1)
	defer tt.active.Add(-1)
	for {
		p := tt.peak.Load()
		if cur <= p || tt.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	if cur >= tt.hold {
		tt.once.Do(func() { close(tt.release) })
	}
	select {
	case <-tt.release:
	case <-time.After(2 * time.Second):
	}
	time.Sleep(5 * time.Millisecond)
	return okTask(context.Background(), locator)
}

func TestBatchProcessorConcurrencyBound(t *testing.T) {
	t.Parallel()

	locators := []string{"a", "b", "c", "d", "e", "f", "g"}
	for _, n := range []int{1, 3} {
		t.Run(fmt.Sprintf("limit %d", n), func(t *testing.T) {
			t.Parallel()

			task := newTrackingTask(n)
			results := NewBatchProcessor(task.run, WithConcurrency(n)).Process(context.Background(), locators)

			if len(results) != len(locators) {
				t.Fatalf("expected %d results, got %d", len(locators), len(results))
			}
			if got := task.peak.Load(); got != int32(n) {
				t.Errorf("peak concurrency = %d, want %d", got, n)
			}
		})
	}
}

func TestBatchProcessorIsolatesFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	task := func(ctx context.Context, locator string) (*model.Outcome, error) {
		if locator == "b" {
			return nil, boom
		}
		return okTask(ctx, locator)
	}

	results := NewBatchProcessor(task, WithConcurrency(2)).Process(context.Background(), []string{"a", "b", "c"})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	var titles []string
	for _, o := range Outcomes(results) {
		titles = append(titles, o.Record.Title)
	}
	slices.Sort(titles)
	if diff := cmp.Diff([]string{"a", "c"}, titles); diff != "" {
		t.Errorf("Outcomes() mismatch (-want +got):\n%s", diff)
	}

	failures := Failures(results)
	if len(failures) != 1 || failures[0].Locator != "b" || !errors.Is(failures[0].Err, boom) {
		t.Errorf("Failures() = %+v", failures)
	}
}

func TestBatchProcessorNilOutcomeIsFailure(t *testing.T) {
	t.Parallel()

	task := func(context.Context, string) (*model.Outcome, error) { return nil, nil }
	results := NewBatchProcessor(task).Process(context.Background(), []string{"x"})
	if len(Failures(results)) != 1 {
		t.Errorf("expected a nil outcome to count as failure, got %+v", results)
	}
}

func TestBatchProcessorCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	task := func(ctx context.Context, locator string) (*model.Outcome, error) {
		calls.Add(1)
		return okTask(ctx, locator)
	}

	results := NewBatchProcessor(task).Process(ctx, []string{"a", "b"})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, r := range results {
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("result %s error = %v, want context.Canceled", r.Locator, r.Err)
		}
	}
	if calls.Load() != 0 {
		t.Errorf("expected no task to run, got %d", calls.Load())
	}
}

type fakeExtractor struct {
	err error
}

func (f fakeExtractor) Extract(_ context.Context, locator string) (*model.Extraction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.Extraction{Record: model.ChallengeRecord{Title: "T", Source: locator}}, nil
}

type fakePersister struct {
	calls atomic.Int32
}

func (f *fakePersister) Persist(_ context.Context, ex *model.Extraction) (*model.Outcome, error) {
	f.calls.Add(1)
	return &model.Outcome{Record: ex.Record, Dir: "/out/T"}, nil
}

func TestScrapeTask(t *testing.T) {
	t.Parallel()

	t.Run("persists extraction", func(t *testing.T) {
		t.Parallel()

		p := &fakePersister{}
		out, err := ScrapeTask(fakeExtractor{}, p)(context.Background(), "https://x/challenges#-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Record.Source != "https://x/challenges#-1" || out.Dir != "/out/T" {
			t.Errorf("unexpected outcome: %+v", out)
		}
	})

	t.Run("extraction error skips persistence", func(t *testing.T) {
		t.Parallel()

		p := &fakePersister{}
		_, err := ScrapeTask(fakeExtractor{err: errors.New("fetch")}, p)(context.Background(), "https://x/y")
		if err == nil {
			t.Fatal("expected error")
		}
		if p.calls.Load() != 0 {
			t.Error("expected Persist not to be called")
		}
	})
}
