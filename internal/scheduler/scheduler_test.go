package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestDaily_Next(t *testing.T) {
	d := Daily{Hour: 9, Minute: 0}
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "до запуска - сегодня",
			now:  time.Date(2024, 3, 4, 8, 59, 0, 0, time.UTC),
			want: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "ровно в момент запуска - завтра",
			now:  time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "после запуска - завтра",
			now:  time.Date(2024, 3, 4, 15, 30, 0, 0, time.UTC),
			want: time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC),
		},
		{
			name: "переход через месяц",
			now:  time.Date(2024, 2, 29, 10, 0, 0, 0, time.UTC),
			want: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.Next(tt.now); !got.Equal(tt.want) {
				t.Errorf("Next(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestParseDaily(t *testing.T) {
	d, err := ParseDaily("09:30")
	if err != nil {
		t.Fatalf("ParseDaily() error = %v", err)
	}
	if d.Hour != 9 || d.Minute != 30 {
		t.Errorf("ParseDaily() = %+v, want 09:30", d)
	}
	if _, err := ParseDaily("9h"); err == nil {
		t.Error("ParseDaily(9h) error = nil, want error")
	}
}

func TestAligned_Next(t *testing.T) {
	a := Aligned(15 * time.Minute)
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"середина интервала", time.Date(2024, 3, 4, 10, 7, 30, 0, time.UTC), time.Date(2024, 3, 4, 10, 15, 0, 0, time.UTC)},
		{"на границе - следующая граница", time.Date(2024, 3, 4, 10, 15, 0, 0, time.UTC), time.Date(2024, 3, 4, 10, 30, 0, 0, time.UTC)},
		{"конец часа", time.Date(2024, 3, 4, 10, 59, 59, 0, time.UTC), time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Next(tt.now); !got.Equal(tt.want) {
				t.Errorf("Next(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestEveryAndAdaptive_Next(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	if got := Every(4 * time.Hour).Next(now); !got.Equal(now.Add(4 * time.Hour)) {
		t.Errorf("Every.Next() = %v", got)
	}

	interval := 2 * time.Second
	adaptive := Adaptive(func() time.Duration { return interval })
	if got := adaptive.Next(now); !got.Equal(now.Add(2 * time.Second)) {
		t.Errorf("Adaptive.Next() = %v, want +2s", got)
	}
	interval = 5 * time.Minute
	if got := adaptive.Next(now); !got.Equal(now.Add(5 * time.Minute)) {
		t.Errorf("Adaptive.Next() = %v, want +5m", got)
	}
}

func TestScheduler_Register(t *testing.T) {
	s := New()
	job := Job{Name: "scan", Schedule: Every(time.Hour), Task: func(ctx context.Context) error { return nil }}

	if err := s.Register(job); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := s.Register(job); err == nil {
		t.Error("Register(duplicate) error = nil, want error")
	}
	if err := s.Register(Job{Name: "empty"}); err == nil {
		t.Error("Register(no task) error = nil, want error")
	}
	if got := s.Jobs(); len(got) != 1 || got[0] != "scan" {
		t.Errorf("Jobs() = %v, want [scan]", got)
	}
}

func TestScheduler_TriggerUnknown(t *testing.T) {
	s := New()
	if _, err := s.Trigger("missing"); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("Trigger(missing) error = %v, want ErrUnknownJob", err)
	}
}

func TestScheduler_TriggerRunsJob(t *testing.T) {
	s := New()
	done := make(chan struct{}, 1)
	err := s.Register(Job{
		Name:     "signals",
		Schedule: Every(time.Hour),
		Task: func(ctx context.Context) error {
			done <- struct{}{}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(stopped)
	}()

	queued, err := s.Trigger("signals")
	if err != nil || !queued {
		t.Fatalf("Trigger() = %v, %v; want true, nil", queued, err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("triggered job did not run")
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestScheduler_TriggersCoalesce(t *testing.T) {
	s := New()
	var runs atomic.Int32
	started := make(chan struct{}, 4)
	release := make(chan struct{})

	err := s.Register(Job{
		Name:     "monitor",
		Schedule: Every(time.Hour),
		Task: func(ctx context.Context) error {
			runs.Add(1)
			started <- struct{}{}
			<-release
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	if _, err := s.Trigger("monitor"); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not start")
	}

	// во время выполнения: первый запуск встаёт в очередь, второй схлопывается
	if queued, _ := s.Trigger("monitor"); !queued {
		t.Error("second trigger not queued")
	}
	if queued, _ := s.Trigger("monitor"); queued {
		t.Error("third trigger queued, want coalesced")
	}

	release <- struct{}{}
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("queued run did not start")
	}
	close(release)

	time.Sleep(50 * time.Millisecond)
	if got := runs.Load(); got != 2 {
		t.Errorf("runs = %d, want 2", got)
	}
}

func TestScheduler_RecoversPanicAndErrors(t *testing.T) {
	s := New()
	runs := make(chan string, 4)

	_ = s.Register(Job{
		Name:       "panics",
		Schedule:   Every(time.Hour),
		RunOnStart: true,
		Task: func(ctx context.Context) error {
			runs <- "panics"
			panic("boom")
		},
	})
	_ = s.Register(Job{
		Name:       "fails",
		Schedule:   Every(time.Hour),
		RunOnStart: true,
		Task: func(ctx context.Context) error {
			runs <- "fails"
			return errors.New("database unavailable")
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	seen := map[string]bool{}
	for len(seen) < 2 {
		select {
		case name := <-runs:
			seen[name] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("jobs run on start = %v, want both", seen)
		}
	}

	// после паники цикл задачи жив и принимает ручной запуск
	if _, err := s.Trigger("panics"); err != nil {
		t.Fatalf("Trigger() error = %v", err)
	}
	select {
	case name := <-runs:
		if name != "panics" {
			t.Errorf("run = %s, want panics", name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job loop stopped after panic")
	}
}

func TestScheduler_RegisterAfterRun(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.RLock()
		running := s.running
		s.mu.RUnlock()
		if running {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("scheduler did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	err := s.Register(Job{Name: "late", Schedule: Every(time.Hour), Task: func(ctx context.Context) error { return nil }})
	if err == nil {
		t.Error("Register() after Run error = nil, want error")
	}
}
