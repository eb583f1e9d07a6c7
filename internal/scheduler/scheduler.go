// Package scheduler запускает задачи по расписанию: сканер раз в сутки,
// ранжирование и генерацию сигналов по интервалу, открытие и
// мониторинг позиций в собственных циклах.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thinh267/stat-arb/pkg/utils"
)

// ErrUnknownJob - задача с таким именем не зарегистрирована
var ErrUnknownJob = errors.New("unknown job")

// Task - единица работы задачи
type Task func(ctx context.Context) error

// Job - задача планировщика
type Job struct {
	Name       string
	Schedule   Schedule
	Task       Task
	RunOnStart bool
}

type entry struct {
	Job
	pending chan struct{} // ручные запуски, не больше одного в очереди
}

// Scheduler - независимый цикл на каждую задачу.
//
// Запуски одной задачи не пересекаются: если таймер или ручной запуск
// пришли во время выполнения, задача выполнится ещё один раз после
// текущего запуска. Повторные ручные запуски схлопываются в один.
type Scheduler struct {
	mu      sync.RWMutex
	jobs    map[string]*entry
	running bool

	now func() time.Time
	log *utils.Logger
	wg  sync.WaitGroup
}

// New создаёт планировщик
func New() *Scheduler {
	return &Scheduler{
		jobs: make(map[string]*entry),
		now:  time.Now,
		log:  utils.L().WithComponent("scheduler"),
	}
}

// Register добавляет задачу; после Run регистрация недоступна
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Schedule == nil || job.Task == nil {
		return fmt.Errorf("job %q: name, schedule and task are required", job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("job %q: scheduler already running", job.Name)
	}
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %q already registered", job.Name)
	}
	s.jobs[job.Name] = &entry{Job: job, pending: make(chan struct{}, 1)}
	return nil
}

// Jobs возвращает имена зарегистрированных задач
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Trigger ставит задачу в очередь на немедленный запуск.
// Возвращает false, если запуск уже ожидает в очереди.
func (s *Scheduler) Trigger(name string) (bool, error) {
	s.mu.RLock()
	e, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	select {
	case e.pending <- struct{}{}:
		JobTriggers.WithLabelValues(name, "queued").Inc()
		s.log.Info("job triggered", utils.Task(name))
		return true, nil
	default:
		JobTriggers.WithLabelValues(name, "coalesced").Inc()
		return false, nil
	}
}

// Run запускает циклы всех задач и блокируется до отмены ctx.
// Текущие запуски завершаются до возврата.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("scheduler already running")
	}
	s.running = true
	entries := make([]*entry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	for _, e := range entries {
		s.wg.Add(1)
		go s.loop(ctx, e)
	}
	s.log.Info("scheduler started", zap.Int("jobs", len(entries)))

	<-ctx.Done()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
	return nil
}

// loop - цикл одной задачи: ждём таймер или ручной запуск
func (s *Scheduler) loop(ctx context.Context, e *entry) {
	defer s.wg.Done()

	if e.RunOnStart {
		s.execute(ctx, e)
	}

	for {
		now := s.now()
		next := e.Schedule.Next(now)
		wait := next.Sub(now)
		if wait < 0 {
			wait = 0
		}
		s.log.Debug("job scheduled", utils.Task(e.Name), zap.Time("next_run", next))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		case <-e.pending:
			timer.Stop()
		}

		s.execute(ctx, e)
	}
}

// execute выполняет задачу; паника перехватывается и логируется
func (s *Scheduler) execute(ctx context.Context, e *entry) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	result := "ok"
	defer func() {
		if r := recover(); r != nil {
			result = "panic"
			s.log.Error("job panicked",
				utils.Task(e.Name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
		elapsed := time.Since(start)
		JobRuns.WithLabelValues(e.Name, result).Inc()
		JobDuration.WithLabelValues(e.Name).Observe(elapsed.Seconds())
	}()

	if err := e.Task(ctx); err != nil {
		result = "error"
		s.log.Error("job failed", utils.Task(e.Name), zap.Duration("duration", time.Since(start)), zap.Error(err))
		return
	}
	s.log.Debug("job completed", utils.Task(e.Name), zap.Duration("duration", time.Since(start)))
}
