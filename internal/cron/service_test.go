package cron

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/angelmondragon/packfinderz-order-progress/pkg/logger"
)

type fakeLock struct {
	acquired   bool
	held       bool
	acquireErr error
	releases   int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquireErr != nil {
		return false, f.acquireErr
	}
	if f.held {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.releases++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	trailing := &testJob{name: "trailing"}
	lock := &fakeLock{}
	service := newTestService(t, lock, success, failure, trailing)

	err := service.runCycle(context.Background())
	if err == nil {
		t.Fatal("expected the failing job to surface")
	}
	if !strings.Contains(err.Error(), "fail: boom") {
		t.Fatalf("unexpected error %q", err)
	}
	for _, job := range []*testJob{success, failure, trailing} {
		if job.runs != 1 {
			t.Fatalf("expected %s to run once, ran %d", job.name, job.runs)
		}
	}
	if lock.releases != 1 || lock.acquired {
		t.Fatalf("expected lock released once, got %d releases", lock.releases)
	}
}

func TestServiceRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "outbox-relay"}
	lock := &fakeLock{held: true}
	service := newTestService(t, lock, job)

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job skipped, ran %d", job.runs)
	}
	if lock.releases != 0 {
		t.Fatalf("expected no release when lock not acquired")
	}
}

func TestServiceRunCycleReportsLockErrors(t *testing.T) {
	job := &testJob{name: "outbox-relay"}
	service := newTestService(t, &fakeLock{acquireErr: errors.New("redis down")}, job)

	if err := service.runCycle(context.Background()); err == nil {
		t.Fatal("expected lock error")
	}
	if job.runs != 0 {
		t.Fatalf("expected job skipped, ran %d", job.runs)
	}
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "outbox-relay"}
	service := newTestService(t, &fakeLock{}, job)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected the startup cycle to run once, ran %d", job.runs)
	}
}

func TestNewServiceRequiresLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected missing lock to fail")
	}
}
