package request

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	// RunGroupConcurrencyLimit is the default maximum of concurrent requests in one RunGroup.
	RunGroupConcurrencyLimit = 32
	// WaitGroupConcurrencyLimit is the default maximum of concurrent requests in one WaitGroup.
	WaitGroupConcurrencyLimit = 8
)

// limiter sends requests with a maximum concurrency.
type limiter struct {
	sender Sender
	sem    *semaphore.Weighted
}

func newLimiter(sender Sender, limit int64) limiter {
	return limiter{sender: sender, sem: semaphore.NewWeighted(limit)}
}

func (l limiter) send(ctx context.Context, request Sendable) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.sem.Release(1)
	return request.SendOrErr(ctx, l.sender)
}

// RunGroup collects requests by the Add method and sends them concurrently when RunAndWait is called.
//
// Sending stops at the first error, the error is returned from the RunAndWait method.
// Use WaitGroup to send requests immediately, or to collect all errors.
type RunGroup struct {
	ctx     context.Context
	limiter limiter
	group   *errgroup.Group

	lock    sync.Mutex
	started bool
	pending []Sendable
}

// NewRunGroup creates a RunGroup with the RunGroupConcurrencyLimit.
func NewRunGroup(ctx context.Context, sender Sender) *RunGroup {
	return RunGroupWithLimit(ctx, sender, RunGroupConcurrencyLimit)
}

// RunGroupWithLimit creates a RunGroup with the concurrent requests limit.
func RunGroupWithLimit(ctx context.Context, sender Sender, limit int64) *RunGroup {
	group, ctx := errgroup.WithContext(ctx)
	return &RunGroup{ctx: ctx, limiter: newLimiter(sender, limit), group: group}
}

// Add schedules the request.
// It may be called from a completion handler of another request in the group, while RunAndWait is running,
// then the request is sent immediately.
func (g *RunGroup) Add(request Sendable) {
	g.lock.Lock()
	defer g.lock.Unlock()
	if !g.started {
		g.pending = append(g.pending, request)
		return
	}
	g.run(request)
}

// RunAndWait sends all scheduled requests and waits until all requests, including the added ones, are done.
func (g *RunGroup) RunAndWait() error {
	g.lock.Lock()
	g.started = true
	for _, request := range g.pending {
		g.run(request)
	}
	g.pending = nil
	g.lock.Unlock()
	return g.group.Wait()
}

func (g *RunGroup) run(request Sendable) {
	g.group.Go(func() error {
		return g.limiter.send(g.ctx, request)
	})
}

// WaitGroup sends each request immediately by the Send method, Wait blocks until all requests are done.
//
// An error does not stop other requests, Wait returns all errors.
// Use RunGroup to schedule requests and stop at the first error.
type WaitGroup struct {
	ctx     context.Context
	limiter limiter
	wg      sync.WaitGroup

	lock sync.Mutex
	errs *multierror.Error
}

// NewWaitGroup creates a WaitGroup with the WaitGroupConcurrencyLimit.
func NewWaitGroup(ctx context.Context, sender Sender) *WaitGroup {
	return NewWaitGroupWithLimit(ctx, sender, WaitGroupConcurrencyLimit)
}

// NewWaitGroupWithLimit creates a WaitGroup with the concurrent requests limit.
func NewWaitGroupWithLimit(ctx context.Context, sender Sender, limit int64) *WaitGroup {
	return &WaitGroup{ctx: ctx, limiter: newLimiter(sender, limit)}
}

// Send starts the request in a new goroutine.
func (g *WaitGroup) Send(request Sendable) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := g.limiter.send(g.ctx, request); err != nil {
			g.lock.Lock()
			g.errs = multierror.Append(g.errs, err)
			g.lock.Unlock()
		}
	}()
}

// Wait blocks until all requests are done.
// A single error is returned as it is, multiple errors are wrapped by *multierror.Error.
func (g *WaitGroup) Wait() error {
	g.wg.Wait()
	g.lock.Lock()
	defer g.lock.Unlock()
	if g.errs != nil && len(g.errs.Errors) == 1 {
		return g.errs.Errors[0]
	}
	return g.errs.ErrorOrNil()
}

// ParallelRequests is a Sendable which sends all requests concurrently by a WaitGroup.
type ParallelRequests []Sendable

// Parallel groups the requests, so they can be used as one step of a RunGroup, or nested.
func Parallel(requests ...Sendable) ParallelRequests {
	return requests
}

func (v ParallelRequests) SendOrErr(ctx context.Context, sender Sender) error {
	g := NewWaitGroup(ctx, sender)
	for _, request := range v {
		g.Send(request)
	}
	return g.Wait()
}
