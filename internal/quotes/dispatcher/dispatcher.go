package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gopherex.com/livefeed/internal/quotes/observer"
	"gopherex.com/livefeed/pkg/logger"
	"gopherex.com/livefeed/pkg/safe"
)

const DefaultIdleWait = 10 * time.Millisecond

var ErrAlreadyRunning = errors.New("dispatcher: already running")

// Dispatcher：轮询所有 subject 的主循环
//
// 每轮：取所有未结束 subject 里最小的 PeekDateTime，
// 派发“时间未知”或“时间等于最小值”的 subject；全部 Eof 后退出
type Dispatcher struct {
	IdleWait time.Duration

	mu       sync.Mutex
	subjects []Subject
	running  bool

	stopped atomic.Bool

	startEvent *observer.Event[struct{}]
	idleEvent  *observer.Event[struct{}]
	log        *zap.Logger
}

func New() *Dispatcher {
	return &Dispatcher{
		IdleWait:   DefaultIdleWait,
		startEvent: observer.New[struct{}](),
		idleEvent:  observer.New[struct{}](),
		log:        logger.Named("dispatcher"),
	}
}

func (d *Dispatcher) StartEvent() *observer.Event[struct{}] { return d.startEvent }

// IdleEvent 一轮没有任何数据被派发时触发
func (d *Dispatcher) IdleEvent() *observer.Event[struct{}] { return d.idleEvent }

// AddSubject 重复添加是 no-op；Registrant 的钩子只调一次
func (d *Dispatcher) AddSubject(s Subject) {
	d.mu.Lock()
	for _, cur := range d.subjects {
		if cur == s {
			d.mu.Unlock()
			return
		}
	}
	d.subjects = append(d.subjects, s)
	d.mu.Unlock()

	// 锁外调用：钩子里通常会再 AddSubject
	if r, ok := s.(Registrant); ok {
		r.OnDispatcherRegistered(d)
	}
}

func (d *Dispatcher) Subjects() []Subject {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Subject(nil), d.subjects...)
}

// Stop 让 Run 在本轮结束后退出，可以从任意协程调用
func (d *Dispatcher) Stop() { d.stopped.Store(true) }

func (d *Dispatcher) Stopped() bool { return d.stopped.Load() }

// Run 阻塞直到所有 subject 结束、Stop 被调用或 ctx 结束
// 退出前依次 Stop、Join 所有 subject
func (d *Dispatcher) Run(ctx context.Context) (err error) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}
	d.running = true
	d.mu.Unlock()

	defer func() {
		subs := d.Subjects()
		for _, s := range subs {
			_ = safe.Call(ctx, "subject.Stop", s.Stop)
		}
		for _, s := range subs {
			_ = safe.Call(ctx, "subject.Join", s.Join)
		}
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
		d.log.Info("dispatcher stopped", zap.Error(err))
	}()

	d.startEvent.Emit(struct{}{})
	for _, s := range d.Subjects() {
		if err := safe.Call(ctx, "subject.Start", s.Start); err != nil {
			return err
		}
	}
	d.log.Info("dispatcher running", zap.Int("subjects", len(d.Subjects())))

	for !d.stopped.Load() {
		if ctx.Err() != nil {
			return nil
		}
		eof, dispatched, err := d.dispatch(ctx)
		if err != nil {
			return err
		}
		if eof {
			return nil
		}
		if !dispatched {
			d.idleEvent.Emit(struct{}{})
			if !sleepCtx(ctx, d.IdleWait) {
				return nil
			}
		}
	}
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context) (eof bool, dispatched bool, err error) {
	subs := d.Subjects()

	var (
		smallest time.Time
		have     bool
	)
	for _, s := range subs {
		if s.Eof() {
			continue
		}
		if t, ok := s.PeekDateTime(); ok && (!have || t.Before(smallest)) {
			smallest, have = t, true
		}
	}

	eof = true
	for _, s := range subs {
		if s.Eof() {
			continue
		}
		eof = false

		t, ok := s.PeekDateTime()
		if ok && !(have && t.Equal(smallest)) {
			continue
		}
		var did bool
		if err := safe.Call(ctx, "subject.Dispatch", func() { did = s.Dispatch() }); err != nil {
			return false, dispatched, fmt.Errorf("dispatch %T: %w", s, err)
		}
		dispatched = dispatched || did
	}
	return eof, dispatched, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
