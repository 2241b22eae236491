// Package pool provides a capacity-bounded FIFO reuse pool for long-lived
// simulation objects. It is not safe for concurrent use; callers run it on
// the game loop goroutine.
package pool

import (
	"errors"
	"sort"
)

var (
	// ErrExhausted is returned by Acquire when Max live instances exist.
	ErrExhausted = errors.New("pool: exhausted")
	// ErrNotActive is returned by Release for an instance that is not leased.
	ErrNotActive = errors.New("pool: instance not active")
)

// Options configures a Pool. Max == 0 lets the pool grow without bound.
type Options[T any] struct {
	Initial   int
	Max       int
	OnCreate  func(T)
	OnAcquire func(T)
	OnRelease func(T) // must leave the instance reusable
}

// Pool hands out instances in FIFO order and tracks which ones are leased.
// Every instance it created is either in the free queue or in the active
// set, never both.
type Pool[T comparable] struct {
	newFn   func() T
	opts    Options[T]
	free    []T
	head    int
	active  map[T]uint64
	order   uint64
	created int
}

func New[T comparable](newFn func() T, opts Options[T]) *Pool[T] {
	p := &Pool[T]{
		newFn:  newFn,
		opts:   opts,
		free:   make([]T, 0, opts.Initial),
		active: make(map[T]uint64, opts.Initial),
	}
	for i := 0; i < opts.Initial; i++ {
		if opts.Max > 0 && p.created >= opts.Max {
			break
		}
		p.free = append(p.free, p.create())
	}
	return p
}

func (p *Pool[T]) create() T {
	obj := p.newFn()
	p.created++
	if p.opts.OnCreate != nil {
		p.opts.OnCreate(obj)
	}
	return obj
}

// Acquire returns the oldest free instance, or a new one when the free queue
// is empty and the cap allows it.
func (p *Pool[T]) Acquire() (T, error) {
	var obj T
	if p.head < len(p.free) {
		obj = p.free[p.head]
		var zero T
		p.free[p.head] = zero
		p.head++
		if p.head == len(p.free) {
			p.free = p.free[:0]
			p.head = 0
		}
	} else {
		if p.opts.Max > 0 && p.created >= p.opts.Max {
			return obj, ErrExhausted
		}
		obj = p.create()
	}
	p.order++
	p.active[obj] = p.order
	if p.opts.OnAcquire != nil {
		p.opts.OnAcquire(obj)
	}
	return obj, nil
}

// Release resets obj through OnRelease and returns it to the free queue.
func (p *Pool[T]) Release(obj T) error {
	if _, ok := p.active[obj]; !ok {
		return ErrNotActive
	}
	delete(p.active, obj)
	if p.opts.OnRelease != nil {
		p.opts.OnRelease(obj)
	}
	p.compact()
	p.free = append(p.free, obj)
	return nil
}

// ReleaseAll force-releases every leased instance, oldest lease first, and
// returns how many were released.
func (p *Pool[T]) ReleaseAll() int {
	leased := make([]T, 0, len(p.active))
	for obj := range p.active {
		leased = append(leased, obj)
	}
	sort.Slice(leased, func(i, j int) bool {
		return p.active[leased[i]] < p.active[leased[j]]
	})
	for _, obj := range leased {
		_ = p.Release(obj)
	}
	return len(leased)
}

// IsActive reports whether obj is currently leased.
func (p *Pool[T]) IsActive(obj T) bool {
	_, ok := p.active[obj]
	return ok
}

func (p *Pool[T]) Active() int  { return len(p.active) }
func (p *Pool[T]) Free() int    { return len(p.free) - p.head }
func (p *Pool[T]) Created() int { return p.created }

// compact drops the consumed prefix of the free queue once it dominates.
func (p *Pool[T]) compact() {
	if p.head == 0 || p.head*2 < len(p.free) {
		return
	}
	n := copy(p.free, p.free[p.head:])
	var zero T
	for i := n; i < len(p.free); i++ {
		p.free[i] = zero
	}
	p.free = p.free[:n]
	p.head = 0
}
