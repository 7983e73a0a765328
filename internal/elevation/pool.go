package elevation

import (
	"sync"

	"go.ngs.io/elevation-api/internal/domain"
)

type slot struct {
	handler  *Handler
	attached bool
}

// Pool hands out Handlers to workers. Slots are never removed; a released
// slot is reused by the next Acquire.
type Pool struct {
	mu     sync.Mutex
	slots  []*slot
	closed bool

	newHandler func() *Handler
	// replay brings a fresh handler up to the current configuration.
	replay func(*Handler)
}

// NewPool returns an empty pool. replay may be nil.
func NewPool(newHandler func() *Handler, replay func(*Handler)) *Pool {
	if replay == nil {
		replay = func(*Handler) {}
	}
	return &Pool{newHandler: newHandler, replay: replay}
}

// Lease is exclusive use of one pool slot.
type Lease struct {
	pool *Pool
	slot *slot
	once sync.Once
}

// Handler returns the leased handler.
func (l *Lease) Handler() *Handler { return l.slot.handler }

// Release returns the slot to the pool. Later calls do nothing.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.pool.mu.Lock()
		l.slot.attached = false
		l.pool.mu.Unlock()
	})
}

// Acquire leases the first free slot, creating and configuring a new
// handler when every slot is attached.
func (p *Pool) Acquire() (*Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, domain.ErrServiceClosed
	}
	for _, s := range p.slots {
		if !s.attached {
			s.attached = true
			return &Lease{pool: p, slot: s}, nil
		}
	}
	s := p.addLocked()
	s.attached = true
	return &Lease{pool: p, slot: s}, nil
}

func (p *Pool) addLocked() *slot {
	h := p.newHandler()
	p.replay(h)
	s := &slot{handler: h}
	p.slots = append(p.slots, s)
	return s
}

// Broadcast applies op to every handler, attached or not, then calls commit
// with whether any op returned true. commit runs before the pool is
// unlocked, so no handler can be created between the two. An empty pool
// first gets one free handler.
func (p *Pool) Broadcast(op func(*Handler) bool, commit func(anyOK bool)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	if len(p.slots) == 0 {
		p.addLocked()
	}
	anyOK := false
	for _, s := range p.slots {
		if op(s.handler) {
			anyOK = true
		}
	}
	if commit != nil {
		commit(anyOK)
	}
	return anyOK
}

// Close clears every handler. Later Acquire calls fail.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for _, s := range p.slots {
		s.handler.Clear()
	}
}

// Len returns the number of slots.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}

// Attached returns the number of leased slots.
func (p *Pool) Attached() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.slots {
		if s.attached {
			n++
		}
	}
	return n
}
