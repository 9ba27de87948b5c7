package client

import (
	"sync"

	"github.com/u1974754/p-final-multi/internal/wire"
)

// Puppet is a headless Avatar: it stands where the server spawned it and
// never loses a life unless told to.
type Puppet struct {
	mu    sync.Mutex
	pos   wire.Vec3
	lives int32
	slot  int
}

func NewPuppet(lives int32) *Puppet {
	return &Puppet{lives: lives, slot: -1}
}

func (p *Puppet) Position() wire.Vec3 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

func (p *Puppet) Lives() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lives
}

func (p *Puppet) Place(slot int, pos wire.Vec3) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slot = slot
	p.pos = pos
}

func (p *Puppet) SetPosition(pos wire.Vec3) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos = pos
}

func (p *Puppet) SetLives(n int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lives = n
}
