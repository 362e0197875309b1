package tesseract

import (
	"errors"
	"io"
)

// clientPool keeps up to cap(idle) idle clients for one language set.
// Clients beyond that are closed on return, so every client is either
// borrowed, idle in the channel, or closed.
type clientPool[C io.Closer] struct {
	idle   chan C
	create func() (C, error)
}

func newClientPool[C io.Closer](size int, create func() (C, error)) *clientPool[C] {
	if size < 1 {
		size = 1
	}
	return &clientPool[C]{idle: make(chan C, size), create: create}
}

// get returns an idle client or creates a new one.
func (p *clientPool[C]) get() (C, error) {
	select {
	case c := <-p.idle:
		return c, nil
	default:
		return p.create()
	}
}

// put returns c to the pool, closing it when the pool is full.
func (p *clientPool[C]) put(c C) error {
	select {
	case p.idle <- c:
		return nil
	default:
		return c.Close()
	}
}

// drain closes every idle client.
func (p *clientPool[C]) drain() error {
	var errs []error
	for {
		select {
		case c := <-p.idle:
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		default:
			return errors.Join(errs...)
		}
	}
}
