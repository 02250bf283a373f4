package ws

import (
	"sync"

	"github.com/dmitrijs2005/chatrelay/internal/common"
)

// peer is the engine-facing side of one WebSocket connection. Frames are
// queued on send and written by the connection's write pump.
type peer struct {
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newPeer(buffer int) *peer {
	if buffer < 1 {
		buffer = 1
	}
	return &peer{
		send: make(chan []byte, buffer),
		done: make(chan struct{}),
	}
}

// Send enqueues frame without blocking.
func (p *peer) Send(frame []byte) error {
	select {
	case <-p.done:
		return common.ErrClosed
	default:
	}

	select {
	case p.send <- frame:
		return nil
	default:
		return common.ErrSendBufferFull
	}
}

// Close signals the write pump to flush and hang up. It is safe to call
// more than once.
func (p *peer) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
