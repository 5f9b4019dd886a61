// Package stream carries a live generation byte stream: it duplicates the
// stream into independently cancelable branches and decodes its event framing.
package stream

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

// ErrCancelled is returned by Branch.Next after the branch was cancelled.
var ErrCancelled = errors.New("stream branch cancelled")

// highWater caps how many chunks a branch may queue before the producer
// waits for the consumer to drain. It bounds memory while absorbing
// consumption-rate skew between the two branches.
const highWater = 256

// Split duplicates one byte stream into two branches carrying identical bytes
// in the same order. Each branch is read and cancelled independently;
// cancelling one never stops the other. If the source errors, both branches
// surface that error once their queued chunks are drained.
func Split(r io.Reader) (*Branch, *Branch) {
	a := newBranch()
	b := newBranch()
	go produce(r, a, b)
	return a, b
}

func produce(r io.Reader, a, b *Branch) {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			a.push(chunk)
			b.push(chunk)
		}
		if err != nil {
			a.closeWith(err)
			b.closeWith(err)
			return
		}
	}
}

// Branch is one independently readable side of a split stream.
type Branch struct {
	mu        sync.Mutex
	cond      *sync.Cond
	queue     [][]byte
	err       error // io.EOF on normal end, source error otherwise
	cancelled bool
}

func newBranch() *Branch {
	b := &Branch{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Next returns the next chunk. It blocks until a chunk is available, the
// source ends (io.EOF), the source errors, or the branch is cancelled.
// Queued chunks are always delivered before the terminal error.
func (b *Branch) Next() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if b.cancelled {
			return nil, ErrCancelled
		}
		if len(b.queue) > 0 {
			chunk := b.queue[0]
			b.queue = b.queue[1:]
			b.cond.Broadcast()
			return chunk, nil
		}
		if b.err != nil {
			return nil, b.err
		}
		b.cond.Wait()
	}
}

// Cancel stops this branch only. Queued chunks are dropped and a blocked
// producer is released; the sibling branch is unaffected.
func (b *Branch) Cancel() {
	b.mu.Lock()
	b.cancelled = true
	b.queue = nil
	b.cond.Broadcast()
	b.mu.Unlock()
}

func (b *Branch) push(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.queue) >= highWater && !b.cancelled {
		b.cond.Wait()
	}
	if b.cancelled {
		return
	}
	b.queue = append(b.queue, chunk)
	b.cond.Broadcast()
}

func (b *Branch) closeWith(err error) {
	b.mu.Lock()
	if b.err == nil {
		b.err = err
	}
	b.cond.Broadcast()
	b.mu.Unlock()
}
