// Package sketch implements a deprecating counting Bloom filter: a counting
// Bloom filter paired with a fixed-capacity FIFO of its own insertions, so
// that old insertions expire automatically.
package sketch

import (
	"errors"
	"fmt"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/naclave/password-oracle/internal/hashderive"
)

// ErrParameter reports a configuration that can never be satisfied:
// impossible hash width, slots <= capacity in queue items, or a queue
// capacity that is not a multiple of perItem.
var ErrParameter = errors.New("sketch: parameter error")

// ErrInvariant reports corrupted in-memory state: a counter underflow or a
// queue entry pointing outside the slot array. This must never be silently
// tolerated.
var ErrInvariant = errors.New("sketch: invariant violation")

// Sketch is a deprecating counting Bloom filter. The zero value is not
// usable; construct one with New.
//
// Reads (Contains) take a read-biased lock so concurrent lookups don't
// contend with each other; writes (Add) take the exclusive path, so no
// reader ever observes a partially applied Add.
type Sketch struct {
	mu *xsync.RBMutex

	slots []uint32 // counter per slot, length S
	queue []int32  // slot index written at this queue position, or -1 if empty, length Q
	head  int       // next write cursor into queue, in [0, Q)

	numSlots int
	perItem  int
}

// New constructs an empty sketch with slots counter cells, a queue capacity
// of items*perItem logical entries, and perItem hash positions derived per
// inserted string. It fails with ErrParameter if slots <= queueCapacity, or
// if queueCapacity is not a multiple of perItem.
func New(slots, items, perItem int) (*Sketch, error) {
	if slots <= 0 || items <= 0 || perItem <= 0 {
		return nil, fmt.Errorf("%w: slots, items, and perItem must all be positive", ErrParameter)
	}
	queueCapacity := items * perItem
	if slots <= queueCapacity {
		return nil, fmt.Errorf("%w: slots (%d) must be strictly greater than queue capacity (%d)", ErrParameter, slots, queueCapacity)
	}
	if queueCapacity%perItem != 0 {
		return nil, fmt.Errorf("%w: queue capacity (%d) must be a multiple of per_item (%d)", ErrParameter, queueCapacity, perItem)
	}

	// Probe the hash derivation parameters now, so a ParameterError surfaces
	// at construction rather than on the first Add.
	if _, err := hashderive.Indices("probe", slots, perItem); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParameter, err)
	}

	queue := make([]int32, queueCapacity)
	for i := range queue {
		queue[i] = -1
	}

	return &Sketch{
		mu:       xsync.NewRBMutex(),
		slots:    make([]uint32, slots),
		queue:    queue,
		head:     0,
		numSlots: slots,
		perItem:  perItem,
	}, nil
}

// NumSlots reports the configured slot count S.
func (s *Sketch) NumSlots() int { return s.numSlots }

// QueueCapacity reports the configured queue capacity Q.
func (s *Sketch) QueueCapacity() int { return len(s.queue) }

// PerItem reports the configured hashes-per-item k.
func (s *Sketch) PerItem() int { return s.perItem }

// Head reports the current write cursor into the queue.
func (s *Sketch) Head() int {
	tok := s.mu.RLock()
	defer s.mu.RUnlock(tok)
	return s.head
}

// Add inserts str, rotating out whatever slot index was written items
// adds ago at each of the perItem queue positions it now occupies.
func (s *Sketch) Add(str string) error {
	idx, err := hashderive.Indices(str, s.numSlots, s.perItem)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, h := range idx {
		evicted := s.queue[s.head]
		if evicted >= 0 {
			if s.slots[evicted] == 0 {
				return fmt.Errorf("%w: counter for slot %d underflowed on eviction", ErrInvariant, evicted)
			}
			s.slots[evicted]--
		}
		//nolint:gosec // h is bounded to [0, numSlots) by hashderive.Indices
		s.queue[s.head] = int32(h)
		s.slots[h]++
		s.head = (s.head + 1) % len(s.queue)
	}
	return nil
}

// Contains reports whether str appears to have been added, using the
// standard Bloom-filter conjunction across all perItem positions: every
// derived position must be nonzero. A sum-then-compare-to-zero check would
// permit false negatives when perItem > 1, so it is deliberately not used
// here.
func (s *Sketch) Contains(str string) (bool, error) {
	idx, err := hashderive.Indices(str, s.numSlots, s.perItem)
	if err != nil {
		return false, err
	}

	tok := s.mu.RLock()
	defer s.mu.RUnlock(tok)

	for _, h := range idx {
		if s.slots[h] == 0 {
			return false, nil
		}
	}
	return true, nil
}

// Snapshot atomically captures the fields needed for serialization: only
// queue, head, S, and k are persisted — slots is reconstructed on load.
func (s *Sketch) Snapshot() (queue []int32, head, numSlots, perItem int) {
	tok := s.mu.RLock()
	defer s.mu.RUnlock(tok)

	queue = make([]int32, len(s.queue))
	copy(queue, s.queue)
	return queue, s.head, s.numSlots, s.perItem
}

// FromQueue reconstructs a sketch from a persisted (queue, head, S, k)
// tuple, recomputing slots by scanning queue. It validates the invariants
// a well-formed sketch must hold and returns ErrInvariant if queue
// contains an out-of-range slot index.
func FromQueue(queue []int32, head, numSlots, perItem int) (*Sketch, error) {
	if numSlots <= 0 || perItem <= 0 || len(queue) == 0 {
		return nil, fmt.Errorf("%w: empty or non-positive sketch parameters", ErrParameter)
	}
	if head < 0 || head >= len(queue) {
		return nil, fmt.Errorf("%w: head %d out of range [0, %d)", ErrInvariant, head, len(queue))
	}

	slots := make([]uint32, numSlots)
	q := make([]int32, len(queue))
	for i, v := range queue {
		q[i] = v
		if v < 0 {
			continue
		}
		if int(v) >= numSlots {
			return nil, fmt.Errorf("%w: queue entry %d references slot %d outside [0, %d)", ErrInvariant, i, v, numSlots)
		}
		slots[v]++
	}

	return &Sketch{
		mu:       xsync.NewRBMutex(),
		slots:    slots,
		queue:    q,
		head:     head,
		numSlots: numSlots,
		perItem:  perItem,
	}, nil
}
