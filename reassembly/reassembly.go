// Package reassembly implements the fragment-accumulation engine (spec.md
// §4.4): per-message fragment storage keyed by reassembly identifier, with
// bounded memory via the time-bounded cache.
package reassembly

import (
	"errors"
	"fmt"
	"time"

	"github.com/unprotocol/unp/cache"
	"github.com/unprotocol/unp/logx"
	"github.com/unprotocol/unp/wire"
)

// ErrFragmentIndexOutOfRange is returned (and the fragment dropped) when a
// fragment's index is not less than its fragments_total.
var ErrFragmentIndexOutOfRange = errors.New("reassembly: fragment_index out of range")

type entry struct {
	header wire.Message // first fragment's metadata, payload cleared
	slots  [][]byte
	filled []bool
	count  int
}

// Reassembler accumulates fragments per reassembly identifier and emits
// the reconstructed message once every slot is filled.
type Reassembler struct {
	cache *cache.Cache[*entry]
	log   logx.Logger
}

// New creates a Reassembler whose entries are evicted after forgetTimeout
// wall time (spec.md's reassembly_forget_timeout option), using numSectors
// generational sectors (0 defaults to 4).
func New(forgetTimeout time.Duration, numSectors int, log logx.Logger) *Reassembler {
	if log == nil {
		log = logx.Nop{}
	}
	return &Reassembler{cache: cache.New[*entry](forgetTimeout, numSectors), log: log}
}

// Accept stores fragment in its reassembly entry. It returns (msg, nil) once
// every expected fragment has arrived (msg is the reconstructed message);
// it returns (nil, nil) while the message is still incomplete; it returns
// (nil, err) if the fragment is malformed (dropped per spec.md §4.4 step 3).
func (r *Reassembler) Accept(fragment *wire.Message) (*wire.Message, error) {
	id := wire.ReassemblyID(fragment.Sender, fragment.Type, fragment.Command, fragment.ID, fragment.FragmentsTotal)

	e, ok := r.cache.Get(id)
	if !ok {
		hdr := *fragment
		hdr.EncodedPayload = nil
		e = &entry{
			header: hdr,
			slots:  make([][]byte, fragment.FragmentsTotal),
			filled: make([]bool, fragment.FragmentsTotal),
		}
	}

	if int(fragment.FragmentIndex) >= len(e.slots) {
		r.log.Error("reassembly: dropping fragment with out-of-range index %d/%d", fragment.FragmentIndex, len(e.slots))
		return nil, fmt.Errorf("%w: index=%d total=%d", ErrFragmentIndexOutOfRange, fragment.FragmentIndex, len(e.slots))
	}

	// Duplicate fragments overwrite silently (spec.md §4.4).
	if !e.filled[fragment.FragmentIndex] {
		e.count++
	}
	e.filled[fragment.FragmentIndex] = true
	e.slots[fragment.FragmentIndex] = fragment.EncodedPayload

	if e.count < len(e.slots) {
		r.cache.Set(id, e)
		return nil, nil
	}

	var payload []byte
	for _, slot := range e.slots {
		payload = append(payload, slot...)
	}

	result := e.header
	result.FragmentIndex = 0
	result.FragmentsTotal = uint16(len(e.slots))
	result.Fragmented = false
	result.Reassembled = true
	result.EncodedPayload = payload
	result.HasData = len(payload) > 0
	result.Sender = fragment.Sender

	r.cache.Delete(id)
	r.log.Debug("reassembly: completed %s (%d fragments, %d bytes)", id, len(e.slots), len(payload))
	return &result, nil
}

// Len reports the number of in-flight reassemblies (for diagnostics/metrics).
func (r *Reassembler) Len() int {
	return r.cache.Len()
}

// Close stops the underlying cache's background rotation.
func (r *Reassembler) Close() {
	r.cache.Close()
}
