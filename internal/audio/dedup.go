package audio

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Deduplicator remembers which payloads have been seen per utterance.
// Payloads are identified by their XXH64 hash, so two byte-distinct payloads
// that collide are treated as duplicates.
type Deduplicator struct {
	mu   sync.Mutex
	seen map[string]map[uint64]struct{}
}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string]map[uint64]struct{})}
}

// Observe records payload for utteranceID and reports whether it is new.
func (d *Deduplicator) Observe(utteranceID string, payload []byte) bool {
	h := xxhash.Sum64(payload)

	d.mu.Lock()
	defer d.mu.Unlock()

	set, ok := d.seen[utteranceID]
	if !ok {
		set = make(map[uint64]struct{})
		d.seen[utteranceID] = set
	}
	if _, dup := set[h]; dup {
		return false
	}
	set[h] = struct{}{}
	return true
}

func (d *Deduplicator) Forget(utteranceID string) {
	d.mu.Lock()
	delete(d.seen, utteranceID)
	d.mu.Unlock()
}

func (d *Deduplicator) Reset() {
	d.mu.Lock()
	d.seen = make(map[string]map[uint64]struct{})
	d.mu.Unlock()
}

// Utterances returns how many utterances currently have tracked payloads.
func (d *Deduplicator) Utterances() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
