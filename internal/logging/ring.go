package logging

import (
	"fmt"
	"sync"

	"github.com/btcsuite/btclog"
)

// Entry is a single line recorded in a Ring.
type Entry struct {
	Level Level
	Line  string
}

// Ring is the bounded, in-memory log book scoped to a single peer (§3:
// "Scoped log ring (bounded, e.g. 128 KiB) whose high-severity entries
// mirror to the process log"). Entries are evicted oldest-first once the
// configured byte budget is exceeded; entries at or above mirrorLevel are
// additionally copied into the parent subsystem logger, the Go expression
// of the original's copy_to_parent_log callback.
type Ring struct {
	mu          sync.Mutex
	budgetBytes int
	usedBytes   int
	entries     []Entry
	parent      btclog.Logger
	mirrorLevel Level
}

// NewRing creates a log ring with the given byte budget, mirroring entries
// at mirrorLevel or above into parent. A nil parent disables mirroring.
func NewRing(budgetBytes int, parent btclog.Logger, mirrorLevel Level) *Ring {
	return &Ring{
		budgetBytes: budgetBytes,
		parent:      parent,
		mirrorLevel: mirrorLevel,
	}
}

// Add appends a formatted line at the given level, evicting older entries
// as needed to stay within budget, and mirrors it to the parent logger if
// the level qualifies.
func (r *Ring) Add(level Level, format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)

	r.mu.Lock()
	r.entries = append(r.entries, Entry{Level: level, Line: line})
	r.usedBytes += len(line)
	for r.usedBytes > r.budgetBytes && len(r.entries) > 1 {
		r.usedBytes -= len(r.entries[0].Line)
		r.entries = r.entries[1:]
	}
	r.mu.Unlock()

	if r.parent != nil && level >= r.mirrorLevel {
		tag := severityTag(level)
		if tag != "" {
			r.parent.Infof("%s %s", tag, line)
		} else {
			r.parent.Infof("%s", line)
		}
	}
}

// Dump returns a copy of every retained entry at or above minLevel, oldest
// first, the way `listpeers id level` dumps a peer's log ring.
func (r *Ring) Dump(minLevel Level) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Level >= minLevel {
			out = append(out, e)
		}
	}
	return out
}
