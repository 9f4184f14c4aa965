package diagnostics

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/tidwall/btree"
)

type Kind string

const (
	KindDiagnostic Kind = "diagnostic"
	KindMessage    Kind = "message"
	KindInvoke     Kind = "invoke"
	KindResult     Kind = "result"
	KindLoad       Kind = "load"
)

// Entry is one journaled bridge event. Seq is assigned by the journal and
// increases by one per entry.
type Entry struct {
	Seq   uint64          `json:"seq"`
	Time  time.Time       `json:"time"`
	Kind  Kind            `json:"kind"`
	Name  string          `json:"name,omitempty"`
	Body  json.RawMessage `json:"body,omitempty"`
	Error string          `json:"error,omitempty"`
}

const DefaultLimit = 1000

const listenerBuffer = 64

func bySeq(a, b Entry) bool {
	return a.Seq < b.Seq
}

// Journal keeps the most recent entries in sequence order and fans new
// entries out to listeners.
type Journal struct {
	mu      sync.RWMutex
	entries *btree.BTreeG[Entry]
	seq     uint64
	limit   int
	now     func() time.Time

	listenerInc atomic.Uint64
	cancel      *xsync.Map[uint64, context.CancelFunc]
	entryCh     *xsync.Map[uint64, chan Entry]

	wg sync.WaitGroup
}

// New returns a journal holding at most limit entries. A non-positive
// limit uses DefaultLimit.
func New(limit int) *Journal {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Journal{
		entries: btree.NewBTreeGOptions(bySeq, btree.Options{
			NoLocks: true,
		}),
		limit:   limit,
		now:     time.Now,
		cancel:  xsync.NewMap[uint64, context.CancelFunc](),
		entryCh: xsync.NewMap[uint64, chan Entry](),
	}
}

// Record appends e, evicting the oldest entry when the journal is full,
// and returns it with its sequence number and time set.
func (j *Journal) Record(e Entry) Entry {
	j.mu.Lock()
	j.seq++
	e.Seq = j.seq
	if e.Time.IsZero() {
		e.Time = j.now()
	}
	j.entries.Set(e)
	for j.entries.Len() > j.limit {
		j.entries.PopMin()
	}
	j.mu.Unlock()

	j.entryCh.Range(func(_ uint64, ch chan Entry) bool {
		select {
		case ch <- e:
		default:
		}
		return true
	})
	return e
}

// Since returns up to limit entries with a sequence number greater than
// seq, oldest first. A non-positive limit returns everything retained.
func (j *Journal) Since(seq uint64, limit int) []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()

	out := make([]Entry, 0, min(j.entries.Len(), max(limit, 0)))
	j.entries.Ascend(Entry{Seq: seq + 1}, func(e Entry) bool {
		out = append(out, e)
		return limit <= 0 || len(out) < limit
	})
	return out
}

// Last returns the sequence number of the newest entry, zero when nothing
// has been recorded.
func (j *Journal) Last() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.seq
}

// Listen calls cb for every entry recorded from now on until ctx is done
// or Unlisten is called with the returned id. A listener that falls
// behind misses entries rather than blocking Record.
func (j *Journal) Listen(ctx context.Context, cb func(Entry)) uint64 {
	id := j.listenerInc.Add(1)
	listenCtx, cancel := context.WithCancel(ctx)
	ch := make(chan Entry, listenerBuffer)

	j.entryCh.Store(id, ch)
	j.cancel.Store(id, cancel)

	j.wg.Go(func() {
		defer j.Unlisten(id)
		for {
			select {
			case <-listenCtx.Done():
				return
			case e := <-ch:
				cb(e)
			}
		}
	})

	return id
}

func (j *Journal) Unlisten(id uint64) {
	if cancel, ok := j.cancel.LoadAndDelete(id); ok {
		cancel()
	}
	j.entryCh.Delete(id)
}

// Close stops every listener and waits for them to return.
func (j *Journal) Close() {
	j.cancel.Range(func(id uint64, _ context.CancelFunc) bool {
		j.Unlisten(id)
		return true
	})
	j.wg.Wait()
}
