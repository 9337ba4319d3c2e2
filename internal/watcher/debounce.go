// file: internal/watcher/debounce.go
// version: 2.0.0
// guid: 6f2c8e14-9b3d-4a7e-b5c1-0d8e2f4a6b19

package watcher

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

type entryKind int

const (
	entryCreate entryKind = iota
	entryRemove
	entryRename
	entryOther
	// entryMove is a rename-from still waiting for the create of its new name.
	entryMove
)

// entry is the folded state of one path inside the debounce window.
type entry struct {
	kind entryKind
	// origin is the path the catalog knows the file by. It differs from the
	// entry's key once a rename has been folded in.
	origin string
	// fresh marks a path first created inside the window, so no catalog
	// record can exist for it yet.
	fresh bool
	dir   bool
	ops   fsnotify.Op
	// seq orders entries by their first raw event.
	seq      uint64
	deadline time.Time
}

// notification renders the settled entry stored under key.
func (e *entry) notification(key string) (Notification, bool) {
	switch e.kind {
	case entryCreate:
		return CreateOf(key), true
	case entryRemove:
		return RemoveOf(e.origin), true
	case entryRename:
		return Notification{Kind: Rename, From: e.origin, To: key, dir: e.dir}, true
	case entryMove:
		// Moved out of the tree. Nothing to report if it never settled in.
		if e.fresh {
			return Notification{}, false
		}
		return RemoveOf(e.origin), true
	default:
		return OtherOf(key, e.ops.String()), true
	}
}

type keyedEntry struct {
	m   map[string]*entry
	key string
	e   *entry
}

// coalescer folds raw fsnotify operations per path and emits one
// Notification per path once the path has been quiet for the window.
//
// A RENAME of an old name immediately followed by a CREATE of a new name of
// the same kind (file or directory, and for files the same extension) is
// paired into Rename(old, new). Any other RENAME becomes a Remove of the old
// name once it settles.
//
// A single flusher goroutine releases settled entries in the order their
// first raw event arrived. An entry for a path that an earlier pending
// rename still refers to by its old name is held until that rename is out.
type coalescer struct {
	mu      sync.Mutex
	window  time.Duration
	pending map[string]*entry
	moves   map[string]*entry
	seq     uint64
	closed  bool
	// lastMove is the move recorded by the previous raw event, if that event
	// was a RENAME. Only it may pair with a CREATE.
	lastMove *keyedEntry

	out    chan<- Notification
	wake   chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
	expand func(Notification) []Notification
	now    func() time.Time
}

func newCoalescer(window time.Duration, out chan<- Notification) *coalescer {
	c := &coalescer{
		window:  window,
		pending: make(map[string]*entry),
		moves:   make(map[string]*entry),
		out:     out,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		expand:  func(n Notification) []Notification { return []Notification{n} },
		now:     time.Now,
	}
	c.wg.Add(1)
	go c.flush()
	return c
}

// observe folds one raw operation on path. isDir is consulted for Create
// and Rename.
func (c *coalescer) observe(path string, op fsnotify.Op, isDir bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	prev := c.lastMove
	c.lastMove = nil

	switch {
	case op.Has(fsnotify.Create):
		c.onCreate(path, isDir, prev)
	case op.Has(fsnotify.Remove):
		c.onRemove(path)
	case op.Has(fsnotify.Rename):
		c.onRename(path, isDir)
	default:
		c.onOther(path, op)
	}
}

func (c *coalescer) onCreate(path string, isDir bool, prev *keyedEntry) {
	if mv := prev; mv != nil && pairs(mv, path, isDir) && c.moves[mv.key] == mv.e {
		c.drop(c.moves, mv.key)
		e := &entry{kind: entryRename, origin: mv.e.origin, dir: mv.e.dir, seq: mv.e.seq}
		if mv.e.fresh {
			e = &entry{kind: entryCreate, fresh: true, seq: mv.e.seq}
		}
		c.replace(path, e)
		return
	}

	e := c.pending[path]
	switch {
	case e == nil:
		c.replace(path, &entry{kind: entryCreate, fresh: true})
	case e.kind == entryRemove:
		// Replaced in place. Mount sees an already tracked path.
		e.kind = entryCreate
		e.origin = ""
		c.arm(e)
	case e.kind == entryOther:
		e.kind = entryCreate
		c.arm(e)
	default:
		c.arm(e)
	}
}

// pairs reports whether a CREATE of path can be the new name of mv. A file
// that changes extension is a different file as far as the catalog goes.
func pairs(mv *keyedEntry, path string, isDir bool) bool {
	if mv.key == path || mv.e.dir != isDir {
		return false
	}
	if isDir || mv.e.fresh {
		return true
	}
	return strings.EqualFold(filepath.Ext(mv.key), filepath.Ext(path))
}

func (c *coalescer) onRemove(path string) {
	e := c.pending[path]
	switch {
	case e == nil:
		c.replace(path, &entry{kind: entryRemove, origin: path})
	case e.kind == entryCreate && e.fresh:
		c.drop(c.pending, path)
	case e.kind == entryRename:
		// Renamed in then deleted: the catalog still knows the origin.
		e.kind = entryRemove
		c.arm(e)
	case e.kind == entryRemove:
		c.arm(e)
	default:
		e.kind = entryRemove
		e.origin = path
		c.arm(e)
	}
}

func (c *coalescer) onRename(path string, isDir bool) {
	mv := &entry{kind: entryMove, origin: path, dir: isDir}
	if e := c.pending[path]; e != nil {
		switch e.kind {
		case entryCreate:
			mv.fresh = e.fresh
		case entryRename:
			mv.origin = e.origin
			mv.dir = mv.dir || e.dir
		}
		mv.seq = e.seq
		c.drop(c.pending, path)
	}
	if old := c.moves[path]; old != nil {
		// A watched directory reports its own move a second time.
		mv.origin = old.origin
		mv.fresh = old.fresh
		mv.dir = mv.dir || old.dir
		mv.seq = old.seq
		c.drop(c.moves, path)
	}
	c.install(c.moves, path, mv)
	c.lastMove = &keyedEntry{m: c.moves, key: path, e: mv}
}

func (c *coalescer) onOther(path string, op fsnotify.Op) {
	e := c.pending[path]
	if e == nil {
		e = &entry{kind: entryOther}
		c.install(c.pending, path, e)
	}
	e.ops |= op
	c.arm(e)
}

// replace installs e as the pending state of path, discarding any previous one.
func (c *coalescer) replace(path string, e *entry) {
	c.drop(c.pending, path)
	c.install(c.pending, path, e)
}

func (c *coalescer) install(m map[string]*entry, key string, e *entry) {
	if e.seq == 0 {
		c.seq++
		e.seq = c.seq
	}
	m[key] = e
	c.arm(e)
}

func (c *coalescer) drop(m map[string]*entry, key string) {
	if _, ok := m[key]; ok {
		delete(m, key)
		c.signal()
	}
}

// arm pushes the deadline of e a full window into the future.
func (c *coalescer) arm(e *entry) {
	e.deadline = c.now().Add(c.window)
	c.signal()
}

func (c *coalescer) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// flush releases settled entries until stop is called.
func (c *coalescer) flush() {
	defer c.wg.Done()
	timer := time.NewTimer(c.window)
	defer timer.Stop()

	for {
		notes, wait := c.settle()
		if len(notes) > 0 {
			for _, n := range notes {
				for _, out := range c.expand(n) {
					select {
					case c.out <- out:
					case <-c.done:
						return
					}
				}
			}
			continue
		}

		var tick <-chan time.Time
		if wait > 0 {
			timer.Reset(wait)
			tick = timer.C
		}
		select {
		case <-c.done:
			return
		case <-c.wake:
		case <-tick:
		}
		timer.Stop()
	}
}

// settle removes the due entries that are free to go and returns their
// notifications in observation order, plus the time until the next
// deadline. A zero wait means nothing is left to time.
func (c *coalescer) settle() ([]Notification, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, 0
	}

	now := c.now()
	var due []keyedEntry
	var wait time.Duration
	for _, m := range []map[string]*entry{c.pending, c.moves} {
		for key, e := range m {
			if d := e.deadline.Sub(now); d > 0 {
				if wait == 0 || d < wait {
					wait = d
				}
				continue
			}
			due = append(due, keyedEntry{m: m, key: key, e: e})
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].e.seq < due[j].e.seq })

	var notes []Notification
	for _, k := range due {
		if c.heldBack(k.key, k.e) {
			continue
		}
		delete(k.m, k.key)
		if n, ok := k.e.notification(k.key); ok {
			notes = append(notes, n)
		}
	}
	return notes, wait
}

// heldBack reports whether an earlier pending entry still refers to key as
// its origin, so its notification has to go out first.
func (c *coalescer) heldBack(key string, e *entry) bool {
	for _, m := range []map[string]*entry{c.pending, c.moves} {
		for _, other := range m {
			if other != e && other.origin == key && other.seq < e.seq {
				return true
			}
		}
	}
	return false
}

// stop cancels every pending entry and waits for the flusher to exit.
// Nothing is emitted after stop returns.
func (c *coalescer) stop() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.lastMove = nil
	clear(c.pending)
	clear(c.moves)
	close(c.done)
	c.mu.Unlock()
	c.wg.Wait()
}
