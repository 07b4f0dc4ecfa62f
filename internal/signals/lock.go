package signals

import (
	"context"
	"strings"
	"sync"

	"github.com/wonny/moves/backend/pkg/redis"
)

// SymbolLocker serializes evaluation of one symbol. The in-process keyed
// mutex covers goroutines of this process; the optional Redis lock covers
// other processes sharing the store.
type SymbolLocker struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
	remote  *redis.Locker // nil = process-local only
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewSymbolLocker creates a locker. remote may be nil.
func NewSymbolLocker(remote *redis.Locker) *SymbolLocker {
	return &SymbolLocker{entries: make(map[string]*lockEntry), remote: remote}
}

// Lock blocks until symbol is held. The returned func releases it.
func (l *SymbolLocker) Lock(ctx context.Context, symbol string) (func(), error) {
	key := strings.ToUpper(symbol)

	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &lockEntry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	release := func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}

	if l.remote == nil {
		return release, nil
	}

	unlockRemote, err := l.remote.Acquire(ctx, "symbol:"+key)
	if err != nil {
		release()
		return nil, err
	}
	return func() {
		unlockRemote()
		release()
	}, nil
}
