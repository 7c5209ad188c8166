package parser

import (
	"strings"
	"sync"
)

// StringIntern provides thread-safe string interning for test names.
// A test program runs the same steps on every board, so the same names
// ("r100", "u5%bscan", ...) come through once per board per file. Interning
// makes all boards of a session share one copy of each name.
type StringIntern struct {
	mu   sync.RWMutex
	pool map[string]string
}

// NewStringIntern creates a new string interner.
func NewStringIntern() *StringIntern {
	return &StringIntern{
		pool: make(map[string]string, 4096),
	}
}

// MaxInternPoolSize caps the pool to prevent unbounded growth. Real test
// programs stay far below this; a log that does not is left uninterned.
const MaxInternPoolSize = 100000

// Intern returns the canonical version of the string. The stored copy is
// cloned, so a pooled name never pins the log buffer it was sliced from.
// Once the pool is full, strings pass through unpooled.
func (si *StringIntern) Intern(s string) string {
	// Fast path: read lock
	si.mu.RLock()
	if pooled, ok := si.pool[s]; ok {
		si.mu.RUnlock()
		return pooled
	}
	if len(si.pool) >= MaxInternPoolSize {
		si.mu.RUnlock()
		return s
	}
	si.mu.RUnlock()

	// Slow path: write lock
	si.mu.Lock()
	// Double-check after acquiring write lock
	if pooled, ok := si.pool[s]; ok {
		si.mu.Unlock()
		return pooled
	}
	if len(si.pool) >= MaxInternPoolSize {
		si.mu.Unlock()
		return s
	}
	c := strings.Clone(s)
	si.pool[c] = c
	si.mu.Unlock()
	return c
}

// Len returns the number of unique strings in the pool.
func (si *StringIntern) Len() int {
	si.mu.RLock()
	defer si.mu.RUnlock()
	return len(si.pool)
}

// Clear removes all interned strings.
func (si *StringIntern) Clear() {
	si.mu.Lock()
	defer si.mu.Unlock()
	si.pool = make(map[string]string, 4096)
}

// Global intern pool shared by all loads, so multi-file sessions and the
// watcher deduplicate names across files.
var globalIntern = NewStringIntern()

// GetGlobalIntern returns the global string interner.
func GetGlobalIntern() *StringIntern {
	return globalIntern
}

// ResetGlobalIntern clears the global intern pool.
func ResetGlobalIntern() {
	globalIntern.Clear()
}
