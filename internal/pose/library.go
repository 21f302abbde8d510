package pose

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// maxSuggestDistance bounds how far a suggestion may be from the asked key.
const maxSuggestDistance = 2

// Library is an immutable mapping from pose key to entry. Reloading produces
// a new Library; an existing one never changes.
type Library struct {
	entries    map[string]Entry
	defaultKey string
}

// NewLibrary builds a library from already validated entries. Keys are
// lowercased; defaultKey must be present.
func NewLibrary(entries map[string]Entry, defaultKey string) (*Library, error) {
	if defaultKey == "" {
		defaultKey = DefaultKey
	}
	lib := &Library{
		entries:    make(map[string]Entry, len(entries)),
		defaultKey: strings.ToLower(defaultKey),
	}
	for k, e := range entries {
		key := strings.ToLower(k)
		if _, dup := lib.entries[key]; dup {
			return nil, &DataFormatError{Key: k, Err: errDuplicateKey}
		}
		if len(e.Frames) == 0 {
			return nil, &DataFormatError{Key: k, Err: ErrEmptyClip}
		}
		lib.entries[key] = e
	}
	if _, ok := lib.entries[lib.defaultKey]; !ok {
		return nil, &DataFormatError{Key: lib.defaultKey, Err: ErrMissingDefault}
	}
	return lib, nil
}

// Lookup is an exact match on the stored (lowercase) keys. A miss is not an
// error; the caller decides the fallback.
func (l *Library) Lookup(key string) (Entry, bool) {
	e, ok := l.entries[key]
	return e, ok
}

// Has reports whether key resolves.
func (l *Library) Has(key string) bool {
	_, ok := l.entries[key]
	return ok
}

// Default returns the rest entry.
func (l *Library) Default() Entry {
	return l.entries[l.defaultKey]
}

func (l *Library) DefaultKey() string { return l.defaultKey }

func (l *Library) Len() int { return len(l.entries) }

// Keys returns every key in sorted order.
func (l *Library) Keys() []string {
	keys := make([]string, 0, len(l.entries))
	for k := range l.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Suggest returns the closest multi-character key to key, for "did you mean"
// messages. Single letters are never suggested.
func (l *Library) Suggest(key string) (string, bool) {
	key = strings.ToLower(key)
	best, bestDist := "", maxSuggestDistance+1
	for _, k := range l.Keys() {
		if len(k) < 2 || k == key {
			continue
		}
		if d := levenshtein.ComputeDistance(key, k); d < bestDist {
			best, bestDist = k, d
		}
	}
	return best, best != ""
}
