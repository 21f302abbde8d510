// Package gloss turns text into sign keys: whole-word signs where the pose
// library has them, fingerspelling otherwise. It also maps English text to
// sign gloss notation.
package gloss

import "strings"

// Resolver reports whether a pose key exists. *pose.Library satisfies it.
type Resolver interface {
	Has(key string) bool
}

// Tokenize splits text on whitespace.
func Tokenize(text string) []string {
	return strings.Fields(text)
}

// Expand resolves each case-folded word to itself when it is a key, and to
// its resolvable characters otherwise. Characters with no key are dropped.
func Expand(words []string, r Resolver) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		word := strings.ToLower(w)
		if r.Has(word) {
			out = append(out, word)
			continue
		}
		for _, c := range word {
			if key := string(c); r.Has(key) {
				out = append(out, key)
			}
		}
	}
	return out
}

// ExpandText is Expand over Tokenize.
func ExpandText(text string, r Resolver) []string {
	return Expand(Tokenize(text), r)
}

// KeySet is a Resolver over a fixed set of keys.
type KeySet map[string]struct{}

// NewKeySet builds a KeySet from keys as given.
func NewKeySet(keys ...string) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func (s KeySet) Has(key string) bool {
	_, ok := s[key]
	return ok
}
