package speech

import (
	"regexp"
	"strings"
	"sync"
)

// DefaultFillerWords are hesitation sounds the recognizer emits that have no
// sign. Words with a gloss (like, okay, so) are deliberately absent.
var DefaultFillerWords = []string{
	"um", "uh", "uhh", "umm", "huh",
	"er", "ah", "hmm", "mm",
	"you know", "basically", "actually", "literally",
}

var (
	spacePattern = regexp.MustCompile(`\s+`)
	punctPattern = regexp.MustCompile(`^[.,!?;:\s]+$`)
)

// Filter removes filler words from transcripts.
type Filter struct {
	mu          sync.RWMutex
	fillerWords map[string]struct{}
	pattern     *regexp.Regexp
}

// NewFilter creates a filter. If fillerWords is nil, DefaultFillerWords is
// used; an empty non-nil slice disables filtering.
func NewFilter(fillerWords []string) *Filter {
	if fillerWords == nil {
		fillerWords = DefaultFillerWords
	}
	f := &Filter{}
	f.SetFillerWords(fillerWords)
	return f
}

// buildPattern must be called with mu held.
func (f *Filter) buildPattern() {
	if len(f.fillerWords) == 0 {
		f.pattern = nil
		return
	}

	patterns := make([]string, 0, len(f.fillerWords))
	for word := range f.fillerWords {
		patterns = append(patterns, `\b`+regexp.QuoteMeta(word)+`\b`)
	}
	f.pattern = regexp.MustCompile(`(?i)(` + strings.Join(patterns, `|`) + `)`)
}

// SetFillerWords replaces the filler word list.
func (f *Filter) SetFillerWords(words []string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fillerWords = make(map[string]struct{}, len(words))
	for _, word := range words {
		if w := strings.TrimSpace(strings.ToLower(word)); w != "" {
			f.fillerWords[w] = struct{}{}
		}
	}
	f.buildPattern()
}

// FillerWords returns the current list in no particular order.
func (f *Filter) FillerWords() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	words := make([]string, 0, len(f.fillerWords))
	for w := range f.fillerWords {
		words = append(words, w)
	}
	return words
}

// Clean removes filler words and collapses whitespace. ok is false when
// nothing meaningful remains.
func (f *Filter) Clean(text string) (cleaned string, ok bool) {
	if text == "" {
		return "", false
	}

	f.mu.RLock()
	pattern := f.pattern
	f.mu.RUnlock()

	cleaned = text
	if pattern != nil {
		cleaned = pattern.ReplaceAllString(cleaned, "")
	}
	cleaned = strings.TrimSpace(spacePattern.ReplaceAllString(cleaned, " "))
	if punctPattern.MatchString(cleaned) {
		cleaned = ""
	}
	return cleaned, cleaned != ""
}
