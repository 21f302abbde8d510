package gloss

import (
	"strings"
	"unicode"
)

// Mapper converts English text to sign gloss: function words are dropped,
// known words are replaced from the gloss table and everything else is
// uppercased.
type Mapper struct {
	stopWords map[string]bool
	table     map[string]string
}

// NewMapper returns a mapper over the built-in tables. Entries in overrides
// replace or extend the gloss table; an empty value drops the word.
func NewMapper(overrides map[string]string) *Mapper {
	m := &Mapper{
		stopWords: make(map[string]bool, len(englishStopWords)),
		table:     make(map[string]string, len(defaultGlossTable)+len(overrides)),
	}
	for _, w := range englishStopWords {
		if !keptPronouns[w] {
			m.stopWords[w] = true
		}
	}
	for k, v := range defaultGlossTable {
		m.table[k] = v
	}
	for k, v := range overrides {
		m.table[strings.ToLower(k)] = v
	}
	return m
}

// ToGloss maps text to space separated gloss tokens.
func (m *Mapper) ToGloss(text string) string {
	var out []string
	for _, tok := range Tokenize(strings.ToLower(text)) {
		word := trimPunct(tok)
		if word == "" {
			continue
		}
		g, mapped := m.table[word]
		if !mapped {
			if m.stopWords[word] {
				continue
			}
			g = strings.ToUpper(word)
		}
		if g != "" {
			out = append(out, g)
		}
	}
	return strings.Join(out, " ")
}

// trimPunct strips surrounding punctuation, keeping inner apostrophes so
// contractions like "don't" still match the table.
func trimPunct(tok string) string {
	return strings.TrimFunc(tok, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}

var keptPronouns = map[string]bool{
	"i": true, "you": true, "we": true, "he": true, "she": true, "they": true,
	"me": true, "my": true, "your": true, "our": true, "his": true, "her": true, "their": true,
}

var defaultGlossTable = map[string]string{
	"i": "ME", "you": "YOU", "we": "US", "he": "HE", "she": "SHE", "they": "THEY",
	"am": "", "is": "", "are": "", "was": "", "were": "",
	"going": "GO", "go": "GO", "want": "WANT", "have": "HAVE", "had": "HAVE",
	"don't": "NOT", "not": "NOT", "no": "NOT", "won't": "NOT WILL",
	"store": "STORE", "because": "WHY", "milk": "MILK", "to": "",
	"the": "", "a": "", "an": "", "and": "PLUS", "but": "BUT",
	"this": "THIS", "that": "THAT", "there": "THERE", "here": "HERE",
	"what": "WHAT", "who": "WHO", "where": "WHERE", "when": "WHEN", "why": "WHY", "how": "HOW",
	"need": "NEED", "can": "CAN", "will": "WILL", "should": "SHOULD", "must": "MUST",
	"good": "GOOD", "bad": "BAD", "happy": "HAPPY", "sad": "SAD",
	"yes": "YES", "okay": "OK", "like": "LIKE", "help": "HELP",
}

// NLTK english stop-word corpus.
var englishStopWords = []string{
	"i", "me", "my", "myself", "we", "our", "ours", "ourselves", "you", "you're",
	"you've", "you'll", "you'd", "your", "yours", "yourself", "yourselves", "he",
	"him", "his", "himself", "she", "she's", "her", "hers", "herself", "it", "it's",
	"its", "itself", "they", "them", "their", "theirs", "themselves", "what",
	"which", "who", "whom", "this", "that", "that'll", "these", "those", "am", "is",
	"are", "was", "were", "be", "been", "being", "have", "has", "had", "having",
	"do", "does", "did", "doing", "a", "an", "the", "and", "but", "if", "or",
	"because", "as", "until", "while", "of", "at", "by", "for", "with", "about",
	"against", "between", "into", "through", "during", "before", "after", "above",
	"below", "to", "from", "up", "down", "in", "out", "on", "off", "over", "under",
	"again", "further", "then", "once", "here", "there", "when", "where", "why",
	"how", "all", "any", "both", "each", "few", "more", "most", "other", "some",
	"such", "no", "nor", "not", "only", "own", "same", "so", "than", "too", "very",
	"s", "t", "can", "will", "just", "don", "don't", "should", "should've", "now",
	"d", "ll", "m", "o", "re", "ve", "y", "ain", "aren", "aren't", "couldn",
	"couldn't", "didn", "didn't", "doesn", "doesn't", "hadn", "hadn't", "hasn",
	"hasn't", "haven", "haven't", "isn", "isn't", "ma", "mightn", "mightn't",
	"mustn", "mustn't", "needn", "needn't", "shan", "shan't", "shouldn",
	"shouldn't", "wasn", "wasn't", "weren", "weren't", "won", "won't", "wouldn",
	"wouldn't",
}
