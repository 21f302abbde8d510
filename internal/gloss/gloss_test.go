package gloss

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func letters(extra ...string) KeySet {
	keys := append([]string{}, extra...)
	for c := 'a'; c <= 'z'; c++ {
		keys = append(keys, string(c))
	}
	return NewKeySet(keys...)
}

func TestExpand(t *testing.T) {
	lib := letters("milk", "default")

	tests := []struct {
		name  string
		words []string
		want  []string
	}{
		{"fingerspelled", []string{"hello"}, []string{"h", "e", "l", "l", "o"}},
		{"case folded", []string{"HeLLo"}, []string{"h", "e", "l", "l", "o"}},
		{"whole word", []string{"milk"}, []string{"milk"}},
		{"whole word any case", []string{"Milk"}, []string{"milk"}},
		{"empty", []string{}, []string{}},
		{"nil", nil, []string{}},
		{"mixed", []string{"hi", "milk"}, []string{"h", "i", "milk"}},
		{"repeat letters kept", []string{"ball"}, []string{"b", "a", "l", "l"}},
		{"unknown chars dropped", []string{"a1!b"}, []string{"a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Expand(tt.words, lib))
		})
	}
}

func TestExpandSkipsMissingLetters(t *testing.T) {
	lib := NewKeySet("h", "o")
	assert.Equal(t, []string{"h", "o"}, Expand([]string{"hello"}, lib))
	assert.Empty(t, Expand([]string{"xyz"}, lib))
}

func TestTokenizeOnlySplits(t *testing.T) {
	assert.Equal(t, []string{"Hello,", "don't", "MILK!"}, Tokenize(" Hello,\tdon't\n MILK! "))
	assert.Empty(t, Tokenize("   "))
}

func TestExpandText(t *testing.T) {
	assert.Equal(t, []string{"h", "i", "milk"}, ExpandText("  hi\tmilk\n", letters("milk")))
}

func TestToGloss(t *testing.T) {
	m := NewMapper(nil)

	tests := []struct {
		text string
		want string
	}{
		{"I am going to the store", "ME GO STORE"},
		{"I want milk.", "ME WANT MILK"},
		{"We don't have milk because it is bad", "US NOT HAVE MILK WHY BAD"},
		{"You and me", "YOU PLUS ME"},
		{"Hello , world !", "HELLO WORLD"},
		{"of the", ""},
		{"", ""},
		{"won't stop", "NOT WILL STOP"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, m.ToGloss(tt.text))
		})
	}
}

func TestMapperOverrides(t *testing.T) {
	m := NewMapper(map[string]string{"Store": "SHOP", "very": "VERY", "world": ""})
	assert.Equal(t, "SHOP VERY", m.ToGloss("store very world"))
}
