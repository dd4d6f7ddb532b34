package core

import (
	"maps"
	"slices"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxSearchTokens caps the number of tokens stored per document.
	MaxSearchTokens = 2000

	// MaxTokenLength is the longest token (and longest prefix) emitted.
	MaxTokenLength = 10

	minPrefixLength = 2
)

// BuildSearchTokens derives the search tokens of a flat record.
//
// String values are split into words on runs of characters that are neither
// letters nor digits. Numbers are formatted and split the same way. Other
// value types are ignored. Every word contributes itself (when it is at most
// MaxTokenLength runes) and its prefixes of 2..MaxTokenLength runes, all
// lowercased. Tokens are deduplicated in first-seen order and the result is
// truncated at MaxSearchTokens.
//
// Fields are visited in sorted key order so the output is deterministic for
// a given record.
func BuildSearchTokens(record map[string]any) []string {
	tokens := make([]string, 0, 16)
	seen := make(map[string]struct{})

	add := func(tok string) bool {
		if _, ok := seen[tok]; ok {
			return true
		}
		if len(tokens) >= MaxSearchTokens {
			return false
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
		return true
	}

	for _, key := range slices.Sorted(maps.Keys(record)) {
		text, ok := tokenText(record[key])
		if !ok {
			continue
		}
		for _, word := range splitWords(text) {
			if !addWord(word, add) {
				return tokens
			}
		}
	}
	return tokens
}

// addWord emits the tokens for one lowercased word. It returns false once the
// token cap is reached.
func addWord(word string, add func(string) bool) bool {
	runes := []rune(word)
	if len(runes) <= MaxTokenLength && !add(word) {
		return false
	}
	for n := minPrefixLength; n <= min(len(runes), MaxTokenLength); n++ {
		if !add(string(runes[:n])) {
			return false
		}
	}
	return true
}

func tokenText(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint:
		return strconv.FormatUint(uint64(t), 10), true
	case uint32:
		return strconv.FormatUint(uint64(t), 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}

func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// searchToken normalises a user query into the single token looked up in the
// index: the first word, lowercased, truncated to MaxTokenLength runes.
func searchToken(query string) string {
	words := splitWords(query)
	if len(words) == 0 {
		return ""
	}
	w := words[0]
	if utf8.RuneCountInString(w) <= MaxTokenLength {
		return w
	}
	r := []rune(w)
	return string(r[:MaxTokenLength])
}
