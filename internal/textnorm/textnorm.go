// Package textnorm normalises posting and query text. It lower-cases input,
// splits on non-alphanumeric boundaries while keeping technology suffixes
// such as "c++", "c#" and "node.js" intact, removes stop-words and builds
// the n-gram phrases used as keyword candidates.
package textnorm

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
	"we": {}, "our": {}, "you": {}, "your": {}, "us": {}, "i": {},
	"am": {}, "been": {}, "being": {}, "into": {}, "about": {},
	"also": {}, "all": {}, "any": {}, "more": {}, "than": {},
	"such": {}, "these": {}, "those": {}, "there": {}, "here": {},
	"would": {}, "should": {}, "could": {}, "must": {}, "may": {},
	"looking": {}, "seeking": {}, "join": {}, "role": {}, "job": {},
}

// careerStopWords are career buzzwords that carry no matching signal.
var careerStopWords = map[string]struct{}{
	"know": {}, "knowing": {}, "knowledge": {}, "familiar": {}, "familiarity": {},
	"skilled": {}, "skill": {}, "skills": {}, "ability": {}, "abilities": {},
	"capable": {}, "capability": {}, "proficient": {}, "proficiency": {},
	"expert": {}, "expertise": {}, "experienced": {}, "experience": {},
	"working": {}, "work": {}, "worked": {}, "works": {}, "good": {},
	"strong": {}, "excellent": {}, "background": {}, "understanding": {},
	"motivated": {}, "driven": {}, "passionate": {}, "enthusiastic": {},
	"dedicated": {}, "committed": {}, "innovative": {}, "creative": {},
	"responsible": {}, "hardworking": {}, "self": {}, "learner": {},
	"learning": {}, "adaptable": {}, "flexible": {}, "collaborative": {},
	"team": {}, "player": {}, "results": {}, "oriented": {}, "focused": {},
	"fast": {}, "quick": {}, "etc": {}, "others": {}, "things": {}, "various": {},
}

// Token is a single normalised word and its position in the original text.
// Segment increments whenever a stop-word or sentence punctuation separated
// this token from the previous one, so phrases never span such boundaries.
type Token struct {
	Term     string
	Position int
	Segment  int
}

// IsStopWord reports whether word is filtered from keyword candidates.
func IsStopWord(word string) bool {
	if _, ok := stopWords[word]; ok {
		return true
	}
	_, ok := careerStopWords[word]
	return ok
}

// Normalize lower-cases text and collapses every run of whitespace to a
// single space.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// IsBlank reports whether text has no non-space characters.
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// Words splits text into lower-cased words without removing stop-words.
func Words(text string) []string {
	var words []string
	for _, raw := range splitRaw(strings.ToLower(text)) {
		if raw.word != "" {
			words = append(words, raw.word)
		}
	}
	return words
}

// Tokenize breaks text into lower-cased Tokens with stop-words and single
// letter words removed.
func Tokenize(text string) []Token {
	raws := splitRaw(strings.ToLower(text))
	tokens := make([]Token, 0, len(raws)/2)
	pos := 0
	segment := 0
	for _, raw := range raws {
		if raw.word == "" {
			segment++
			continue
		}
		if len([]rune(raw.word)) < 2 && !isTechShort(raw.word) {
			segment++
			continue
		}
		if IsStopWord(raw.word) {
			segment++
			continue
		}
		tokens = append(tokens, Token{
			Term:     raw.word,
			Position: pos,
			Segment:  segment,
		})
		pos++
	}
	return tokens
}

// Ngrams returns the distinct phrases of 1..maxN consecutive tokens of text
// in first-occurrence order. Phrases never cross a stop-word or punctuation
// boundary.
func Ngrams(text string, maxN int) []string {
	if maxN < 1 {
		maxN = 1
	}
	tokens := Tokenize(text)
	seen := make(map[string]struct{})
	phrases := make([]string, 0, len(tokens)*maxN)
	for i := range tokens {
		for n := 1; n <= maxN && i+n <= len(tokens); n++ {
			if tokens[i+n-1].Segment != tokens[i].Segment {
				break
			}
			parts := make([]string, n)
			for j := 0; j < n; j++ {
				parts[j] = tokens[i+j].Term
			}
			phrase := strings.Join(parts, " ")
			if _, dup := seen[phrase]; dup {
				continue
			}
			seen[phrase] = struct{}{}
			phrases = append(phrases, phrase)
		}
	}
	return phrases
}

type rawWord struct {
	// word is empty for a boundary marker (sentence punctuation).
	word string
}

// splitRaw scans lower-cased text into words and boundary markers.
func splitRaw(text string) []rawWord {
	var out []rawWord
	var b strings.Builder
	flush := func() {
		if b.Len() == 0 {
			return
		}
		w := strings.TrimRight(b.String(), ".")
		b.Reset()
		if w != "" {
			out = append(out, rawWord{word: w})
		}
	}
	runes := []rune(text)
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case (r == '+' || r == '#') && b.Len() > 0:
			b.WriteRune(r)
		case r == '.' && b.Len() > 0 && i+1 < len(runes) && isWordRune(runes[i+1]):
			b.WriteRune(r)
		case r == '.' || r == ',' || r == ';' || r == ':' || r == '!' || r == '?' ||
			r == '(' || r == ')' || r == '\n' || r == '|' || r == '/':
			flush()
			out = append(out, rawWord{})
		default:
			flush()
		}
	}
	flush()
	return out
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// isTechShort keeps one-letter language names that carry a suffix-free
// meaning in job postings.
func isTechShort(word string) bool {
	return word == "c" || word == "r"
}
