package suggest

import "strings"

// Class is the phonetic class assigned to a phoneme label.
type Class int

const (
	// ClassVowel marks vowel-type phonemes (syllable nuclei).
	ClassVowel Class = iota

	// ClassConsonant marks consonant-type phonemes.
	ClassConsonant
)

// vowelSymbols is the static lookup table of known vowel labels: romaji
// vowels, IPA vowel symbols, and ARPAbet-style vowel codes. Kept as data so
// the table is trivially testable and extensible.
var vowelSymbols = map[string]struct{}{
	// Romaji / romanised Japanese.
	"a": {}, "i": {}, "u": {}, "e": {}, "o": {},
	// IPA vowels.
	"ɐ": {}, "ɑ": {}, "ɒ": {}, "æ": {}, "ə": {}, "ɘ": {}, "ɛ": {}, "ɜ": {},
	"ɤ": {}, "ɨ": {}, "ɪ": {}, "ɯ": {}, "ɔ": {}, "ø": {}, "œ": {}, "ʉ": {},
	"ʊ": {}, "ʌ": {}, "y": {},
	// ARPAbet-style codes (stress digits stripped before lookup).
	"aa": {}, "ae": {}, "ah": {}, "ao": {}, "aw": {}, "ax": {}, "ay": {},
	"eh": {}, "er": {}, "ey": {}, "ih": {}, "iy": {}, "ow": {}, "oy": {},
	"uh": {}, "uw": {},
}

// consonantSymbols is the static lookup table of known consonant labels.
var consonantSymbols = map[string]struct{}{
	// Romaji consonants and digraphs.
	"k": {}, "g": {}, "s": {}, "z": {}, "t": {}, "d": {}, "n": {}, "h": {},
	"b": {}, "p": {}, "m": {}, "r": {}, "w": {}, "f": {}, "v": {}, "j": {},
	"ch": {}, "ts": {}, "sh": {}, "ky": {}, "gy": {}, "ny": {}, "hy": {},
	"by": {}, "py": {}, "my": {}, "ry": {}, "ng": {},
	// IPA consonants common in aligner output.
	"ɕ": {}, "ʑ": {}, "ɸ": {}, "ɲ": {}, "ŋ": {}, "ɾ": {}, "ʔ": {}, "ç": {},
	"θ": {}, "ð": {}, "ʃ": {}, "ʒ": {}, "ɹ": {}, "l": {},
	// ARPAbet-style codes.
	"dh": {}, "hh": {}, "jh": {}, "th": {}, "zh": {},
}

// vowelLetters are the plain letters treated as vowels by the fallback
// heuristic.
const vowelLetters = "aiueoɐɑɒæəɘɛɜɤɨɪɯɔøœʉʊʌy"

// Classify assigns a phonetic class to a phoneme label. Unknown labels are
// never left ambiguous: a secondary heuristic resolves them by letter
// composition, so every label classifies as either vowel or consonant.
func Classify(phoneme string) Class {
	norm := normalizeLabel(phoneme)
	if norm == "" {
		return ClassConsonant
	}

	if _, ok := vowelSymbols[norm]; ok {
		return ClassVowel
	}
	if _, ok := consonantSymbols[norm]; ok {
		return ClassConsonant
	}

	// Fallback: a label made entirely of vowel letters is a vowel
	// (covers long vowels like "aa" and diphthong-ish labels like "ai").
	allVowel := true
	for _, r := range norm {
		if !strings.ContainsRune(vowelLetters, r) {
			allVowel = false
			break
		}
	}
	if allVowel {
		return ClassVowel
	}
	return ClassConsonant
}

// normalizeLabel lowercases a label and strips ARPAbet stress digits and IPA
// length marks before table lookup.
func normalizeLabel(phoneme string) string {
	norm := strings.ToLower(strings.TrimSpace(phoneme))
	norm = strings.TrimRight(norm, "012")
	norm = strings.ReplaceAll(norm, "ː", "")
	return norm
}
