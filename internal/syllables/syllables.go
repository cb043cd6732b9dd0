// Package syllables is the catalog of common Hebrew syllables the system
// trains references for.
package syllables

import "unicode/utf8"

// Syllable is a catalog entry.
type Syllable struct {
	Text            string `json:"text"`
	Transliteration string `json:"transliteration"`
}

// catalog is ordered by training priority: simple CV patterns first, then
// frequent words, word beginnings, word endings and high-frequency CV pairs.
var catalog = []Syllable{
	{"בְּ", "be"}, {"לְ", "le"}, {"שֶׁ", "she"}, {"הַ", "ha"}, {"מֵ", "me"},
	{"כָּ", "ka"}, {"תִּ", "ti"}, {"וְ", "ve"}, {"יְ", "ye"}, {"נִ", "ni"},
	{"רַ", "ra"}, {"סֵ", "se"}, {"עַ", "a"}, {"פָּ", "pa"}, {"צְ", "tse"},
	{"קֹ", "ko"}, {"דָ", "da"}, {"גַ", "ga"}, {"זֶ", "ze"}, {"חֹ", "cho"},
	{"לֹא", "lo"}, {"מַה", "ma"}, {"אֶת", "et"}, {"זֶה", "ze"}, {"הוּא", "hu"},
	{"הִיא", "hi"}, {"אֲנִי", "ani"}, {"אַתָּה", "ata"}, {"אַתְּ", "at"}, {"הֵם", "hem"},
	{"שֶׁל", "shel"}, {"עַל", "al"}, {"אֵל", "el"}, {"בֵּין", "bein"}, {"עִם", "im"},
	{"כְּמֹו", "kemo"}, {"גַּם", "gam"}, {"רַק", "rak"}, {"אוֹ", "o"}, {"אִם", "im"},
	{"מִ", "mi"}, {"בִּ", "bi"}, {"לִ", "li"}, {"כְּ", "ke"}, {"שְׁ", "she"},
	{"הָ", "ha"}, {"וּ", "u"}, {"יִ", "yi"}, {"תְּ", "te"}, {"נְ", "ne"},
	{"תִי", "ti"}, {"תָּ", "ta"}, {"נוּ", "nu"}, {"תֶּם", "tem"}, {"הֶן", "hen"},
	{"ךָ", "kha"}, {"כֶם", "khem"}, {"הָה", "ha"}, {"וֹת", "ot"}, {"תִּי", "ti"},
	{"רָה", "ra"}, {"לָה", "la"}, {"יָה", "ya"}, {"נָה", "na"}, {"מָה", "ma"},
	{"בָּה", "ba"}, {"שָׁה", "sha"}, {"דָה", "da"}, {"כָה", "kha"}, {"סָה", "sa"},
	{"רִי", "ri"}, {"לִי", "li"}, {"יִי", "yi"}, {"נִי", "ni"}, {"מִי", "mi"},
	{"בִּי", "bi"}, {"שִׁי", "shi"}, {"דִי", "di"}, {"כִּי", "ki"}, {"סִי", "si"},
	{"רוּ", "ru"}, {"לוּ", "lu"}, {"יוּ", "yu"}, {"מוּ", "mu"}, {"בּוּ", "bu"},
	{"שׁוּ", "shu"}, {"דוּ", "du"}, {"כּוּ", "ku"}, {"סוּ", "su"}, {"רֶם", "rem"},
	{"לֶם", "lem"}, {"יֶם", "yem"}, {"נֶם", "nem"}, {"מֶם", "mem"}, {"בֶּם", "bem"},
	{"שֶׁם", "shem"}, {"דֶם", "dem"}, {"כֶּם", "kem"}, {"סֶם", "sem"},
}

var index = func() map[string]int {
	m := make(map[string]int, len(catalog))
	for i, s := range catalog {
		m[s.Text] = i
	}
	return m
}()

// All returns a copy of the catalog in training order.
func All() []Syllable {
	return append([]Syllable(nil), catalog...)
}

// Labels returns the syllable texts in training order.
func Labels() []string {
	out := make([]string, len(catalog))
	for i, s := range catalog {
		out[i] = s.Text
	}
	return out
}

// Count is the number of catalog entries.
func Count() int { return len(catalog) }

// Lookup returns the catalog entry for text.
func Lookup(text string) (Syllable, bool) {
	i, ok := index[text]
	if !ok {
		return Syllable{}, false
	}
	return catalog[i], true
}

// Transliteration returns the Latin pronunciation guide for text, or text
// itself when it is not in the catalog.
func Transliteration(text string) string {
	if s, ok := Lookup(text); ok {
		return s.Transliteration
	}
	return text
}

// Category classifies a syllable by structure: "CV" when it carries both a
// consonant letter and a vowel sign, "C" or "V" when it carries only one,
// "other" for neither and "empty" for the empty string.
func Category(text string) string {
	if text == "" {
		return "empty"
	}
	var consonant, vowel bool
	prev := rune(0)
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		switch {
		case isLetter(r):
			consonant = true
		case isVowelPoint(r):
			vowel = true
		case r == dagesh && prev == vav:
			// Shuruk: vav with a dagesh reads as the vowel u.
			vowel = true
		}
		prev = r
	}
	switch {
	case consonant && vowel:
		return "CV"
	case consonant:
		return "C"
	case vowel:
		return "V"
	}
	return "other"
}

const (
	dagesh = '\u05BC'
	vav    = '\u05D5'
)

func isLetter(r rune) bool { return r >= '\u05D0' && r <= '\u05EA' }

// isVowelPoint covers sheva through qubuts, including the hataf vowels and
// holam.
func isVowelPoint(r rune) bool { return r >= '\u05B0' && r <= '\u05BB' }
