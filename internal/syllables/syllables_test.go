package syllables

import "testing"

func TestCatalogUnique(t *testing.T) {
	if Count() != 99 {
		t.Fatalf("expected 99 syllables, got %d", Count())
	}
	seen := map[string]bool{}
	for _, s := range All() {
		if seen[s.Text] {
			t.Fatalf("duplicate syllable %q", s.Text)
		}
		seen[s.Text] = true
		if s.Transliteration == "" {
			t.Fatalf("missing transliteration for %q", s.Text)
		}
	}
	if Labels()[0] != "בְּ" {
		t.Fatalf("unexpected first label %q", Labels()[0])
	}
}

func TestAllReturnsCopy(t *testing.T) {
	all := All()
	all[0].Text = "x"
	if Labels()[0] == "x" {
		t.Fatalf("catalog mutated through All")
	}
}

func TestTransliteration(t *testing.T) {
	cases := map[string]string{
		"שֶׁל":  "shel",
		"אֲנִי": "ani",
		"zz":    "zz",
	}
	for in, want := range cases {
		if got := Transliteration(in); got != want {
			t.Fatalf("Transliteration(%q)=%q want %q", in, got, want)
		}
	}
}

func TestCategory(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "empty"},
		{"abc", "other"},
		{"ב", "C"},
		{"ַ", "V"},
		{"בְּ", "CV"},
		{"וּ", "CV"},
		{"הוּא", "CV"},
	}
	for _, c := range cases {
		if got := Category(c.in); got != c.want {
			t.Fatalf("Category(%q)=%q want %q", c.in, got, c.want)
		}
	}
	for _, s := range All() {
		if got := Category(s.Text); got != "CV" {
			t.Fatalf("catalog entry %q categorized %q", s.Text, got)
		}
	}
}
