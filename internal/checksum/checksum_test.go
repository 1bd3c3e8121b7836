package checksum

import "testing"

func TestNoteDistinguishesFields(t *testing.T) {
	if Note("ab", "c") == Note("a", "bc") {
		t.Error("title/content boundary must be part of the digest")
	}
	if Note("t", "c") != Note("t", "c") {
		t.Error("digest must be deterministic")
	}
	if len(Sum([]byte("x"))) != 64 {
		t.Error("expected hex sha256")
	}
}

func TestMatch(t *testing.T) {
	cur := Note("t", "c")
	cases := []struct {
		ifMatch string
		want    bool
	}{
		{"", true},
		{"*", true},
		{cur, true},
		{`"` + cur + `"`, true},
		{`W/"` + cur + `"`, true},
		{`"other", "` + cur + `"`, true},
		{"other", false},
	}
	for _, c := range cases {
		if got := Match(c.ifMatch, cur); got != c.want {
			t.Errorf("Match(%q) = %v, want %v", c.ifMatch, got, c.want)
		}
	}
}
