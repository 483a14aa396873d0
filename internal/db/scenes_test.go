package db

import "testing"

func TestCountWords(t *testing.T) {
	cases := []struct {
		script string
		want   int
	}{
		{"", 0},
		{"   ", 0},
		{"one", 1},
		{"The quick brown fox jumps over the lazy dog", 9},
		{"  leading and   uneven\tspacing\nacross lines ", 6},
	}

	for _, c := range cases {
		if got := CountWords(c.script); got != c.want {
			t.Errorf("CountWords(%q) = %d, want %d", c.script, got, c.want)
		}
	}
}
