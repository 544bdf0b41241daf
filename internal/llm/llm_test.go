package llm

import "testing"

func TestLimitWords(t *testing.T) {
	cases := []struct {
		text string
		n    int
		want string
	}{
		{"Mild and cloudy today", 3, "Mild and cloudy"},
		{"  Mild   and cloudy ", 5, "Mild and cloudy"},
		{"Sunny", 0, "Sunny"},
		{"", 3, ""},
	}
	for _, tc := range cases {
		if got := LimitWords(tc.text, tc.n); got != tc.want {
			t.Fatalf("LimitWords(%q, %d) = %q, want %q", tc.text, tc.n, got, tc.want)
		}
	}
}
