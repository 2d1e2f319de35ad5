package httpapi

import (
	"testing"
	"time"
)

func TestStreamInterval(t *testing.T) {
	configured := 30 * time.Second
	cases := []struct {
		name string
		raw  string
		want time.Duration
		ok   bool
	}{
		{"empty", "", 0, false},
		{"garbage", "soon", 0, false},
		{"zero", "0", 0, false},
		{"negative", "-5", 0, false},
		{"below configured floor", "1", configured, true},
		{"at floor", "30", configured, true},
		{"slower than configured", "120", 2 * time.Minute, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := streamInterval(tc.raw, configured)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("streamInterval(%q)=(%v,%v), want (%v,%v)", tc.raw, got, ok, tc.want, tc.ok)
			}
		})
	}
}
