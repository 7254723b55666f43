package transport

import "testing"

func TestNextBackoffDoublesAndCaps(t *testing.T) {
	cur := minBackoff
	seen := []int{}
	for i := 0; i < 10; i++ {
		seen = append(seen, int(cur.Seconds()))
		cur = nextBackoff(cur)
	}
	if cur != maxBackoff {
		t.Fatalf("expected backoff to converge to cap %s, got %s", maxBackoff, cur)
	}
	for _, s := range seen {
		if s > int(maxBackoff.Seconds()) {
			t.Fatalf("backoff exceeded cap: %ds", s)
		}
	}
}
