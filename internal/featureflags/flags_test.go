package featureflags

import "testing"

func TestEnabled(t *testing.T) {
	s := New([]string{" Public_Signup ", ""})
	if !s.Enabled(PublicSignup) {
		t.Fatalf("expected %s enabled", PublicSignup)
	}
	if s.Enabled("beta_reports") {
		t.Fatalf("expected unknown flag disabled")
	}
	var nilSet *Set
	if nilSet.Enabled(PublicSignup) {
		t.Fatalf("nil set must report disabled")
	}
}
