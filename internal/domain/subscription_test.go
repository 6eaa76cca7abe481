package domain

import "testing"

func TestMatchChannel(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		channel string
		want    bool
	}{
		{"exact match", "presence.u1", "presence.u1", true},
		{"exact mismatch", "presence.u1", "presence.u2", false},
		{"wildcard matches family member", "presence.*", "presence.u1", true},
		{"wildcard matches dotted target", "presence.*", "presence.team.a", true},
		{"wildcard rejects other family", "presence.*", "activity.u1", false},
		{"wildcard rejects bare family", "presence.*", "presence", false},
		{"wildcard rejects empty target", "presence.*", "presence.", false},
		{"wildcard rejects family prefix", "presence.*", "presenceX.u1", false},
		{"no mid-string wildcard", "presence.*.status", "presence.u1.status", false},
		{"empty pattern", "", "presence.u1", false},
		{"empty channel", "presence.u1", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchChannel(tt.pattern, tt.channel); got != tt.want {
				t.Errorf("MatchChannel(%q, %q) = %v, want %v", tt.pattern, tt.channel, got, tt.want)
			}
		})
	}
}

func TestPrincipalAuthenticated(t *testing.T) {
	if (Principal{}).Authenticated() {
		t.Error("empty principal should not be authenticated")
	}
	if !(Principal{UserID: "u1"}).Authenticated() {
		t.Error("principal with user id should be authenticated")
	}
	if !(Principal{UserID: "anon-123", Anonymous: true}).Authenticated() {
		t.Error("synthetic anonymous principal should still count as authenticated")
	}
}
