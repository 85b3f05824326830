package security

import (
	"testing"
	"time"
)

func TestMatchesPatternExactAndCIDR(t *testing.T) {
	if !MatchesPattern("10.0.0.5", "10.0.0.5") {
		t.Fatalf("expected exact match")
	}
	if !MatchesPattern("10.0.0.5", "10.0.0.0/24") {
		t.Fatalf("expected CIDR match")
	}
	if MatchesPattern("10.0.1.5", "10.0.0.0/24") {
		t.Fatalf("expected no CIDR match")
	}
}

func TestExtractClientIPPriority(t *testing.T) {
	if got := ExtractClientIP("1.1.1.1, 2.2.2.2", "3.3.3.3", "4.4.4.4:9999"); got != "1.1.1.1" {
		t.Fatalf("expected first XFF entry, got %q", got)
	}
	if got := ExtractClientIP("", "3.3.3.3", "4.4.4.4:9999"); got != "3.3.3.3" {
		t.Fatalf("expected X-Real-IP fallback, got %q", got)
	}
	if got := ExtractClientIP("", "", "4.4.4.4:9999"); got != "4.4.4.4" {
		t.Fatalf("expected remote addr fallback, got %q", got)
	}
}

func TestBanMessageTimedBanMinutes(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	expires := now.Unix() + 3600 // ban started at now-10s with expires_at = now+3600-10, simulate "10 past, 59 min left"
	expires = now.Unix() + 59*60
	msg := BanMessage("policy", &expires, now)
	want := "Temporary ban. Please try again after 0 hour(s) and 59 minute(s)."
	if msg != "Access denied. Reason: policy. "+want {
		t.Fatalf("got %q", msg)
	}
}

func TestBanMessageTimedBanDays(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	expires := now.Unix() + 25*3600 // just over 24h -> days clause
	msg := BanMessage("policy", &expires, now)
	want := "Temporary ban. Please try again after 1 day(s)."
	if msg != "Access denied. Reason: policy. "+want {
		t.Fatalf("got %q", msg)
	}
}

func TestBanMessagePermanent(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	msg := BanMessage("abuse", nil, now)
	if msg != "Access denied. Reason: abuse. Permanent ban." {
		t.Fatalf("got %q", msg)
	}
}

func TestBanMessageExpired(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	expired := now.Unix() - 10
	msg := BanMessage("abuse", &expired, now)
	if msg != "Access denied. Reason: abuse. Temporary ban (expired, will be removed soon)." {
		t.Fatalf("got %q", msg)
	}
}
