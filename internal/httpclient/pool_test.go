package httpclient

import "testing"

func TestNewDirectConnection(t *testing.T) {
	p := New("")
	if p.ProxyURL() != "" {
		t.Fatalf("expected empty proxy url, got %q", p.ProxyURL())
	}
	if p.Short().Timeout != shortTimeout {
		t.Fatalf("short client timeout = %v, want %v", p.Short().Timeout, shortTimeout)
	}
	if p.Long().Timeout != longTimeout {
		t.Fatalf("long client timeout = %v, want %v", p.Long().Timeout, longTimeout)
	}
}

func TestSetProxySwapsBothClients(t *testing.T) {
	p := New("")
	oldShort := p.Short()
	oldLong := p.Long()

	if err := p.SetProxy("proxy.internal:8080"); err != nil {
		t.Fatalf("SetProxy returned error: %v", err)
	}
	if p.ProxyURL() != "proxy.internal:8080" {
		t.Fatalf("ProxyURL() = %q, want %q", p.ProxyURL(), "proxy.internal:8080")
	}
	if p.Short() == oldShort || p.Long() == oldLong {
		t.Fatalf("expected SetProxy to swap in new client instances")
	}
}

func TestSetProxyInvalidURL(t *testing.T) {
	p := New("")
	err := p.SetProxy("http://%zz")
	if err == nil {
		t.Fatalf("expected error for malformed proxy url")
	}
}

func TestNewFallsBackOnInvalidInitialProxy(t *testing.T) {
	p := New("http://%zz")
	if p.ProxyURL() != "" {
		t.Fatalf("expected fallback to direct connection, got proxy %q", p.ProxyURL())
	}
}
