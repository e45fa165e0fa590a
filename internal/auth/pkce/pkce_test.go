package pkce

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestGenerateVerifier_LengthAndCharset(t *testing.T) {
	v, err := GenerateVerifier()
	if err != nil {
		t.Fatalf("generate verifier: %v", err)
	}
	if len(v) != 43 {
		t.Fatalf("expected 43-character verifier, got %d (%q)", len(v), v)
	}
	if _, err := base64.RawURLEncoding.DecodeString(v); err != nil {
		t.Fatalf("verifier is not URL-safe base64: %v", err)
	}
}

func TestGenerateVerifier_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		v, err := GenerateVerifier()
		if err != nil {
			t.Fatalf("generate verifier: %v", err)
		}
		if seen[v] {
			t.Fatalf("verifier %q generated twice", v)
		}
		seen[v] = true
	}
}

func TestChallenge_RFC7636Vector(t *testing.T) {
	// Appendix B of RFC 7636.
	const verifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	const want = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"

	got := Challenge(verifier)
	if got != want {
		t.Fatalf("challenge mismatch: got %q, want %q", got, want)
	}
	if len(got) != 43 {
		t.Fatalf("expected 43-character digest, got %d", len(got))
	}
	if got != Challenge(verifier) {
		t.Fatal("challenge is not deterministic")
	}
}

func TestState_PortRoundTrip(t *testing.T) {
	for _, port := range []int{1, 80, 8080, 49152, 65535} {
		state, err := GenerateState(port)
		if err != nil {
			t.Fatalf("generate state: %v", err)
		}
		got, err := PortFromState(state)
		if err != nil {
			t.Fatalf("parse state %q: %v", state, err)
		}
		if got != port {
			t.Fatalf("port round trip failed: got %d, want %d", got, port)
		}
	}
}

func TestState_RandomComponent(t *testing.T) {
	a, err := GenerateState(8080)
	if err != nil {
		t.Fatalf("generate state: %v", err)
	}
	b, err := GenerateState(8080)
	if err != nil {
		t.Fatalf("generate state: %v", err)
	}
	if a == b {
		t.Fatalf("state tokens for the same port must differ, both %q", a)
	}
}

func TestPortFromState_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		state string
	}{
		{name: "no port", state: "deadbeef"},
		{name: "empty", state: ""},
		{name: "non-numeric port", state: "deadbeef.http"},
		{name: "port zero", state: "deadbeef.0"},
		{name: "port too large", state: "deadbeef.70000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := PortFromState(tt.state); err == nil {
				t.Fatalf("expected error for state %q", tt.state)
			}
		})
	}
}

func TestChallenge_DiffersFromVerifier(t *testing.T) {
	v, err := GenerateVerifier()
	if err != nil {
		t.Fatalf("generate verifier: %v", err)
	}
	if strings.Contains(Challenge(v), v) {
		t.Fatal("challenge must not embed the verifier")
	}
}
