package cachekey

import (
	"strings"
	"testing"
)

func TestKey_String(t *testing.T) {
	tests := []struct {
		name     string
		key      Key
		expected string
	}{
		{
			name:     "namespace only",
			key:      New("business-lookup"),
			expected: "mlc:business-lookup",
		},
		{
			name:     "string argument",
			key:      New("business-lookup", "+15551234567"),
			expected: "mlc:business-lookup:+15551234567",
		},
		{
			name:     "multiple ordered arguments",
			key:      New("knowledge-base", "biz-42", 3, true),
			expected: "mlc:knowledge-base:biz-42:3:true",
		},
		{
			name:     "colons escaped",
			key:      New("default", "a:b:c"),
			expected: "mlc:default:a-b-c",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.expected {
				t.Errorf("String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestKey_Deterministic(t *testing.T) {
	a := New("knowledge-base", "biz-7", "what are your opening hours", 3)
	b := New("knowledge-base", "biz-7", "what are your opening hours", 3)

	if a.String() != b.String() {
		t.Errorf("identical lookups produced different keys: %q vs %q", a, b)
	}
}

func TestKey_ArgumentOrderMatters(t *testing.T) {
	a := New("default", "x", "y")
	b := New("default", "y", "x")

	if a.String() == b.String() {
		t.Error("different argument order should produce different keys")
	}
}

func TestKey_LongArgumentHashed(t *testing.T) {
	long := strings.Repeat("q", 200)
	k := New("knowledge-base", long)

	if len(k.String()) > 64 {
		t.Errorf("long argument not hashed, key length %d", len(k.String()))
	}

	// Hashing must stay deterministic.
	if k.String() != New("knowledge-base", long).String() {
		t.Error("hashed key is not deterministic")
	}
}

func TestPrefix(t *testing.T) {
	k := Business("+15551234567")
	if !strings.HasPrefix(k.String(), Prefix(NamespaceBusiness)) {
		t.Errorf("key %q does not carry prefix %q", k, Prefix(NamespaceBusiness))
	}
}

func TestKnowledge_QueryHashed(t *testing.T) {
	a := Knowledge("biz-1", "short query")
	b := Knowledge("biz-1", "short query")
	c := Knowledge("biz-1", "another query")

	if a.String() != b.String() {
		t.Error("same query should produce identical keys")
	}
	if a.String() == c.String() {
		t.Error("different queries should produce different keys")
	}
}
