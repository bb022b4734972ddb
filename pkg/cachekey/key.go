// Package cachekey builds deterministic cache keys from a logical
// namespace and ordered argument values. Two logically identical lookups
// always produce byte-identical keys, which the cache relies on for
// deduplication and invalidation.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// keyPrefix namespaces all keys in the shared L2 store so unrelated
// applications on the same Redis do not collide.
const keyPrefix = "mlc"

// maxPartLen is the longest rendered argument kept verbatim. Longer
// arguments (free-text queries) are replaced by a hash so keys stay
// bounded and Redis-friendly.
const maxPartLen = 64

// Well-known namespaces used by call-handling code.
const (
	NamespaceBusiness  = "business-lookup"
	NamespaceKnowledge = "knowledge-base"
	NamespaceDefault   = "default"
)

// Key is an opaque, deterministic cache key.
type Key struct {
	Namespace string
	parts     []string
}

// New builds a key from a namespace and ordered arguments.
// Arguments are rendered deterministically: primitives verbatim,
// everything else through fmt, oversized renderings hashed.
func New(namespace string, args ...any) Key {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, renderArg(arg))
	}
	return Key{Namespace: namespace, parts: parts}
}

// String renders the full key.
// Format: mlc:<namespace>:<arg1>:<arg2>...
func (k Key) String() string {
	elems := make([]string, 0, len(k.parts)+2)
	elems = append(elems, keyPrefix, k.Namespace)
	elems = append(elems, k.parts...)
	return strings.Join(elems, ":")
}

// Prefix returns the key prefix shared by every key in a namespace,
// used for pattern invalidation.
func Prefix(namespace string) string {
	return keyPrefix + ":" + namespace + ":"
}

// GlobalPrefix returns the prefix shared by every key this module owns,
// regardless of namespace.
func GlobalPrefix() string {
	return keyPrefix + ":"
}

// Business builds the key for a business lookup by phone number.
func Business(phone string) Key {
	return New(NamespaceBusiness, phone)
}

// Knowledge builds the key for a knowledge-base query. The query text is
// hashed: queries are long, user-supplied and only equality matters.
func Knowledge(businessID, query string) Key {
	return New(NamespaceKnowledge, businessID, hashPart(query))
}

func renderArg(arg any) string {
	var s string
	switch v := arg.(type) {
	case string:
		s = v
	case int:
		s = strconv.Itoa(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	case uint64:
		s = strconv.FormatUint(v, 10)
	case bool:
		s = strconv.FormatBool(v)
	case float64:
		s = strconv.FormatFloat(v, 'g', -1, 64)
	case fmt.Stringer:
		s = v.String()
	default:
		s = fmt.Sprintf("%v", v)
	}

	if len(s) > maxPartLen {
		return hashPart(s)
	}
	// Colons delimit key segments; escape them so arguments containing
	// colons still produce unambiguous keys.
	return strings.ReplaceAll(s, ":", "-")
}

func hashPart(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
