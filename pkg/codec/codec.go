// Package codec turns raw value bytes into the envelope stored in the
// remote cache tier. Payloads above a configured size threshold are
// gzip-compressed; the envelope records whether compression was applied
// so reads can invert it.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/voiceops/multicache/pkg/stats"
)

// ErrPayload indicates a stored payload is malformed or incompatible.
// Callers treat it as a miss: reloading is safer than returning corrupt
// data.
var ErrPayload = errors.New("malformed cache payload")

// Entry is the stored form of a cached value. Each tier holds its own
// copy; entries are never shared between tiers.
type Entry struct {
	// Value is the (possibly compressed) value bytes.
	Value []byte `json:"value"`

	// StoredAt is when the entry was written.
	StoredAt time.Time `json:"stored_at"`

	// TTL is the entry's lifetime from StoredAt.
	TTL time.Duration `json:"ttl"`

	// Compressed records whether Value is gzip-compressed.
	Compressed bool `json:"compressed"`
}

// Expired reports whether the entry must no longer be served.
func (e *Entry) Expired(now time.Time) bool {
	return now.Sub(e.StoredAt) >= e.TTL
}

// Remaining returns the time until expiration, 0 if already expired.
func (e *Entry) Remaining(now time.Time) time.Duration {
	rem := e.TTL - now.Sub(e.StoredAt)
	if rem < 0 {
		return 0
	}
	return rem
}

// Codec encodes and decodes cache envelopes.
type Codec struct {
	threshold int
	stats     *stats.Collector
}

// New creates a codec that compresses payloads larger than threshold
// bytes. A threshold <= 0 disables compression. The collector may be
// nil.
func New(threshold int, collector *stats.Collector) *Codec {
	return &Codec{threshold: threshold, stats: collector}
}

// Encode wraps raw value bytes into an envelope, compressing when the
// payload exceeds the threshold.
func (c *Codec) Encode(value []byte, ttl time.Duration) ([]byte, error) {
	entry := Entry{
		Value:    value,
		StoredAt: time.Now(),
		TTL:      ttl,
	}

	if c.threshold > 0 && len(value) > c.threshold {
		compressed, err := compress(value)
		if err != nil {
			return nil, fmt.Errorf("compress payload: %w", err)
		}
		// Only keep the compressed form when it actually saves space.
		if len(compressed) < len(value) {
			entry.Value = compressed
			entry.Compressed = true
			if c.stats != nil {
				c.stats.AddCompressionSave()
			}
		}
	}

	data, err := json.Marshal(&entry)
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}
	return data, nil
}

// Decode unwraps an envelope and returns the entry plus the plain value
// bytes. Expiry checking is the caller's responsibility.
func (c *Codec) Decode(data []byte) (*Entry, []byte, error) {
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrPayload, err)
	}

	value := entry.Value
	if entry.Compressed {
		plain, err := decompress(value)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrPayload, err)
		}
		value = plain
	}
	return &entry, value, nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
