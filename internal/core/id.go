package core

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ID identifies a transaction or a recurring series. Stored documents carry
// numeric IDs, but any string is accepted. The empty ID means "none".
type ID string

func (id ID) IsZero() bool   { return strings.TrimSpace(string(id)) == "" }
func (id ID) String() string { return string(id) }

// MarshalJSON writes the empty ID as null and all-digit IDs as numbers.
func (id ID) MarshalJSON() ([]byte, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return []byte("null"), nil
	}
	if isDigits(s) {
		return []byte(s), nil
	}
	return json.Marshal(s)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*id = ""
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	raw := string(data)
	if isDigits(raw) {
		*id = ID(raw)
		return nil
	}
	// 1.7e12 or 1700000000000.0 from tools that write floats.
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*id = ID(raw)
		return nil
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		*id = ID(strconv.FormatInt(int64(f), 10))
		return nil
	}
	*id = ID(raw)
	return nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// IDSource yields fresh identifiers.
type IDSource interface {
	Next() ID
}

// MonotonicIDs issues creation-time millisecond IDs. IDs issued by one source
// are strictly increasing even when several are requested within the same
// millisecond.
type MonotonicIDs struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

// NewMonotonicIDs returns a source driven by clock, or time.Now when nil.
func NewMonotonicIDs(clock func() time.Time) *MonotonicIDs {
	if clock == nil {
		clock = time.Now
	}
	return &MonotonicIDs{now: clock}
}

func (m *MonotonicIDs) Next() ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.now().UnixMilli()
	if n <= m.last {
		n = m.last + 1
	}
	m.last = n
	return ID(strconv.FormatInt(n, 10))
}

// Observe makes later IDs exceed id when it is numeric. Loading a document
// observes every stored ID so new ones never collide with old ones.
func (m *MonotonicIDs) Observe(id ID) {
	n, err := strconv.ParseInt(strings.TrimSpace(string(id)), 10, 64)
	if err != nil {
		return
	}
	m.mu.Lock()
	if n > m.last {
		m.last = n
	}
	m.mu.Unlock()
}
