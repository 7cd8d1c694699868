package nodes

import (
	"fmt"
	"strconv"
	"strings"
)

// FallbackPrefix is prepended to the hex id of nodes missing from the directory
const FallbackPrefix = "node_"

// Directory maps mesh node numbers to human-readable labels.
// It is built once at startup and never mutated afterwards.
type Directory struct {
	labels map[uint32]string
}

// NewDirectory copies labels into a new read-only directory
func NewDirectory(labels map[uint32]string) *Directory {
	d := &Directory{labels: make(map[uint32]string, len(labels))}
	for id, label := range labels {
		if label == "" {
			continue
		}
		d.labels[id] = label
	}
	return d
}

// FromConfig builds a directory from config keys such as "2882400001",
// "!abcd0001" or "0xabcd0001"
func FromConfig(entries map[string]string) (*Directory, error) {
	labels := make(map[uint32]string, len(entries))
	for key, label := range entries {
		id, err := ParseID(key)
		if err != nil {
			return nil, fmt.Errorf("invalid node id %q: %w", key, err)
		}
		labels[id] = label
	}
	return NewDirectory(labels), nil
}

// Resolve returns the configured label for id, or node_<hex> when unmapped.
// A nil directory resolves everything to the fallback label.
func (d *Directory) Resolve(id uint32) string {
	if d != nil {
		if label, ok := d.labels[id]; ok {
			return label
		}
	}
	return FallbackPrefix + strconv.FormatUint(uint64(id), 16)
}

// Len returns the number of mapped nodes
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.labels)
}

// ParseID parses a node number written in decimal, "!hex" or "0xhex" form
func ParseID(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	base := 10
	switch {
	case strings.HasPrefix(s, "!"):
		s, base = s[1:], 16
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		s, base = s[2:], 16
	}
	if s == "" {
		return 0, fmt.Errorf("empty node id")
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}
