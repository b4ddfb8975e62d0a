package abi

import "unicode/utf8"

// StringBuffer is a caller-allocated output string. The callee fills it in
// place; ownership never transfers across the boundary.
type StringBuffer struct {
	data []byte
	set  bool
}

// NewStringBuffer returns an empty buffer with room for capacity bytes.
func NewStringBuffer(capacity int) *StringBuffer {
	return &StringBuffer{data: make([]byte, 0, capacity)}
}

// Set replaces the contents. Invalid UTF-8 is replaced rune by rune.
func (b *StringBuffer) Set(s string) {
	b.data = b.data[:0]
	if utf8.ValidString(s) {
		b.data = append(b.data, s...)
	} else {
		for _, r := range s {
			b.data = utf8.AppendRune(b.data, r)
		}
	}
	b.set = true
}

// SetBytes copies raw bytes into the buffer.
func (b *StringBuffer) SetBytes(p []byte) {
	b.Set(string(p))
}

// IsSet reports whether a callee wrote to the buffer.
func (b *StringBuffer) IsSet() bool {
	return b.set
}

// Len returns the length in bytes.
func (b *StringBuffer) Len() int {
	return len(b.data)
}

// Reset empties the buffer for reuse.
func (b *StringBuffer) Reset() {
	b.data = b.data[:0]
	b.set = false
}

func (b *StringBuffer) String() string {
	return string(b.data)
}
