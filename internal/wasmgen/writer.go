package wasmgen

import (
	"encoding/binary"
	"math"
)

// Writer accumulates an encoded module or section body.
type Writer struct {
	buf []byte
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 256)}
}

// Bytes returns the encoded bytes. The slice aliases the writer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written.
func (w *Writer) Len() int { return len(w.buf) }

// Byte appends one raw byte, usually an opcode or type tag.
func (w *Writer) Byte(b byte) { w.buf = append(w.buf, b) }

// WriteBytes appends data unchanged.
func (w *Writer) WriteBytes(data []byte) { w.buf = append(w.buf, data...) }

// WriteU32 appends v as unsigned LEB128.
func (w *Writer) WriteU32(v uint32) {
	w.buf = binary.AppendUvarint(w.buf, uint64(v))
}

// WriteS32 appends v as signed LEB128.
func (w *Writer) WriteS32(v int32) { w.WriteS64(int64(v)) }

// WriteS64 appends v as signed LEB128. Encoding stops once the remaining
// bits are pure sign extension of bit 6 of the last group.
func (w *Writer) WriteS64(v int64) {
	for {
		group := byte(v & 0x7f)
		v >>= 7
		signClear := group&0x40 == 0
		if (v == 0 && signClear) || (v == -1 && !signClear) {
			w.buf = append(w.buf, group)
			return
		}
		w.buf = append(w.buf, group|0x80)
	}
}

// WriteF64 appends v as a little-endian IEEE 754 double, the f64.const
// immediate encoding.
func (w *Writer) WriteF64(v float64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, math.Float64bits(v))
}

// WriteName appends a length-prefixed UTF-8 name.
func (w *Writer) WriteName(s string) {
	w.WriteU32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteU32LE appends v as four little-endian bytes, as used by the header.
func (w *Writer) WriteU32LE(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}
