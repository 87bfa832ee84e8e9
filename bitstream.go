// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

// Bidirectional bit FIFO used for all JTAG payload arithmetic. A multi-bit
// word enters the back of the stream starting with its LSB and leaves the
// front starting with its LSB:
//
//	index:              N-1 N-2 ...  2  1  0
//	in at the back -->  MSB          ...  LSB  --> out at the front
//
// Position 0 is the least significant bit of the value the stream
// represents, so a stream transmitted front-first reaches the device LSB
// first, matching standard shift-register hardware.

package xstools

import (
	"strings"

	"github.com/boljen/go-bitmap"
)

// BitsWordLen is the widest value that can enter or leave the stream in
// one operation.
const BitsWordLen = 64

// BitStream stores bits in a packed bitmap with a floating front offset so
// pops at either end are O(1).
type BitStream struct {
	bits bitmap.Bitmap
	head int
	size int
}

// NewBitStream returns an empty bit stream.
func NewBitStream() *BitStream {
	return &BitStream{bits: bitmap.New(0)}
}

// BitStreamFromUint extracts numBits bits from val, LSB first.
func BitStreamFromUint(val uint64, numBits uint) *BitStream {
	if numBits > BitsWordLen {
		panic("xstools: bit count exceeds word length")
	}

	b := NewBitStream()
	b.PushBackUint(val, numBits)
	return b
}

// BitStreamFromBytes builds a stream from an array holding one bit per
// byte, any non-zero byte counting as 1. Index 0 becomes position 0.
func BitStreamFromBytes(bits []byte) *BitStream {
	b := NewBitStream()
	for _, v := range bits {
		b.PushBackBit(v != 0)
	}
	return b
}

// BitStreamFromString converts a binary-digit string such as "1101011010".
// The rightmost character becomes position 0.
func BitStreamFromString(s string) *BitStream {
	b := NewBitStream()
	for i := len(s) - 1; i >= 0; i-- {
		b.PushBackBit(s[i] == '1')
	}
	return b
}

// Size reports the number of bits in the stream.
func (b *BitStream) Size() int {
	return b.size
}

// Empty reports whether the stream holds no bits.
func (b *BitStream) Empty() bool {
	return b.size == 0
}

// Bit returns the bit at the given position, position 0 being the LSB end.
func (b *BitStream) Bit(i int) bool {
	if i < 0 || i >= b.size {
		panic("xstools: bit index out of range")
	}
	return b.bits.Get(b.head + i)
}

func (b *BitStream) growBack(n int) {
	if b.head+b.size+n <= b.bits.Len() {
		return
	}

	grown := bitmap.New(2*(b.size+n) + BitsWordLen)
	for i := 0; i < b.size; i++ {
		grown.Set(i, b.bits.Get(b.head+i))
	}
	b.bits = grown
	b.head = 0
}

func (b *BitStream) growFront(n int) {
	if b.head >= n {
		return
	}

	grown := bitmap.New(2*(b.size+n) + BitsWordLen)
	offset := n + BitsWordLen/2
	for i := 0; i < b.size; i++ {
		grown.Set(offset+i, b.bits.Get(b.head+i))
	}
	b.bits = grown
	b.head = offset
}

// PushBackBit appends a single bit on the MSB side.
func (b *BitStream) PushBackBit(v bool) {
	b.growBack(1)
	b.bits.Set(b.head+b.size, v)
	b.size++
}

// PushFrontBit prepends a single bit on the LSB side.
func (b *BitStream) PushFrontBit(v bool) {
	b.growFront(1)
	b.head--
	b.bits.Set(b.head, v)
	b.size++
}

// PushBack appends the bits of another stream on the MSB side, keeping
// their order.
func (b *BitStream) PushBack(other *BitStream) {
	length := other.size
	for i := 0; i < length; i++ {
		b.PushBackBit(other.Bit(i))
	}
}

// PushBackUint appends numBits bits of val on the MSB side, the LSB of val
// landing at the lowest newly-added position.
func (b *BitStream) PushBackUint(val uint64, numBits uint) {
	if numBits > BitsWordLen {
		panic("xstools: bit count exceeds word length")
	}

	for i := uint(0); i < numBits; i++ {
		b.PushBackBit(val>>i&1 == 1)
	}
}

// PushBackString appends the bits of a binary-digit string on the MSB
// side, the rightmost character entering first.
func (b *BitStream) PushBackString(s string) {
	b.PushBack(BitStreamFromString(s))
}

// PushFront prepends the bits of another stream on the LSB side, keeping
// their order.
func (b *BitStream) PushFront(other *BitStream) {
	for i := other.size - 1; i >= 0; i-- {
		b.PushFrontBit(other.Bit(i))
	}
}

// PushFrontUint prepends numBits bits of val on the LSB side so that the
// new front-most bit is the LSB of val.
func (b *BitStream) PushFrontUint(val uint64, numBits uint) {
	if numBits > BitsWordLen {
		panic("xstools: bit count exceeds word length")
	}

	for i := int(numBits) - 1; i >= 0; i-- {
		b.PushFrontBit(val>>uint(i)&1 == 1)
	}
}

// PushFrontString prepends the bits of a binary-digit string on the LSB
// side.
func (b *BitStream) PushFrontString(s string) {
	b.PushFront(BitStreamFromString(s))
}

// PopBack removes numBits bits from the MSB side.
func (b *BitStream) PopBack(numBits uint) {
	if int(numBits) > b.size {
		panic("xstools: pop of more bits than the stream holds")
	}
	b.size -= int(numBits)
}

// PopFront removes numBits bits from the LSB side.
func (b *BitStream) PopFront(numBits uint) {
	if int(numBits) > b.size {
		panic("xstools: pop of more bits than the stream holds")
	}
	b.head += int(numBits)
	b.size -= int(numBits)
}

// Front peeks at the first numBits bits and returns them as a value, the
// front-most bit being the LSB.
func (b *BitStream) Front(numBits uint) uint64 {
	if numBits < 1 || numBits > BitsWordLen || int(numBits) > b.size {
		panic("xstools: front peek width out of range")
	}

	var val uint64
	for i := uint(0); i < numBits; i++ {
		if b.Bit(int(i)) {
			val |= 1 << i
		}
	}
	return val
}

// Back peeks at the last numBits bits and returns them as a value, the
// back-most bit being the MSB.
func (b *BitStream) Back(numBits uint) uint64 {
	if numBits < 1 || numBits > BitsWordLen || int(numBits) > b.size {
		panic("xstools: back peek width out of range")
	}

	var val uint64
	for i := uint(0); i < numBits; i++ {
		if b.Bit(b.size - int(numBits) + int(i)) {
			val |= 1 << i
		}
	}
	return val
}

// FrontString peeks at the first numBits bits as a binary string.
func (b *BitStream) FrontString(numBits uint) string {
	return b.GetBits(0, int(numBits)).String()
}

// BackString peeks at the last numBits bits as a binary string.
func (b *BitStream) BackString(numBits uint) string {
	return b.GetBits(b.size-int(numBits), b.size).String()
}

// GetBits copies the bits between the first (inclusive) and last
// (exclusive) positions into a new stream.
func (b *BitStream) GetBits(first int, last int) *BitStream {
	if first < 0 || first > last || last > b.size {
		panic("xstools: bit slice out of range")
	}

	result := NewBitStream()
	for i := first; i < last; i++ {
		result.PushBackBit(b.Bit(i))
	}
	return result
}

// Clone copies the stream.
func (b *BitStream) Clone() *BitStream {
	return b.GetBits(0, b.size)
}

// Cat concatenates two streams. The receiver stays at the LSB end of the
// result, so the LSB of the result equals the LSB of b.
func (b *BitStream) Cat(other *BitStream) *BitStream {
	result := b.Clone()
	result.PushBack(other)
	return result
}

// Uint interprets the stream as an unsigned integer, accumulating MSB-down
// from position size-1. When the stream is wider than 64 bits only the 64
// bits nearest the MSB are used.
func (b *BitStream) Uint() uint64 {
	length := b.size
	if length > BitsWordLen {
		length = BitsWordLen
	}

	var val uint64
	for i := 0; i < length; i++ {
		val <<= 1
		if b.Bit(b.size - 1 - i) {
			val |= 1
		}
	}
	return val
}

// String renders the stream as a binary-digit string whose leftmost
// character is the MSB.
func (b *BitStream) String() string {
	var sb strings.Builder
	sb.Grow(b.size)
	for i := b.size - 1; i >= 0; i-- {
		if b.Bit(i) {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// Bytes expands the stream into one byte per bit, position 0 first.
func (b *BitStream) Bytes() []byte {
	out := make([]byte, b.size)
	for i := 0; i < b.size; i++ {
		if b.Bit(i) {
			out[i] = 1
		}
	}
	return out
}
