// Copyright 2024 The EmberFS Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package buffer

import (
	"fmt"
	"unsafe"

	"github.com/emberfs/fuse/internal/fusekernel"
)

// Data payloads no larger than this are copied into the message's own
// storage rather than referenced, so that small replies go out as a
// single contiguous write.
const MaxInlineData = 4 * unsafe.Sizeof(uint64(0))

// Room for the header, the largest fixed-size reply struct (an entry
// with attributes plus an open result, as sent for CREATE), and a small
// inline data payload.
const outMessageStorageSize = uintptr(fusekernel.OutHeaderSize) +
	unsafe.Sizeof(fusekernel.EntryOut{}) +
	unsafe.Sizeof(fusekernel.OpenOut{}) +
	MaxInlineData

// OutMessage assembles a single reply to the kernel: a fusekernel.OutHeader
// followed by zero or one payload. Fixed-size reply structs are built in
// the message's own storage via Grow; bulk data (read results, xattr
// values, packed directory listings) is attached with Append, which
// references rather than copies anything larger than MaxInlineData.
//
// Must be initialized with Reset before use.
type OutMessage struct {
	offset  uintptr
	storage [outMessageStorageSize]byte

	// Bulk payload referenced rather than copied into storage. Nil if the
	// payload is inline or absent.
	data []byte
}

// Reset the message so that it is ready to be used again. Afterward the
// contents are solely a zeroed header.
func (m *OutMessage) Reset() {
	m.offset = uintptr(fusekernel.OutHeaderSize)
	m.data = nil

	h := m.storage[:fusekernel.OutHeaderSize]
	for i := range h {
		h[i] = 0
	}
}

// OutHeader returns a pointer to the header at the start of the message.
func (m *OutMessage) OutHeader() *fusekernel.OutHeader {
	return (*fusekernel.OutHeader)(unsafe.Pointer(&m.storage[0]))
}

// Grow the message by the supplied number of bytes, returning a pointer
// to the start of the new segment, which is zeroed. Panics if there is no
// room, which indicates a bug in the caller.
func (m *OutMessage) Grow(n uintptr) unsafe.Pointer {
	p := m.GrowNoZero(n)
	memclr(p, n)
	return p
}

// GrowNoZero is equivalent to Grow, except the new segment is not zeroed.
// Use with caution!
func (m *OutMessage) GrowNoZero(n uintptr) unsafe.Pointer {
	if m.offset+n > outMessageStorageSize {
		panic(fmt.Sprintf(
			"OutMessage cannot grow by %d bytes; %d used of %d",
			n, m.offset, outMessageStorageSize))
	}

	p := unsafe.Pointer(&m.storage[m.offset])
	m.offset += n
	return p
}

// ShrinkTo undoes growth, truncating the structured part of the message
// to n bytes. Used when the negotiated protocol understands only a prefix
// of a reply struct.
func (m *OutMessage) ShrinkTo(n uintptr) {
	if n < uintptr(fusekernel.OutHeaderSize) || n > m.offset {
		panic(fmt.Sprintf(
			"ShrinkTo(%d) out of range for offset %d", n, m.offset))
	}
	m.offset = n
}

// Append attaches a data payload to the message. Payloads no larger than
// MaxInlineData are copied into the message's storage; anything larger is
// referenced, and must not be mutated until the message has been written
// out. At most one payload may be attached.
func (m *OutMessage) Append(p []byte) {
	if m.data != nil {
		panic("OutMessage already has a payload")
	}

	if uintptr(len(p)) <= MaxInlineData {
		q := m.GrowNoZero(uintptr(len(p)))
		copy(unsafe.Slice((*byte)(q), len(p)), p)
		return
	}

	m.data = p
}

// AppendString is equivalent to Append with the bytes of s.
func (m *OutMessage) AppendString(s string) {
	if m.data != nil {
		panic("OutMessage already has a payload")
	}

	if uintptr(len(s)) <= MaxInlineData {
		q := m.GrowNoZero(uintptr(len(s)))
		copy(unsafe.Slice((*byte)(q), len(s)), s)
		return
	}

	m.data = []byte(s)
}

// Len returns the current total size of the message, including the header
// and any payload.
func (m *OutMessage) Len() int {
	return int(m.offset) + len(m.data)
}

// Sglist returns the message contents as a scatter list suitable for
// writev. The first element is always the header and structured segment;
// a referenced payload, if present, is the second.
func (m *OutMessage) Sglist() [][]byte {
	s := [][]byte{m.storage[:m.offset]}
	if len(m.data) != 0 {
		s = append(s, m.data)
	}
	return s
}

// Bytes returns the message contents as a single contiguous slice,
// copying the payload if it is referenced. Intended for tests and debug
// logging; the hot path uses Sglist.
func (m *OutMessage) Bytes() []byte {
	b := make([]byte, 0, m.Len())
	b = append(b, m.storage[:m.offset]...)
	b = append(b, m.data...)
	return b
}

func memclr(p unsafe.Pointer, n uintptr) {
	b := unsafe.Slice((*byte)(p), n)
	for i := range b {
		b[i] = 0
	}
}
