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
	"bytes"
	"fmt"
	"unsafe"
)

// Cursor walks the argument bytes that follow a request's header, handing
// out typed views into the underlying buffer without copying. Each Consume
// variant either succeeds and advances past what it consumed, or fails and
// leaves the cursor where it was.
//
// The views returned alias the buffer the cursor was created over; they
// are valid only as long as that buffer is.
type Cursor struct {
	data   []byte
	offset uintptr
}

// NewCursor returns a cursor over the supplied bytes. The cursor borrows
// the slice; the caller must not mutate it while views are outstanding.
func NewCursor(data []byte) Cursor {
	return Cursor{data: data}
}

// Len returns the number of bytes not yet consumed.
func (c *Cursor) Len() int {
	return len(c.data) - int(c.offset)
}

// Consume returns a pointer to the next n bytes of the buffer, advancing
// past them, or nil if fewer than n bytes remain. The caller is expected
// to interpret the pointer as a kernel struct of size n; if the current
// position is not aligned for an eight-byte load the kernel has sent us
// garbage, and we panic.
func (c *Cursor) Consume(n uintptr) unsafe.Pointer {
	if uintptr(c.Len()) < n {
		return nil
	}

	p := unsafe.Pointer(&c.data[c.offset])
	if uintptr(p)%unsafe.Alignof(uint64(0)) != 0 {
		panic(fmt.Sprintf("buffer: misaligned argument at offset %d", c.offset))
	}

	c.offset += n
	return p
}

// ConsumeBytes returns the next n bytes of the buffer as a slice,
// advancing past them, or nil if fewer than n bytes remain. No alignment
// is required.
func (c *Cursor) ConsumeBytes(n uintptr) []byte {
	if uintptr(c.Len()) < n {
		return nil
	}

	b := c.data[c.offset : c.offset+n]
	c.offset += n
	return b
}

// ConsumeString returns the next NUL-terminated string in the buffer,
// without the terminator, advancing past both. It returns false if no
// NUL byte remains.
func (c *Cursor) ConsumeString() ([]byte, bool) {
	rest := c.data[c.offset:]
	i := bytes.IndexByte(rest, 0)
	if i < 0 {
		return nil, false
	}

	c.offset += uintptr(i) + 1
	return rest[:i], true
}

// ConsumeAll returns whatever has not yet been consumed, leaving the
// cursor empty.
func (c *Cursor) ConsumeAll() []byte {
	b := c.data[c.offset:]
	c.offset = uintptr(len(c.data))
	return b
}
