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
	"io"
	"unsafe"

	"github.com/emberfs/fuse/internal/fusekernel"
)

// The maximum read size we are willing to accept from the kernel, and
// therefore the largest message it may send us.
const MaxReadSize = 1 << 20

// The size of a buffer large enough to hold any message from the kernel.
const inMessageSize = uintptr(fusekernel.InHeaderSize) + MaxReadSize

// An incoming message from the kernel, including the leading
// fusekernel.InHeader struct. Provides storage for the message and cursor
// access to the argument bytes that follow the header.
type InMessage struct {
	remaining Cursor
	storage   [inMessageSize]byte
}

// Init replaces the message's contents with the data read by a single
// call to r.Read, and positions the cursor directly after the header.
func (m *InMessage) Init(r io.Reader) error {
	n, err := r.Read(m.storage[:])
	if err != nil {
		return err
	}

	if n < fusekernel.InHeaderSize {
		return fmt.Errorf("incomplete header: read %d bytes", n)
	}

	h := m.Header()
	if int(h.Len) != n {
		return fmt.Errorf(
			"header says %d bytes, but read %d", h.Len, n)
	}

	m.remaining = NewCursor(m.storage[fusekernel.InHeaderSize:n])
	return nil
}

// Header returns a reference to the header read in the most recent call
// to Init.
func (m *InMessage) Header() *fusekernel.InHeader {
	return (*fusekernel.InHeader)(unsafe.Pointer(&m.storage[0]))
}

// Len returns the number of argument bytes not yet consumed.
func (m *InMessage) Len() int {
	return m.remaining.Len()
}

// Consume the next n argument bytes, returning a nil pointer if fewer
// than n remain. Panics if the message is malformed such that the current
// position is misaligned.
func (m *InMessage) Consume(n uintptr) unsafe.Pointer {
	return m.remaining.Consume(n)
}

// ConsumeBytes is equivalent to Consume, except it returns a slice of
// bytes and requires no alignment. The result is nil if fewer than n
// bytes remain.
func (m *InMessage) ConsumeBytes(n uintptr) []byte {
	return m.remaining.ConsumeBytes(n)
}

// ConsumeString returns the next NUL-terminated argument string, without
// the terminator, or false if none remains.
func (m *InMessage) ConsumeString() ([]byte, bool) {
	return m.remaining.ConsumeString()
}

// ConsumeAll returns all argument bytes not yet consumed.
func (m *InMessage) ConsumeAll() []byte {
	return m.remaining.ConsumeAll()
}
