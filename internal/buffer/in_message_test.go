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
	"testing"
	"unsafe"

	"github.com/emberfs/fuse/internal/fusekernel"
)

// Build the wire form of a request with the supplied header fields and
// argument bytes.
func makeMessage(opcode fusekernel.Opcode, unique uint64, args []byte) []byte {
	b := make([]byte, fusekernel.InHeaderSize+len(args))

	h := (*fusekernel.InHeader)(unsafe.Pointer(&b[0]))
	h.Len = uint32(len(b))
	h.Opcode = opcode
	h.Unique = unique

	copy(b[fusekernel.InHeaderSize:], args)
	return b
}

func TestInMessageInit(t *testing.T) {
	args := []byte("foo\x00")
	wire := makeMessage(fusekernel.OpLookup, 17, args)

	var m InMessage
	if err := m.Init(bytes.NewReader(wire)); err != nil {
		t.Fatalf("Init: %v", err)
	}

	h := m.Header()
	if h.Opcode != fusekernel.OpLookup || h.Unique != 17 {
		t.Errorf("Header: %+v", *h)
	}

	if got, want := m.Len(), len(args); got != want {
		t.Errorf("Len: got %d, want %d", got, want)
	}

	name, ok := m.ConsumeString()
	if !ok || !bytes.Equal(name, []byte("foo")) {
		t.Errorf("ConsumeString: got %q, %v", name, ok)
	}
}

func TestInMessageShortHeader(t *testing.T) {
	var m InMessage
	err := m.Init(bytes.NewReader(make([]byte, fusekernel.InHeaderSize-1)))
	if err == nil {
		t.Error("Expected an error for a short header")
	}
}

func TestInMessageLengthMismatch(t *testing.T) {
	wire := makeMessage(fusekernel.OpGetattr, 1, nil)
	h := (*fusekernel.InHeader)(unsafe.Pointer(&wire[0]))
	h.Len++

	var m InMessage
	if err := m.Init(bytes.NewReader(wire)); err == nil {
		t.Error("Expected an error for a length mismatch")
	}
}

func TestInMessageConsumeTyped(t *testing.T) {
	var in fusekernel.ForgetIn
	in.Nlookup = 123

	args := unsafe.Slice((*byte)(unsafe.Pointer(&in)), unsafe.Sizeof(in))
	wire := makeMessage(fusekernel.OpForget, 2, args)

	var m InMessage
	if err := m.Init(bytes.NewReader(wire)); err != nil {
		t.Fatalf("Init: %v", err)
	}

	p := m.Consume(unsafe.Sizeof(fusekernel.ForgetIn{}))
	if p == nil {
		t.Fatal("Consume returned nil")
	}

	out := (*fusekernel.ForgetIn)(p)
	if out.Nlookup != 123 {
		t.Errorf("Nlookup: got %d, want 123", out.Nlookup)
	}
}
