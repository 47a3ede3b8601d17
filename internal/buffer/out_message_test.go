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
	"github.com/kylelemons/godebug/pretty"
)

func TestOutMessageReset(t *testing.T) {
	var om OutMessage
	om.Reset()

	h := om.OutHeader()
	if h.Len != 0 || h.Error != 0 || h.Unique != 0 {
		t.Errorf("Header not zeroed: %+v", *h)
	}

	if got, want := om.Len(), fusekernel.OutHeaderSize; got != want {
		t.Errorf("Len: got %d, want %d", got, want)
	}

	// Dirty the message, then reset again.
	om.OutHeader().Unique = 17
	om.Grow(8)
	om.Append(bytes.Repeat([]byte{0xff}, 64))

	om.Reset()
	h = om.OutHeader()
	if h.Unique != 0 {
		t.Errorf("Unique not zeroed: %d", h.Unique)
	}
	if got, want := om.Len(), fusekernel.OutHeaderSize; got != want {
		t.Errorf("Len after reset: got %d, want %d", got, want)
	}
}

func TestOutMessageHeader(t *testing.T) {
	var om OutMessage
	om.Reset()

	om.OutHeader().Len = 0xdeadbeef
	om.OutHeader().Error = -31
	om.OutHeader().Unique = 0xcafebabe

	// The header must appear at the front of the wire representation.
	b := om.Bytes()
	if len(b) < int(fusekernel.OutHeaderSize) {
		t.Fatalf("Bytes: only %d bytes", len(b))
	}

	got := *(*fusekernel.OutHeader)(unsafe.Pointer(&b[0]))
	want := fusekernel.OutHeader{
		Len:    0xdeadbeef,
		Error:  -31,
		Unique: 0xcafebabe,
	}

	if diff := pretty.Compare(got, want); diff != "" {
		t.Errorf("Header mismatch (-got +want):\n%s", diff)
	}
}

func TestOutMessageGrow(t *testing.T) {
	var om OutMessage
	om.Reset()

	p := om.Grow(unsafe.Sizeof(fusekernel.AttrOut{}))
	if p == nil {
		t.Fatal("Grow returned nil")
	}

	// The new segment must be zeroed.
	out := (*fusekernel.AttrOut)(p)
	if out.AttrValid != 0 || out.Attr.Ino != 0 {
		t.Errorf("Segment not zeroed: %+v", *out)
	}

	want := fusekernel.OutHeaderSize + int(unsafe.Sizeof(fusekernel.AttrOut{}))
	if got := om.Len(); got != want {
		t.Errorf("Len: got %d, want %d", got, want)
	}
}

func TestOutMessageShrinkTo(t *testing.T) {
	var om OutMessage
	om.Reset()

	om.Grow(unsafe.Sizeof(fusekernel.InitOut{}))
	om.ShrinkTo(uintptr(fusekernel.OutHeaderSize) + 24)

	want := fusekernel.OutHeaderSize + 24
	if got := om.Len(); got != want {
		t.Errorf("Len: got %d, want %d", got, want)
	}
}

func TestOutMessageAppendInline(t *testing.T) {
	var om OutMessage
	om.Reset()

	payload := []byte("taco")
	om.Append(payload)

	// A small payload must land in the message's own storage, making a
	// single contiguous segment.
	sg := om.Sglist()
	if len(sg) != 1 {
		t.Fatalf("Sglist: got %d segments, want 1", len(sg))
	}

	if got, want := om.Len(), fusekernel.OutHeaderSize+len(payload); got != want {
		t.Errorf("Len: got %d, want %d", got, want)
	}

	if got := om.Bytes()[fusekernel.OutHeaderSize:]; !bytes.Equal(got, payload) {
		t.Errorf("Payload: got %q, want %q", got, payload)
	}
}

func TestOutMessageAppendReferenced(t *testing.T) {
	var om OutMessage
	om.Reset()

	payload := bytes.Repeat([]byte{0xab}, int(MaxInlineData)+1)
	om.Append(payload)

	sg := om.Sglist()
	if len(sg) != 2 {
		t.Fatalf("Sglist: got %d segments, want 2", len(sg))
	}

	// The second segment must alias the caller's slice, not copy it.
	if &sg[1][0] != &payload[0] {
		t.Error("Payload was copied rather than referenced")
	}

	if got, want := om.Len(), fusekernel.OutHeaderSize+len(payload); got != want {
		t.Errorf("Len: got %d, want %d", got, want)
	}

	if got := om.Bytes()[fusekernel.OutHeaderSize:]; !bytes.Equal(got, payload) {
		t.Errorf("Payload mismatch after Bytes")
	}
}

func TestOutMessageDoubleAppendPanics(t *testing.T) {
	var om OutMessage
	om.Reset()

	om.Append(bytes.Repeat([]byte{1}, int(MaxInlineData)+1))

	defer func() {
		if recover() == nil {
			t.Error("Expected a panic from the second Append")
		}
	}()
	om.Append([]byte("again"))
}

func BenchmarkOutMessageReset(b *testing.B) {
	b.SetBytes(int64(unsafe.Sizeof(OutMessage{})))

	var om OutMessage
	for i := 0; i < b.N; i++ {
		om.Reset()
	}
}
