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

package fuseops

import (
	"bytes"
	"errors"
	"runtime"
	"testing"
	"time"
	"unsafe"

	"github.com/emberfs/fuse/internal/buffer"
	"github.com/emberfs/fuse/internal/fusekernel"
	. "github.com/jacobsa/oglematchers"
	. "github.com/jacobsa/ogletest"
)

func TestConvert(t *testing.T) { RunTests(t) }

var latest = fusekernel.Protocol{
	Major: fusekernel.KernelVersion,
	Minor: fusekernel.KernelMinorVersion,
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

// Build the wire form of a request: a header addressed to the supplied
// inode, followed by the concatenation of the argument segments.
func makeRequest(
	opcode fusekernel.Opcode,
	inode uint64,
	segments ...[]byte) []byte {
	b := make([]byte, fusekernel.InHeaderSize)

	h := (*fusekernel.InHeader)(unsafe.Pointer(&b[0]))
	h.Opcode = opcode
	h.Unique = 0xdeadbeef
	h.Nodeid = inode
	h.Uid = 501
	h.Gid = 20
	h.Pid = 1729

	for _, s := range segments {
		b = append(b, s...)
	}

	h = (*fusekernel.InHeader)(unsafe.Pointer(&b[0]))
	h.Len = uint32(len(b))
	return b
}

func structBytes(p unsafe.Pointer, size uintptr) []byte {
	return append([]byte(nil), unsafe.Slice((*byte)(p), size)...)
}

func decode(wire []byte, protocol fusekernel.Protocol) (Op, error) {
	// Patch up the length in case the caller truncated the buffer.
	wire = append([]byte(nil), wire...)
	h := (*fusekernel.InHeader)(unsafe.Pointer(&wire[0]))
	h.Len = uint32(len(wire))

	m := new(buffer.InMessage)
	if err := m.Init(bytes.NewReader(wire)); err != nil {
		return nil, err
	}

	return Convert(m, protocol)
}

////////////////////////////////////////////////////////////////////////
// Tests
////////////////////////////////////////////////////////////////////////

type ConvertTest struct {
}

func init() { RegisterTestSuite(&ConvertTest{}) }

func (t *ConvertTest) LookUpInode() {
	wire := makeRequest(fusekernel.OpLookup, 1, []byte("foo\x00"))

	op, err := decode(wire, latest)
	AssertEq(nil, err)

	typed, ok := op.(*LookUpInodeOp)
	AssertTrue(ok, "Got %T", op)
	ExpectEq("foo", string(typed.Name))

	h := typed.Header()
	ExpectEq(RequestID(0xdeadbeef), h.Unique)
	ExpectEq(InodeID(1), h.Inode)
	ExpectEq(501, h.Uid)
	ExpectEq(20, h.Gid)
	ExpectEq(1729, h.Pid)
}

func (t *ConvertTest) LookUpInode_MissingTerminator() {
	wire := makeRequest(fusekernel.OpLookup, 1, []byte("foo"))

	_, err := decode(wire, latest)
	var typed *TruncatedRequestError
	AssertTrue(errors.As(err, &typed), "Got %v", err)
	ExpectEq(fusekernel.OpLookup, typed.Opcode)
}

func (t *ConvertTest) UnknownOpcode() {
	wire := makeRequest(fusekernel.Opcode(71), 1)

	_, err := decode(wire, latest)
	var typed *UnknownOpcodeError
	AssertTrue(errors.As(err, &typed), "Got %v", err)
	ExpectEq(fusekernel.Opcode(71), typed.Opcode)
}

func (t *ConvertTest) VersionGatedOpcode() {
	var in fusekernel.CopyFileRangeIn
	seg := structBytes(unsafe.Pointer(&in), unsafe.Sizeof(in))
	wire := makeRequest(fusekernel.OpCopyFileRange, 5, seg)

	// A kernel speaking 7.27 must not be able to send copy_file_range.
	_, err := decode(wire, fusekernel.Protocol{Major: 7, Minor: 27})
	var typed *UnknownOpcodeError
	AssertTrue(errors.As(err, &typed), "Got %v", err)

	// The same bytes decode fine once the protocol allows the opcode.
	op, err := decode(wire, latest)
	AssertEq(nil, err)
	_, ok := op.(*CopyFileRangeOp)
	ExpectTrue(ok, "Got %T", op)
}

func (t *ConvertTest) Read() {
	var in fusekernel.ReadIn
	in.Fh = 11
	in.Offset = 4096
	in.Size = 1 << 16
	in.ReadFlags = fusekernel.ReadLockOwner
	in.LockOwner = 0xcafe

	seg := structBytes(unsafe.Pointer(&in), fusekernel.ReadInSize(latest))
	wire := makeRequest(fusekernel.OpRead, 7, seg)

	op, err := decode(wire, latest)
	AssertEq(nil, err)

	typed, ok := op.(*ReadFileOp)
	AssertTrue(ok, "Got %T", op)
	ExpectEq(HandleID(11), typed.Handle)
	ExpectEq(4096, typed.Offset)
	ExpectEq(1<<16, typed.Size)
	AssertNe(nil, typed.LockOwner)
	ExpectThat(*typed.LockOwner, DeepEquals(NewLockOwner(0xcafe)))
}

func (t *ConvertTest) Read_OldProtocol() {
	old := fusekernel.Protocol{Major: 7, Minor: 8}

	var in fusekernel.ReadIn
	in.Fh = 11
	in.Offset = 512
	in.Size = 4096

	// A 7.8 kernel sends only the first 24 bytes of the struct.
	seg := structBytes(unsafe.Pointer(&in), fusekernel.ReadInSize(old))
	AssertEq(24, len(seg))
	wire := makeRequest(fusekernel.OpRead, 7, seg)

	op, err := decode(wire, old)
	AssertEq(nil, err)

	typed, ok := op.(*ReadFileOp)
	AssertTrue(ok, "Got %T", op)
	ExpectEq(HandleID(11), typed.Handle)
	ExpectEq(512, typed.Offset)
	ExpectEq(4096, typed.Size)
	ExpectEq(nil, typed.LockOwner)

	// The modern engine expects the full struct and must report truncation
	// rather than misinterpret the short one.
	_, err = decode(wire, latest)
	var truncated *TruncatedRequestError
	ExpectTrue(errors.As(err, &truncated), "Got %v", err)
}

func (t *ConvertTest) Write() {
	payload := []byte("burrito")

	var in fusekernel.WriteIn
	in.Fh = 3
	in.Offset = 1024
	in.Size = uint32(len(payload))

	seg := structBytes(unsafe.Pointer(&in), fusekernel.WriteInSize(latest))
	wire := makeRequest(fusekernel.OpWrite, 9, seg, payload)

	op, err := decode(wire, latest)
	AssertEq(nil, err)

	typed, ok := op.(*WriteFileOp)
	AssertTrue(ok, "Got %T", op)
	ExpectEq(HandleID(3), typed.Handle)
	ExpectEq(1024, typed.Offset)
	ExpectEq("burrito", string(typed.Data))
}

func (t *ConvertTest) Write_ShortPayload() {
	payload := []byte("burrito")

	var in fusekernel.WriteIn
	in.Size = uint32(len(payload)) + 1

	seg := structBytes(unsafe.Pointer(&in), fusekernel.WriteInSize(latest))
	wire := makeRequest(fusekernel.OpWrite, 9, seg, payload)

	_, err := decode(wire, latest)
	var typed *TruncatedRequestError
	ExpectTrue(errors.As(err, &typed), "Got %v", err)
}

func (t *ConvertTest) Setattr() {
	var in fusekernel.SetattrIn
	in.Valid = fusekernel.SetattrSize | fusekernel.SetattrMode | fusekernel.SetattrMtime
	in.Size = 123
	in.Mode = 0o644
	in.Mtime = 1700000000
	in.MtimeNsec = 17

	seg := structBytes(unsafe.Pointer(&in), unsafe.Sizeof(in))
	wire := makeRequest(fusekernel.OpSetattr, 7, seg)

	op, err := decode(wire, latest)
	AssertEq(nil, err)

	typed, ok := op.(*SetInodeAttributesOp)
	AssertTrue(ok, "Got %T", op)

	AssertNe(nil, typed.Size)
	ExpectEq(123, *typed.Size)

	AssertNe(nil, typed.Mode)
	ExpectEq(0o644, uint32(*typed.Mode))

	AssertNe(nil, typed.Mtime)
	ExpectEq(1700000000, typed.Mtime.Unix())
	ExpectEq(17, typed.Mtime.Nanosecond())

	ExpectEq(nil, typed.Atime)
	ExpectEq(nil, typed.Uid)
	ExpectEq(nil, typed.Gid)
	ExpectEq(nil, typed.Handle)
}

func (t *ConvertTest) BatchForget() {
	var in fusekernel.BatchForgetIn
	in.Count = 2

	entries := []fusekernel.ForgetOne{
		{NodeID: 10, Nlookup: 1},
		{NodeID: 11, Nlookup: 3},
	}

	wire := makeRequest(
		fusekernel.OpBatchForget,
		0,
		structBytes(unsafe.Pointer(&in), unsafe.Sizeof(in)),
		structBytes(unsafe.Pointer(&entries[0]), 2*unsafe.Sizeof(entries[0])))

	op, err := decode(wire, latest)
	AssertEq(nil, err)

	typed, ok := op.(*BatchForgetOp)
	AssertTrue(ok, "Got %T", op)

	ExpectThat(
		typed.Entries,
		DeepEquals([]BatchForgetEntry{
			{Inode: 10, N: 1},
			{Inode: 11, N: 3},
		}))
}

func (t *ConvertTest) Rename() {
	var in fusekernel.RenameIn
	in.Newdir = 42

	wire := makeRequest(
		fusekernel.OpRename,
		17,
		structBytes(unsafe.Pointer(&in), unsafe.Sizeof(in)),
		[]byte("old\x00new\x00"))

	op, err := decode(wire, latest)
	AssertEq(nil, err)

	typed, ok := op.(*RenameOp)
	AssertTrue(ok, "Got %T", op)
	ExpectEq("old", string(typed.OldName))
	ExpectEq(InodeID(42), typed.NewParent)
	ExpectEq("new", string(typed.NewName))
	ExpectEq(0, typed.Flags)
}

func (t *ConvertTest) SetXattr() {
	var in fusekernel.SetxattrIn
	in.Size = 5
	in.Flags = 1

	wire := makeRequest(
		fusekernel.OpSetxattr,
		17,
		structBytes(unsafe.Pointer(&in), unsafe.Sizeof(in)),
		[]byte("user.taco\x00"),
		[]byte("value"))

	op, err := decode(wire, latest)
	AssertEq(nil, err)

	typed, ok := op.(*SetXattrOp)
	AssertTrue(ok, "Got %T", op)
	ExpectEq("user.taco", string(typed.Name))
	ExpectEq("value", string(typed.Value))
	ExpectEq(1, typed.Flags)
}

func (t *ConvertTest) Lock_OldProtocol() {
	old := fusekernel.Protocol{Major: 7, Minor: 6}

	var in fusekernel.LkIn
	in.Fh = 11
	in.Owner = 0xbeef
	in.Lk = fusekernel.FileLock{Start: 0, End: 99, Type: 1, Pid: 123}

	// A 7.6 kernel sends the struct without the lock flags.
	seg := structBytes(unsafe.Pointer(&in), fusekernel.LkInSize(old))
	AssertEq(40, len(seg))
	wire := makeRequest(fusekernel.OpSetlk, 7, seg)

	op, err := decode(wire, old)
	AssertEq(nil, err)

	typed, ok := op.(*SetLockOp)
	AssertTrue(ok, "Got %T", op)
	ExpectEq(HandleID(11), typed.Handle)
	ExpectThat(typed.Owner, DeepEquals(NewLockOwner(0xbeef)))
	ExpectEq(99, typed.Lock.End)
	ExpectEq(123, typed.Lock.Pid)
	ExpectFalse(typed.Flock)
	ExpectFalse(typed.Sleep)

	// The short struct must not satisfy a modern session.
	_, err = decode(wire, latest)
	var truncated *TruncatedRequestError
	ExpectTrue(errors.As(err, &truncated), "Got %v", err)

	// And getlk takes the same short form.
	wire = makeRequest(fusekernel.OpGetlk, 7, seg)
	op, err = decode(wire, old)
	AssertEq(nil, err)
	_, ok = op.(*GetLockOp)
	ExpectTrue(ok, "Got %T", op)
}

func (t *ConvertTest) Lock_Flock() {
	var in fusekernel.LkIn
	in.Fh = 3
	in.LkFlags = fusekernel.LkFlock

	seg := structBytes(unsafe.Pointer(&in), fusekernel.LkInSize(latest))
	wire := makeRequest(fusekernel.OpSetlkw, 7, seg)

	op, err := decode(wire, latest)
	AssertEq(nil, err)

	typed, ok := op.(*SetLockOp)
	AssertTrue(ok, "Got %T", op)
	ExpectTrue(typed.Flock)
	ExpectTrue(typed.Sleep)
}

func (t *ConvertTest) BatchForget_CountBeyondBuffer() {
	var in fusekernel.BatchForgetIn
	in.Count = 1 << 28

	entry := fusekernel.ForgetOne{NodeID: 10, Nlookup: 1}

	// A count far beyond the records actually present must be rejected, not
	// silently wrapped into a small consume.
	wire := makeRequest(
		fusekernel.OpBatchForget,
		0,
		structBytes(unsafe.Pointer(&in), unsafe.Sizeof(in)),
		structBytes(unsafe.Pointer(&entry), unsafe.Sizeof(entry)))

	_, err := decode(wire, latest)
	var typed *TruncatedRequestError
	ExpectTrue(errors.As(err, &typed), "Got %v", err)
}

func (t *ConvertTest) AttributesRoundTrip() {
	in := InodeAttributes{
		Size:      1 << 30,
		Nlink:     3,
		Mode:      0o640,
		Atime:     time.Unix(1700000000, 17),
		Mtime:     time.Unix(1700000100, 23),
		Ctime:     time.Unix(1700000200, 29),
		Uid:       501,
		Gid:       20,
		Rdev:      7,
		BlockSize: 4096,
	}

	var packed fusekernel.Attr
	PackAttributes(17, &in, &packed)
	ExpectEq(17, packed.Ino)

	out := UnpackAttributes(&packed)
	ExpectEq(in.Size, out.Size)
	ExpectEq(in.Nlink, out.Nlink)
	ExpectEq(in.Mode, out.Mode)
	ExpectTrue(in.Atime.Equal(out.Atime), "Atime: %v vs %v", in.Atime, out.Atime)
	ExpectTrue(in.Mtime.Equal(out.Mtime), "Mtime: %v vs %v", in.Mtime, out.Mtime)
	ExpectTrue(in.Ctime.Equal(out.Ctime), "Ctime: %v vs %v", in.Ctime, out.Ctime)
	ExpectEq(in.Uid, out.Uid)
	ExpectEq(in.Gid, out.Gid)
	ExpectEq(in.Rdev, out.Rdev)
	ExpectEq(in.BlockSize, out.BlockSize)
}

// Every opcode the portable decoder speaks must decode from a minimal valid
// body, and decoding any truncation of that body must fail cleanly rather
// than panic or misread.
func (t *ConvertTest) EveryOpcode() {
	sized := func(n uintptr) []byte { return make([]byte, n) }
	name := []byte("a\x00")
	twoNames := []byte("a\x00b\x00")

	var writeIn fusekernel.WriteIn
	writeIn.Size = 4

	var setxattrIn fusekernel.SetxattrIn
	setxattrIn.Size = 5

	var batchIn fusekernel.BatchForgetIn
	batchIn.Count = 1

	var ioctlIn fusekernel.IoctlIn
	ioctlIn.InSize = 4

	bodies := map[fusekernel.Opcode][][]byte{
		fusekernel.OpLookup: {name},
		fusekernel.OpForget: {sized(unsafe.Sizeof(fusekernel.ForgetIn{}))},
		fusekernel.OpGetattr: {sized(unsafe.Sizeof(fusekernel.GetattrIn{}))},
		fusekernel.OpSetattr: {sized(unsafe.Sizeof(fusekernel.SetattrIn{}))},
		fusekernel.OpReadlink: {},
		fusekernel.OpSymlink: {twoNames},
		fusekernel.OpMknod: {sized(fusekernel.MknodInSize(latest)), name},
		fusekernel.OpMkdir: {sized(fusekernel.MkdirInSize(latest)), name},
		fusekernel.OpUnlink: {name},
		fusekernel.OpRmdir: {name},
		fusekernel.OpRename: {sized(unsafe.Sizeof(fusekernel.RenameIn{})), twoNames},
		fusekernel.OpLink: {sized(unsafe.Sizeof(fusekernel.LinkIn{})), name},
		fusekernel.OpOpen: {sized(unsafe.Sizeof(fusekernel.OpenIn{}))},
		fusekernel.OpRead: {sized(fusekernel.ReadInSize(latest))},
		fusekernel.OpWrite: {
			structBytes(unsafe.Pointer(&writeIn), fusekernel.WriteInSize(latest)),
			[]byte("data"),
		},
		fusekernel.OpStatfs: {},
		fusekernel.OpRelease: {sized(unsafe.Sizeof(fusekernel.ReleaseIn{}))},
		fusekernel.OpFsync: {sized(unsafe.Sizeof(fusekernel.FsyncIn{}))},
		fusekernel.OpSetxattr: {
			structBytes(unsafe.Pointer(&setxattrIn), unsafe.Sizeof(setxattrIn)),
			[]byte("user.a\x00"),
			[]byte("value"),
		},
		fusekernel.OpGetxattr: {sized(unsafe.Sizeof(fusekernel.GetxattrIn{})), name},
		fusekernel.OpListxattr: {sized(unsafe.Sizeof(fusekernel.GetxattrIn{}))},
		fusekernel.OpRemovexattr: {name},
		fusekernel.OpFlush: {sized(unsafe.Sizeof(fusekernel.FlushIn{}))},
		fusekernel.OpInit: {sized(unsafe.Sizeof(fusekernel.InitIn{}))},
		fusekernel.OpOpendir: {sized(unsafe.Sizeof(fusekernel.OpenIn{}))},
		fusekernel.OpReaddir: {sized(fusekernel.ReadInSize(latest))},
		fusekernel.OpReleasedir: {sized(unsafe.Sizeof(fusekernel.ReleaseIn{}))},
		fusekernel.OpFsyncdir: {sized(unsafe.Sizeof(fusekernel.FsyncIn{}))},
		fusekernel.OpGetlk: {sized(fusekernel.LkInSize(latest))},
		fusekernel.OpSetlk: {sized(fusekernel.LkInSize(latest))},
		fusekernel.OpSetlkw: {sized(fusekernel.LkInSize(latest))},
		fusekernel.OpAccess: {sized(unsafe.Sizeof(fusekernel.AccessIn{}))},
		fusekernel.OpCreate: {sized(fusekernel.CreateInSize(latest)), name},
		fusekernel.OpInterrupt: {sized(unsafe.Sizeof(fusekernel.InterruptIn{}))},
		fusekernel.OpBmap: {sized(unsafe.Sizeof(fusekernel.BmapIn{}))},
		fusekernel.OpDestroy: {},
		fusekernel.OpIoctl: {
			structBytes(unsafe.Pointer(&ioctlIn), unsafe.Sizeof(ioctlIn)),
			[]byte("abcd"),
		},
		fusekernel.OpPoll: {},
		fusekernel.OpNotifyReply: {},
		fusekernel.OpBatchForget: {
			structBytes(unsafe.Pointer(&batchIn), unsafe.Sizeof(batchIn)),
			sized(unsafe.Sizeof(fusekernel.ForgetOne{})),
		},
		fusekernel.OpFallocate: {sized(unsafe.Sizeof(fusekernel.FallocateIn{}))},
		fusekernel.OpReaddirplus: {sized(fusekernel.ReadInSize(latest))},
		fusekernel.OpRename2: {sized(unsafe.Sizeof(fusekernel.Rename2In{})), twoNames},
		fusekernel.OpLseek: {sized(unsafe.Sizeof(fusekernel.LseekIn{}))},
		fusekernel.OpCopyFileRange: {sized(unsafe.Sizeof(fusekernel.CopyFileRangeIn{}))},
		fusekernel.OpCuseInit: {},
	}

	for opcode, segments := range bodies {
		wire := makeRequest(opcode, 1, segments...)

		op, err := decode(wire, latest)
		AssertEq(nil, err, "%v", opcode)
		AssertNe(nil, op, "%v", opcode)

		for n := fusekernel.InHeaderSize; n < len(wire); n++ {
			_, err := decode(wire[:n], latest)
			ExpectNe(nil, err, "%v truncated to %d bytes", opcode, n)
		}
	}

	// The map above must not fall behind the capability table. Platform
	// opcodes are registered by per-OS files and are exercised there.
	if runtime.GOOS == "linux" {
		for opcode := fusekernel.Opcode(0); opcode <= fusekernel.OpCuseInit; opcode++ {
			if opcode.SupportedBy(latest) {
				_, ok := bodies[opcode]
				ExpectTrue(ok, "no coverage for %v", opcode)
			}
		}
	}
}

// Decoding a truncated buffer must fail cleanly for every prefix length,
// never panic.
func (t *ConvertTest) Truncation() {
	cases := []struct {
		name string
		wire []byte
	}{
		{"lookup", makeRequest(fusekernel.OpLookup, 1, []byte("foo\x00"))},
		{"setattr", func() []byte {
			var in fusekernel.SetattrIn
			return makeRequest(
				fusekernel.OpSetattr, 2,
				structBytes(unsafe.Pointer(&in), unsafe.Sizeof(in)))
		}()},
		{"mkdir", func() []byte {
			var in fusekernel.MkdirIn
			return makeRequest(
				fusekernel.OpMkdir, 1,
				structBytes(unsafe.Pointer(&in), unsafe.Sizeof(in)),
				[]byte("d\x00"))
		}()},
		{"write", func() []byte {
			var in fusekernel.WriteIn
			in.Size = 4
			return makeRequest(
				fusekernel.OpWrite, 2,
				structBytes(unsafe.Pointer(&in), fusekernel.WriteInSize(latest)),
				[]byte("data"))
		}()},
	}

	for _, tc := range cases {
		full := len(tc.wire)
		for n := fusekernel.InHeaderSize; n < full; n++ {
			_, err := decode(tc.wire[:n], latest)
			ExpectNe(nil, err, "%s truncated to %d bytes", tc.name, n)
		}
	}
}
