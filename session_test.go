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

package fuse

import (
	"context"
	"io"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"
	"unsafe"

	"github.com/emberfs/fuse/fuseops"
	"github.com/emberfs/fuse/internal/fusekernel"
)

////////////////////////////////////////////////////////////////////////
// In-memory transport
////////////////////////////////////////////////////////////////////////

// A testTransport feeds framed request messages to a session and collects
// the replies it writes, standing in for the kernel device.
type testTransport struct {
	requests chan []byte
	replies  chan []byte
}

func newTestTransport() *testTransport {
	return &testTransport{
		requests: make(chan []byte),
		replies:  make(chan []byte, 16),
	}
}

// Read delivers exactly one queued message per call, mirroring the
// datagram-per-read behavior of the device.
func (t *testTransport) Read(p []byte) (int, error) {
	b, ok := <-t.requests
	if !ok {
		return 0, io.EOF
	}

	return copy(p, b), nil
}

func (t *testTransport) Send(buffers [][]byte) error {
	var b []byte
	for _, p := range buffers {
		b = append(b, p...)
	}

	t.replies <- b
	return nil
}

////////////////////////////////////////////////////////////////////////
// Request framing
////////////////////////////////////////////////////////////////////////

func frame(
	opcode fusekernel.Opcode,
	unique uint64,
	nodeid uint64,
	uid uint32,
	body []byte) []byte {
	b := make([]byte, fusekernel.InHeaderSize+len(body))

	h := (*fusekernel.InHeader)(unsafe.Pointer(&b[0]))
	h.Len = uint32(len(b))
	h.Opcode = opcode
	h.Unique = unique
	h.Nodeid = nodeid
	h.Uid = uid

	copy(b[fusekernel.InHeaderSize:], body)
	return b
}

func initBody(
	major uint32,
	minor uint32,
	maxReadahead uint32,
	flags fusekernel.InitFlags) []byte {
	b := make([]byte, unsafe.Sizeof(fusekernel.InitIn{}))

	in := (*fusekernel.InitIn)(unsafe.Pointer(&b[0]))
	in.Major = major
	in.Minor = minor
	in.MaxReadahead = maxReadahead
	in.Flags = flags

	return b
}

func getattrBody() []byte {
	return make([]byte, unsafe.Sizeof(fusekernel.GetattrIn{}))
}

func readBody(handle uint64, offset uint64, size uint32) []byte {
	b := make([]byte, unsafe.Sizeof(fusekernel.ReadIn{}))

	in := (*fusekernel.ReadIn)(unsafe.Pointer(&b[0]))
	in.Fh = handle
	in.Offset = offset
	in.Size = size

	return b
}

func forgetBody(n uint64) []byte {
	b := make([]byte, unsafe.Sizeof(fusekernel.ForgetIn{}))

	in := (*fusekernel.ForgetIn)(unsafe.Pointer(&b[0]))
	in.Nlookup = n

	return b
}

func lookupBody(name string) []byte {
	return append([]byte(name), 0)
}

////////////////////////////////////////////////////////////////////////
// File system fixture
////////////////////////////////////////////////////////////////////////

// The sole directory entry served by trackingFS, as a child of the root.
const (
	childName  = "foo"
	childInode = fuseops.InodeID(17)
)

var childAttrs = fuseops.InodeAttributes{
	Size:  11,
	Nlink: 1,
	Mode:  0644,
	Uid:   1500,
	Gid:   1500,
	Mtime: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
}

// A trackingFS serves a single child of the root and records the calls a
// session makes into it.
type trackingFS struct {
	NotImplementedFileSystem

	initErr error

	mu         sync.Mutex
	destroyed  int
	forgotten  map[fuseops.InodeID]uint64
	lastConfig *KernelConfig
}

func newTrackingFS() *trackingFS {
	return &trackingFS{
		forgotten: make(map[fuseops.InodeID]uint64),
	}
}

func (fs *trackingFS) Init(
	ctx context.Context,
	op *fuseops.InitOp,
	config *KernelConfig) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.lastConfig = config
	return fs.initErr
}

func (fs *trackingFS) Destroy() {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.destroyed++
}

func (fs *trackingFS) destroyCount() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return fs.destroyed
}

func (fs *trackingFS) LookUpInode(
	ctx context.Context,
	op *fuseops.LookUpInodeOp,
	reply *ReplyEntry) {
	if op.Header().Inode != fuseops.RootInodeID || string(op.Name) != childName {
		reply.Error(ENOENT)
		return
	}

	reply.Entry(&fuseops.ChildInodeEntry{
		Child:      childInode,
		Attributes: childAttrs,
	})
}

func (fs *trackingFS) GetInodeAttributes(
	ctx context.Context,
	op *fuseops.GetInodeAttributesOp,
	reply *ReplyAttr) {
	if op.Header().Inode != childInode {
		reply.Error(ENOENT)
		return
	}

	attrs := childAttrs
	reply.Attr(childInode, &attrs, time.Now().Add(time.Minute))
}

func (fs *trackingFS) ForgetInode(
	ctx context.Context,
	op *fuseops.ForgetInodeOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.forgotten[op.Header().Inode] += op.N
}

func (fs *trackingFS) ReadFile(
	ctx context.Context,
	op *fuseops.ReadFileOp,
	reply *ReplyData) {
	reply.DataString("hello world")
}

////////////////////////////////////////////////////////////////////////
// Session harness
////////////////////////////////////////////////////////////////////////

type sessionTest struct {
	t         *testing.T
	transport *testTransport
	fs        *trackingFS
	owner     uint32

	served chan error
	unique uint64
}

func startSession(t *testing.T, config *MountConfig) *sessionTest {
	if config == nil {
		config = &MountConfig{}
	}

	st := &sessionTest{
		t:         t,
		transport: newTestTransport(),
		fs:        newTrackingFS(),
		owner:     uint32(os.Getuid()),
		served:    make(chan error, 1),
	}

	s := newSession(st.fs, st.transport, config)
	go func() {
		st.served <- s.Serve()
	}()

	return st
}

// send queues one request and returns its unique ID.
func (st *sessionTest) send(
	opcode fusekernel.Opcode,
	nodeid uint64,
	uid uint32,
	body []byte) uint64 {
	st.unique++
	st.transport.requests <- frame(opcode, st.unique, nodeid, uid, body)
	return st.unique
}

func (st *sessionTest) nextReply() (fusekernel.OutHeader, []byte) {
	st.t.Helper()

	select {
	case b := <-st.transport.replies:
		if len(b) < fusekernel.OutHeaderSize {
			st.t.Fatalf("reply shorter than its header: %d bytes", len(b))
		}

		h := *(*fusekernel.OutHeader)(unsafe.Pointer(&b[0]))
		if int(h.Len) != len(b) {
			st.t.Fatalf("reply header says %d bytes, got %d", h.Len, len(b))
		}

		return h, b[fusekernel.OutHeaderSize:]

	case <-time.After(5 * time.Second):
		st.t.Fatal("timed out waiting for a reply")
	}

	panic("unreachable")
}

func (st *sessionTest) expectError(unique uint64, errno syscall.Errno) {
	st.t.Helper()

	h, body := st.nextReply()
	if h.Unique != unique {
		st.t.Errorf("reply unique: got %d, want %d", h.Unique, unique)
	}
	if h.Error != -int32(errno) {
		st.t.Errorf("reply error: got %d, want %d (%v)", h.Error, -int32(errno), errno)
	}
	if len(body) != 0 {
		st.t.Errorf("error reply carries %d payload bytes", len(body))
	}
}

// initialize performs a successful handshake at the given kernel minor
// version, offering the given flags, and returns the init reply.
func (st *sessionTest) initialize(
	minor uint32,
	offered fusekernel.InitFlags) fusekernel.InitOut {
	st.t.Helper()

	unique := st.send(
		fusekernel.OpInit, 0, st.owner, initBody(7, minor, 65536, offered))

	h, body := st.nextReply()
	if h.Unique != unique {
		st.t.Fatalf("init reply unique: got %d, want %d", h.Unique, unique)
	}
	if h.Error != 0 {
		st.t.Fatalf("init failed with error %d", h.Error)
	}

	var out fusekernel.InitOut
	copy(
		unsafe.Slice((*byte)(unsafe.Pointer(&out)), unsafe.Sizeof(out)),
		body)

	return out
}

// finish closes the request stream and waits for Serve to return.
func (st *sessionTest) finish() error {
	st.t.Helper()

	close(st.transport.requests)

	select {
	case err := <-st.served:
		return err

	case <-time.After(5 * time.Second):
		st.t.Fatal("timed out waiting for Serve to return")
	}

	panic("unreachable")
}

// Flags a test kernel plausibly offers, a strict superset of the defaults.
const offeredFlags = defaultCapabilities |
	fusekernel.InitPosixLocks |
	fusekernel.InitWritebackCache

////////////////////////////////////////////////////////////////////////
// Lifecycle
////////////////////////////////////////////////////////////////////////

func TestInitHandshake(t *testing.T) {
	st := startSession(t, nil)
	defer st.finish()

	out := st.initialize(26, offeredFlags)

	if out.Major != 7 || out.Minor != 26 {
		t.Errorf("negotiated protocol: got %d.%d, want 7.26", out.Major, out.Minor)
	}

	// Granted flags are the requested set intersected with the offered set,
	// and nothing the file system never asked for leaks through.
	if want := defaultCapabilities & offeredFlags; out.Flags != want {
		t.Errorf("negotiated flags: got %v, want %v", out.Flags, want)
	}
	if out.Flags&fusekernel.InitWritebackCache != 0 {
		t.Error("writeback caching granted without being requested")
	}

	if out.MaxReadahead != 65536 {
		t.Errorf("max readahead: got %d, want 65536", out.MaxReadahead)
	}
	if out.MaxWrite != maxMaxWrite {
		t.Errorf("max write: got %d, want %d", out.MaxWrite, maxMaxWrite)
	}
	if out.TimeGran != 1 {
		t.Errorf("time granularity: got %d, want 1", out.TimeGran)
	}

	if st.fs.lastConfig == nil {
		t.Fatal("file system Init hook never ran")
	}
	if major, minor := st.fs.lastConfig.Protocol(); major != 7 || minor != 26 {
		t.Errorf("config protocol: got %d.%d, want 7.26", major, minor)
	}
}

func TestInitCapsMinorAtOurs(t *testing.T) {
	st := startSession(t, nil)
	defer st.finish()

	out := st.initialize(99, offeredFlags)
	if out.Minor != fusekernel.KernelMinorVersion {
		t.Errorf(
			"negotiated minor: got %d, want %d",
			out.Minor, fusekernel.KernelMinorVersion)
	}
}

func TestInitProtocolTooOld(t *testing.T) {
	st := startSession(t, nil)
	defer st.finish()

	unique := st.send(fusekernel.OpInit, 0, st.owner, initBody(7, 5, 0, 0))
	st.expectError(unique, syscall.EPROTO)

	// The failed handshake must leave the session uninitialized.
	unique = st.send(fusekernel.OpGetattr, uint64(childInode), st.owner, getattrBody())
	st.expectError(unique, syscall.EIO)
}

func TestInitFutureMajorVersion(t *testing.T) {
	st := startSession(t, nil)
	defer st.finish()

	// A kernel from the future gets told our version so it can downgrade and
	// send a second init.
	unique := st.send(fusekernel.OpInit, 0, st.owner, initBody(8, 0, 0, 0))

	h, body := st.nextReply()
	if h.Unique != unique || h.Error != 0 {
		t.Fatalf("version reply: unique %d, error %d", h.Unique, h.Error)
	}

	var out fusekernel.InitOut
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&out)), unsafe.Sizeof(out)), body)
	if out.Major != fusekernel.KernelVersion || out.Minor != fusekernel.KernelMinorVersion {
		t.Errorf(
			"advertised version: got %d.%d, want %d.%d",
			out.Major, out.Minor,
			fusekernel.KernelVersion, fusekernel.KernelMinorVersion)
	}

	// Not a successful handshake; ordinary requests are still refused.
	unique = st.send(fusekernel.OpGetattr, uint64(childInode), st.owner, getattrBody())
	st.expectError(unique, syscall.EIO)

	// The retry at our version succeeds.
	st.initialize(fusekernel.KernelMinorVersion, offeredFlags)
}

func TestDuplicateInit(t *testing.T) {
	st := startSession(t, nil)
	defer st.finish()

	st.initialize(26, offeredFlags)

	unique := st.send(fusekernel.OpInit, 0, st.owner, initBody(7, 26, 0, offeredFlags))
	st.expectError(unique, syscall.EIO)
}

func TestInitHookFailure(t *testing.T) {
	st := startSession(t, nil)
	st.fs.initErr = ENXIO
	defer st.finish()

	unique := st.send(fusekernel.OpInit, 0, st.owner, initBody(7, 26, 0, offeredFlags))
	st.expectError(unique, syscall.ENXIO)

	unique = st.send(fusekernel.OpGetattr, uint64(childInode), st.owner, getattrBody())
	st.expectError(unique, syscall.EIO)
}

func TestRequestBeforeInit(t *testing.T) {
	st := startSession(t, nil)
	defer st.finish()

	unique := st.send(fusekernel.OpGetattr, uint64(childInode), st.owner, getattrBody())
	st.expectError(unique, syscall.EIO)
}

func TestDestroy(t *testing.T) {
	st := startSession(t, nil)

	st.initialize(26, offeredFlags)

	unique := st.send(fusekernel.OpDestroy, 0, st.owner, nil)
	h, body := st.nextReply()
	if h.Unique != unique || h.Error != 0 || len(body) != 0 {
		t.Errorf("destroy reply: unique %d, error %d, %d bytes", h.Unique, h.Error, len(body))
	}

	// The session is over; stragglers are refused.
	unique = st.send(fusekernel.OpGetattr, uint64(childInode), st.owner, getattrBody())
	st.expectError(unique, syscall.EIO)

	if err := st.finish(); err != nil {
		t.Errorf("Serve: %v", err)
	}

	// Destroy must not run again at teardown.
	if n := st.fs.destroyCount(); n != 1 {
		t.Errorf("Destroy ran %d times, want 1", n)
	}
}

func TestDestroyOnConnectionLoss(t *testing.T) {
	st := startSession(t, nil)

	st.initialize(26, offeredFlags)

	// The kernel vanishing without a destroy request still tears down the
	// file system exactly once.
	if err := st.finish(); err != nil {
		t.Errorf("Serve: %v", err)
	}
	if n := st.fs.destroyCount(); n != 1 {
		t.Errorf("Destroy ran %d times, want 1", n)
	}
}

////////////////////////////////////////////////////////////////////////
// Dispatch
////////////////////////////////////////////////////////////////////////

func TestLookUpInode(t *testing.T) {
	st := startSession(t, nil)
	defer st.finish()

	st.initialize(26, offeredFlags)

	unique := st.send(
		fusekernel.OpLookup, fuseops.RootInodeID, st.owner, lookupBody(childName))

	h, body := st.nextReply()
	if h.Unique != unique || h.Error != 0 {
		t.Fatalf("lookup reply: unique %d, error %d", h.Unique, h.Error)
	}

	protocol := fusekernel.Protocol{Major: 7, Minor: 26}
	if want := fusekernel.EntryOutSize(protocol); uintptr(len(body)) != want {
		t.Fatalf("lookup payload: got %d bytes, want %d", len(body), want)
	}

	var out fusekernel.EntryOut
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&out)), unsafe.Sizeof(out)), body)

	if out.Nodeid != uint64(childInode) {
		t.Errorf("entry inode: got %d, want %d", out.Nodeid, childInode)
	}
	if out.Attr.Ino != uint64(childInode) {
		t.Errorf("attr inode: got %d, want %d", out.Attr.Ino, childInode)
	}
	if out.Attr.Size != childAttrs.Size {
		t.Errorf("attr size: got %d, want %d", out.Attr.Size, childAttrs.Size)
	}
	if out.Attr.Uid != childAttrs.Uid {
		t.Errorf("attr uid: got %d, want %d", out.Attr.Uid, childAttrs.Uid)
	}
}

func TestLookUpInodeNotFound(t *testing.T) {
	st := startSession(t, nil)
	defer st.finish()

	st.initialize(26, offeredFlags)

	unique := st.send(
		fusekernel.OpLookup, fuseops.RootInodeID, st.owner, lookupBody("no-such-child"))
	st.expectError(unique, syscall.ENOENT)
}

func TestGetInodeAttributes(t *testing.T) {
	st := startSession(t, nil)
	defer st.finish()

	st.initialize(26, offeredFlags)

	unique := st.send(fusekernel.OpGetattr, uint64(childInode), st.owner, getattrBody())

	h, body := st.nextReply()
	if h.Unique != unique || h.Error != 0 {
		t.Fatalf("getattr reply: unique %d, error %d", h.Unique, h.Error)
	}

	var out fusekernel.AttrOut
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&out)), unsafe.Sizeof(out)), body)

	if out.Attr.Ino != uint64(childInode) {
		t.Errorf("attr inode: got %d, want %d", out.Attr.Ino, childInode)
	}
	if out.Attr.Size != childAttrs.Size {
		t.Errorf("attr size: got %d, want %d", out.Attr.Size, childAttrs.Size)
	}
	if out.Attr.Mtime != uint64(childAttrs.Mtime.Unix()) {
		t.Errorf("attr mtime: got %d, want %d", out.Attr.Mtime, childAttrs.Mtime.Unix())
	}
	if out.AttrValid == 0 {
		t.Error("attr cache timeout not set")
	}
}

func TestReadFile(t *testing.T) {
	st := startSession(t, nil)
	defer st.finish()

	st.initialize(26, offeredFlags)

	unique := st.send(
		fusekernel.OpRead, uint64(childInode), st.owner, readBody(1, 0, 4096))

	h, body := st.nextReply()
	if h.Unique != unique || h.Error != 0 {
		t.Fatalf("read reply: unique %d, error %d", h.Unique, h.Error)
	}
	if got := string(body); got != "hello world" {
		t.Errorf("read payload: got %q", got)
	}
}

func TestForgetSendsNoReply(t *testing.T) {
	st := startSession(t, nil)
	defer st.finish()

	st.initialize(26, offeredFlags)

	st.send(fusekernel.OpForget, uint64(childInode), st.owner, forgetBody(3))

	// Requests are handled in order, so the lookup reply arriving first (and
	// alone) proves the forget produced none.
	unique := st.send(
		fusekernel.OpLookup, fuseops.RootInodeID, st.owner, lookupBody(childName))

	h, _ := st.nextReply()
	if h.Unique != unique {
		t.Fatalf("expected lookup reply (unique %d), got unique %d", unique, h.Unique)
	}

	st.fs.mu.Lock()
	defer st.fs.mu.Unlock()
	if got := st.fs.forgotten[childInode]; got != 3 {
		t.Errorf("forgotten lookup count: got %d, want 3", got)
	}
}

func TestUnimplementedOpcode(t *testing.T) {
	st := startSession(t, nil)
	defer st.finish()

	st.initialize(26, offeredFlags)

	// The fixture leaves OpenDir at its refusing default.
	unique := st.send(
		fusekernel.OpOpendir, fuseops.RootInodeID, st.owner,
		make([]byte, unsafe.Sizeof(fusekernel.OpenIn{})))
	st.expectError(unique, syscall.ENOSYS)
}

func TestUnknownOpcode(t *testing.T) {
	st := startSession(t, nil)
	defer st.finish()

	st.initialize(26, offeredFlags)

	unique := st.send(fusekernel.Opcode(9999), 0, st.owner, nil)
	st.expectError(unique, syscall.ENOSYS)
}

func TestInterruptRefused(t *testing.T) {
	st := startSession(t, nil)
	defer st.finish()

	st.initialize(26, offeredFlags)

	body := make([]byte, unsafe.Sizeof(fusekernel.InterruptIn{}))
	unique := st.send(fusekernel.OpInterrupt, 0, st.owner, body)
	st.expectError(unique, syscall.ENOSYS)
}

func TestMalformedRequestDropped(t *testing.T) {
	st := startSession(t, nil)
	defer st.finish()

	// Shorter than a header: the message is discarded without a reply and
	// the session keeps serving.
	st.transport.requests <- make([]byte, 10)

	st.initialize(26, offeredFlags)
}

////////////////////////////////////////////////////////////////////////
// Access policy
////////////////////////////////////////////////////////////////////////

func TestAccessPolicyAllowOwner(t *testing.T) {
	st := startSession(t, &MountConfig{Policy: AllowOwner})
	defer st.finish()

	st.initialize(26, offeredFlags)
	stranger := st.owner + 1

	// Metadata requests from other uids are refused outright.
	unique := st.send(fusekernel.OpGetattr, uint64(childInode), stranger, getattrBody())
	st.expectError(unique, syscall.EACCES)

	unique = st.send(
		fusekernel.OpLookup, fuseops.RootInodeID, stranger, lookupBody(childName))
	st.expectError(unique, syscall.EACCES)

	// I/O against an open handle is always allowed; the open itself was
	// policed when it happened.
	unique = st.send(fusekernel.OpRead, uint64(childInode), stranger, readBody(1, 0, 4096))
	h, body := st.nextReply()
	if h.Unique != unique || h.Error != 0 {
		t.Fatalf("read reply: unique %d, error %d", h.Unique, h.Error)
	}
	if string(body) != "hello world" {
		t.Errorf("read payload: got %q", string(body))
	}

	// The owner is unrestricted.
	unique = st.send(fusekernel.OpGetattr, uint64(childInode), st.owner, getattrBody())
	h, _ = st.nextReply()
	if h.Unique != unique || h.Error != 0 {
		t.Errorf("owner getattr reply: unique %d, error %d", h.Unique, h.Error)
	}
}

func TestAccessPolicyDefaultAllowsRoot(t *testing.T) {
	st := startSession(t, nil)
	defer st.finish()

	st.initialize(26, offeredFlags)

	unique := st.send(fusekernel.OpGetattr, uint64(childInode), 0, getattrBody())
	h, _ := st.nextReply()
	if h.Unique != unique || h.Error != 0 {
		t.Errorf("root getattr reply: unique %d, error %d", h.Unique, h.Error)
	}
}

func TestAccessPolicyAllowAll(t *testing.T) {
	st := startSession(t, &MountConfig{AllowOther: true})
	defer st.finish()

	st.initialize(26, offeredFlags)

	unique := st.send(fusekernel.OpGetattr, uint64(childInode), st.owner+12345, getattrBody())
	h, _ := st.nextReply()
	if h.Unique != unique || h.Error != 0 {
		t.Errorf("stranger getattr reply: unique %d, error %d", h.Unique, h.Error)
	}
}

////////////////////////////////////////////////////////////////////////
// Reply lifecycle
////////////////////////////////////////////////////////////////////////

func TestReplyCompletedTwicePanics(t *testing.T) {
	tr := newTestTransport()

	reply := &ReplyEmpty{}
	reply.r.init(
		tr,
		fusekernel.Protocol{Major: 7, Minor: 26},
		1, "TestOp", nil, nil, nil)

	reply.Ok()
	<-tr.replies

	defer func() {
		if recover() == nil {
			t.Error("second completion did not panic")
		}
	}()

	reply.Ok()
}

func TestReplyErrorAfterOkPanics(t *testing.T) {
	tr := newTestTransport()

	reply := &ReplyEntry{}
	reply.r.init(
		tr,
		fusekernel.Protocol{Major: 7, Minor: 26},
		1, "TestOp", nil, nil, nil)

	reply.Error(ENOENT)
	<-tr.replies

	defer func() {
		if recover() == nil {
			t.Error("completion after an error reply did not panic")
		}
	}()

	reply.Error(EIO)
}

func TestReplyNonErrnoErrorBecomesEIO(t *testing.T) {
	tr := newTestTransport()

	reply := &ReplyEmpty{}
	reply.r.init(
		tr,
		fusekernel.Protocol{Major: 7, Minor: 26},
		7, "TestOp", nil, nil, nil)

	reply.Error(io.ErrUnexpectedEOF)

	b := <-tr.replies
	h := *(*fusekernel.OutHeader)(unsafe.Pointer(&b[0]))
	if h.Error != -int32(syscall.EIO) {
		t.Errorf("reply error: got %d, want %d", h.Error, -int32(syscall.EIO))
	}
}
