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
	"fmt"
	"log"
	"runtime"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/emberfs/fuse/fuseops"
	"github.com/emberfs/fuse/internal/buffer"
	"github.com/emberfs/fuse/internal/fusekernel"
)

// replyRaw is the shared core of all reply objects. Exactly one of its send
// methods may be called; the second call panics, since answering a request
// twice would corrupt the kernel's request accounting.
//
// A replyRaw that becomes garbage without being completed sends EIO in its
// finalizer and logs the omission. That net exists to keep the kernel from
// waiting forever on a buggy file system; it is not a supported way to fail
// a request.
type replyRaw struct {
	sender   Sender
	protocol fusekernel.Protocol
	unique   uint64
	opName   string

	errorLogger *log.Logger
	debugLogger *log.Logger

	// Called exactly once, after the reply has been written (or definitively
	// failed). Releases resources tied to the originating request.
	done func()

	mu        sync.Mutex
	completed bool

	out buffer.OutMessage
}

func (r *replyRaw) init(
	sender Sender,
	protocol fusekernel.Protocol,
	unique uint64,
	opName string,
	errorLogger *log.Logger,
	debugLogger *log.Logger,
	done func()) {
	r.sender = sender
	r.protocol = protocol
	r.unique = unique
	r.opName = opName
	r.errorLogger = errorLogger
	r.debugLogger = debugLogger
	r.done = done
	r.out.Reset()

	runtime.SetFinalizer(r, (*replyRaw).abandoned)
}

// Mark the reply completed, panicking if it already was. Called at the top
// of every terminal method.
func (r *replyRaw) complete() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.completed {
		panic(fmt.Sprintf("%s: reply completed twice (unique %d)", r.opName, r.unique))
	}

	r.completed = true
	runtime.SetFinalizer(r, nil)
}

// Send the message as currently assembled, with a zero error field.
func (r *replyRaw) sendOK() {
	r.complete()

	h := r.out.OutHeader()
	h.Unique = r.unique
	h.Len = uint32(r.out.Len())

	if r.debugLogger != nil {
		r.debugLogger.Printf("-> %s (unique %d): OK, %d bytes", r.opName, r.unique, h.Len)
	}

	r.finish(r.sender.Send(r.out.Sglist()))
}

// Send an error reply. A nil error is a programmer mistake and is reported
// as EIO rather than success, so that bugs do not masquerade as working
// operations.
func (r *replyRaw) sendError(err error) {
	r.complete()
	r.writeError(err)
}

func (r *replyRaw) writeError(err error) {
	errno := syscall.EIO
	if e, ok := err.(syscall.Errno); ok {
		errno = e
	} else if r.errorLogger != nil {
		r.errorLogger.Printf("%s (unique %d): non-errno error: %v", r.opName, r.unique, err)
	}

	// Drop any partially assembled payload; error replies carry none.
	r.out.Reset()

	h := r.out.OutHeader()
	h.Unique = r.unique
	h.Error = -int32(errno)
	h.Len = uint32(r.out.Len())

	if r.debugLogger != nil {
		r.debugLogger.Printf("-> %s (unique %d): %v", r.opName, r.unique, errno)
	}

	r.finish(r.sender.Send(r.out.Sglist()))
}

func (r *replyRaw) finish(sendErr error) {
	if sendErr != nil && r.errorLogger != nil {
		r.errorLogger.Printf("%s (unique %d): writing reply: %v", r.opName, r.unique, sendErr)
	}

	if r.done != nil {
		r.done()
	}
}

// Finalizer for replies dropped without completion.
func (r *replyRaw) abandoned() {
	r.mu.Lock()
	if r.completed {
		r.mu.Unlock()
		return
	}
	r.completed = true
	r.mu.Unlock()

	if r.errorLogger != nil {
		r.errorLogger.Printf(
			"%s (unique %d): reply dropped without completion; sending EIO",
			r.opName, r.unique)
	}

	r.writeError(syscall.EIO)
}

////////////////////////////////////////////////////////////////////////
// Reply types
////////////////////////////////////////////////////////////////////////

// ReplyEmpty answers operations whose success carries no payload (rename,
// unlink, fsync, setxattr, and friends).
type ReplyEmpty struct {
	r replyRaw
}

func (p *ReplyEmpty) Ok()             { p.r.sendOK() }
func (p *ReplyEmpty) Error(err error) { p.r.sendError(err) }

// ReplyEntry answers lookup and the entry-creating operations (mkdir,
// mknod, symlink, link).
type ReplyEntry struct {
	r replyRaw
}

func (p *ReplyEntry) Entry(e *fuseops.ChildInodeEntry) {
	out := (*fusekernel.EntryOut)(p.r.out.Grow(unsafe.Sizeof(fusekernel.EntryOut{})))
	fuseops.PackChildInodeEntry(e, out)

	p.r.out.ShrinkTo(
		uintptr(fusekernel.OutHeaderSize) + fusekernel.EntryOutSize(p.r.protocol))

	p.r.sendOK()
}

func (p *ReplyEntry) Error(err error) { p.r.sendError(err) }

// ReplyAttr answers getattr and setattr.
type ReplyAttr struct {
	r replyRaw
}

// Attr completes the reply with the supplied attributes, which the kernel
// may cache until the expiration time.
func (p *ReplyAttr) Attr(
	inode fuseops.InodeID,
	attrs *fuseops.InodeAttributes,
	expiration time.Time) {
	out := (*fusekernel.AttrOut)(p.r.out.Grow(unsafe.Sizeof(fusekernel.AttrOut{})))
	out.AttrValid, out.AttrValidNsec = fuseops.ConvertExpirationTime(expiration)
	fuseops.PackAttributes(inode, attrs, &out.Attr)

	p.r.out.ShrinkTo(
		uintptr(fusekernel.OutHeaderSize) + fusekernel.AttrOutSize(p.r.protocol))

	p.r.sendOK()
}

func (p *ReplyAttr) Error(err error) { p.r.sendError(err) }

// ReplyData answers read and readlink. The payload is referenced, not
// copied, when it exceeds the inline threshold; it must not be mutated
// until the reply has been sent, which happens before Data returns.
type ReplyData struct {
	r replyRaw
}

func (p *ReplyData) Data(data []byte) {
	p.r.out.Append(data)
	p.r.sendOK()
}

func (p *ReplyData) DataString(s string) {
	p.r.out.AppendString(s)
	p.r.sendOK()
}

func (p *ReplyData) Error(err error) { p.r.sendError(err) }

// ReplyOpen answers open and opendir. The boolean fields, when set before
// calling Opened, tune the kernel's caching of the handle.
type ReplyOpen struct {
	r replyRaw

	// Use direct I/O, bypassing the page cache.
	UseDirectIO bool

	// Don't invalidate existing cached pages for the inode.
	KeepPageCache bool

	// The file is not seekable.
	NonSeekable bool

	// The kernel may cache the contents of this directory. Protocol 7.28.
	CacheDir bool
}

func (p *ReplyOpen) Opened(handle fuseops.HandleID) {
	out := (*fusekernel.OpenOut)(p.r.out.Grow(unsafe.Sizeof(fusekernel.OpenOut{})))
	out.Fh = uint64(handle)
	out.OpenFlags = p.openFlags()

	p.r.sendOK()
}

func (p *ReplyOpen) openFlags() (flags fusekernel.OpenOutFlags) {
	if p.UseDirectIO {
		flags |= fusekernel.FopenDirectIO
	}
	if p.KeepPageCache {
		flags |= fusekernel.FopenKeepCache
	}
	if p.NonSeekable {
		flags |= fusekernel.FopenNonSeekable
	}
	if p.CacheDir && p.r.protocol.HasMaxPages() {
		flags |= fusekernel.FopenCacheDir
	}
	return
}

func (p *ReplyOpen) Error(err error) { p.r.sendError(err) }

// ReplyCreate answers create: an entry for the new inode plus an open
// result, in one message.
type ReplyCreate struct {
	r replyRaw

	UseDirectIO   bool
	KeepPageCache bool
	NonSeekable   bool
}

func (p *ReplyCreate) Created(e *fuseops.ChildInodeEntry, handle fuseops.HandleID) {
	entryOut := (*fusekernel.EntryOut)(p.r.out.Grow(unsafe.Sizeof(fusekernel.EntryOut{})))
	fuseops.PackChildInodeEntry(e, entryOut)

	// The open result follows the entry, at the offset the negotiated
	// protocol expects.
	p.r.out.ShrinkTo(
		uintptr(fusekernel.OutHeaderSize) + fusekernel.EntryOutSize(p.r.protocol))

	openOut := (*fusekernel.OpenOut)(p.r.out.Grow(unsafe.Sizeof(fusekernel.OpenOut{})))
	openOut.Fh = uint64(handle)
	if p.UseDirectIO {
		openOut.OpenFlags |= fusekernel.FopenDirectIO
	}
	if p.KeepPageCache {
		openOut.OpenFlags |= fusekernel.FopenKeepCache
	}
	if p.NonSeekable {
		openOut.OpenFlags |= fusekernel.FopenNonSeekable
	}

	p.r.sendOK()
}

func (p *ReplyCreate) Error(err error) { p.r.sendError(err) }

// ReplyWrite answers write and copy_file_range with the number of bytes
// handled.
type ReplyWrite struct {
	r replyRaw
}

func (p *ReplyWrite) Wrote(n uint32) {
	out := (*fusekernel.WriteOut)(p.r.out.Grow(unsafe.Sizeof(fusekernel.WriteOut{})))
	out.Size = n

	p.r.sendOK()
}

func (p *ReplyWrite) Error(err error) { p.r.sendError(err) }

// ReplyLock answers getlk with the conflicting lock, or F_UNLCK if the
// requested range is free.
type ReplyLock struct {
	r replyRaw
}

func (p *ReplyLock) Lock(l *fuseops.FileLock) {
	out := (*fusekernel.LkOut)(p.r.out.Grow(unsafe.Sizeof(fusekernel.LkOut{})))
	out.Lk.Start = l.Start
	out.Lk.End = l.End
	out.Lk.Type = l.Type
	out.Lk.Pid = l.Pid

	p.r.sendOK()
}

func (p *ReplyLock) Error(err error) { p.r.sendError(err) }

// Statfs describes file system totals for a statfs reply.
type Statfs struct {
	// The fundamental block size, and totals measured in units of it.
	BlockSize       uint32
	Blocks          uint64
	BlocksFree      uint64
	BlocksAvailable uint64

	// The preferred I/O transfer size.
	IoSize uint32

	Inodes     uint64
	InodesFree uint64
}

// ReplyStatfs answers statfs.
type ReplyStatfs struct {
	r replyRaw
}

func (p *ReplyStatfs) Statfs(st *Statfs) {
	out := (*fusekernel.StatfsOut)(p.r.out.Grow(unsafe.Sizeof(fusekernel.StatfsOut{})))
	out.St.Blocks = st.Blocks
	out.St.Bfree = st.BlocksFree
	out.St.Bavail = st.BlocksAvailable
	out.St.Files = st.Inodes
	out.St.Ffree = st.InodesFree
	out.St.Bsize = st.IoSize
	out.St.Frsize = st.BlockSize
	out.St.Namelen = 255

	p.r.sendOK()
}

func (p *ReplyStatfs) Error(err error) { p.r.sendError(err) }

// ReplyXattr answers getxattr and listxattr, which have two success shapes:
// the attribute bytes themselves, or just the size when the caller probed
// with a zero-length buffer.
type ReplyXattr struct {
	r replyRaw
}

// Value completes a reply whose caller supplied a buffer. The caller of
// this method is responsible for having checked the requested size and
// returned ERANGE when the value does not fit.
func (p *ReplyXattr) Value(data []byte) {
	p.r.out.Append(data)
	p.r.sendOK()
}

// Size completes a size-probe reply.
func (p *ReplyXattr) Size(n uint32) {
	out := (*fusekernel.GetxattrOut)(p.r.out.Grow(unsafe.Sizeof(fusekernel.GetxattrOut{})))
	out.Size = n

	p.r.sendOK()
}

func (p *ReplyXattr) Error(err error) { p.r.sendError(err) }

// ReplyBmap answers bmap with the mapped block number.
type ReplyBmap struct {
	r replyRaw
}

func (p *ReplyBmap) Block(b uint64) {
	out := (*fusekernel.BmapOut)(p.r.out.Grow(unsafe.Sizeof(fusekernel.BmapOut{})))
	out.Block = b

	p.r.sendOK()
}

func (p *ReplyBmap) Error(err error) { p.r.sendError(err) }

// ReplyLseek answers lseek with the resulting offset.
type ReplyLseek struct {
	r replyRaw
}

func (p *ReplyLseek) Offset(off uint64) {
	out := (*fusekernel.LseekOut)(p.r.out.Grow(unsafe.Sizeof(fusekernel.LseekOut{})))
	out.Offset = off

	p.r.sendOK()
}

func (p *ReplyLseek) Error(err error) { p.r.sendError(err) }

// ReplyIoctl answers restricted ioctls.
type ReplyIoctl struct {
	r replyRaw
}

func (p *ReplyIoctl) Ioctl(result int32, data []byte) {
	out := (*fusekernel.IoctlOut)(p.r.out.Grow(unsafe.Sizeof(fusekernel.IoctlOut{})))
	out.Result = result

	if len(data) != 0 {
		p.r.out.Append(data)
	}

	p.r.sendOK()
}

func (p *ReplyIoctl) Error(err error) { p.r.sendError(err) }
