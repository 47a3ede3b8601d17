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
	"unsafe"

	"github.com/jacobsa/reqtrace"

	"github.com/emberfs/fuse/fuseops"
	"github.com/emberfs/fuse/fuseutil"
	"github.com/emberfs/fuse/internal/buffer"
	"github.com/emberfs/fuse/internal/fusekernel"
)

// The oldest protocol revision this package agrees to speak. The layout of
// several core structs changed incompatibly before this.
var minProtocol = fusekernel.Protocol{Major: 7, Minor: 6}

// Hook for routing ops that exist only on particular platforms, installed
// by the platform files in this package. Reports whether it handled the op.
var dispatchPlatform func(
	s *Session,
	ctx context.Context,
	op fuseops.Op,
	done func(),
	report reqtrace.ReportFunc) bool

// handleRequest runs one message through the dispatch state machine:
//
//  1. Decode. Failure earns the request an ENOSYS reply and costs nothing
//     else; the session continues.
//  2. Access policy. Callers the policy rejects may still issue a fixed set
//     of opcodes; everything else is EACCES.
//  3. Init and Destroy drive the session lifecycle.
//  4. Anything else outside the initialized window is EIO, logged as
//     ignored.
//  5. Deterministically unimplemented opcodes are ENOSYS.
//  6. The rest routes to the FileSystem method with a single-use reply.
//
// Exactly one reply is written per request, on every path, with the sole
// exception of the forget family, which the kernel sends fire-and-forget.
func (s *Session) handleRequest(m *buffer.InMessage) {
	h := m.Header()
	unique := h.Unique
	uid := h.Uid

	done := func() {
		s.putMessage(m)
		s.inFlight.Done()
	}

	op, err := fuseops.Convert(m, s.protocol)
	if err != nil {
		s.logDebug("<- opcode %v (unique %d): decode failed: %v", h.Opcode, unique, err)
		s.replyError(unique, "BadRequest", ENOSYS, done)
		return
	}

	desc := fuseops.ShortDesc(op)
	s.logDebug("<- %s (unique %d, inode %d, uid %d)", desc, unique, h.Nodeid, uid)

	ctx := s.opContext
	var report reqtrace.ReportFunc
	if reqtrace.Enabled() {
		ctx, report = reqtrace.StartSpan(ctx, desc)
	}

	if !s.accessAllowed(op, uid) {
		s.logDebug("%s (unique %d): uid %d rejected by access policy", desc, unique, uid)
		s.replyErrorTraced(unique, desc, EACCES, done, report)
		return
	}

	switch typed := op.(type) {
	case *fuseops.InitOp:
		s.handleInit(ctx, typed, unique, done, report)
		return

	case *fuseops.DestroyOp:
		s.handleDestroy(unique, done, report)
		return
	}

	if !s.initialized || s.destroyed {
		s.logError("ignoring %s (unique %d): session not in initialized state", desc, unique)
		s.replyErrorTraced(unique, desc, EIO, done, report)
		return
	}

	s.routeOp(ctx, op, desc, unique, done, report)
}

// accessAllowed applies the session's access policy. The always-allowed set
// contains the opcodes whose denial would wedge the kernel rather than
// protect anything: lifecycle, reference dropping, and I/O against handles
// that some permitted caller already opened.
func (s *Session) accessAllowed(op fuseops.Op, uid uint32) bool {
	switch s.policy {
	case AllowAll:
		return true

	case AllowRootAndOwner:
		if uid == 0 || uid == s.owner {
			return true
		}

	case AllowOwner:
		if uid == s.owner {
			return true
		}
	}

	switch op.(type) {
	case *fuseops.InitOp,
		*fuseops.DestroyOp,
		*fuseops.ReadFileOp,
		*fuseops.ReadDirOp,
		*fuseops.ReadDirPlusOp,
		*fuseops.ForgetInodeOp,
		*fuseops.BatchForgetOp,
		*fuseops.WriteFileOp,
		*fuseops.SyncFileOp,
		*fuseops.SyncDirOp,
		*fuseops.ReleaseFileHandleOp,
		*fuseops.ReleaseDirHandleOp:
		return true
	}

	return false
}

func (s *Session) handleInit(
	ctx context.Context,
	op *fuseops.InitOp,
	unique uint64,
	done func(),
	report reqtrace.ReportFunc) {
	if s.initialized || s.destroyed {
		s.logError("ignoring duplicate init (unique %d)", unique)
		s.replyErrorTraced(unique, "InitOp", EIO, done, report)
		return
	}

	// Refuse kernels older than we can decode for.
	if op.Kernel.LT(minProtocol) {
		s.logError("kernel protocol %v too old; need at least %v", op.Kernel, minProtocol)
		s.replyErrorTraced(unique, "InitOp", EPROTO, done, report)
		return
	}

	// A kernel from the future: tell it our version and let it downgrade and
	// retry, per the init handshake. The session stays uninitialized.
	if op.Kernel.Major > fusekernel.KernelVersion {
		raw := s.newRaw("InitOp", unique, done, report)
		out := (*fusekernel.InitOut)(raw.out.Grow(unsafe.Sizeof(fusekernel.InitOut{})))
		out.Major = fusekernel.KernelVersion
		out.Minor = fusekernel.KernelMinorVersion
		raw.sendOK()
		return
	}

	protocol := fusekernel.Protocol{
		Major: fusekernel.KernelVersion,
		Minor: fusekernel.KernelMinorVersion,
	}
	if op.Kernel.Minor < protocol.Minor {
		protocol.Minor = op.Kernel.Minor
	}

	config := newKernelConfig(protocol, op.Flags, op.MaxReadahead)

	if err := s.fs.Init(ctx, op, config); err != nil {
		s.logError("file system Init: %v", err)
		raw := s.newRaw("InitOp", unique, done, report)
		raw.sendError(err)
		return
	}

	s.protocol = protocol
	s.initialized = true

	raw := s.newRaw("InitOp", unique, done, report)
	out := (*fusekernel.InitOut)(raw.out.Grow(unsafe.Sizeof(fusekernel.InitOut{})))
	config.pack(out)
	raw.out.ShrinkTo(uintptr(fusekernel.OutHeaderSize) + fusekernel.InitOutSize(protocol))
	raw.sendOK()
}

func (s *Session) handleDestroy(
	unique uint64,
	done func(),
	report reqtrace.ReportFunc) {
	if !s.initialized || s.destroyed {
		s.replyErrorTraced(unique, "DestroyOp", EIO, done, report)
		return
	}

	s.destroyed = true
	s.fs.Destroy()

	raw := s.newRaw("DestroyOp", unique, done, report)
	raw.sendOK()
}

func (s *Session) routeOp(
	ctx context.Context,
	op fuseops.Op,
	desc string,
	unique uint64,
	done func(),
	report reqtrace.ReportFunc) {
	switch typed := op.(type) {
	// The forget family carries no reply.
	case *fuseops.ForgetInodeOp:
		s.fs.ForgetInode(ctx, typed)
		if report != nil {
			report(nil)
		}
		done()

	case *fuseops.BatchForgetOp:
		s.fs.BatchForget(ctx, typed)
		if report != nil {
			report(nil)
		}
		done()

	case *fuseops.LookUpInodeOp:
		s.fs.LookUpInode(ctx, typed, s.newReplyEntry(desc, unique, done, report))

	case *fuseops.GetInodeAttributesOp:
		s.fs.GetInodeAttributes(ctx, typed, s.newReplyAttr(desc, unique, done, report))

	case *fuseops.SetInodeAttributesOp:
		s.fs.SetInodeAttributes(ctx, typed, s.newReplyAttr(desc, unique, done, report))

	case *fuseops.MkDirOp:
		s.fs.MkDir(ctx, typed, s.newReplyEntry(desc, unique, done, report))

	case *fuseops.MkNodeOp:
		s.fs.MkNode(ctx, typed, s.newReplyEntry(desc, unique, done, report))

	case *fuseops.CreateFileOp:
		reply := &ReplyCreate{}
		s.initRaw(&reply.r, desc, unique, done, report)
		s.fs.CreateFile(ctx, typed, reply)

	case *fuseops.CreateSymlinkOp:
		s.fs.CreateSymlink(ctx, typed, s.newReplyEntry(desc, unique, done, report))

	case *fuseops.CreateLinkOp:
		s.fs.CreateLink(ctx, typed, s.newReplyEntry(desc, unique, done, report))

	case *fuseops.RenameOp:
		s.fs.Rename(ctx, typed, s.newReplyEmpty(desc, unique, done, report))

	case *fuseops.RmDirOp:
		s.fs.RmDir(ctx, typed, s.newReplyEmpty(desc, unique, done, report))

	case *fuseops.UnlinkOp:
		s.fs.Unlink(ctx, typed, s.newReplyEmpty(desc, unique, done, report))

	case *fuseops.OpenDirOp:
		s.fs.OpenDir(ctx, typed, s.newReplyOpen(desc, unique, done, report))

	case *fuseops.ReadDirOp:
		reply := &ReplyDirectory{
			entries: fuseutil.NewDirentList(typed.Size),
		}
		s.initRaw(&reply.r, desc, unique, done, report)
		s.fs.ReadDir(ctx, typed, reply)

	case *fuseops.ReadDirPlusOp:
		reply := &ReplyDirectoryPlus{
			entries: fuseutil.NewDirentPlusList(typed.Size),
		}
		s.initRaw(&reply.r, desc, unique, done, report)
		s.fs.ReadDirPlus(ctx, typed, reply)

	case *fuseops.ReleaseDirHandleOp:
		s.fs.ReleaseDirHandle(ctx, typed, s.newReplyEmpty(desc, unique, done, report))

	case *fuseops.SyncDirOp:
		s.fs.SyncDir(ctx, typed, s.newReplyEmpty(desc, unique, done, report))

	case *fuseops.OpenFileOp:
		s.fs.OpenFile(ctx, typed, s.newReplyOpen(desc, unique, done, report))

	case *fuseops.ReadFileOp:
		reply := &ReplyData{}
		s.initRaw(&reply.r, desc, unique, done, report)
		s.fs.ReadFile(ctx, typed, reply)

	case *fuseops.WriteFileOp:
		reply := &ReplyWrite{}
		s.initRaw(&reply.r, desc, unique, done, report)
		s.fs.WriteFile(ctx, typed, reply)

	case *fuseops.SyncFileOp:
		s.fs.SyncFile(ctx, typed, s.newReplyEmpty(desc, unique, done, report))

	case *fuseops.FlushFileOp:
		s.fs.FlushFile(ctx, typed, s.newReplyEmpty(desc, unique, done, report))

	case *fuseops.ReleaseFileHandleOp:
		s.fs.ReleaseFileHandle(ctx, typed, s.newReplyEmpty(desc, unique, done, report))

	case *fuseops.ReadSymlinkOp:
		reply := &ReplyData{}
		s.initRaw(&reply.r, desc, unique, done, report)
		s.fs.ReadSymlink(ctx, typed, reply)

	case *fuseops.GetXattrOp:
		reply := &ReplyXattr{}
		s.initRaw(&reply.r, desc, unique, done, report)
		s.fs.GetXattr(ctx, typed, reply)

	case *fuseops.ListXattrOp:
		reply := &ReplyXattr{}
		s.initRaw(&reply.r, desc, unique, done, report)
		s.fs.ListXattr(ctx, typed, reply)

	case *fuseops.RemoveXattrOp:
		s.fs.RemoveXattr(ctx, typed, s.newReplyEmpty(desc, unique, done, report))

	case *fuseops.SetXattrOp:
		s.fs.SetXattr(ctx, typed, s.newReplyEmpty(desc, unique, done, report))

	case *fuseops.GetLockOp:
		reply := &ReplyLock{}
		s.initRaw(&reply.r, desc, unique, done, report)
		s.fs.GetLock(ctx, typed, reply)

	case *fuseops.SetLockOp:
		s.fs.SetLock(ctx, typed, s.newReplyEmpty(desc, unique, done, report))

	case *fuseops.StatFSOp:
		reply := &ReplyStatfs{}
		s.initRaw(&reply.r, desc, unique, done, report)
		s.fs.StatFS(ctx, typed, reply)

	case *fuseops.AccessOp:
		s.fs.Access(ctx, typed, s.newReplyEmpty(desc, unique, done, report))

	case *fuseops.BmapOp:
		reply := &ReplyBmap{}
		s.initRaw(&reply.r, desc, unique, done, report)
		s.fs.Bmap(ctx, typed, reply)

	case *fuseops.FallocateOp:
		s.fs.Fallocate(ctx, typed, s.newReplyEmpty(desc, unique, done, report))

	case *fuseops.LseekOp:
		reply := &ReplyLseek{}
		s.initRaw(&reply.r, desc, unique, done, report)
		s.fs.Lseek(ctx, typed, reply)

	case *fuseops.CopyFileRangeOp:
		reply := &ReplyWrite{}
		s.initRaw(&reply.r, desc, unique, done, report)
		s.fs.CopyFileRange(ctx, typed, reply)

	case *fuseops.IoctlOp:
		// Unrestricted ioctls would let the file system drive retry iovecs;
		// deliberately unsupported.
		if typed.Unrestricted {
			s.replyErrorTraced(unique, desc, ENOSYS, done, report)
			return
		}

		reply := &ReplyIoctl{}
		s.initRaw(&reply.r, desc, unique, done, report)
		s.fs.Ioctl(ctx, typed, reply)

	// Recognized but deliberately unimplemented: cancellation is not wired
	// to in-flight requests, and the poll/notify/CUSE machinery is out of
	// scope. The kernel handles ENOSYS for these by not sending them again.
	case *fuseops.InterruptOp,
		*fuseops.PollOp,
		*fuseops.NotifyReplyOp,
		*fuseops.CuseInitOp:
		s.replyErrorTraced(unique, desc, ENOSYS, done, report)

	default:
		if dispatchPlatform != nil && dispatchPlatform(s, ctx, op, done, report) {
			return
		}

		s.logError("no handler for %s (unique %d)", desc, unique)
		s.replyErrorTraced(unique, desc, ENOSYS, done, report)
	}
}

////////////////////////////////////////////////////////////////////////
// Reply construction
////////////////////////////////////////////////////////////////////////

func (s *Session) initRaw(
	r *replyRaw,
	opName string,
	unique uint64,
	done func(),
	report reqtrace.ReportFunc) {
	if report != nil {
		inner := done
		done = func() {
			report(nil)
			inner()
		}
	}

	r.init(s.transport, s.protocol, unique, opName, s.errorLogger, s.debugLogger, done)
}

func (s *Session) newRaw(
	opName string,
	unique uint64,
	done func(),
	report reqtrace.ReportFunc) *replyRaw {
	r := new(replyRaw)
	s.initRaw(r, opName, unique, done, report)
	return r
}

func (s *Session) newReplyEmpty(
	opName string, unique uint64, done func(), report reqtrace.ReportFunc) *ReplyEmpty {
	reply := &ReplyEmpty{}
	s.initRaw(&reply.r, opName, unique, done, report)
	return reply
}

func (s *Session) newReplyEntry(
	opName string, unique uint64, done func(), report reqtrace.ReportFunc) *ReplyEntry {
	reply := &ReplyEntry{}
	s.initRaw(&reply.r, opName, unique, done, report)
	return reply
}

func (s *Session) newReplyAttr(
	opName string, unique uint64, done func(), report reqtrace.ReportFunc) *ReplyAttr {
	reply := &ReplyAttr{}
	s.initRaw(&reply.r, opName, unique, done, report)
	return reply
}

func (s *Session) newReplyOpen(
	opName string, unique uint64, done func(), report reqtrace.ReportFunc) *ReplyOpen {
	reply := &ReplyOpen{}
	s.initRaw(&reply.r, opName, unique, done, report)
	return reply
}

// Send a bare error reply for a request that never reached the file system.
func (s *Session) replyError(unique uint64, opName string, errno error, done func()) {
	s.replyErrorTraced(unique, opName, errno, done, nil)
}

func (s *Session) replyErrorTraced(
	unique uint64,
	opName string,
	errno error,
	done func(),
	report reqtrace.ReportFunc) {
	raw := s.newRaw(opName, unique, done, report)
	raw.sendError(errno)
}
