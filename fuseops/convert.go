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
	"fmt"
	"os"
	"time"
	"unsafe"

	"github.com/emberfs/fuse/internal/buffer"
	"github.com/emberfs/fuse/internal/fusekernel"
)

// UnknownOpcodeError is returned by Convert when the request carries an
// opcode we do not speak, either at all or under the negotiated protocol
// version.
type UnknownOpcodeError struct {
	Opcode fusekernel.Opcode
}

func (e *UnknownOpcodeError) Error() string {
	return fmt.Sprintf("unknown opcode %v", e.Opcode)
}

// TruncatedRequestError is returned by Convert when the request's argument
// bytes end before the opcode's argument layout does.
type TruncatedRequestError struct {
	Opcode fusekernel.Opcode
}

func (e *TruncatedRequestError) Error() string {
	return fmt.Sprintf("truncated arguments for %v", e.Opcode)
}

// Hook for opcodes that exist only on particular platforms, installed by
// the platform files in this package. Nil where there are none.
var convertPlatform func(
	m *buffer.InMessage,
	protocol fusekernel.Protocol) (Op, error)

// Convert decodes the supplied kernel message into the op for its opcode,
// pulling the opcode's fixed argument struct and any trailing names or
// data from the message. The resulting op is a view into the message's
// buffer and is valid only as long as the message is.
//
// Which opcodes are accepted, and how large the version-dependent argument
// structs are taken to be, is governed by the supplied protocol version.
func Convert(
	m *buffer.InMessage,
	protocol fusekernel.Protocol) (Op, error) {
	h := m.Header()
	opcode := h.Opcode

	if !opcode.SupportedBy(protocol) {
		return nil, &UnknownOpcodeError{Opcode: opcode}
	}

	truncated := func() error {
		return &TruncatedRequestError{Opcode: opcode}
	}

	var op Op
	switch opcode {
	case fusekernel.OpInit:
		in := (*fusekernel.InitIn)(m.Consume(unsafe.Sizeof(fusekernel.InitIn{})))
		if in == nil {
			return nil, truncated()
		}
		op = &InitOp{
			Kernel:       fusekernel.Protocol{Major: in.Major, Minor: in.Minor},
			MaxReadahead: in.MaxReadahead,
			Flags:        in.Flags,
		}

	case fusekernel.OpDestroy:
		op = &DestroyOp{}

	case fusekernel.OpLookup:
		name, ok := m.ConsumeString()
		if !ok {
			return nil, truncated()
		}
		op = &LookUpInodeOp{Name: name}

	case fusekernel.OpGetattr:
		to := &GetInodeAttributesOp{}
		if protocol.GE(fusekernel.Protocol{Major: 7, Minor: 9}) {
			in := (*fusekernel.GetattrIn)(m.Consume(unsafe.Sizeof(fusekernel.GetattrIn{})))
			if in == nil {
				return nil, truncated()
			}
			if in.GetattrFlags&fusekernel.GetattrFh != 0 {
				h := HandleID(in.Fh)
				to.Handle = &h
			}
		}
		op = to

	case fusekernel.OpSetattr:
		in := (*fusekernel.SetattrIn)(m.Consume(unsafe.Sizeof(fusekernel.SetattrIn{})))
		if in == nil {
			return nil, truncated()
		}
		op = convertSetattr(in, protocol)

	case fusekernel.OpForget:
		in := (*fusekernel.ForgetIn)(m.Consume(unsafe.Sizeof(fusekernel.ForgetIn{})))
		if in == nil {
			return nil, truncated()
		}
		op = &ForgetInodeOp{N: in.Nlookup}

	case fusekernel.OpBatchForget:
		in := (*fusekernel.BatchForgetIn)(m.Consume(unsafe.Sizeof(fusekernel.BatchForgetIn{})))
		if in == nil {
			return nil, truncated()
		}

		// Bound the count by the bytes actually present before multiplying,
		// which could otherwise wrap on 32-bit targets.
		recordSize := unsafe.Sizeof(fusekernel.ForgetOne{})
		if uintptr(in.Count) > uintptr(m.Len())/recordSize {
			return nil, truncated()
		}

		p := m.Consume(uintptr(in.Count) * recordSize)
		if p == nil {
			return nil, truncated()
		}

		// BatchForgetEntry has the wire layout, so the records can be viewed
		// in place.
		op = &BatchForgetOp{
			Entries: unsafe.Slice((*BatchForgetEntry)(p), in.Count),
		}

	case fusekernel.OpMknod:
		in := (*fusekernel.MknodIn)(m.Consume(fusekernel.MknodInSize(protocol)))
		if in == nil {
			return nil, truncated()
		}
		name, ok := m.ConsumeString()
		if !ok {
			return nil, truncated()
		}
		to := &MkNodeOp{
			Name: name,
			Mode: ConvertKernelMode(in.Mode),
			Rdev: in.Rdev,
		}
		if protocol.HasUmask() {
			to.Umask = os.FileMode(in.Umask & 0777)
		}
		op = to

	case fusekernel.OpMkdir:
		in := (*fusekernel.MkdirIn)(m.Consume(fusekernel.MkdirInSize(protocol)))
		if in == nil {
			return nil, truncated()
		}
		name, ok := m.ConsumeString()
		if !ok {
			return nil, truncated()
		}
		to := &MkDirOp{
			Name: name,

			// The type bits are guaranteed to be directory; strip them so the
			// mode matches what MkDir implementations expect to combine with
			// os.ModeDir themselves.
			Mode: ConvertKernelMode(in.Mode) &^ os.ModeType,
		}
		if protocol.HasUmask() {
			to.Umask = os.FileMode(in.Umask & 0777)
		}
		op = to

	case fusekernel.OpCreate:
		in := (*fusekernel.CreateIn)(m.Consume(fusekernel.CreateInSize(protocol)))
		if in == nil {
			return nil, truncated()
		}
		name, ok := m.ConsumeString()
		if !ok {
			return nil, truncated()
		}
		to := &CreateFileOp{
			Name:  name,
			Mode:  ConvertKernelMode(in.Mode),
			Flags: in.Flags,
		}
		if protocol.HasUmask() {
			to.Umask = os.FileMode(in.Umask & 0777)
		}
		op = to

	case fusekernel.OpSymlink:
		// The message is "name\0target\0".
		name, ok := m.ConsumeString()
		if !ok {
			return nil, truncated()
		}
		target, ok := m.ConsumeString()
		if !ok {
			return nil, truncated()
		}
		op = &CreateSymlinkOp{Name: name, Target: target}

	case fusekernel.OpLink:
		in := (*fusekernel.LinkIn)(m.Consume(unsafe.Sizeof(fusekernel.LinkIn{})))
		if in == nil {
			return nil, truncated()
		}
		name, ok := m.ConsumeString()
		if !ok {
			return nil, truncated()
		}
		op = &CreateLinkOp{
			Target: InodeID(in.Oldnodeid),
			Name:   name,
		}

	case fusekernel.OpRename:
		in := (*fusekernel.RenameIn)(m.Consume(unsafe.Sizeof(fusekernel.RenameIn{})))
		if in == nil {
			return nil, truncated()
		}
		oldName, ok := m.ConsumeString()
		if !ok {
			return nil, truncated()
		}
		newName, ok := m.ConsumeString()
		if !ok {
			return nil, truncated()
		}
		op = &RenameOp{
			OldName:   oldName,
			NewParent: InodeID(in.Newdir),
			NewName:   newName,
		}

	case fusekernel.OpRename2:
		in := (*fusekernel.Rename2In)(m.Consume(unsafe.Sizeof(fusekernel.Rename2In{})))
		if in == nil {
			return nil, truncated()
		}
		oldName, ok := m.ConsumeString()
		if !ok {
			return nil, truncated()
		}
		newName, ok := m.ConsumeString()
		if !ok {
			return nil, truncated()
		}
		op = &RenameOp{
			OldName:   oldName,
			NewParent: InodeID(in.Newdir),
			NewName:   newName,
			Flags:     in.Flags,
		}

	case fusekernel.OpUnlink:
		name, ok := m.ConsumeString()
		if !ok {
			return nil, truncated()
		}
		op = &UnlinkOp{Name: name}

	case fusekernel.OpRmdir:
		name, ok := m.ConsumeString()
		if !ok {
			return nil, truncated()
		}
		op = &RmDirOp{Name: name}

	case fusekernel.OpOpen:
		in := (*fusekernel.OpenIn)(m.Consume(unsafe.Sizeof(fusekernel.OpenIn{})))
		if in == nil {
			return nil, truncated()
		}
		op = &OpenFileOp{Flags: in.Flags}

	case fusekernel.OpOpendir:
		in := (*fusekernel.OpenIn)(m.Consume(unsafe.Sizeof(fusekernel.OpenIn{})))
		if in == nil {
			return nil, truncated()
		}
		op = &OpenDirOp{Flags: in.Flags}

	case fusekernel.OpRead:
		in := (*fusekernel.ReadIn)(m.Consume(fusekernel.ReadInSize(protocol)))
		if in == nil {
			return nil, truncated()
		}
		to := &ReadFileOp{
			Handle: HandleID(in.Fh),
			Offset: int64(in.Offset),
			Size:   int(in.Size),
		}
		if in.ReadFlags&fusekernel.ReadLockOwner != 0 {
			o := NewLockOwner(in.LockOwner)
			to.LockOwner = &o
		}
		op = to

	case fusekernel.OpReaddir:
		in := (*fusekernel.ReadIn)(m.Consume(fusekernel.ReadInSize(protocol)))
		if in == nil {
			return nil, truncated()
		}
		op = &ReadDirOp{
			Handle: HandleID(in.Fh),
			Offset: DirOffset(in.Offset),
			Size:   int(in.Size),
		}

	case fusekernel.OpReaddirplus:
		in := (*fusekernel.ReadIn)(m.Consume(fusekernel.ReadInSize(protocol)))
		if in == nil {
			return nil, truncated()
		}
		op = &ReadDirPlusOp{
			Handle: HandleID(in.Fh),
			Offset: DirOffset(in.Offset),
			Size:   int(in.Size),
		}

	case fusekernel.OpWrite:
		in := (*fusekernel.WriteIn)(m.Consume(fusekernel.WriteInSize(protocol)))
		if in == nil {
			return nil, truncated()
		}
		data := m.ConsumeBytes(uintptr(in.Size))
		if data == nil {
			return nil, truncated()
		}
		to := &WriteFileOp{
			Handle:         HandleID(in.Fh),
			Offset:         int64(in.Offset),
			Data:           data,
			CacheWriteback: in.WriteFlags&fusekernel.WriteCache != 0,
		}
		if in.WriteFlags&fusekernel.WriteLockOwner != 0 {
			o := NewLockOwner(in.LockOwner)
			to.LockOwner = &o
		}
		op = to

	case fusekernel.OpRelease:
		in := (*fusekernel.ReleaseIn)(m.Consume(unsafe.Sizeof(fusekernel.ReleaseIn{})))
		if in == nil {
			return nil, truncated()
		}
		op = &ReleaseFileHandleOp{
			Handle:       HandleID(in.Fh),
			Flags:        in.Flags,
			FlockRelease: in.ReleaseFlags&fusekernel.ReleaseFlockUnlock != 0,
			LockOwner:    NewLockOwner(in.LockOwner),
		}

	case fusekernel.OpReleasedir:
		in := (*fusekernel.ReleaseIn)(m.Consume(unsafe.Sizeof(fusekernel.ReleaseIn{})))
		if in == nil {
			return nil, truncated()
		}
		op = &ReleaseDirHandleOp{Handle: HandleID(in.Fh)}

	case fusekernel.OpFsync:
		in := (*fusekernel.FsyncIn)(m.Consume(unsafe.Sizeof(fusekernel.FsyncIn{})))
		if in == nil {
			return nil, truncated()
		}
		op = &SyncFileOp{
			Handle:   HandleID(in.Fh),
			Datasync: in.FsyncFlags&fusekernel.FsyncFdatasync != 0,
		}

	case fusekernel.OpFsyncdir:
		in := (*fusekernel.FsyncIn)(m.Consume(unsafe.Sizeof(fusekernel.FsyncIn{})))
		if in == nil {
			return nil, truncated()
		}
		op = &SyncDirOp{
			Handle:   HandleID(in.Fh),
			Datasync: in.FsyncFlags&fusekernel.FsyncFdatasync != 0,
		}

	case fusekernel.OpFlush:
		in := (*fusekernel.FlushIn)(m.Consume(unsafe.Sizeof(fusekernel.FlushIn{})))
		if in == nil {
			return nil, truncated()
		}
		op = &FlushFileOp{
			Handle:    HandleID(in.Fh),
			LockOwner: NewLockOwner(in.LockOwner),
		}

	case fusekernel.OpReadlink:
		op = &ReadSymlinkOp{}

	case fusekernel.OpStatfs:
		op = &StatFSOp{}

	case fusekernel.OpSetxattr:
		in := (*fusekernel.SetxattrIn)(m.Consume(unsafe.Sizeof(fusekernel.SetxattrIn{})))
		if in == nil {
			return nil, truncated()
		}
		name, ok := m.ConsumeString()
		if !ok {
			return nil, truncated()
		}
		value := m.ConsumeBytes(uintptr(in.Size))
		if value == nil {
			return nil, truncated()
		}
		op = &SetXattrOp{
			Name:  name,
			Value: value,
			Flags: in.Flags,
		}

	case fusekernel.OpGetxattr:
		in := (*fusekernel.GetxattrIn)(m.Consume(unsafe.Sizeof(fusekernel.GetxattrIn{})))
		if in == nil {
			return nil, truncated()
		}
		name, ok := m.ConsumeString()
		if !ok {
			return nil, truncated()
		}
		op = &GetXattrOp{
			Name: name,
			Size: in.Size,
		}

	case fusekernel.OpListxattr:
		in := (*fusekernel.GetxattrIn)(m.Consume(unsafe.Sizeof(fusekernel.GetxattrIn{})))
		if in == nil {
			return nil, truncated()
		}
		op = &ListXattrOp{Size: in.Size}

	case fusekernel.OpRemovexattr:
		name, ok := m.ConsumeString()
		if !ok {
			return nil, truncated()
		}
		op = &RemoveXattrOp{Name: name}

	case fusekernel.OpAccess:
		in := (*fusekernel.AccessIn)(m.Consume(unsafe.Sizeof(fusekernel.AccessIn{})))
		if in == nil {
			return nil, truncated()
		}
		op = &AccessOp{Mask: in.Mask}

	case fusekernel.OpGetlk:
		in := (*fusekernel.LkIn)(m.Consume(fusekernel.LkInSize(protocol)))
		if in == nil {
			return nil, truncated()
		}
		op = &GetLockOp{
			Handle: HandleID(in.Fh),
			Owner:  NewLockOwner(in.Owner),
			Lock:   convertLock(&in.Lk),
		}

	case fusekernel.OpSetlk, fusekernel.OpSetlkw:
		in := (*fusekernel.LkIn)(m.Consume(fusekernel.LkInSize(protocol)))
		if in == nil {
			return nil, truncated()
		}
		to := &SetLockOp{
			Handle: HandleID(in.Fh),
			Owner:  NewLockOwner(in.Owner),
			Lock:   convertLock(&in.Lk),
			Sleep:  opcode == fusekernel.OpSetlkw,
		}
		if protocol.HasReadWriteFlags() {
			to.Flock = in.LkFlags&fusekernel.LkFlock != 0
		}
		op = to

	case fusekernel.OpBmap:
		in := (*fusekernel.BmapIn)(m.Consume(unsafe.Sizeof(fusekernel.BmapIn{})))
		if in == nil {
			return nil, truncated()
		}
		op = &BmapOp{
			Block:     in.Block,
			BlockSize: in.BlockSize,
		}

	case fusekernel.OpFallocate:
		in := (*fusekernel.FallocateIn)(m.Consume(unsafe.Sizeof(fusekernel.FallocateIn{})))
		if in == nil {
			return nil, truncated()
		}
		op = &FallocateOp{
			Handle: HandleID(in.Fh),
			Offset: in.Offset,
			Length: in.Length,
			Mode:   in.Mode,
		}

	case fusekernel.OpLseek:
		in := (*fusekernel.LseekIn)(m.Consume(unsafe.Sizeof(fusekernel.LseekIn{})))
		if in == nil {
			return nil, truncated()
		}
		op = &LseekOp{
			Handle: HandleID(in.Fh),
			Offset: in.Offset,
			Whence: in.Whence,
		}

	case fusekernel.OpCopyFileRange:
		in := (*fusekernel.CopyFileRangeIn)(m.Consume(unsafe.Sizeof(fusekernel.CopyFileRangeIn{})))
		if in == nil {
			return nil, truncated()
		}
		op = &CopyFileRangeOp{
			SrcHandle: HandleID(in.FhIn),
			SrcOffset: in.OffIn,
			DstInode:  InodeID(in.NodeidOut),
			DstHandle: HandleID(in.FhOut),
			DstOffset: in.OffOut,
			Length:    in.Len,
			Flags:     in.Flags,
		}

	case fusekernel.OpIoctl:
		in := (*fusekernel.IoctlIn)(m.Consume(unsafe.Sizeof(fusekernel.IoctlIn{})))
		if in == nil {
			return nil, truncated()
		}
		input := m.ConsumeBytes(uintptr(in.InSize))
		if input == nil {
			return nil, truncated()
		}
		op = &IoctlOp{
			Handle:       HandleID(in.Fh),
			Unrestricted: in.Flags&fusekernel.IoctlUnrestricted != 0,
			Cmd:          in.Cmd,
			Arg:          in.Arg,
			Input:        input,
			OutSize:      in.OutSize,
		}

	case fusekernel.OpInterrupt:
		in := (*fusekernel.InterruptIn)(m.Consume(unsafe.Sizeof(fusekernel.InterruptIn{})))
		if in == nil {
			return nil, truncated()
		}
		op = &InterruptOp{Target: RequestID(in.Unique)}

	case fusekernel.OpPoll:
		op = &PollOp{}

	case fusekernel.OpNotifyReply:
		op = &NotifyReplyOp{}

	case fusekernel.OpCuseInit:
		op = &CuseInitOp{}

	default:
		if convertPlatform != nil {
			var err error
			op, err = convertPlatform(m, protocol)
			if err != nil {
				return nil, err
			}
		}
		if op == nil {
			return nil, &UnknownOpcodeError{Opcode: opcode}
		}
	}

	type headerSetter interface {
		setHeader(h *fusekernel.InHeader)
	}
	op.(headerSetter).setHeader(h)

	return op, nil
}

func convertSetattr(
	in *fusekernel.SetattrIn,
	protocol fusekernel.Protocol) *SetInodeAttributesOp {
	to := &SetInodeAttributesOp{}
	valid := in.Valid

	if valid.Handle() {
		h := HandleID(in.Fh)
		to.Handle = &h
	}

	if valid.Size() {
		to.Size = &in.Size
	}

	if valid.Mode() {
		mode := ConvertKernelMode(in.Mode)
		to.Mode = &mode
	}

	if valid.Uid() {
		to.Uid = &in.Uid
	}

	if valid.Gid() {
		to.Gid = &in.Gid
	}

	// "Now" variants are resolved here so that file systems see a concrete
	// time either way.
	now := time.Now()

	if valid.AtimeNow() {
		to.Atime = &now
	} else if valid.Atime() {
		t := time.Unix(int64(in.Atime), int64(in.AtimeNsec))
		to.Atime = &t
	}

	if valid.MtimeNow() {
		to.Mtime = &now
	} else if valid.Mtime() {
		t := time.Unix(int64(in.Mtime), int64(in.MtimeNsec))
		to.Mtime = &t
	}

	if protocol.HasSetattrCtime() && valid.Ctime() {
		t := time.Unix(int64(in.Ctime), int64(in.CtimeNsec))
		to.Ctime = &t
	}

	if valid.LockOwner() {
		o := NewLockOwner(in.LockOwner)
		to.LockOwner = &o
	}

	return to
}

func convertLock(lk *fusekernel.FileLock) FileLock {
	return FileLock{
		Start: lk.Start,
		End:   lk.End,
		Type:  lk.Type,
		Pid:   lk.Pid,
	}
}
