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

	"github.com/emberfs/fuse/fuseops"
)

// An interface that must be implemented by file systems to be mounted with
// FUSE.
//
// Each method receives a typed view of one kernel request and a single-use
// reply object, and is fully responsible for eventually completing that
// reply, synchronously or from some later execution context. Completing a
// reply twice panics; dropping one without completing it causes an EIO reply
// to be sent on the method's behalf and the omission to be logged.
//
// The operation views borrow the raw request buffer. They are valid only
// until the operation's reply is completed; an implementation that needs a
// name or data payload past that point must copy it out first.
//
// Not all methods need interesting implementations. Embed a field of type
// NotImplementedFileSystem to inherit defaults that return ENOSYS to the
// kernel.
//
// Must be safe for concurrent access via all methods.
type FileSystem interface {
	// Called once, while handling the kernel's init request. The supplied
	// config holds the negotiated protocol version and the kernel's offered
	// feature set; the implementation may tune it before the init reply is
	// built. Returning an error aborts the handshake with that error's errno.
	Init(ctx context.Context, op *fuseops.InitOp, config *KernelConfig) error

	// Called once, while handling the kernel's destroy request during unmount.
	// No further methods will be called afterward.
	Destroy()

	///////////////////////////////////
	// Inodes
	///////////////////////////////////

	// Look up a child by name within a parent directory. The kernel sends this
	// when resolving a user path to a dentry, which it then caches for up to
	// the expiration time in the reply entry.
	LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp, reply *ReplyEntry)

	// Refresh the attributes for an inode. The kernel sends this when its
	// cached attributes are stale, as controlled by the expiration time
	// returned with each entry or attribute reply.
	GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp, reply *ReplyAttr)

	// Change attributes for an inode: chmod(2), chown(2), truncate(2),
	// utimes(2) and friends. Only the non-nil fields of the op are to be
	// changed. The reply carries the attributes as they are after the change.
	SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp, reply *ReplyAttr)

	// Decrement an inode's kernel lookup count by op.N. The inode may be
	// forgotten for good once the count hits zero. This operation carries no
	// reply.
	ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp)

	// Like ForgetInode, for a batch of inodes in one message. No reply.
	BatchForget(ctx context.Context, op *fuseops.BatchForgetOp)

	///////////////////////////////////
	// Inode creation
	///////////////////////////////////

	// Create a directory as a child of an existing directory: mkdir(2).
	MkDir(ctx context.Context, op *fuseops.MkDirOp, reply *ReplyEntry)

	// Create a file, device, fifo, or socket inode: mknod(2).
	MkNode(ctx context.Context, op *fuseops.MkNodeOp, reply *ReplyEntry)

	// Create and open a regular file atomically: open(2) with O_CREAT.
	CreateFile(ctx context.Context, op *fuseops.CreateFileOp, reply *ReplyCreate)

	// Create a symlink: symlink(2).
	CreateSymlink(ctx context.Context, op *fuseops.CreateSymlinkOp, reply *ReplyEntry)

	// Create a hard link to an existing inode: link(2).
	CreateLink(ctx context.Context, op *fuseops.CreateLinkOp, reply *ReplyEntry)

	///////////////////////////////////
	// Unlinking and renaming
	///////////////////////////////////

	// Rename op.OldName in its parent to op.NewName in op.NewParent,
	// atomically replacing any existing entry with the new name (subject to
	// op.Flags on protocol 7.23 and later).
	Rename(ctx context.Context, op *fuseops.RenameOp, reply *ReplyEmpty)

	// Remove an empty directory: rmdir(2).
	RmDir(ctx context.Context, op *fuseops.RmDirOp, reply *ReplyEmpty)

	// Remove a non-directory entry from its parent: unlink(2). The inode
	// itself lives on until its lookup count drops to zero and ForgetInode is
	// sent.
	Unlink(ctx context.Context, op *fuseops.UnlinkOp, reply *ReplyEmpty)

	///////////////////////////////////
	// Directory handles
	///////////////////////////////////

	// Open a directory, issuing a handle that the kernel will quote back in
	// ReadDir and ReleaseDirHandle.
	OpenDir(ctx context.Context, op *fuseops.OpenDirOp, reply *ReplyOpen)

	// Read entries from a directory previously opened with OpenDir, starting
	// at the supplied offset. Append entries to the reply until it reports
	// that the kernel's buffer is full, then finalize it. Finalizing an empty
	// reply signals the end of the directory.
	ReadDir(ctx context.Context, op *fuseops.ReadDirOp, reply *ReplyDirectory)

	// Like ReadDir, but each record also carries the child's attributes and
	// acquires a lookup reference, saving the kernel a lookup round trip per
	// entry. Sent only when the readdirplus capability was negotiated.
	ReadDirPlus(ctx context.Context, op *fuseops.ReadDirPlusOp, reply *ReplyDirectoryPlus)

	// Release a handle issued by OpenDir, after all operations using it have
	// completed.
	ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp, reply *ReplyEmpty)

	// Flush a directory's contents to stable storage: fsync(2) on a directory
	// fd. op.Datasync means the metadata need not be flushed.
	SyncDir(ctx context.Context, op *fuseops.SyncDirOp, reply *ReplyEmpty)

	///////////////////////////////////
	// File handles
	///////////////////////////////////

	// Open a file, issuing a handle quoted back in ReadFile, WriteFile, and
	// the other handle operations. The kernel has already applied permission
	// checks when the default_permissions mount option is in effect.
	OpenFile(ctx context.Context, op *fuseops.OpenFileOp, reply *ReplyOpen)

	// Read data from a file previously opened with OpenFile. A reply shorter
	// than op.Size signals EOF to the kernel, so short reads must only happen
	// at the end of the file.
	ReadFile(ctx context.Context, op *fuseops.ReadFileOp, reply *ReplyData)

	// Write data to a file at the given offset, replying with the number of
	// bytes accepted. The kernel retries or errors the user's write(2) if the
	// count is short. op.Data borrows the request buffer; copy it out if the
	// write completes after the reply.
	WriteFile(ctx context.Context, op *fuseops.WriteFileOp, reply *ReplyWrite)

	// Flush a file's contents to stable storage: fsync(2). op.Datasync as for
	// SyncDir.
	SyncFile(ctx context.Context, op *fuseops.SyncFileOp, reply *ReplyEmpty)

	// Flush the state of an open file to storage on close(2) or dup2(2). Sent
	// once for every descriptor referring to the handle, so it may be seen
	// zero, one or many times per handle. Errors here surface directly from
	// close(2), making this the last chance to report a delayed write
	// failure.
	FlushFile(ctx context.Context, op *fuseops.FlushFileOp, reply *ReplyEmpty)

	// Release a handle issued by OpenFile or CreateFile, after all operations
	// using it have completed and every descriptor has been closed.
	ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp, reply *ReplyEmpty)

	///////////////////////////////////
	// Symlinks
	///////////////////////////////////

	// Read the target of a symlink: readlink(2). Complete the reply with the
	// target path bytes, no NUL terminator.
	ReadSymlink(ctx context.Context, op *fuseops.ReadSymlinkOp, reply *ReplyData)

	///////////////////////////////////
	// Extended attributes
	///////////////////////////////////

	// Get the value of an extended attribute: getxattr(2). When op.Size is
	// zero the caller is probing for the required size; complete with
	// reply.Size. Otherwise complete with reply.Value if the value fits in
	// op.Size bytes, or ERANGE if not. ENOATTR means the attribute does not
	// exist.
	GetXattr(ctx context.Context, op *fuseops.GetXattrOp, reply *ReplyXattr)

	// List the names of an inode's extended attributes: listxattr(2). The
	// value is the names concatenated, each NUL-terminated, with the same
	// size-probe convention as GetXattr.
	ListXattr(ctx context.Context, op *fuseops.ListXattrOp, reply *ReplyXattr)

	// Remove an extended attribute: removexattr(2).
	RemoveXattr(ctx context.Context, op *fuseops.RemoveXattrOp, reply *ReplyEmpty)

	// Set or create an extended attribute: setxattr(2), honoring the
	// XATTR_CREATE/XATTR_REPLACE semantics in op.Flags.
	SetXattr(ctx context.Context, op *fuseops.SetXattrOp, reply *ReplyEmpty)

	///////////////////////////////////
	// Locking
	///////////////////////////////////

	// Test for a POSIX record lock: fcntl(2) with F_GETLK. Complete the reply
	// with the conflicting lock, or one of type F_UNLCK if the range is free.
	GetLock(ctx context.Context, op *fuseops.GetLockOp, reply *ReplyLock)

	// Acquire or release a POSIX record or BSD flock lock: fcntl(2) with
	// F_SETLK/F_SETLKW or flock(2). op.Sleep distinguishes the blocking
	// variant. Sent only when the corresponding lock capability was
	// negotiated.
	SetLock(ctx context.Context, op *fuseops.SetLockOp, reply *ReplyEmpty)

	///////////////////////////////////
	// Miscellaneous
	///////////////////////////////////

	// Report file system totals: statfs(2).
	StatFS(ctx context.Context, op *fuseops.StatFSOp, reply *ReplyStatfs)

	// Check access to an inode: access(2). Sent only when the
	// default_permissions mount option is not in effect.
	Access(ctx context.Context, op *fuseops.AccessOp, reply *ReplyEmpty)

	// Map a block index within a file to a device block number, for FIBMAP.
	Bmap(ctx context.Context, op *fuseops.BmapOp, reply *ReplyBmap)

	// Manipulate allocated space for a file: fallocate(2). Protocol 7.19.
	Fallocate(ctx context.Context, op *fuseops.FallocateOp, reply *ReplyEmpty)

	// Reposition within a file for SEEK_HOLE/SEEK_DATA. Protocol 7.24.
	Lseek(ctx context.Context, op *fuseops.LseekOp, reply *ReplyLseek)

	// Copy a byte range between two open files without a round trip through
	// userspace buffers: copy_file_range(2). Protocol 7.28.
	CopyFileRange(ctx context.Context, op *fuseops.CopyFileRangeOp, reply *ReplyWrite)

	// Handle a restricted ioctl on an open file. Unrestricted ioctls are
	// rejected with ENOSYS before reaching the file system.
	Ioctl(ctx context.Context, op *fuseops.IoctlOp, reply *ReplyIoctl)
}
