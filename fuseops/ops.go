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

// Package fuseops contains the typed operations decoded from raw kernel
// request messages, one struct per supported opcode.
//
// Each op is a view into the request buffer it was decoded from: byte slice
// fields such as names and write payloads alias the buffer rather than
// copying it. The views are therefore valid only until the request is
// answered; a file system that wants to retain such data past that point
// must copy it out explicitly.
package fuseops

import (
	"os"
	"time"

	"github.com/emberfs/fuse/internal/fusekernel"
)

// Op is implemented by all of the operation structs in this package. Use a
// type switch to dispatch on the concrete type.
type Op interface {
	// Header returns the fixed kernel header of the request this op was
	// decoded from.
	Header() OpHeader
}

////////////////////////////////////////////////////////////////////////
// Session lifecycle
////////////////////////////////////////////////////////////////////////

// Sent once when mounting the file system. It must be answered successfully
// in order for the mount to succeed; no other op is dispatched before it.
type InitOp struct {
	commonOp

	// The protocol version spoken by the kernel.
	Kernel fusekernel.Protocol

	// The maximum readahead the kernel proposes.
	MaxReadahead uint32

	// The capability flags the kernel supports.
	Flags fusekernel.InitFlags
}

// Sent once when unmounting the file system. No op is dispatched after it.
type DestroyOp struct {
	commonOp
}

////////////////////////////////////////////////////////////////////////
// Inodes
////////////////////////////////////////////////////////////////////////

// Look up a child by name within a parent directory. The kernel sends this
// when resolving user paths to dentry structs, which are then cached.
//
// The parent directory is identified by Header().Inode.
type LookUpInodeOp struct {
	commonOp

	// The name of the child of interest, relative to the parent. For example,
	// in this directory structure:
	//
	//     foo/
	//         bar/
	//             baz
	//
	// the file system may receive a request to look up the child named "bar"
	// for the parent foo/.
	//
	// The bytes alias the request buffer.
	Name []byte
}

// Refresh the attributes for an inode whose ID was previously returned in a
// LookUpInodeOp. The kernel sends this when the FUSE VFS layer's cache of
// inode attributes is stale.
type GetInodeAttributesOp struct {
	commonOp

	// The handle the attributes are being requested through, if any. Nil
	// when the request did not come through an open file.
	Handle *HandleID
}

// Change attributes for an inode.
//
// The kernel sends this for obvious cases like chmod(2), and for less
// obvious cases like ftruncate(2).
type SetInodeAttributesOp struct {
	commonOp

	// The handle through which the change was requested, if any.
	Handle *HandleID

	// The attributes to modify. Fields that are nil need no change.
	Size  *uint64
	Mode  *os.FileMode
	Uid   *uint32
	Gid   *uint32
	Atime *time.Time
	Mtime *time.Time

	// An explicit ctime to set. Only sent by kernels speaking protocol 7.23
	// or newer.
	Ctime *time.Time

	// The owner whose lock state prompted a truncate, when the kernel
	// reports one.
	LockOwner *LockOwner
}

// Forget an inode ID previously issued, e.g. by LookUpInode or MkDir. The
// kernel sends this when evicting an inode from its internal caches, and
// expects no reply.
type ForgetInodeOp struct {
	commonOp

	// The number of lookups to forget. The inode may be dropped when the
	// count of lookup replies naming it reaches zero.
	N uint64
}

// A single entry within a BatchForgetOp.
type BatchForgetEntry struct {
	// The inode whose lookup count is being decremented.
	Inode InodeID

	// The number of lookups to forget.
	N uint64
}

// Forget lookup counts for multiple inodes at once, with no reply. Sent
// only by kernels speaking protocol 7.16 or newer; older kernels send a
// stream of ForgetInodeOps instead.
type BatchForgetOp struct {
	commonOp

	// Entries to forget. The slice aliases the request buffer.
	Entries []BatchForgetEntry
}

////////////////////////////////////////////////////////////////////////
// Inode creation
////////////////////////////////////////////////////////////////////////

// Create a directory inode as a child of an existing directory inode,
// identified by Header().Inode. The kernel sends this in response to a
// mkdir(2) call.
type MkDirOp struct {
	commonOp

	// The name of the child to create, and the mode with which to create it.
	// The name aliases the request buffer.
	Name []byte
	Mode os.FileMode

	// The umask of the calling process. Zero when the kernel speaks a
	// protocol older than 7.12.
	Umask os.FileMode
}

// Create a file, device, fifo or socket inode as a child of the directory
// identified by Header().Inode, without opening it. The kernel sends this
// in response to a mknod(2) call, and for regular files when the file
// system does not support the atomic CreateFileOp.
type MkNodeOp struct {
	commonOp

	// The name of the child to create, and the mode with which to create it,
	// including the file type bits. The name aliases the request buffer.
	Name []byte
	Mode os.FileMode

	// The device number, for device special files.
	Rdev uint32

	// The umask of the calling process. Zero when the kernel speaks a
	// protocol older than 7.12.
	Umask os.FileMode
}

// Create a file inode and open it, atomically.
//
// The kernel sends this when the user asks to open a file with the O_CREAT
// flag and the kernel has observed that the file doesn't exist. However the
// official fuse documentation is less than encouraging about whether all
// kernels make this check in all cases, so file systems would be smart to
// be paranoid and check themselves, returning EEXIST when the file already
// exists.
type CreateFileOp struct {
	commonOp

	// The name of the child to create, and the mode with which to create it.
	// The name aliases the request buffer.
	Name []byte
	Mode os.FileMode

	// Flags for the open operation, in the open(2) sense.
	Flags uint32

	// The umask of the calling process. Zero when the kernel speaks a
	// protocol older than 7.12.
	Umask os.FileMode
}

// Create a symlink inode as a child of the directory identified by
// Header().Inode.
type CreateSymlinkOp struct {
	commonOp

	// The name of the symlink to create. Aliases the request buffer.
	Name []byte

	// The target of the symlink. Aliases the request buffer.
	Target []byte
}

// Create a hard link to an existing inode, under the directory identified
// by Header().Inode.
type CreateLinkOp struct {
	commonOp

	// The inode being linked to.
	Target InodeID

	// The name of the new link. Aliases the request buffer.
	Name []byte
}

// Rename a file or directory from one parent directory to another,
// atomically replacing any existing entry at the destination unless Flags
// says otherwise.
//
// The old parent is identified by Header().Inode.
type RenameOp struct {
	commonOp

	// The old name, within the old parent. Aliases the request buffer.
	OldName []byte

	// The new parent directory, and the new name within it. The name aliases
	// the request buffer.
	NewParent InodeID
	NewName   []byte

	// renameat2(2) flags (RENAME_NOREPLACE, RENAME_EXCHANGE, ...). Always
	// zero for plain rename requests; may be non-zero only when the kernel
	// speaks protocol 7.23 or newer.
	Flags uint32
}

////////////////////////////////////////////////////////////////////////
// Unlinking
////////////////////////////////////////////////////////////////////////

// Unlink a directory from its parent, identified by Header().Inode.
// Because directories cannot have a link count above one, this means the
// directory inode should be deleted as well once the kernel sends
// ForgetInodeOp.
//
// The file system is responsible for checking that the directory is empty.
type RmDirOp struct {
	commonOp

	// The name of the directory being removed. Aliases the request buffer.
	Name []byte
}

// Unlink a file from its parent, identified by Header().Inode. If this
// brings the inode's link count to zero, the inode should be deleted once
// the kernel sends ForgetInodeOp. It may still be referenced before then if
// a user still has the file open.
type UnlinkOp struct {
	commonOp

	// The name of the file being removed. Aliases the request buffer.
	Name []byte
}

////////////////////////////////////////////////////////////////////////
// Directory handles
////////////////////////////////////////////////////////////////////////

// Open the directory inode identified by Header().Inode.
//
// On Linux the kernel sends this when setting up a struct file for a
// particular inode with type directory, usually in response to an open(2)
// call from a user-space process. On OS X it may not be sent for every
// open(2).
type OpenDirOp struct {
	commonOp

	// Mode and option flags, in the open(2) sense.
	Flags uint32
}

// Read entries from a directory previously opened with OpenDir.
type ReadDirOp struct {
	commonOp

	// The handle previously returned for this directory by OpenDir.
	Handle HandleID

	// The offset within the directory at which to read.
	//
	// Warning: this field is not necessarily a count of bytes. Its legal
	// values are defined by the offsets attached to the entries the file
	// system itself returned from earlier reads of this handle: the kernel
	// resumes iteration by echoing back the offset of the last entry it
	// consumed, and a zero offset means the start of a fresh view.
	//
	// FUSE offers no way to intercept directory seeks, so seekdir and
	// rewinddir cannot be made to fail. Luckily POSIX is vague about what
	// the user sees after seeking backwards, and only requires that
	// rewinddir results in something that looks like a newly-opened
	// directory. File systems may e.g. cache an entire fresh listing for
	// each read with a zero offset and return array offsets into that
	// cached listing.
	Offset DirOffset

	// The maximum number of bytes of packed entries to return. A smaller
	// number is acceptable; an empty reply indicates the end of the
	// directory.
	Size int
}

// Read entries from a directory, each combined with the attribute and
// lookup information LookUpInode would have returned for it. Sent instead
// of ReadDirOp by kernels speaking protocol 7.21 and newer when the file
// system has advertised support.
//
// Each entry returned counts as a lookup of its inode, to be balanced by a
// later ForgetInodeOp, except for entries named "." and "..".
type ReadDirPlusOp struct {
	commonOp

	// The handle previously returned for this directory by OpenDir.
	Handle HandleID

	// See notes on ReadDirOp.Offset.
	Offset DirOffset

	// The maximum number of bytes of packed entries to return.
	Size int
}

// Release a previously-minted directory handle. The kernel sends this when
// there are no more references to an open directory: all file descriptors
// are closed and all memory mappings are unmapped.
//
// The kernel guarantees that the handle ID will not be used in further ops
// sent to the file system (unless it is reissued by the file system).
type ReleaseDirHandleOp struct {
	commonOp

	// The handle ID to be released.
	Handle HandleID
}

// Synchronize the contents of a directory to storage. Sent by fsync(2) on a
// directory file descriptor.
type SyncDirOp struct {
	commonOp

	// The directory handle being synced.
	Handle HandleID

	// If set, only the directory contents need be flushed, not its metadata.
	Datasync bool
}

////////////////////////////////////////////////////////////////////////
// File handles
////////////////////////////////////////////////////////////////////////

// Open the file inode identified by Header().Inode.
//
// On Linux the kernel sends this when setting up a struct file for a
// particular inode with type file, usually in response to an open(2) call
// from a user-space process. On OS X it may not be sent for every open(2).
type OpenFileOp struct {
	commonOp

	// Mode and option flags, in the open(2) sense.
	Flags uint32
}

// Read data from a file previously opened with CreateFile or OpenFile.
//
// Note that this op is not sent for every call to read(2) by the end user;
// some reads may be served by the page cache.
//
// The FUSE documentation requires that exactly the number of bytes
// requested be returned, except in the case of EOF or error. The kernel
// appears to understand where EOF is by checking the inode size returned by
// a previous call to LookUpInode, GetInodeAttributes, etc.
type ReadFileOp struct {
	commonOp

	// The handle previously returned for this file by CreateFile or
	// OpenFile.
	Handle HandleID

	// The range of the file to read.
	Offset int64
	Size   int

	// The owner of locks held on the file by the reading process, when the
	// kernel reports one (protocol 7.9 and newer).
	LockOwner *LockOwner
}

// Write data to a file previously opened with CreateFile or OpenFile.
//
// When the user writes data using write(2), the write goes into the page
// cache and the page is marked dirty. Later the kernel may write back the
// page via the FUSE VFS layer, causing this op to be sent. For cache
// writeback the credentials in the header are those of the flusher thread,
// not the writing process.
//
// The FUSE documentation requires that exactly the number of bytes supplied
// be written, except on error.
type WriteFileOp struct {
	commonOp

	// The handle previously returned for this file by CreateFile or
	// OpenFile.
	Handle HandleID

	// The offset at which to write. Writing past the current end of the file
	// extends it; writing beyond it fills the gap with null bytes.
	Offset int64

	// The data to write. Aliases the request buffer.
	Data []byte

	// Set when the write is a delayed page cache writeback rather than a
	// direct write by a user process.
	CacheWriteback bool

	// The owner of locks held on the file by the writing process, when the
	// kernel reports one (protocol 7.9 and newer).
	LockOwner *LockOwner
}

// Synchronize the current contents of an open file to storage, as called
// for by fsync(2) and fdatasync(2).
//
// See also: FlushFileOp, which may perform a similar function when closing
// a file.
type SyncFileOp struct {
	commonOp

	// The handle being synced.
	Handle HandleID

	// If set, only the file contents need be flushed, not the metadata.
	Datasync bool
}

// Flush the current state of an open file to storage upon closing a file
// descriptor.
//
// vfs.txt documents this as being sent for each close(2) system call, but
// note that it is also sent in other contexts where a file descriptor is
// closed, such as dup2(2). In the case of close(2) a flush error is
// returned to the user; for dup2(2) it is not.
//
// Because of cases like dup2(2), FlushFileOps are not necessarily one to
// one with OpenFileOps. They should not be used for reference counting, and
// the handle must remain valid even after the flush (use
// ReleaseFileHandleOp for disposing of it).
//
// Typical "real" file systems do not implement this, relying on the kernel
// to write out the page cache to the block device eventually. A file system
// that writes to remote storage probably wants to at least schedule a real
// flush, and maybe do it immediately in order to return any errors that
// occur.
type FlushFileOp struct {
	commonOp

	// The handle being flushed.
	Handle HandleID

	// The owner whose locks on the file should be released with this flush.
	LockOwner LockOwner
}

// Release a previously-minted file handle. The kernel sends this when there
// are no more references to an open file: all file descriptors are closed
// and all memory mappings are unmapped.
//
// The kernel guarantees that the handle ID will not be used in further
// calls to the file system (unless it is reissued by the file system).
type ReleaseFileHandleOp struct {
	commonOp

	// The handle ID to be released.
	Handle HandleID

	// The flags the file was opened with.
	Flags uint32

	// Set when the owner's flock locks should be released along with the
	// handle (protocol 7.17 and newer).
	FlockRelease bool

	// The owner whose locks should be released when FlockRelease is set.
	LockOwner LockOwner
}

////////////////////////////////////////////////////////////////////////
// Symlinks
////////////////////////////////////////////////////////////////////////

// Read the target of the symlink inode identified by Header().Inode.
type ReadSymlinkOp struct {
	commonOp
}

////////////////////////////////////////////////////////////////////////
// eXtended attributes
////////////////////////////////////////////////////////////////////////

// Remove an extended attribute from the inode identified by
// Header().Inode, as called for by removexattr(2).
type RemoveXattrOp struct {
	commonOp

	// The name of the attribute. Aliases the request buffer.
	Name []byte
}

// Get an extended attribute of the inode identified by Header().Inode, as
// called for by getxattr(2).
type GetXattrOp struct {
	commonOp

	// The name of the attribute. Aliases the request buffer.
	Name []byte

	// The maximum number of value bytes the caller's buffer can hold. When
	// zero the caller is probing for the value's size, and the reply should
	// carry the size rather than the data.
	Size uint32
}

// List the names of the extended attributes of the inode identified by
// Header().Inode, as called for by listxattr(2).
type ListXattrOp struct {
	commonOp

	// The maximum number of bytes the caller's buffer can hold. When zero
	// the caller is probing for the list's size.
	Size uint32
}

// Set an extended attribute on the inode identified by Header().Inode, as
// called for by setxattr(2).
type SetXattrOp struct {
	commonOp

	// The name and value of the attribute. Both alias the request buffer.
	Name  []byte
	Value []byte

	// setxattr(2) flags: XATTR_CREATE, XATTR_REPLACE, or zero.
	Flags uint32
}

////////////////////////////////////////////////////////////////////////
// Locking
////////////////////////////////////////////////////////////////////////

// Test for the existence of a POSIX record lock on the inode identified by
// Header().Inode, as called for by fcntl(2) with F_GETLK.
type GetLockOp struct {
	commonOp

	// The handle the query came through, and the identity of the would-be
	// lock owner.
	Handle HandleID
	Owner  LockOwner

	// The lock being queried. The reply reports the first conflicting lock,
	// or a lock of type F_UNLCK if none conflicts.
	Lock FileLock
}

// Acquire, modify or release a lock on the inode identified by
// Header().Inode, as called for by fcntl(2) with F_SETLK or F_SETLKW and
// by flock(2).
type SetLockOp struct {
	commonOp

	// The handle the request came through, and the identity of the lock
	// owner.
	Handle HandleID
	Owner  LockOwner

	// The lock to acquire or release.
	Lock FileLock

	// If set, the caller is willing to block until the lock can be taken
	// (F_SETLKW); the reply may be deferred until then.
	Sleep bool

	// Set when the request is an flock(2)-style whole-file lock rather than
	// a POSIX record lock (protocol 7.9 and newer).
	Flock bool
}

////////////////////////////////////////////////////////////////////////
// Miscellaneous
////////////////////////////////////////////////////////////////////////

// Report file system statistics, as called for by statfs(2).
type StatFSOp struct {
	commonOp
}

// Check whether the calling process may access the inode identified by
// Header().Inode with the supplied mask, as called for by access(2).
//
// Not sent when the file system mounts with the default_permissions
// option, in which case the kernel performs the check itself.
type AccessOp struct {
	commonOp

	// The access mask being tested, in the access(2) sense.
	Mask uint32
}

// Map a block index within the file identified by Header().Inode to a
// device block number. Only makes sense for block-device-backed file
// systems.
type BmapOp struct {
	commonOp

	// The block index to map, in units of BlockSize.
	Block     uint64
	BlockSize uint32
}

// Preallocate or deallocate space for the open file identified by Handle,
// as called for by fallocate(2). Sent only by kernels speaking protocol
// 7.19 or newer.
type FallocateOp struct {
	commonOp

	// The handle previously returned for this file.
	Handle HandleID

	// The range to operate on.
	Offset uint64
	Length uint64

	// fallocate(2) mode flags (FALLOC_FL_KEEP_SIZE, FALLOC_FL_PUNCH_HOLE,
	// ...).
	Mode uint32
}

// Reposition the offset of the open file identified by Handle, as called
// for by lseek(2) with SEEK_DATA or SEEK_HOLE. Sent only by kernels
// speaking protocol 7.24 or newer.
type LseekOp struct {
	commonOp

	// The handle previously returned for this file.
	Handle HandleID

	// The starting offset and whence value of the seek.
	Offset uint64
	Whence uint32
}

// Copy a range of data from one open file to another without passing it
// through the client, as called for by copy_file_range(2). Sent only by
// kernels speaking protocol 7.28 or newer.
type CopyFileRangeOp struct {
	commonOp

	// The source file, identified by the handle and the inode in the
	// header, and the offset within it.
	SrcHandle HandleID
	SrcOffset uint64

	// The destination file and the offset within it.
	DstInode  InodeID
	DstHandle HandleID
	DstOffset uint64

	// The number of bytes to copy, and copy_file_range(2) flags.
	Length uint64
	Flags  uint64
}

// An ioctl(2) on the open file identified by Handle. Unrestricted ioctls,
// whose argument layout the kernel cannot describe, are refused with
// ENOSYS during dispatch and never reach the file system.
type IoctlOp struct {
	commonOp

	// The handle the ioctl came through.
	Handle HandleID

	// Set when the kernel cannot vouch for the argument layout. Dispatch
	// refuses such requests.
	Unrestricted bool

	// The ioctl command and its raw argument word.
	Cmd uint32
	Arg uint64

	// Input data copied in from the caller. Aliases the request buffer.
	Input []byte

	// The maximum number of output bytes the kernel will accept.
	OutSize uint32
}

// The kernel asks us to cancel the in-flight request identified by
// Target. Answered with ENOSYS during dispatch: cancellation would require
// a registry of in-flight requests that this engine does not keep, and the
// kernel treats ENOSYS as "the server does not support interrupts" and
// stops sending them.
type InterruptOp struct {
	commonOp

	// The unique ID of the request to cancel.
	Target RequestID
}

// Poll for I/O readiness on an open file. Refused with ENOSYS during
// dispatch.
type PollOp struct {
	commonOp
}

// A reply to a kernel notification. Refused with ENOSYS during dispatch;
// we never send the notifications that would prompt one.
type NotifyReplyOp struct {
	commonOp
}

// A character-device CUSE session handshake. Refused with ENOSYS during
// dispatch; this engine speaks only the file system protocol.
type CuseInitOp struct {
	commonOp
}
