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

	"github.com/emberfs/fuse/internal/fusekernel"
)

// A 64-bit number used to uniquely identify a file or directory in the file
// system. File systems may mint inode IDs with any value except for
// RootInodeID.
//
// This corresponds to struct inode::i_no in the VFS layer.
type InodeID uint64

// A distinguished inode ID that identifies the root of the file system, e.g.
// in a request to OpenDir or LookUpInode. Unlike all other inode IDs, which
// are minted by the file system, the FUSE VFS layer may send a request for
// this ID without the file system ever having referenced it in a previous
// response.
const RootInodeID = 1

func init() {
	// Make sure the constant above is correct. We do this at runtime rather
	// than defining the constant in terms of fusekernel.RootID so that the
	// constant can be untyped and can therefore more easily be used as an
	// array index.
	if RootInodeID != fusekernel.RootID {
		panic(
			fmt.Sprintf(
				"Oops, RootInodeID is wrong: %v vs. %v",
				RootInodeID,
				fusekernel.RootID))
	}
}

// A unique ID assigned by the kernel to an in-flight request. The kernel
// reuses an ID only after the request carrying it has been answered, so at
// any moment each ID identifies at most one request.
type RequestID uint64

// A generation number for an inode. Irrelevant for file systems that won't
// be exported over NFS. For those that will and that reuse inode IDs when
// they become free, the generation number must change when an ID is reused.
//
// This corresponds to struct inode::i_generation in the VFS layer.
type GenerationNumber uint64

// An opaque 64-bit number used to identify a particular open handle to a
// file or directory.
//
// This corresponds to fuse_file_info::fh.
type HandleID uint64

// An offset into an open directory handle. This is opaque to FUSE, and can
// be used for whatever purpose the file system desires. See notes on
// ReadDirOp.Offset for details.
type DirOffset uint64

// An opaque identity for the owner of a set of file locks, as reported by
// the kernel alongside lock and release requests. Lock owners can be
// compared and printed, but the raw kernel value cannot be recovered;
// arbitrary integers do not designate owners until wrapped explicitly.
type LockOwner struct {
	v uint64
}

// NewLockOwner wraps a raw owner value reported by the kernel.
func NewLockOwner(v uint64) LockOwner {
	return LockOwner{v: v}
}

func (o LockOwner) String() string {
	return fmt.Sprintf("LockOwner(%#x)", o.v)
}

// A POSIX record lock on a byte range of a file, as carried by getlk and
// setlk requests. Type is one of the F_RDLCK, F_WRLCK and F_UNLCK values
// from the C library.
type FileLock struct {
	// The range locked or queried. End is inclusive, following the kernel's
	// convention; a lock to the end of the file has End math.MaxUint64.
	Start uint64
	End   uint64

	Type uint32

	// The ID of the process blocking a queried lock, reported back to the
	// kernel for getlk.
	Pid uint32
}

// Attributes for a file or directory inode. Corresponds to struct inode.
type InodeAttributes struct {
	Size uint64

	// The number of incoming hard links to this inode.
	Nlink uint32

	// The mode of the inode, including the type bits. This is exposed to the
	// user in e.g. the result of fstat(2).
	Mode os.FileMode

	// The device number, for device special files.
	Rdev uint32

	// The preferred I/O block size. Zero means the kernel's default.
	// Reported to kernels speaking protocol 7.9 and newer.
	BlockSize uint32

	// Time information. See `man 2 stat` for full details.
	Atime  time.Time // Time of last access
	Mtime  time.Time // Time of last modification
	Ctime  time.Time // Time of last modification to inode
	Crtime time.Time // Time of creation (OS X only)

	// Ownership information
	Uid uint32
	Gid uint32

	// chflags(2) flags (OS X only).
	Flags uint32
}

func (a *InodeAttributes) DebugString() string {
	return fmt.Sprintf(
		"%d %d %v %d %d",
		a.Size,
		a.Nlink,
		a.Mode,
		a.Uid,
		a.Gid)
}

// Information about a child inode within its parent directory. Shared by
// the replies for LookUpInode, MkDir, CreateFile, etc. Consumed by the
// kernel in order to set up a dcache entry.
type ChildInodeEntry struct {
	// The ID of the child inode. The file system must ensure that the
	// returned inode ID remains valid until a later call to ForgetInode.
	Child InodeID

	// A generation number for this incarnation of the inode with the given
	// ID. See comments on type GenerationNumber for more.
	Generation GenerationNumber

	// Current attributes for the child inode.
	//
	// When creating a new inode, the file system is responsible for
	// initializing and recording (where supported) attributes like time
	// information, ownership information, etc. Ownership information in
	// particular must be set to something reasonable or by default root will
	// own everything and unprivileged users won't be able to do anything
	// useful.
	Attributes InodeAttributes

	// The time at which the attributes returned here, cached by the kernel
	// in the struct inode, should be re-queried. Leave at the zero value to
	// disable caching.
	AttributesExpiration time.Time

	// The time until which the kernel may maintain its dcache entry mapping
	// the name to the child inode, without re-issuing LookUpInode. Leave at
	// the zero value to disable caching.
	//
	// Beware: this value is ignored by the kernel for negative dcache
	// entries, since this struct conveys no way to express them.
	EntryExpiration time.Time
}

// ConvertExpirationTime converts an absolute cache expiration time to the
// relative seconds and nanoseconds form the kernel consumes.
//
// The kernel represents these durations as unsigned counts, so negative
// durations are right out; an expiration in the past becomes zero. There is
// no need to cap the positive magnitude, because 2^64 seconds is longer
// than anyone will wait.
func ConvertExpirationTime(t time.Time) (sec uint64, nsec uint32) {
	d := time.Until(t)
	if d <= 0 {
		return
	}

	sec = uint64(d / time.Second)
	nsec = uint32(d % time.Second)
	return
}

// PackChildInodeEntry fills in the kernel's packed lookup result from the
// supplied entry.
func PackChildInodeEntry(e *ChildInodeEntry, out *fusekernel.EntryOut) {
	out.Nodeid = uint64(e.Child)
	out.Generation = uint64(e.Generation)
	out.EntryValid, out.EntryValidNsec = ConvertExpirationTime(e.EntryExpiration)
	out.AttrValid, out.AttrValidNsec = ConvertExpirationTime(e.AttributesExpiration)
	PackAttributes(e.Child, &e.Attributes, &out.Attr)
}

// PackAttributes fills in the kernel's packed attribute layout from the
// supplied attributes.
func PackAttributes(inode InodeID, a *InodeAttributes, out *fusekernel.Attr) {
	out.Ino = uint64(inode)
	out.Size = a.Size
	out.Blocks = (a.Size + 511) / 512
	out.Atime = uint64(a.Atime.Unix())
	out.AtimeNsec = uint32(a.Atime.Nanosecond())
	out.Mtime = uint64(a.Mtime.Unix())
	out.MtimeNsec = uint32(a.Mtime.Nanosecond())
	out.Ctime = uint64(a.Ctime.Unix())
	out.CtimeNsec = uint32(a.Ctime.Nanosecond())
	out.Mode = ConvertGoMode(a.Mode)
	out.Nlink = a.Nlink
	out.Uid = a.Uid
	out.Gid = a.Gid
	out.Rdev = a.Rdev
	out.Blksize = a.BlockSize

	// No-ops except on OS X.
	out.SetCrtime(uint64(a.Crtime.Unix()), uint32(a.Crtime.Nanosecond()))
	out.SetFlags(a.Flags)
}

// UnpackAttributes recovers attributes from the kernel's packed layout.
// The inverse of PackAttributes, up to timestamp granularity.
func UnpackAttributes(in *fusekernel.Attr) (a InodeAttributes) {
	a.Size = in.Size
	a.Nlink = in.Nlink
	a.Mode = ConvertKernelMode(in.Mode)
	a.Rdev = in.Rdev
	a.BlockSize = in.Blksize
	a.Atime = time.Unix(int64(in.Atime), int64(in.AtimeNsec))
	a.Mtime = time.Unix(int64(in.Mtime), int64(in.MtimeNsec))
	a.Ctime = time.Unix(int64(in.Ctime), int64(in.CtimeNsec))
	a.Uid = in.Uid
	a.Gid = in.Gid
	return
}
