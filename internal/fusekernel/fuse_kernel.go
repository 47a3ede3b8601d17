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

// Package fusekernel contains a Go rendition of the kernel's FUSE wire
// interface (fuse_kernel.h): the fixed in/out headers, the per-opcode
// argument and result structs, and the protocol flag constants.
//
// Which opcodes and which struct fields are valid depends on the protocol
// minor version negotiated with the kernel during INIT. Rather than
// branching on build flags, validity is expressed at runtime: the opcode
// table records the minor version each opcode first appeared in, and the
// *Size functions report how many bytes of a struct a given Protocol
// understands. Platform-only opcodes are registered by the platform files
// in this package.
package fusekernel

import (
	"fmt"
	"syscall"
	"unsafe"
)

// The protocol version implemented by this package. The kernel may
// negotiate any minor version up to this one.
const (
	KernelVersion      = 7
	KernelMinorVersion = 31
)

// The inode ID of the root of a mounted file system. The kernel hard-codes
// this; it is never the subject of a lookup.
const RootID = 1

// The kernel requires the read buffer for the device to be at least this
// large, even if the negotiated max write is smaller.
const MinReadBuffer = 8192

// A version of the FUSE protocol, as negotiated with the kernel at INIT
// time.
type Protocol struct {
	Major uint32
	Minor uint32
}

func (p Protocol) String() string {
	return fmt.Sprintf("%d.%d", p.Major, p.Minor)
}

// LT returns true if p is strictly older than q.
func (p Protocol) LT(q Protocol) bool {
	return p.Major < q.Major ||
		(p.Major == q.Major && p.Minor < q.Minor)
}

// GE returns true if p is at least as new as q.
func (p Protocol) GE(q Protocol) bool {
	return !p.LT(q)
}

// HasAttrBlksize returns true if Attr.Blksize is meaningful (protocol 7.9).
func (p Protocol) HasAttrBlksize() bool {
	return p.GE(Protocol{7, 9})
}

// HasReadWriteFlags returns true if ReadIn and WriteIn carry the lock owner
// and open flags fields (protocol 7.9).
func (p Protocol) HasReadWriteFlags() bool {
	return p.GE(Protocol{7, 9})
}

// HasUmask returns true if MknodIn, MkdirIn and CreateIn carry the caller's
// umask (protocol 7.12).
func (p Protocol) HasUmask() bool {
	return p.GE(Protocol{7, 12})
}

// HasBackgroundTunables returns true if InitOut carries the max background
// and congestion threshold tunables (protocol 7.13).
func (p Protocol) HasBackgroundTunables() bool {
	return p.GE(Protocol{7, 13})
}

// HasSetattrCtime returns true if SetattrIn may carry an explicit ctime
// (protocol 7.23).
func (p Protocol) HasSetattrCtime() bool {
	return p.GE(Protocol{7, 23})
}

// HasTimeGran returns true if InitOut carries the timestamp granularity
// (protocol 7.23).
func (p Protocol) HasTimeGran() bool {
	return p.GE(Protocol{7, 23})
}

// HasMaxPages returns true if InitOut carries the max pages field
// (protocol 7.28).
func (p Protocol) HasMaxPages() bool {
	return p.GE(Protocol{7, 28})
}

////////////////////////////////////////////////////////////////////////
// Opcodes
////////////////////////////////////////////////////////////////////////

// An integer tag identifying which operation a kernel message requests.
type Opcode uint32

const (
	OpLookup        Opcode = 1
	OpForget        Opcode = 2 // No reply.
	OpGetattr       Opcode = 3
	OpSetattr       Opcode = 4
	OpReadlink      Opcode = 5
	OpSymlink       Opcode = 6
	OpMknod         Opcode = 8
	OpMkdir         Opcode = 9
	OpUnlink        Opcode = 10
	OpRmdir         Opcode = 11
	OpRename        Opcode = 12
	OpLink          Opcode = 13
	OpOpen          Opcode = 14
	OpRead          Opcode = 15
	OpWrite         Opcode = 16
	OpStatfs        Opcode = 17
	OpRelease       Opcode = 18
	OpFsync         Opcode = 20
	OpSetxattr      Opcode = 21
	OpGetxattr      Opcode = 22
	OpListxattr     Opcode = 23
	OpRemovexattr   Opcode = 24
	OpFlush         Opcode = 25
	OpInit          Opcode = 26
	OpOpendir       Opcode = 27
	OpReaddir       Opcode = 28
	OpReleasedir    Opcode = 29
	OpFsyncdir      Opcode = 30
	OpGetlk         Opcode = 31
	OpSetlk         Opcode = 32
	OpSetlkw        Opcode = 33
	OpAccess        Opcode = 34
	OpCreate        Opcode = 35
	OpInterrupt     Opcode = 36
	OpBmap          Opcode = 37
	OpDestroy       Opcode = 38
	OpIoctl         Opcode = 39
	OpPoll          Opcode = 40
	OpNotifyReply   Opcode = 41
	OpBatchForget   Opcode = 42
	OpFallocate     Opcode = 43
	OpReaddirplus   Opcode = 44
	OpRename2       Opcode = 45
	OpLseek         Opcode = 46
	OpCopyFileRange Opcode = 47

	OpCuseInit Opcode = 4096
)

type opcodeInfo struct {
	name string

	// The protocol minor version in which the opcode first appeared. Zero
	// for opcodes present since the beginning of protocol 7.
	minMinor uint32
}

// The capability table: one entry per opcode we know how to speak. Opcodes
// absent from the table are unknown; opcodes whose minMinor exceeds the
// negotiated minor version are treated as unknown for that session.
// Platform files may add entries in their init functions.
var opcodeTable = map[Opcode]opcodeInfo{
	OpLookup:        {"OpLookup", 0},
	OpForget:        {"OpForget", 0},
	OpGetattr:       {"OpGetattr", 0},
	OpSetattr:       {"OpSetattr", 0},
	OpReadlink:      {"OpReadlink", 0},
	OpSymlink:       {"OpSymlink", 0},
	OpMknod:         {"OpMknod", 0},
	OpMkdir:         {"OpMkdir", 0},
	OpUnlink:        {"OpUnlink", 0},
	OpRmdir:         {"OpRmdir", 0},
	OpRename:        {"OpRename", 0},
	OpLink:          {"OpLink", 0},
	OpOpen:          {"OpOpen", 0},
	OpRead:          {"OpRead", 0},
	OpWrite:         {"OpWrite", 0},
	OpStatfs:        {"OpStatfs", 0},
	OpRelease:       {"OpRelease", 0},
	OpFsync:         {"OpFsync", 0},
	OpSetxattr:      {"OpSetxattr", 0},
	OpGetxattr:      {"OpGetxattr", 0},
	OpListxattr:     {"OpListxattr", 0},
	OpRemovexattr:   {"OpRemovexattr", 0},
	OpFlush:         {"OpFlush", 0},
	OpInit:          {"OpInit", 0},
	OpOpendir:       {"OpOpendir", 0},
	OpReaddir:       {"OpReaddir", 0},
	OpReleasedir:    {"OpReleasedir", 0},
	OpFsyncdir:      {"OpFsyncdir", 0},
	OpGetlk:         {"OpGetlk", 0},
	OpSetlk:         {"OpSetlk", 0},
	OpSetlkw:        {"OpSetlkw", 0},
	OpAccess:        {"OpAccess", 0},
	OpCreate:        {"OpCreate", 0},
	OpInterrupt:     {"OpInterrupt", 0},
	OpBmap:          {"OpBmap", 0},
	OpDestroy:       {"OpDestroy", 0},
	OpIoctl:         {"OpIoctl", 11},
	OpPoll:          {"OpPoll", 11},
	OpCuseInit:      {"OpCuseInit", 12},
	OpNotifyReply:   {"OpNotifyReply", 15},
	OpBatchForget:   {"OpBatchForget", 16},
	OpFallocate:     {"OpFallocate", 19},
	OpReaddirplus:   {"OpReaddirplus", 21},
	OpRename2:       {"OpRename2", 23},
	OpLseek:         {"OpLseek", 24},
	OpCopyFileRange: {"OpCopyFileRange", 28},
}

func (o Opcode) String() string {
	if info, ok := opcodeTable[o]; ok {
		return info.name
	}
	return fmt.Sprintf("Opcode(%d)", uint32(o))
}

// Known returns true if the opcode is one this package can speak at all,
// under any protocol version.
func (o Opcode) Known() bool {
	_, ok := opcodeTable[o]
	return ok
}

// SupportedBy returns true if the opcode may legally appear on a session
// speaking the supplied protocol version.
func (o Opcode) SupportedBy(p Protocol) bool {
	info, ok := opcodeTable[o]
	return ok && p.GE(Protocol{7, info.minMinor})
}

////////////////////////////////////////////////////////////////////////
// Headers
////////////////////////////////////////////////////////////////////////

// The header that precedes every request read from the kernel.
type InHeader struct {
	Len     uint32
	Opcode  Opcode
	Unique  uint64
	Nodeid  uint64
	Uid     uint32
	Gid     uint32
	Pid     uint32
	Padding uint32
}

// The header that precedes every reply written to the kernel. Error is
// zero or the negated errno; Unique echoes the request's unique ID so the
// kernel can correlate out-of-order replies.
type OutHeader struct {
	Len    uint32
	Error  int32
	Unique uint64
}

const InHeaderSize = int(unsafe.Sizeof(InHeader{}))
const OutHeaderSize = int(unsafe.Sizeof(OutHeader{}))

////////////////////////////////////////////////////////////////////////
// Init
////////////////////////////////////////////////////////////////////////

type InitIn struct {
	Major        uint32
	Minor        uint32
	MaxReadahead uint32
	Flags        InitFlags
}

type InitOut struct {
	Major               uint32
	Minor               uint32
	MaxReadahead        uint32
	Flags               InitFlags
	MaxBackground       uint16
	CongestionThreshold uint16
	MaxWrite            uint32

	// Only valid if the negotiated protocol is at least 7.23.
	TimeGran uint32

	// Only valid if the negotiated protocol is at least 7.28.
	MaxPages uint16

	Padding uint16
	Unused  [8]uint32
}

// Before protocol 7.23 the init reply was a 24-byte prefix of InitOut.
const initOutCompatSize = 24

// InitOutSize returns how many bytes of InitOut the supplied protocol
// version understands.
func InitOutSize(p Protocol) uintptr {
	if p.LT(Protocol{7, 23}) {
		return initOutCompatSize
	}
	return unsafe.Sizeof(InitOut{})
}

// Flags exchanged in InitIn/InitOut, describing optional kernel and file
// system capabilities.
type InitFlags uint32

const (
	InitAsyncRead       InitFlags = 1 << 0
	InitPosixLocks      InitFlags = 1 << 1
	InitFileOps         InitFlags = 1 << 2
	InitAtomicTrunc     InitFlags = 1 << 3
	InitExportSupport   InitFlags = 1 << 4
	InitBigWrites       InitFlags = 1 << 5
	InitDontMask        InitFlags = 1 << 6
	InitSpliceWrite     InitFlags = 1 << 7
	InitSpliceMove      InitFlags = 1 << 8
	InitSpliceRead      InitFlags = 1 << 9
	InitFlockLocks      InitFlags = 1 << 10
	InitHasIoctlDir     InitFlags = 1 << 11
	InitAutoInvalData   InitFlags = 1 << 12
	InitDoReaddirplus   InitFlags = 1 << 13
	InitReaddirplusAuto InitFlags = 1 << 14
	InitAsyncDIO        InitFlags = 1 << 15
	InitWritebackCache  InitFlags = 1 << 16
	InitNoOpenSupport   InitFlags = 1 << 17
	InitParallelDirops  InitFlags = 1 << 18
	InitHandleKillpriv  InitFlags = 1 << 19
	InitPosixACL        InitFlags = 1 << 20
	InitAbortError      InitFlags = 1 << 21
	InitMaxPages        InitFlags = 1 << 22
	InitCacheSymlinks   InitFlags = 1 << 23
	InitNoOpendir       InitFlags = 1 << 24
	InitExplicitInval   InitFlags = 1 << 25

	InitCaseInsensitive InitFlags = 1 << 29 // OS X only
	InitVolRename       InitFlags = 1 << 30 // OS X only
	InitXtimes          InitFlags = 1 << 31 // OS X only
)

var initFlagNames = []flagName{
	{uint32(InitAsyncRead), "AsyncRead"},
	{uint32(InitPosixLocks), "PosixLocks"},
	{uint32(InitFileOps), "FileOps"},
	{uint32(InitAtomicTrunc), "AtomicTrunc"},
	{uint32(InitExportSupport), "ExportSupport"},
	{uint32(InitBigWrites), "BigWrites"},
	{uint32(InitDontMask), "DontMask"},
	{uint32(InitSpliceWrite), "SpliceWrite"},
	{uint32(InitSpliceMove), "SpliceMove"},
	{uint32(InitSpliceRead), "SpliceRead"},
	{uint32(InitFlockLocks), "FlockLocks"},
	{uint32(InitHasIoctlDir), "HasIoctlDir"},
	{uint32(InitAutoInvalData), "AutoInvalData"},
	{uint32(InitDoReaddirplus), "DoReaddirplus"},
	{uint32(InitReaddirplusAuto), "ReaddirplusAuto"},
	{uint32(InitAsyncDIO), "AsyncDIO"},
	{uint32(InitWritebackCache), "WritebackCache"},
	{uint32(InitNoOpenSupport), "NoOpenSupport"},
	{uint32(InitParallelDirops), "ParallelDirops"},
	{uint32(InitHandleKillpriv), "HandleKillpriv"},
	{uint32(InitPosixACL), "PosixACL"},
	{uint32(InitAbortError), "AbortError"},
	{uint32(InitMaxPages), "MaxPages"},
	{uint32(InitCacheSymlinks), "CacheSymlinks"},
	{uint32(InitNoOpendir), "NoOpendir"},
	{uint32(InitExplicitInval), "ExplicitInval"},
	{uint32(InitCaseInsensitive), "CaseInsensitive"},
	{uint32(InitVolRename), "VolRename"},
	{uint32(InitXtimes), "Xtimes"},
}

func (fl InitFlags) String() string {
	return flagString(uint32(fl), initFlagNames)
}

////////////////////////////////////////////////////////////////////////
// Attributes and entries
////////////////////////////////////////////////////////////////////////

// The layout of Attr itself is platform-dependent; see the platform files
// in this package.

// AttrSize returns how many bytes of Attr the supplied protocol version
// understands. Protocol 7.9 appended the Blksize field.
func AttrSize(p Protocol) uintptr {
	if !p.HasAttrBlksize() {
		return unsafe.Offsetof(Attr{}.Blksize)
	}
	return unsafe.Sizeof(Attr{})
}

type EntryOut struct {
	Nodeid         uint64 // Inode ID
	Generation     uint64 // Inode generation
	EntryValid     uint64 // Cache timeout for the name
	AttrValid      uint64 // Cache timeout for the attributes
	EntryValidNsec uint32
	AttrValidNsec  uint32
	Attr           Attr
}

func EntryOutSize(p Protocol) uintptr {
	return unsafe.Offsetof(EntryOut{}.Attr) + AttrSize(p)
}

type AttrOut struct {
	AttrValid     uint64 // Cache timeout for the attributes
	AttrValidNsec uint32
	Dummy         uint32
	Attr          Attr
}

func AttrOutSize(p Protocol) uintptr {
	return unsafe.Offsetof(AttrOut{}.Attr) + AttrSize(p)
}

// Flags in GetattrIn.GetattrFlags.
type GetattrFlags uint32

const (
	// The file handle field is valid; the request came through a file
	// descriptor. Protocol 7.9.
	GetattrFh GetattrFlags = 1 << 0
)

type GetattrIn struct {
	GetattrFlags GetattrFlags
	Padding      uint32
	Fh           uint64
}

// Bit masks for SetattrIn.Valid, reporting which fields the caller wants
// changed.
type SetattrValid uint32

const (
	SetattrMode      SetattrValid = 1 << 0
	SetattrUid       SetattrValid = 1 << 1
	SetattrGid       SetattrValid = 1 << 2
	SetattrSize      SetattrValid = 1 << 3
	SetattrAtime     SetattrValid = 1 << 4
	SetattrMtime     SetattrValid = 1 << 5
	SetattrHandle    SetattrValid = 1 << 6
	SetattrAtimeNow  SetattrValid = 1 << 7
	SetattrMtimeNow  SetattrValid = 1 << 8
	SetattrLockOwner SetattrValid = 1 << 9
	SetattrCtime     SetattrValid = 1 << 10

	SetattrCrtime   SetattrValid = 1 << 28 // OS X only
	SetattrChgtime  SetattrValid = 1 << 29 // OS X only
	SetattrBkuptime SetattrValid = 1 << 30 // OS X only
	SetattrFlags    SetattrValid = 1 << 31 // OS X only
)

func (v SetattrValid) Mode() bool      { return v&SetattrMode != 0 }
func (v SetattrValid) Uid() bool       { return v&SetattrUid != 0 }
func (v SetattrValid) Gid() bool       { return v&SetattrGid != 0 }
func (v SetattrValid) Size() bool      { return v&SetattrSize != 0 }
func (v SetattrValid) Atime() bool     { return v&SetattrAtime != 0 }
func (v SetattrValid) Mtime() bool     { return v&SetattrMtime != 0 }
func (v SetattrValid) Handle() bool    { return v&SetattrHandle != 0 }
func (v SetattrValid) AtimeNow() bool  { return v&SetattrAtimeNow != 0 }
func (v SetattrValid) MtimeNow() bool  { return v&SetattrMtimeNow != 0 }
func (v SetattrValid) LockOwner() bool { return v&SetattrLockOwner != 0 }
func (v SetattrValid) Ctime() bool     { return v&SetattrCtime != 0 }

type SetattrIn struct {
	Valid     SetattrValid
	Padding   uint32
	Fh        uint64
	Size      uint64
	LockOwner uint64
	Atime     uint64
	Mtime     uint64

	// Explicit ctime; only meaningful on protocol 7.23 and newer. Older
	// kernels send this word as unused padding.
	Ctime uint64

	AtimeNsec uint32
	MtimeNsec uint32
	CtimeNsec uint32
	Mode      uint32
	Unused4   uint32
	Uid       uint32
	Gid       uint32
	Unused5   uint32
}

////////////////////////////////////////////////////////////////////////
// Forgetting
////////////////////////////////////////////////////////////////////////

type ForgetIn struct {
	Nlookup uint64
}

type ForgetOne struct {
	NodeID  uint64
	Nlookup uint64
}

type BatchForgetIn struct {
	Count uint32
	Dummy uint32
	// Count ForgetOne records follow.
}

////////////////////////////////////////////////////////////////////////
// Inode creation and unlinking
////////////////////////////////////////////////////////////////////////

type MknodIn struct {
	Mode  uint32
	Rdev  uint32
	Umask uint32
	Padding uint32
	// "filename\x00" follows.
}

// Before protocol 7.12 the struct ended at Rdev.
func MknodInSize(p Protocol) uintptr {
	if !p.HasUmask() {
		return unsafe.Offsetof(MknodIn{}.Umask)
	}
	return unsafe.Sizeof(MknodIn{})
}

type MkdirIn struct {
	Mode  uint32
	Umask uint32
	// "filename\x00" follows.
}

// Before protocol 7.12 the umask word was absent.
func MkdirInSize(p Protocol) uintptr {
	if !p.HasUmask() {
		return unsafe.Offsetof(MkdirIn{}.Umask)
	}
	return unsafe.Sizeof(MkdirIn{})
}

type RenameIn struct {
	Newdir uint64
	// "oldname\x00newname\x00" follows.
}

type Rename2In struct {
	Newdir  uint64
	Flags   uint32
	Padding uint32
	// "oldname\x00newname\x00" follows.
}

type LinkIn struct {
	Oldnodeid uint64
	// "newname\x00" follows.
}

////////////////////////////////////////////////////////////////////////
// File and directory handles
////////////////////////////////////////////////////////////////////////

type OpenIn struct {
	Flags  uint32
	Unused uint32
}

type CreateIn struct {
	Flags   uint32
	Mode    uint32
	Umask   uint32
	Padding uint32
	// "filename\x00" follows.
}

// Before protocol 7.12 CreateIn was identical to OpenIn.
func CreateInSize(p Protocol) uintptr {
	if !p.HasUmask() {
		return unsafe.Sizeof(OpenIn{})
	}
	return unsafe.Sizeof(CreateIn{})
}

// Flags the file system may set in OpenOut.OpenFlags.
type OpenOutFlags uint32

const (
	// Bypass the page cache for this open file.
	FopenDirectIO OpenOutFlags = 1 << 0

	// Don't invalidate the cached data on open.
	FopenKeepCache OpenOutFlags = 1 << 1

	// The file is not seekable. Protocol 7.10.
	FopenNonSeekable OpenOutFlags = 1 << 2

	// Allow caching this directory. Protocol 7.28.
	FopenCacheDir OpenOutFlags = 1 << 3
)

type OpenOut struct {
	Fh        uint64
	OpenFlags OpenOutFlags
	Padding   uint32
}

// Flags in ReleaseIn.ReleaseFlags.
type ReleaseFlags uint32

const (
	ReleaseFlush ReleaseFlags = 1 << 0

	// The lock owner field is valid and its flock locks should be released.
	// Protocol 7.17.
	ReleaseFlockUnlock ReleaseFlags = 1 << 1
)

type ReleaseIn struct {
	Fh           uint64
	Flags        uint32
	ReleaseFlags ReleaseFlags
	LockOwner    uint64
}

type FlushIn struct {
	Fh        uint64
	Unused    uint32
	Padding   uint32
	LockOwner uint64
}

////////////////////////////////////////////////////////////////////////
// Reading and writing
////////////////////////////////////////////////////////////////////////

// Flags in ReadIn.ReadFlags.
type ReadFlags uint32

const (
	// The lock owner field is valid. Protocol 7.9.
	ReadLockOwner ReadFlags = 1 << 1
)

type ReadIn struct {
	Fh      uint64
	Offset  uint64
	Size    uint32
	ReadFlags ReadFlags

	// The following are only present on protocol 7.9 and newer.
	LockOwner uint64
	Flags     uint32
	Padding   uint32
}

func ReadInSize(p Protocol) uintptr {
	if !p.HasReadWriteFlags() {
		return unsafe.Offsetof(ReadIn{}.LockOwner)
	}
	return unsafe.Sizeof(ReadIn{})
}

// Flags in WriteIn.WriteFlags.
type WriteFlags uint32

const (
	// Delayed write from the page cache; the file handle is guessed and
	// the pid/uid/gid may not match the writing process.
	WriteCache WriteFlags = 1 << 0

	// The lock owner field is valid. Protocol 7.9.
	WriteLockOwner WriteFlags = 1 << 1
)

type WriteIn struct {
	Fh         uint64
	Offset     uint64
	Size       uint32
	WriteFlags WriteFlags

	// The following are only present on protocol 7.9 and newer.
	LockOwner uint64
	Flags     uint32
	Padding   uint32
}

func WriteInSize(p Protocol) uintptr {
	if !p.HasReadWriteFlags() {
		return unsafe.Offsetof(WriteIn{}.LockOwner)
	}
	return unsafe.Sizeof(WriteIn{})
}

type WriteOut struct {
	Size    uint32
	Padding uint32
}

////////////////////////////////////////////////////////////////////////
// Statfs
////////////////////////////////////////////////////////////////////////

type Kstatfs struct {
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	Bsize   uint32
	Namelen uint32
	Frsize  uint32
	Padding uint32
	Spare   [6]uint32
}

type StatfsOut struct {
	St Kstatfs
}

////////////////////////////////////////////////////////////////////////
// Syncing
////////////////////////////////////////////////////////////////////////

// Flags in FsyncIn.FsyncFlags.
type FsyncFlags uint32

const (
	// Sync only the file contents, not the metadata.
	FsyncFdatasync FsyncFlags = 1 << 0
)

type FsyncIn struct {
	Fh         uint64
	FsyncFlags FsyncFlags
	Padding    uint32
}

////////////////////////////////////////////////////////////////////////
// Extended attributes
////////////////////////////////////////////////////////////////////////

type SetxattrIn struct {
	Size  uint32
	Flags uint32
	// "name\x00" and the value bytes follow.
}

type GetxattrIn struct {
	Size    uint32
	Padding uint32
	// "name\x00" follows (GETXATTR only).
}

type GetxattrOut struct {
	Size    uint32
	Padding uint32
}

////////////////////////////////////////////////////////////////////////
// Locking
////////////////////////////////////////////////////////////////////////

type FileLock struct {
	Start uint64
	End   uint64
	Type  uint32
	Pid   uint32
}

// Flags in LkIn.LkFlags.
type LkFlags uint32

const (
	// The lock request is an flock-style lock, not a POSIX record lock.
	// Protocol 7.9.
	LkFlock LkFlags = 1 << 0
)

type LkIn struct {
	Fh    uint64
	Owner uint64
	Lk    FileLock

	// The following are only present on protocol 7.9 and newer.
	LkFlags LkFlags
	Padding uint32
}

func LkInSize(p Protocol) uintptr {
	if !p.HasReadWriteFlags() {
		return unsafe.Offsetof(LkIn{}.LkFlags)
	}
	return unsafe.Sizeof(LkIn{})
}

type LkOut struct {
	Lk FileLock
}

////////////////////////////////////////////////////////////////////////
// Misc
////////////////////////////////////////////////////////////////////////

type AccessIn struct {
	Mask    uint32
	Padding uint32
}

type InterruptIn struct {
	Unique uint64
}

type BmapIn struct {
	Block     uint64
	BlockSize uint32
	Padding   uint32
}

type BmapOut struct {
	Block uint64
}

// Flags in IoctlIn.Flags.
type IoctlFlags uint32

const (
	// 32-bit compat ioctl on a 64-bit machine.
	IoctlCompat IoctlFlags = 1 << 0

	// Not restricted to well-formed ioctls; retries allowed.
	IoctlUnrestricted IoctlFlags = 1 << 1

	// Retry with new iovecs.
	IoctlRetry IoctlFlags = 1 << 2

	// The target is a directory. Protocol 7.18.
	IoctlDir IoctlFlags = 1 << 4
)

type IoctlIn struct {
	Fh      uint64
	Flags   IoctlFlags
	Cmd     uint32
	Arg     uint64
	InSize  uint32
	OutSize uint32
	// InSize bytes of input data follow.
}

type IoctlOut struct {
	Result  int32
	Flags   IoctlFlags
	InIovs  uint32
	OutIovs uint32
}

type PollIn struct {
	Fh      uint64
	Kh      uint64
	Flags   uint32
	Events  uint32
}

type FallocateIn struct {
	Fh      uint64
	Offset  uint64
	Length  uint64
	Mode    uint32
	Padding uint32
}

type LseekIn struct {
	Fh      uint64
	Offset  uint64
	Whence  uint32
	Padding uint32
}

type LseekOut struct {
	Offset uint64
}

type CopyFileRangeIn struct {
	FhIn      uint64
	OffIn     uint64
	NodeidOut uint64
	FhOut     uint64
	OffOut    uint64
	Len       uint64
	Flags     uint64
}

////////////////////////////////////////////////////////////////////////
// Directory entries
////////////////////////////////////////////////////////////////////////

// The fixed header of a directory entry record, as packed into READDIR
// reply buffers. The name follows, padded to an eight-byte boundary.
type Dirent struct {
	Ino     uint64
	Off     uint64
	Namelen uint32
	Type    uint32
	// The name bytes follow.
}

// The fixed header of a READDIRPLUS record: a full entry (as from LOOKUP)
// followed by the plain dirent header and the padded name.
type DirentPlus struct {
	EntryOut EntryOut
	Dirent   Dirent
}

const DirentSize = int(unsafe.Sizeof(Dirent{}))

// Directory entry records are padded to eight-byte alignment.
const DirentAlign = 8

////////////////////////////////////////////////////////////////////////
// Dirent types
////////////////////////////////////////////////////////////////////////

// The type field in a Dirent, occupying the high bits of the inode mode.
type DirentType uint32

const (
	DT_Unknown   DirentType = 0
	DT_FIFO      DirentType = syscall.S_IFIFO >> 12
	DT_Char      DirentType = syscall.S_IFCHR >> 12
	DT_Directory DirentType = syscall.S_IFDIR >> 12
	DT_Block     DirentType = syscall.S_IFBLK >> 12
	DT_File      DirentType = syscall.S_IFREG >> 12
	DT_Link      DirentType = syscall.S_IFLNK >> 12
	DT_Socket    DirentType = syscall.S_IFSOCK >> 12
)

////////////////////////////////////////////////////////////////////////
// Flag pretty printing
////////////////////////////////////////////////////////////////////////

type flagName struct {
	bit  uint32
	name string
}

func flagString(fl uint32, names []flagName) string {
	var s string
	for _, n := range names {
		if fl&n.bit == 0 {
			continue
		}
		if s != "" {
			s += "|"
		}
		s += n.name
		fl &^= n.bit
	}
	if fl != 0 {
		if s != "" {
			s += "|"
		}
		s += fmt.Sprintf("%#x", fl)
	}
	if s == "" {
		s = "0"
	}
	return s
}
