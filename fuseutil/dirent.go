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

package fuseutil

import (
	"unsafe"

	"github.com/emberfs/fuse/fuseops"
	"github.com/emberfs/fuse/internal/fusekernel"
)

type DirentType = fusekernel.DirentType

const (
	DT_Unknown   = fusekernel.DT_Unknown
	DT_Socket    = fusekernel.DT_Socket
	DT_Link      = fusekernel.DT_Link
	DT_File      = fusekernel.DT_File
	DT_Block     = fusekernel.DT_Block
	DT_Directory = fusekernel.DT_Directory
	DT_Char      = fusekernel.DT_Char
	DT_FIFO      = fusekernel.DT_FIFO
)

// A struct representing an entry within a directory file, describing a
// child. See notes on fuseops.ReadDirOp and on DirentList for details.
type Dirent struct {
	// The (opaque) offset within the directory file of the entry following
	// this one. See notes on fuseops.ReadDirOp.Offset for details.
	Offset fuseops.DirOffset

	// The inode of the child file or directory, and its name within the
	// parent.
	Inode fuseops.InodeID
	Name  string

	// The type of the child. The zero value (DT_Unknown) is legal, but means
	// that the kernel will need to call GetAttr when the type is needed.
	Type DirentType
}

// AppendDirent appends the supplied directory entry to the given buffer in
// the format the kernel's parse_dirfile expects, returning the resulting
// buffer. Records are padded to eight-byte alignment.
func AppendDirent(input []byte, d Dirent) (output []byte) {
	de := fusekernel.Dirent{
		Ino:     uint64(d.Inode),
		Off:     uint64(d.Offset),
		Namelen: uint32(len(d.Name)),
		Type:    uint32(d.Type),
	}

	output = append(input, unsafe.Slice(
		(*byte)(unsafe.Pointer(&de)), fusekernel.DirentSize)...)
	output = append(output, d.Name...)

	if pad := len(d.Name) % fusekernel.DirentAlign; pad != 0 {
		var padding [fusekernel.DirentAlign]byte
		output = append(output, padding[:fusekernel.DirentAlign-pad]...)
	}

	return
}

// direntLen returns the padded record length for a name of length n.
func direntLen(n int) int {
	return (fusekernel.DirentSize + n + fusekernel.DirentAlign - 1) &^
		(fusekernel.DirentAlign - 1)
}

// DirentList packs directory entries for a READDIR reply, bounded by the
// capacity the kernel requested for the read. The packed bytes are handed
// to the kernel verbatim.
//
// Must be created with NewDirentList.
type DirentList struct {
	buf []byte
	cap int
}

// NewDirentList returns an empty list that will hold no more than capacity
// bytes of packed entries.
func NewDirentList(capacity int) *DirentList {
	return &DirentList{
		buf: make([]byte, 0, capacity),
		cap: capacity,
	}
}

// AddDirent appends an entry, returning true if the entry did not fit. On a
// full return the list is left exactly as it was; the caller should stop
// adding and send what accumulated so far.
func (l *DirentList) AddDirent(d Dirent) (full bool) {
	if len(l.buf)+direntLen(len(d.Name)) > l.cap {
		return true
	}

	l.buf = AppendDirent(l.buf, d)
	return false
}

// Bytes returns the packed entries accumulated so far.
func (l *DirentList) Bytes() []byte {
	return l.buf
}

// Len returns the number of packed bytes accumulated so far.
func (l *DirentList) Len() int {
	return len(l.buf)
}

// DirentPlusList packs directory entries for a READDIRPLUS reply: each
// entry carries the full lookup result the kernel would otherwise fetch
// with a separate LOOKUP, and counts as a lookup of its inode unless named
// "." or "..".
//
// Must be created with NewDirentPlusList.
type DirentPlusList struct {
	buf []byte
	cap int
}

// NewDirentPlusList returns an empty list that will hold no more than
// capacity bytes of packed entries.
func NewDirentPlusList(capacity int) *DirentPlusList {
	return &DirentPlusList{
		buf: make([]byte, 0, capacity),
		cap: capacity,
	}
}

// AddDirentPlus appends an entry together with its lookup result, returning
// true if it did not fit. On a full return the list is left exactly as it
// was.
func (l *DirentPlusList) AddDirentPlus(
	d Dirent,
	e *fuseops.ChildInodeEntry) (full bool) {
	recordLen := int(unsafe.Sizeof(fusekernel.EntryOut{})) +
		direntLen(len(d.Name))
	if len(l.buf)+recordLen > l.cap {
		return true
	}

	var out fusekernel.EntryOut
	fuseops.PackChildInodeEntry(e, &out)

	l.buf = append(l.buf, unsafe.Slice(
		(*byte)(unsafe.Pointer(&out)), unsafe.Sizeof(out))...)
	l.buf = AppendDirent(l.buf, d)
	return false
}

// Bytes returns the packed entries accumulated so far.
func (l *DirentPlusList) Bytes() []byte {
	return l.buf
}

// Len returns the number of packed bytes accumulated so far.
func (l *DirentPlusList) Len() int {
	return len(l.buf)
}
