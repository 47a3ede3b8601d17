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

package memfs

import (
	"fmt"
	"os"
	"time"

	"github.com/google/btree"
	"github.com/jacobsa/timeutil"

	"github.com/emberfs/fuse"
	"github.com/emberfs/fuse/fuseops"
	"github.com/emberfs/fuse/fuseutil"
)

// A directory entry within an inode, ordered by name.
type dirEntry struct {
	name  string
	inode fuseops.InodeID
	dtype fuseutil.DirentType
}

func (e *dirEntry) Less(than btree.Item) bool {
	return e.name < than.(*dirEntry).name
}

// Common attributes for files, directories, and symlinks.
//
// External synchronization is required.
type inode struct {
	/////////////////////////
	// Mutable state
	/////////////////////////

	// The current attributes of this inode.
	//
	// INVARIANT: attrs.Mode &^ (os.ModePerm|os.ModeDir|os.ModeSymlink|os.ModeNamedPipe|os.ModeSocket|os.ModeDevice|os.ModeCharDevice) == 0
	// INVARIANT: !(isDir() && isSymlink())
	// INVARIANT: attrs.Size == len(contents)
	attrs fuseops.InodeAttributes

	// For directories, entries describing the children, ordered by name.
	// Unused for other inodes.
	//
	// This array can never contain an entry with name "." or "..".
	//
	// INVARIANT: If !isDir(), entries is nil
	entries *btree.BTree

	// For files, the current contents of the file.
	//
	// INVARIANT: If !isFile(), len(contents) == 0
	contents []byte

	// For symlinks, the target of the symlink.
	//
	// INVARIANT: If !isSymlink(), target == ""
	target string

	// Extended attributes set on the inode.
	xattrs map[string][]byte
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

// Create a new inode with the supplied attributes, which need not contain
// time information.
func newInode(
	clock timeutil.Clock,
	attrs fuseops.InodeAttributes) *inode {
	// Update time info.
	now := clock.Now()
	attrs.Mtime = now
	attrs.Crtime = now

	in := &inode{
		attrs:  attrs,
		xattrs: make(map[string][]byte),
	}

	if in.isDir() {
		in.entries = btree.New(16)
	}

	return in
}

func (in *inode) CheckInvariants() {
	// No unexpected mode bits.
	legal := os.ModePerm | os.ModeDir | os.ModeSymlink | os.ModeNamedPipe |
		os.ModeSocket | os.ModeDevice | os.ModeCharDevice | os.ModeSetuid |
		os.ModeSetgid | os.ModeSticky
	if in.attrs.Mode&^legal != 0 {
		panic(fmt.Sprintf("unexpected mode: %v", in.attrs.Mode))
	}

	if in.isDir() && in.isSymlink() {
		panic(fmt.Sprintf("inode cannot be both directory and symlink: %v", in.attrs.Mode))
	}

	if !in.isDir() && in.entries != nil {
		panic("non-directory with entries")
	}

	if !in.isFile() && len(in.contents) != 0 {
		panic("non-file with contents")
	}

	if !in.isSymlink() && in.target != "" {
		panic("non-symlink with target")
	}

	if in.isFile() && in.attrs.Size != uint64(len(in.contents)) {
		panic(fmt.Sprintf(
			"size mismatch: %d vs. %d", in.attrs.Size, len(in.contents)))
	}
}

func (in *inode) isDir() bool {
	return in.attrs.Mode&os.ModeDir != 0
}

func (in *inode) isSymlink() bool {
	return in.attrs.Mode&os.ModeSymlink != 0
}

func (in *inode) isFile() bool {
	return !(in.isDir() || in.isSymlink())
}

////////////////////////////////////////////////////////////////////////
// Directory logic
////////////////////////////////////////////////////////////////////////

// Return the inode ID and type of the child with the given name, if any.
//
// REQUIRES: in.isDir()
func (in *inode) LookUpChild(name string) (
	id fuseops.InodeID,
	dtype fuseutil.DirentType,
	ok bool) {
	item := in.entries.Get(&dirEntry{name: name})
	if item == nil {
		return
	}

	e := item.(*dirEntry)
	return e.inode, e.dtype, true
}

// Add an entry for a child.
//
// REQUIRES: in.isDir()
// REQUIRES: dirent name not already taken
func (in *inode) AddChild(
	id fuseops.InodeID,
	name string,
	dtype fuseutil.DirentType) {
	in.attrs.Mtime = time.Now()

	if in.entries.ReplaceOrInsert(&dirEntry{
		name:  name,
		inode: id,
		dtype: dtype,
	}) != nil {
		panic(fmt.Sprintf("duplicate child name: %q", name))
	}
}

// Remove the entry for the child with the given name.
//
// REQUIRES: in.isDir()
// REQUIRES: an entry for the given name exists
func (in *inode) RemoveChild(name string) {
	in.attrs.Mtime = time.Now()

	if in.entries.Delete(&dirEntry{name: name}) == nil {
		panic(fmt.Sprintf("unknown child: %q", name))
	}
}

// The number of children of the directory.
//
// REQUIRES: in.isDir()
func (in *inode) ChildCount() int {
	return in.entries.Len()
}

// Return the directory's entries in name order, with their offset fields
// set such that entry i has offset i+1.
//
// REQUIRES: in.isDir()
func (in *inode) ReadDir() []fuseutil.Dirent {
	dirents := make([]fuseutil.Dirent, 0, in.entries.Len())

	in.entries.Ascend(func(item btree.Item) bool {
		e := item.(*dirEntry)
		dirents = append(dirents, fuseutil.Dirent{
			Offset: fuseops.DirOffset(len(dirents) + 1),
			Inode:  e.inode,
			Name:   e.name,
			Type:   e.dtype,
		})
		return true
	})

	return dirents
}

////////////////////////////////////////////////////////////////////////
// File logic
////////////////////////////////////////////////////////////////////////

// Read from the file's contents. See documentation for ioutil.ReaderAt.
//
// REQUIRES: in.isFile()
func (in *inode) ReadAt(p []byte, off int64) (int, error) {
	if off > int64(len(in.contents)) {
		return 0, nil
	}

	return copy(p, in.contents[off:]), nil
}

// Write to the file's contents, extending it if necessary.
//
// REQUIRES: in.isFile()
func (in *inode) WriteAt(p []byte, off int64) (int, error) {
	in.attrs.Mtime = time.Now()

	// Ensure that the contents slice is long enough.
	newLen := int(off) + len(p)
	if len(in.contents) < newLen {
		padding := make([]byte, newLen-len(in.contents))
		in.contents = append(in.contents, padding...)
		in.attrs.Size = uint64(newLen)
	}

	// Copy in the data.
	n := copy(in.contents[off:], p)

	// Sanity check.
	if n != len(p) {
		panic(fmt.Sprintf("short copy: %v", n))
	}

	return n, nil
}

// Truncate or extend the file to the given size.
//
// REQUIRES: in.isFile()
func (in *inode) SetSize(size uint64) {
	// Update contents.
	if size <= uint64(len(in.contents)) {
		in.contents = in.contents[:size]
	} else {
		padding := make([]byte, size-uint64(len(in.contents)))
		in.contents = append(in.contents, padding...)
	}

	// Update attributes.
	in.attrs.Size = size
	in.attrs.Mtime = time.Now()
}

// Update attributes from non-nil parameters.
func (in *inode) SetAttributes(
	size *uint64,
	mode *os.FileMode,
	mtime *time.Time) {
	if size != nil {
		in.SetSize(*size)
	}

	if mode != nil {
		in.attrs.Mode = (in.attrs.Mode &^ os.ModePerm) | (*mode & os.ModePerm)
	}

	if mtime != nil {
		in.attrs.Mtime = *mtime
	}
}

// Ensure the file covers the range [offset, offset+length), extending it
// with zeroes if it is currently shorter.
//
// REQUIRES: in.isFile()
func (in *inode) Fallocate(mode uint32, offset uint64, length uint64) error {
	// Only the default mode, space preallocation, is supported.
	if mode != 0 {
		return fuse.ENOSYS
	}

	if newSize := offset + length; newSize > uint64(len(in.contents)) {
		padding := make([]byte, newSize-uint64(len(in.contents)))
		in.contents = append(in.contents, padding...)
		in.attrs.Size = newSize
	}

	return nil
}
