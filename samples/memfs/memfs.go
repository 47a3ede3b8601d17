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
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jacobsa/syncutil"
	"github.com/jacobsa/timeutil"

	"github.com/emberfs/fuse"
	"github.com/emberfs/fuse/fuseops"
	"github.com/emberfs/fuse/fuseutil"
)

// How many directory listings to memoize. Plenty for the tests and demos
// this file system exists for.
const listingCacheSize = 64

type memFS struct {
	fuse.NotImplementedFileSystem

	/////////////////////////
	// Dependencies
	/////////////////////////

	clock timeutil.Clock

	/////////////////////////
	// Constant data
	/////////////////////////

	// The UID and GID that every inode receives.
	uid uint32
	gid uint32

	/////////////////////////
	// Mutable state
	/////////////////////////

	mu syncutil.InvariantMutex

	// The collection of live inodes, indexed by ID. IDs of free inodes that
	// may be re-used have nil entries. No ID less than fuseops.RootInodeID
	// is ever used.
	//
	// INVARIANT: For each inode in, in.CheckInvariants() does not panic.
	// INVARIANT: len(inodes) > fuseops.RootInodeID
	// INVARIANT: For all i < fuseops.RootInodeID, inodes[i] == nil
	// INVARIANT: inodes[fuseops.RootInodeID] != nil
	// INVARIANT: inodes[fuseops.RootInodeID].isDir()
	inodes []*inode // GUARDED_BY(mu)

	// A list of inode IDs within inodes available for reuse, not including
	// the reserved IDs less than fuseops.RootInodeID.
	//
	// INVARIANT: This is all and only indices i of 'inodes' such that i >
	// fuseops.RootInodeID and inodes[i] == nil
	freeInodes []fuseops.InodeID // GUARDED_BY(mu)

	// Memoized directory listings, invalidated on mutation.
	listings *listingCache
}

// NewMemFS creates a file system that stores data and metadata in memory.
//
// The supplied UID/GID pair will own the root inode. This file system does
// no permissions checking, and should therefore be mounted with the
// default_permissions option.
func NewMemFS(
	uid uint32,
	gid uint32,
	clock timeutil.Clock) fuse.FileSystem {
	fs := &memFS{
		clock:    clock,
		uid:      uid,
		gid:      gid,
		inodes:   make([]*inode, fuseops.RootInodeID+1),
		listings: newListingCache(listingCacheSize),
	}

	// Set up the root inode.
	fs.inodes[fuseops.RootInodeID] = newInode(clock, fuseops.InodeAttributes{
		Mode: 0700 | os.ModeDir,
		Uid:  uid,
		Gid:  gid,
	})

	// Set up invariant checking.
	fs.mu = syncutil.NewInvariantMutex(fs.checkInvariants)

	return fs
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

func (fs *memFS) checkInvariants() {
	// Check reserved inodes.
	for i := 0; i < fuseops.RootInodeID; i++ {
		if fs.inodes[i] != nil {
			panic(fmt.Sprintf("non-nil inode for ID: %v", i))
		}
	}

	// Check the root inode.
	if !fs.inodes[fuseops.RootInodeID].isDir() {
		panic("expected root to be a directory")
	}

	// Build our own list of free IDs.
	freeIDsEncountered := make(map[fuseops.InodeID]struct{})
	for i := fuseops.RootInodeID + 1; i < len(fs.inodes); i++ {
		if fs.inodes[i] == nil {
			freeIDsEncountered[fuseops.InodeID(i)] = struct{}{}
			continue
		}

		fs.inodes[i].CheckInvariants()
	}

	// Check fs.freeInodes.
	if len(fs.freeInodes) != len(freeIDsEncountered) {
		panic(fmt.Sprintf(
			"length mismatch: %v vs. %v",
			len(fs.freeInodes),
			len(freeIDsEncountered)))
	}

	for _, id := range fs.freeInodes {
		if _, ok := freeIDsEncountered[id]; !ok {
			panic(fmt.Sprintf("unexpected free inode ID: %v", id))
		}
	}
}

// Find the given inode. Panic if it doesn't exist.
//
// LOCKS_REQUIRED(fs.mu)
func (fs *memFS) getInodeOrDie(id fuseops.InodeID) *inode {
	in := fs.inodes[id]
	if in == nil {
		panic(fmt.Sprintf("unknown inode: %v", id))
	}

	return in
}

// Allocate a new inode, assigning it an ID that is not in use.
//
// LOCKS_REQUIRED(fs.mu)
func (fs *memFS) allocateInode(
	attrs fuseops.InodeAttributes) (id fuseops.InodeID, in *inode) {
	in = newInode(fs.clock, attrs)

	// Re-use a free ID if possible. Otherwise mint a new one.
	numFree := len(fs.freeInodes)
	if numFree != 0 {
		id = fs.freeInodes[numFree-1]
		fs.freeInodes = fs.freeInodes[:numFree-1]
		fs.inodes[id] = in
	} else {
		id = fuseops.InodeID(len(fs.inodes))
		fs.inodes = append(fs.inodes, in)
	}

	return id, in
}

// LOCKS_REQUIRED(fs.mu)
func (fs *memFS) deallocateInode(id fuseops.InodeID) {
	fs.freeInodes = append(fs.freeInodes, id)
	fs.inodes[id] = nil
}

// Look up the child and build the lookup result the kernel expects,
// counting as one lookup of the child.
//
// LOCKS_REQUIRED(fs.mu)
func (fs *memFS) lookUpChild(
	parent *inode,
	name string) (fuseops.ChildInodeEntry, error) {
	childID, _, ok := parent.LookUpChild(name)
	if !ok {
		return fuseops.ChildInodeEntry{}, fuse.ENOENT
	}

	child := fs.getInodeOrDie(childID)

	return fuseops.ChildInodeEntry{
		Child:                childID,
		Attributes:           child.attrs,
		AttributesExpiration: fs.clock.Now().Add(time.Minute),
		EntryExpiration:      fs.clock.Now().Add(time.Minute),
	}, nil
}

// Create a new inode as a child of the supplied parent directory.
//
// LOCKS_REQUIRED(fs.mu)
func (fs *memFS) createChild(
	parentID fuseops.InodeID,
	name string,
	attrs fuseops.InodeAttributes,
	dtype fuseutil.DirentType) (fuseops.ChildInodeEntry, error) {
	parent := fs.getInodeOrDie(parentID)

	// The kernel should have looked the name up first, but guard against a
	// raced creation anyway.
	if _, _, ok := parent.LookUpChild(name); ok {
		return fuseops.ChildInodeEntry{}, fuse.EEXIST
	}

	childID, child := fs.allocateInode(attrs)
	parent.AddChild(childID, name, dtype)
	fs.listings.invalidate(parentID)

	return fuseops.ChildInodeEntry{
		Child:                childID,
		Attributes:           child.attrs,
		AttributesExpiration: fs.clock.Now().Add(time.Minute),
		EntryExpiration:      fs.clock.Now().Add(time.Minute),
	}, nil
}

////////////////////////////////////////////////////////////////////////
// FileSystem methods
////////////////////////////////////////////////////////////////////////

func (fs *memFS) StatFS(
	ctx context.Context,
	op *fuseops.StatFSOp,
	reply *fuse.ReplyStatfs) {
	reply.Statfs(&fuse.Statfs{})
}

func (fs *memFS) LookUpInode(
	ctx context.Context,
	op *fuseops.LookUpInodeOp,
	reply *fuse.ReplyEntry) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent := fs.getInodeOrDie(op.Header().Inode)

	e, err := fs.lookUpChild(parent, string(op.Name))
	if err != nil {
		reply.Error(err)
		return
	}

	reply.Entry(&e)
}

func (fs *memFS) GetInodeAttributes(
	ctx context.Context,
	op *fuseops.GetInodeAttributesOp,
	reply *fuse.ReplyAttr) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	inode := op.Header().Inode
	in := fs.getInodeOrDie(inode)

	reply.Attr(inode, &in.attrs, fs.clock.Now().Add(time.Minute))
}

func (fs *memFS) SetInodeAttributes(
	ctx context.Context,
	op *fuseops.SetInodeAttributesOp,
	reply *fuse.ReplyAttr) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	inode := op.Header().Inode
	in := fs.getInodeOrDie(inode)

	if op.Size != nil && !in.isFile() {
		reply.Error(fuse.EINVAL)
		return
	}

	in.SetAttributes(op.Size, op.Mode, op.Mtime)

	reply.Attr(inode, &in.attrs, fs.clock.Now().Add(time.Minute))
}

func (fs *memFS) MkDir(
	ctx context.Context,
	op *fuseops.MkDirOp,
	reply *fuse.ReplyEntry) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	e, err := fs.createChild(
		op.Header().Inode,
		string(op.Name),
		fuseops.InodeAttributes{
			Nlink: 1,
			Mode:  op.Mode,
			Uid:   fs.uid,
			Gid:   fs.gid,
		},
		fuseutil.DT_Directory)
	if err != nil {
		reply.Error(err)
		return
	}

	reply.Entry(&e)
}

func (fs *memFS) MkNode(
	ctx context.Context,
	op *fuseops.MkNodeOp,
	reply *fuse.ReplyEntry) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	e, err := fs.createChild(
		op.Header().Inode,
		string(op.Name),
		fuseops.InodeAttributes{
			Nlink: 1,
			Mode:  op.Mode,
			Uid:   fs.uid,
			Gid:   fs.gid,
		},
		fuseutil.DT_File)
	if err != nil {
		reply.Error(err)
		return
	}

	reply.Entry(&e)
}

func (fs *memFS) CreateFile(
	ctx context.Context,
	op *fuseops.CreateFileOp,
	reply *fuse.ReplyCreate) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	e, err := fs.createChild(
		op.Header().Inode,
		string(op.Name),
		fuseops.InodeAttributes{
			Nlink: 1,
			Mode:  op.Mode,
			Uid:   fs.uid,
			Gid:   fs.gid,
		},
		fuseutil.DT_File)
	if err != nil {
		reply.Error(err)
		return
	}

	// We don't mint handles; any value is fine.
	reply.Created(&e, 0)
}

func (fs *memFS) CreateSymlink(
	ctx context.Context,
	op *fuseops.CreateSymlinkOp,
	reply *fuse.ReplyEntry) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	e, err := fs.createChild(
		op.Header().Inode,
		string(op.Name),
		fuseops.InodeAttributes{
			Nlink: 1,
			Mode:  0444 | os.ModeSymlink,
			Uid:   fs.uid,
			Gid:   fs.gid,
		},
		fuseutil.DT_Link)
	if err != nil {
		reply.Error(err)
		return
	}

	fs.getInodeOrDie(e.Child).target = string(op.Target)

	reply.Entry(&e)
}

func (fs *memFS) CreateLink(
	ctx context.Context,
	op *fuseops.CreateLinkOp,
	reply *fuse.ReplyEntry) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentID := op.Header().Inode
	parent := fs.getInodeOrDie(parentID)

	if _, _, ok := parent.LookUpChild(string(op.Name)); ok {
		reply.Error(fuse.EEXIST)
		return
	}

	target := fs.getInodeOrDie(op.Target)
	target.attrs.Nlink++

	parent.AddChild(op.Target, string(op.Name), fuseutil.DT_File)
	fs.listings.invalidate(parentID)

	reply.Entry(&fuseops.ChildInodeEntry{
		Child:                op.Target,
		Attributes:           target.attrs,
		AttributesExpiration: fs.clock.Now().Add(time.Minute),
		EntryExpiration:      fs.clock.Now().Add(time.Minute),
	})
}

func (fs *memFS) Rename(
	ctx context.Context,
	op *fuseops.RenameOp,
	reply *fuse.ReplyEmpty) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	// Ask the old parent for the child's inode ID and type.
	oldParentID := op.Header().Inode
	oldParent := fs.getInodeOrDie(oldParentID)
	childID, childType, ok := oldParent.LookUpChild(string(op.OldName))
	if !ok {
		reply.Error(fuse.ENOENT)
		return
	}

	// If the new name exists already in the new parent, make sure it's not a
	// non-empty directory, then delete it.
	newParent := fs.getInodeOrDie(op.NewParent)
	existingID, _, ok := newParent.LookUpChild(string(op.NewName))
	if ok {
		existing := fs.getInodeOrDie(existingID)
		if existing.isDir() && existing.ChildCount() > 0 {
			reply.Error(fuse.ENOTEMPTY)
			return
		}

		newParent.RemoveChild(string(op.NewName))
	}

	// Link the new name, then unlink the old.
	newParent.AddChild(childID, string(op.NewName), childType)
	oldParent.RemoveChild(string(op.OldName))

	fs.listings.invalidate(oldParentID)
	fs.listings.invalidate(op.NewParent)

	reply.Ok()
}

func (fs *memFS) RmDir(
	ctx context.Context,
	op *fuseops.RmDirOp,
	reply *fuse.ReplyEmpty) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentID := op.Header().Inode
	parent := fs.getInodeOrDie(parentID)

	childID, _, ok := parent.LookUpChild(string(op.Name))
	if !ok {
		reply.Error(fuse.ENOENT)
		return
	}

	child := fs.getInodeOrDie(childID)
	if child.ChildCount() > 0 {
		reply.Error(fuse.ENOTEMPTY)
		return
	}

	parent.RemoveChild(string(op.Name))
	fs.listings.invalidate(parentID)

	// The child is gone as soon as its link count drops; directories have no
	// hard links.
	child.attrs.Nlink--
	fs.deallocateInode(childID)
	fs.listings.invalidate(childID)

	reply.Ok()
}

func (fs *memFS) Unlink(
	ctx context.Context,
	op *fuseops.UnlinkOp,
	reply *fuse.ReplyEmpty) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parentID := op.Header().Inode
	parent := fs.getInodeOrDie(parentID)

	childID, _, ok := parent.LookUpChild(string(op.Name))
	if !ok {
		reply.Error(fuse.ENOENT)
		return
	}

	child := fs.getInodeOrDie(childID)

	parent.RemoveChild(string(op.Name))
	fs.listings.invalidate(parentID)

	child.attrs.Nlink--
	if child.attrs.Nlink == 0 {
		fs.deallocateInode(childID)
	}

	reply.Ok()
}

func (fs *memFS) OpenDir(
	ctx context.Context,
	op *fuseops.OpenDirOp,
	reply *fuse.ReplyOpen) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	// We don't mint dir handles; just sanity check the inode.
	in := fs.getInodeOrDie(op.Header().Inode)
	if !in.isDir() {
		reply.Error(fuse.ENOTDIR)
		return
	}

	reply.Opened(0)
}

func (fs *memFS) ReadDir(
	ctx context.Context,
	op *fuseops.ReadDirOp,
	reply *fuse.ReplyDirectory) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dirID := op.Header().Inode
	in := fs.getInodeOrDie(dirID)
	if !in.isDir() {
		reply.Error(fuse.ENOTDIR)
		return
	}

	// Serve from the memoized listing when we have one.
	dirents, ok := fs.listings.lookup(dirID)
	if !ok {
		dirents = in.ReadDir()
		fs.listings.insert(dirID, dirents)
	}

	if op.Offset > fuseops.DirOffset(len(dirents)) {
		reply.Error(fuse.EINVAL)
		return
	}

	for _, d := range dirents[op.Offset:] {
		if reply.AddDirent(d) {
			break
		}
	}

	reply.Ok()
}

func (fs *memFS) ReadDirPlus(
	ctx context.Context,
	op *fuseops.ReadDirPlusOp,
	reply *fuse.ReplyDirectoryPlus) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	dirID := op.Header().Inode
	in := fs.getInodeOrDie(dirID)
	if !in.isDir() {
		reply.Error(fuse.ENOTDIR)
		return
	}

	dirents, ok := fs.listings.lookup(dirID)
	if !ok {
		dirents = in.ReadDir()
		fs.listings.insert(dirID, dirents)
	}

	if op.Offset > fuseops.DirOffset(len(dirents)) {
		reply.Error(fuse.EINVAL)
		return
	}

	for _, d := range dirents[op.Offset:] {
		child := fs.getInodeOrDie(d.Inode)
		e := fuseops.ChildInodeEntry{
			Child:                d.Inode,
			Attributes:           child.attrs,
			AttributesExpiration: fs.clock.Now().Add(time.Minute),
			EntryExpiration:      fs.clock.Now().Add(time.Minute),
		}

		if reply.AddDirentPlus(d, &e) {
			break
		}
	}

	reply.Ok()
}

func (fs *memFS) ReleaseDirHandle(
	ctx context.Context,
	op *fuseops.ReleaseDirHandleOp,
	reply *fuse.ReplyEmpty) {
	reply.Ok()
}

func (fs *memFS) OpenFile(
	ctx context.Context,
	op *fuseops.OpenFileOp,
	reply *fuse.ReplyOpen) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in := fs.getInodeOrDie(op.Header().Inode)
	if !in.isFile() {
		reply.Error(fuse.EINVAL)
		return
	}

	reply.Opened(0)
}

func (fs *memFS) ReadFile(
	ctx context.Context,
	op *fuseops.ReadFileOp,
	reply *fuse.ReplyData) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in := fs.getInodeOrDie(op.Header().Inode)

	data := make([]byte, op.Size)
	n, err := in.ReadAt(data, op.Offset)
	if err != nil {
		reply.Error(err)
		return
	}

	reply.Data(data[:n])
}

func (fs *memFS) WriteFile(
	ctx context.Context,
	op *fuseops.WriteFileOp,
	reply *fuse.ReplyWrite) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in := fs.getInodeOrDie(op.Header().Inode)

	n, err := in.WriteAt(op.Data, op.Offset)
	if err != nil {
		reply.Error(err)
		return
	}

	reply.Wrote(uint32(n))
}

func (fs *memFS) FlushFile(
	ctx context.Context,
	op *fuseops.FlushFileOp,
	reply *fuse.ReplyEmpty) {
	reply.Ok()
}

func (fs *memFS) SyncFile(
	ctx context.Context,
	op *fuseops.SyncFileOp,
	reply *fuse.ReplyEmpty) {
	reply.Ok()
}

func (fs *memFS) ReleaseFileHandle(
	ctx context.Context,
	op *fuseops.ReleaseFileHandleOp,
	reply *fuse.ReplyEmpty) {
	reply.Ok()
}

func (fs *memFS) ReadSymlink(
	ctx context.Context,
	op *fuseops.ReadSymlinkOp,
	reply *fuse.ReplyData) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in := fs.getInodeOrDie(op.Header().Inode)
	if !in.isSymlink() {
		reply.Error(fuse.EINVAL)
		return
	}

	reply.DataString(in.target)
}

func (fs *memFS) GetXattr(
	ctx context.Context,
	op *fuseops.GetXattrOp,
	reply *fuse.ReplyXattr) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in := fs.getInodeOrDie(op.Header().Inode)

	value, ok := in.xattrs[string(op.Name)]
	if !ok {
		reply.Error(fuse.ENOATTR)
		return
	}

	if op.Size == 0 {
		reply.Size(uint32(len(value)))
		return
	}

	if uint32(len(value)) > op.Size {
		reply.Error(fuse.ERANGE)
		return
	}

	reply.Value(value)
}

func (fs *memFS) ListXattr(
	ctx context.Context,
	op *fuseops.ListXattrOp,
	reply *fuse.ReplyXattr) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in := fs.getInodeOrDie(op.Header().Inode)

	// The list is NUL-separated, NUL-terminated names.
	var list []byte
	for name := range in.xattrs {
		list = append(list, name...)
		list = append(list, 0)
	}

	if op.Size == 0 {
		reply.Size(uint32(len(list)))
		return
	}

	if uint32(len(list)) > op.Size {
		reply.Error(fuse.ERANGE)
		return
	}

	reply.Value(list)
}

func (fs *memFS) RemoveXattr(
	ctx context.Context,
	op *fuseops.RemoveXattrOp,
	reply *fuse.ReplyEmpty) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in := fs.getInodeOrDie(op.Header().Inode)

	if _, ok := in.xattrs[string(op.Name)]; !ok {
		reply.Error(fuse.ENOATTR)
		return
	}

	delete(in.xattrs, string(op.Name))
	reply.Ok()
}

func (fs *memFS) SetXattr(
	ctx context.Context,
	op *fuseops.SetXattrOp,
	reply *fuse.ReplyEmpty) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in := fs.getInodeOrDie(op.Header().Inode)

	_, ok := in.xattrs[string(op.Name)]
	switch op.Flags {
	case 0x1: // XATTR_CREATE
		if ok {
			reply.Error(fuse.EEXIST)
			return
		}
	case 0x2: // XATTR_REPLACE
		if !ok {
			reply.Error(fuse.ENOATTR)
			return
		}
	}

	value := make([]byte, len(op.Value))
	copy(value, op.Value)
	in.xattrs[string(op.Name)] = value

	reply.Ok()
}

func (fs *memFS) Fallocate(
	ctx context.Context,
	op *fuseops.FallocateOp,
	reply *fuse.ReplyEmpty) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	in := fs.getInodeOrDie(op.Header().Inode)

	if err := in.Fallocate(op.Mode, op.Offset, op.Length); err != nil {
		reply.Error(err)
		return
	}

	reply.Ok()
}
