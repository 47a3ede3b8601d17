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

package hellofs

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jacobsa/timeutil"

	"github.com/emberfs/fuse"
	"github.com/emberfs/fuse/fuseops"
	"github.com/emberfs/fuse/fuseutil"
)

// A file system with a fixed structure that looks like this:
//
//	hello
//	dir/
//	    world
//
// Each file contains the string "Hello, world!".
type HelloFS struct {
	fuse.NotImplementedFileSystem
	Clock timeutil.Clock
}

var _ fuse.FileSystem = &HelloFS{}

const (
	rootInode fuseops.InodeID = fuseops.RootInodeID + iota
	helloInode
	dirInode
	worldInode
)

type inodeInfo struct {
	attributes fuseops.InodeAttributes

	// File or directory?
	dir bool

	// For directories, children.
	children []fuseutil.Dirent
}

// We have a fixed directory structure.
var gInodeInfo = map[fuseops.InodeID]inodeInfo{
	// root
	rootInode: {
		attributes: fuseops.InodeAttributes{
			Nlink: 1,
			Mode:  0555 | os.ModeDir,
		},
		dir: true,
		children: []fuseutil.Dirent{
			{
				Offset: 1,
				Inode:  helloInode,
				Name:   "hello",
				Type:   fuseutil.DT_File,
			},
			{
				Offset: 2,
				Inode:  dirInode,
				Name:   "dir",
				Type:   fuseutil.DT_Directory,
			},
		},
	},

	// hello
	helloInode: {
		attributes: fuseops.InodeAttributes{
			Nlink: 1,
			Mode:  0444,
			Size:  uint64(len("Hello, world!")),
		},
	},

	// dir
	dirInode: {
		attributes: fuseops.InodeAttributes{
			Nlink: 1,
			Mode:  0555 | os.ModeDir,
		},
		dir: true,
		children: []fuseutil.Dirent{
			{
				Offset: 1,
				Inode:  worldInode,
				Name:   "world",
				Type:   fuseutil.DT_File,
			},
		},
	},

	// world
	worldInode: {
		attributes: fuseops.InodeAttributes{
			Nlink: 1,
			Mode:  0444,
			Size:  uint64(len("Hello, world!")),
		},
	},
}

func findChildInode(
	name string,
	children []fuseutil.Dirent) (fuseops.InodeID, error) {
	for _, e := range children {
		if e.Name == name {
			return e.Inode, nil
		}
	}

	return 0, fuse.ENOENT
}

func (fs *HelloFS) patchAttributes(attr *fuseops.InodeAttributes) {
	now := fs.Clock.Now()
	attr.Atime = now
	attr.Mtime = now
	attr.Crtime = now
}

func (fs *HelloFS) LookUpInode(
	ctx context.Context,
	op *fuseops.LookUpInodeOp,
	reply *fuse.ReplyEntry) {
	// Find the info for the parent.
	parentInfo, ok := gInodeInfo[op.Header().Inode]
	if !ok {
		reply.Error(fuse.ENOENT)
		return
	}

	// Find the child within the parent.
	childInode, err := findChildInode(string(op.Name), parentInfo.children)
	if err != nil {
		reply.Error(err)
		return
	}

	// Copy over information.
	e := fuseops.ChildInodeEntry{
		Child:      childInode,
		Attributes: gInodeInfo[childInode].attributes,
	}
	fs.patchAttributes(&e.Attributes)

	reply.Entry(&e)
}

func (fs *HelloFS) GetInodeAttributes(
	ctx context.Context,
	op *fuseops.GetInodeAttributesOp,
	reply *fuse.ReplyAttr) {
	inode := op.Header().Inode

	// Find the info for this inode.
	info, ok := gInodeInfo[inode]
	if !ok {
		reply.Error(fuse.ENOENT)
		return
	}

	// Copy over its attributes.
	attrs := info.attributes
	fs.patchAttributes(&attrs)

	reply.Attr(inode, &attrs, time.Time{})
}

func (fs *HelloFS) OpenDir(
	ctx context.Context,
	op *fuseops.OpenDirOp,
	reply *fuse.ReplyOpen) {
	// Allow opening any directory.
	reply.Opened(0)
}

func (fs *HelloFS) ReadDir(
	ctx context.Context,
	op *fuseops.ReadDirOp,
	reply *fuse.ReplyDirectory) {
	// Find the info for this inode.
	info, ok := gInodeInfo[op.Header().Inode]
	if !ok {
		reply.Error(fuse.ENOENT)
		return
	}

	if !info.dir {
		reply.Error(fuse.EIO)
		return
	}

	entries := info.children

	// Grab the range of interest.
	if op.Offset > fuseops.DirOffset(len(entries)) {
		reply.Error(fuse.EIO)
		return
	}

	// Resume at the specified offset into the array.
	for _, e := range entries[op.Offset:] {
		if reply.AddDirent(e) {
			break
		}
	}

	reply.Ok()
}

func (fs *HelloFS) OpenFile(
	ctx context.Context,
	op *fuseops.OpenFileOp,
	reply *fuse.ReplyOpen) {
	// Allow opening any file.
	reply.Opened(0)
}

func (fs *HelloFS) ReadFile(
	ctx context.Context,
	op *fuseops.ReadFileOp,
	reply *fuse.ReplyData) {
	// Let io.ReaderAt deal with the semantics.
	reader := strings.NewReader("Hello, world!")

	data := make([]byte, op.Size)
	n, err := reader.ReadAt(data, op.Offset)

	// FUSE represents end of file as a short read, not as io.EOF.
	if err != nil && err != io.EOF {
		reply.Error(err)
		return
	}

	reply.Data(data[:n])
}
