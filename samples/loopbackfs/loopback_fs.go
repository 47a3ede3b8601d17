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

// Package loopbackfs mirrors a directory of the local file system. It
// exists to demonstrate serving from a real backing store, including
// writes and space preallocation; it is not hardened against the backing
// directory changing underneath it.
package loopbackfs

import (
	"context"
	"io"
	"log"
	"os"
	"path"
	"sync"
	"syscall"
	"time"

	"github.com/detailyang/go-fallocate"

	"github.com/emberfs/fuse"
	"github.com/emberfs/fuse/fuseops"
	"github.com/emberfs/fuse/fuseutil"
)

type loopbackFS struct {
	fuse.NotImplementedFileSystem

	root   string
	logger *log.Logger

	mu sync.Mutex

	// Paths of known inodes, keyed by the backing file system's inode
	// numbers, which we pass through as our own. Entries are added on
	// lookup and dropped on forget.
	paths map[fuseops.InodeID]string // GUARDED_BY(mu)

	// Open file handles.
	nextHandle fuseops.HandleID            // GUARDED_BY(mu)
	files      map[fuseops.HandleID]*os.File // GUARDED_BY(mu)
}

// NewLoopbackFS creates a file system mirroring the directory at the
// supplied path.
func NewLoopbackFS(root string, logger *log.Logger) (fuse.FileSystem, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, syscall.ENOTDIR
	}

	fs := &loopbackFS{
		root:   root,
		logger: logger,
		paths:  make(map[fuseops.InodeID]string),
		files:  make(map[fuseops.HandleID]*os.File),
	}

	fs.paths[fuseops.RootInodeID] = root
	return fs, nil
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

// errno maps an error from the os package to the errno the kernel should
// see.
func errno(err error) error {
	if pe, ok := err.(*os.PathError); ok {
		err = pe.Err
	}
	if le, ok := err.(*os.LinkError); ok {
		err = le.Err
	}

	if e, ok := err.(syscall.Errno); ok {
		return e
	}

	switch {
	case os.IsNotExist(err):
		return fuse.ENOENT
	case os.IsExist(err):
		return fuse.EEXIST
	case os.IsPermission(err):
		return fuse.EACCES
	}

	return fuse.EIO
}

func convertFileInfo(fi os.FileInfo) (fuseops.InodeID, fuseops.InodeAttributes) {
	stat := fi.Sys().(*syscall.Stat_t)

	return fuseops.InodeID(stat.Ino), fuseops.InodeAttributes{
		Size:  uint64(fi.Size()),
		Nlink: uint32(stat.Nlink),
		Mode:  fi.Mode(),
		Mtime: fi.ModTime(),
		Uid:   stat.Uid,
		Gid:   stat.Gid,
	}
}

// LOCKS_REQUIRED(fs.mu)
func (fs *loopbackFS) pathOrDie(id fuseops.InodeID) string {
	p, ok := fs.paths[id]
	if !ok {
		panic("unknown inode")
	}

	return p
}

// Stat the named child of the parent and remember its path, returning the
// lookup result for it.
//
// LOCKS_REQUIRED(fs.mu)
func (fs *loopbackFS) lookUpChild(
	parent fuseops.InodeID,
	name string) (fuseops.ChildInodeEntry, error) {
	childPath := path.Join(fs.pathOrDie(parent), name)

	fi, err := os.Lstat(childPath)
	if err != nil {
		return fuseops.ChildInodeEntry{}, errno(err)
	}

	id, attrs := convertFileInfo(fi)
	fs.paths[id] = childPath

	return fuseops.ChildInodeEntry{
		Child:                id,
		Attributes:           attrs,
		AttributesExpiration: time.Now().Add(time.Minute),
		EntryExpiration:      time.Now().Add(time.Minute),
	}, nil
}

// LOCKS_REQUIRED(fs.mu)
func (fs *loopbackFS) fileOrDie(h fuseops.HandleID) *os.File {
	f, ok := fs.files[h]
	if !ok {
		panic("unknown handle")
	}

	return f
}

// LOCKS_REQUIRED(fs.mu)
func (fs *loopbackFS) mintHandle(f *os.File) fuseops.HandleID {
	h := fs.nextHandle
	fs.nextHandle++
	fs.files[h] = f
	return h
}

////////////////////////////////////////////////////////////////////////
// FileSystem methods
////////////////////////////////////////////////////////////////////////

func (fs *loopbackFS) StatFS(
	ctx context.Context,
	op *fuseops.StatFSOp,
	reply *fuse.ReplyStatfs) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(fs.root, &st); err != nil {
		reply.Error(errno(err))
		return
	}

	reply.Statfs(&fuse.Statfs{
		BlockSize:       uint32(st.Bsize),
		Blocks:          st.Blocks,
		BlocksFree:      st.Bfree,
		BlocksAvailable: st.Bavail,
		IoSize:          uint32(st.Bsize),
		Inodes:          uint64(st.Files),
		InodesFree:      uint64(st.Ffree),
	})
}

func (fs *loopbackFS) LookUpInode(
	ctx context.Context,
	op *fuseops.LookUpInodeOp,
	reply *fuse.ReplyEntry) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	e, err := fs.lookUpChild(op.Header().Inode, string(op.Name))
	if err != nil {
		reply.Error(err)
		return
	}

	reply.Entry(&e)
}

func (fs *loopbackFS) GetInodeAttributes(
	ctx context.Context,
	op *fuseops.GetInodeAttributesOp,
	reply *fuse.ReplyAttr) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	inode := op.Header().Inode

	fi, err := os.Lstat(fs.pathOrDie(inode))
	if err != nil {
		reply.Error(errno(err))
		return
	}

	_, attrs := convertFileInfo(fi)
	reply.Attr(inode, &attrs, time.Now().Add(time.Minute))
}

func (fs *loopbackFS) SetInodeAttributes(
	ctx context.Context,
	op *fuseops.SetInodeAttributesOp,
	reply *fuse.ReplyAttr) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	inode := op.Header().Inode
	p := fs.pathOrDie(inode)

	if op.Size != nil {
		if err := os.Truncate(p, int64(*op.Size)); err != nil {
			reply.Error(errno(err))
			return
		}
	}

	if op.Mode != nil {
		if err := os.Chmod(p, *op.Mode); err != nil {
			reply.Error(errno(err))
			return
		}
	}

	if op.Mtime != nil {
		if err := os.Chtimes(p, time.Now(), *op.Mtime); err != nil {
			reply.Error(errno(err))
			return
		}
	}

	fi, err := os.Lstat(p)
	if err != nil {
		reply.Error(errno(err))
		return
	}

	_, attrs := convertFileInfo(fi)
	reply.Attr(inode, &attrs, time.Now().Add(time.Minute))
}

func (fs *loopbackFS) ForgetInode(
	ctx context.Context,
	op *fuseops.ForgetInodeOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	inode := op.Header().Inode
	if inode != fuseops.RootInodeID {
		delete(fs.paths, inode)
	}
}

func (fs *loopbackFS) BatchForget(
	ctx context.Context,
	op *fuseops.BatchForgetOp) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	for _, e := range op.Entries {
		if e.Inode != fuseops.RootInodeID {
			delete(fs.paths, e.Inode)
		}
	}
}

func (fs *loopbackFS) MkDir(
	ctx context.Context,
	op *fuseops.MkDirOp,
	reply *fuse.ReplyEntry) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent := op.Header().Inode
	name := string(op.Name)

	if err := os.Mkdir(path.Join(fs.pathOrDie(parent), name), op.Mode); err != nil {
		reply.Error(errno(err))
		return
	}

	e, err := fs.lookUpChild(parent, name)
	if err != nil {
		reply.Error(err)
		return
	}

	reply.Entry(&e)
}

func (fs *loopbackFS) CreateFile(
	ctx context.Context,
	op *fuseops.CreateFileOp,
	reply *fuse.ReplyCreate) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent := op.Header().Inode
	name := string(op.Name)

	f, err := os.OpenFile(
		path.Join(fs.pathOrDie(parent), name),
		os.O_RDWR|os.O_CREATE|os.O_EXCL,
		op.Mode)
	if err != nil {
		reply.Error(errno(err))
		return
	}

	e, lerr := fs.lookUpChild(parent, name)
	if lerr != nil {
		f.Close()
		reply.Error(lerr)
		return
	}

	reply.Created(&e, fs.mintHandle(f))
}

func (fs *loopbackFS) CreateSymlink(
	ctx context.Context,
	op *fuseops.CreateSymlinkOp,
	reply *fuse.ReplyEntry) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parent := op.Header().Inode
	name := string(op.Name)

	if err := os.Symlink(string(op.Target), path.Join(fs.pathOrDie(parent), name)); err != nil {
		reply.Error(errno(err))
		return
	}

	e, err := fs.lookUpChild(parent, name)
	if err != nil {
		reply.Error(err)
		return
	}

	reply.Entry(&e)
}

func (fs *loopbackFS) Rename(
	ctx context.Context,
	op *fuseops.RenameOp,
	reply *fuse.ReplyEmpty) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	oldPath := path.Join(fs.pathOrDie(op.Header().Inode), string(op.OldName))
	newPath := path.Join(fs.pathOrDie(op.NewParent), string(op.NewName))

	if err := os.Rename(oldPath, newPath); err != nil {
		reply.Error(errno(err))
		return
	}

	reply.Ok()
}

func (fs *loopbackFS) RmDir(
	ctx context.Context,
	op *fuseops.RmDirOp,
	reply *fuse.ReplyEmpty) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p := path.Join(fs.pathOrDie(op.Header().Inode), string(op.Name))

	if err := syscall.Rmdir(p); err != nil {
		reply.Error(errno(err))
		return
	}

	reply.Ok()
}

func (fs *loopbackFS) Unlink(
	ctx context.Context,
	op *fuseops.UnlinkOp,
	reply *fuse.ReplyEmpty) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p := path.Join(fs.pathOrDie(op.Header().Inode), string(op.Name))

	if err := syscall.Unlink(p); err != nil {
		reply.Error(errno(err))
		return
	}

	reply.Ok()
}

func (fs *loopbackFS) OpenDir(
	ctx context.Context,
	op *fuseops.OpenDirOp,
	reply *fuse.ReplyOpen) {
	reply.Opened(0)
}

func (fs *loopbackFS) ReadDir(
	ctx context.Context,
	op *fuseops.ReadDirOp,
	reply *fuse.ReplyDirectory) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	entries, err := os.ReadDir(fs.pathOrDie(op.Header().Inode))
	if err != nil {
		reply.Error(errno(err))
		return
	}

	if op.Offset > fuseops.DirOffset(len(entries)) {
		reply.Error(fuse.EINVAL)
		return
	}

	for i, entry := range entries[op.Offset:] {
		dtype := fuseutil.DT_File
		switch {
		case entry.IsDir():
			dtype = fuseutil.DT_Directory
		case entry.Type()&os.ModeSymlink != 0:
			dtype = fuseutil.DT_Link
		}

		info, err := entry.Info()
		if err != nil {
			reply.Error(errno(err))
			return
		}
		id, _ := convertFileInfo(info)

		full := reply.AddDirent(fuseutil.Dirent{
			Offset: op.Offset + fuseops.DirOffset(i) + 1,
			Inode:  id,
			Name:   entry.Name(),
			Type:   dtype,
		})
		if full {
			break
		}
	}

	reply.Ok()
}

func (fs *loopbackFS) ReleaseDirHandle(
	ctx context.Context,
	op *fuseops.ReleaseDirHandleOp,
	reply *fuse.ReplyEmpty) {
	reply.Ok()
}

func (fs *loopbackFS) OpenFile(
	ctx context.Context,
	op *fuseops.OpenFileOp,
	reply *fuse.ReplyOpen) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.OpenFile(fs.pathOrDie(op.Header().Inode), os.O_RDWR, 0)
	if err != nil {
		reply.Error(errno(err))
		return
	}

	reply.Opened(fs.mintHandle(f))
}

func (fs *loopbackFS) ReadFile(
	ctx context.Context,
	op *fuseops.ReadFileOp,
	reply *fuse.ReplyData) {
	fs.mu.Lock()
	f := fs.fileOrDie(op.Handle)
	fs.mu.Unlock()

	data := make([]byte, op.Size)
	n, err := f.ReadAt(data, op.Offset)
	if err != nil && err != io.EOF {
		reply.Error(errno(err))
		return
	}

	reply.Data(data[:n])
}

func (fs *loopbackFS) WriteFile(
	ctx context.Context,
	op *fuseops.WriteFileOp,
	reply *fuse.ReplyWrite) {
	fs.mu.Lock()
	f := fs.fileOrDie(op.Handle)
	fs.mu.Unlock()

	n, err := f.WriteAt(op.Data, op.Offset)
	if err != nil {
		reply.Error(errno(err))
		return
	}

	reply.Wrote(uint32(n))
}

func (fs *loopbackFS) SyncFile(
	ctx context.Context,
	op *fuseops.SyncFileOp,
	reply *fuse.ReplyEmpty) {
	fs.mu.Lock()
	f := fs.fileOrDie(op.Handle)
	fs.mu.Unlock()

	if err := f.Sync(); err != nil {
		reply.Error(errno(err))
		return
	}

	reply.Ok()
}

func (fs *loopbackFS) FlushFile(
	ctx context.Context,
	op *fuseops.FlushFileOp,
	reply *fuse.ReplyEmpty) {
	reply.Ok()
}

func (fs *loopbackFS) ReleaseFileHandle(
	ctx context.Context,
	op *fuseops.ReleaseFileHandleOp,
	reply *fuse.ReplyEmpty) {
	fs.mu.Lock()
	f := fs.fileOrDie(op.Handle)
	delete(fs.files, op.Handle)
	fs.mu.Unlock()

	if err := f.Close(); err != nil {
		fs.logger.Printf("close: %v", err)
	}

	reply.Ok()
}

func (fs *loopbackFS) ReadSymlink(
	ctx context.Context,
	op *fuseops.ReadSymlinkOp,
	reply *fuse.ReplyData) {
	fs.mu.Lock()
	p := fs.pathOrDie(op.Header().Inode)
	fs.mu.Unlock()

	target, err := os.Readlink(p)
	if err != nil {
		reply.Error(errno(err))
		return
	}

	reply.DataString(target)
}

func (fs *loopbackFS) Fallocate(
	ctx context.Context,
	op *fuseops.FallocateOp,
	reply *fuse.ReplyEmpty) {
	// Only plain preallocation is supported.
	if op.Mode != 0 {
		reply.Error(fuse.ENOSYS)
		return
	}

	fs.mu.Lock()
	f := fs.fileOrDie(op.Handle)
	fs.mu.Unlock()

	if err := fallocate.Fallocate(f, int64(op.Offset), int64(op.Length)); err != nil {
		reply.Error(errno(err))
		return
	}

	reply.Ok()
}
