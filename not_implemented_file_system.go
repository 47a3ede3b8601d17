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

// Embed this within your file system type to inherit default implementations
// of all methods. Init and Destroy succeed trivially; everything else
// returns ENOSYS.
type NotImplementedFileSystem struct {
}

var _ FileSystem = &NotImplementedFileSystem{}

func (fs *NotImplementedFileSystem) Init(
	ctx context.Context,
	op *fuseops.InitOp,
	config *KernelConfig) error {
	return nil
}

func (fs *NotImplementedFileSystem) Destroy() {
}

func (fs *NotImplementedFileSystem) LookUpInode(
	ctx context.Context,
	op *fuseops.LookUpInodeOp,
	reply *ReplyEntry) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) GetInodeAttributes(
	ctx context.Context,
	op *fuseops.GetInodeAttributesOp,
	reply *ReplyAttr) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) SetInodeAttributes(
	ctx context.Context,
	op *fuseops.SetInodeAttributesOp,
	reply *ReplyAttr) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) ForgetInode(
	ctx context.Context,
	op *fuseops.ForgetInodeOp) {
}

func (fs *NotImplementedFileSystem) BatchForget(
	ctx context.Context,
	op *fuseops.BatchForgetOp) {
}

func (fs *NotImplementedFileSystem) MkDir(
	ctx context.Context,
	op *fuseops.MkDirOp,
	reply *ReplyEntry) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) MkNode(
	ctx context.Context,
	op *fuseops.MkNodeOp,
	reply *ReplyEntry) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) CreateFile(
	ctx context.Context,
	op *fuseops.CreateFileOp,
	reply *ReplyCreate) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) CreateSymlink(
	ctx context.Context,
	op *fuseops.CreateSymlinkOp,
	reply *ReplyEntry) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) CreateLink(
	ctx context.Context,
	op *fuseops.CreateLinkOp,
	reply *ReplyEntry) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) Rename(
	ctx context.Context,
	op *fuseops.RenameOp,
	reply *ReplyEmpty) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) RmDir(
	ctx context.Context,
	op *fuseops.RmDirOp,
	reply *ReplyEmpty) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) Unlink(
	ctx context.Context,
	op *fuseops.UnlinkOp,
	reply *ReplyEmpty) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) OpenDir(
	ctx context.Context,
	op *fuseops.OpenDirOp,
	reply *ReplyOpen) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) ReadDir(
	ctx context.Context,
	op *fuseops.ReadDirOp,
	reply *ReplyDirectory) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) ReadDirPlus(
	ctx context.Context,
	op *fuseops.ReadDirPlusOp,
	reply *ReplyDirectoryPlus) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) ReleaseDirHandle(
	ctx context.Context,
	op *fuseops.ReleaseDirHandleOp,
	reply *ReplyEmpty) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) SyncDir(
	ctx context.Context,
	op *fuseops.SyncDirOp,
	reply *ReplyEmpty) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) OpenFile(
	ctx context.Context,
	op *fuseops.OpenFileOp,
	reply *ReplyOpen) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) ReadFile(
	ctx context.Context,
	op *fuseops.ReadFileOp,
	reply *ReplyData) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) WriteFile(
	ctx context.Context,
	op *fuseops.WriteFileOp,
	reply *ReplyWrite) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) SyncFile(
	ctx context.Context,
	op *fuseops.SyncFileOp,
	reply *ReplyEmpty) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) FlushFile(
	ctx context.Context,
	op *fuseops.FlushFileOp,
	reply *ReplyEmpty) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) ReleaseFileHandle(
	ctx context.Context,
	op *fuseops.ReleaseFileHandleOp,
	reply *ReplyEmpty) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) ReadSymlink(
	ctx context.Context,
	op *fuseops.ReadSymlinkOp,
	reply *ReplyData) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) GetXattr(
	ctx context.Context,
	op *fuseops.GetXattrOp,
	reply *ReplyXattr) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) ListXattr(
	ctx context.Context,
	op *fuseops.ListXattrOp,
	reply *ReplyXattr) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) RemoveXattr(
	ctx context.Context,
	op *fuseops.RemoveXattrOp,
	reply *ReplyEmpty) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) SetXattr(
	ctx context.Context,
	op *fuseops.SetXattrOp,
	reply *ReplyEmpty) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) GetLock(
	ctx context.Context,
	op *fuseops.GetLockOp,
	reply *ReplyLock) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) SetLock(
	ctx context.Context,
	op *fuseops.SetLockOp,
	reply *ReplyEmpty) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) StatFS(
	ctx context.Context,
	op *fuseops.StatFSOp,
	reply *ReplyStatfs) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) Access(
	ctx context.Context,
	op *fuseops.AccessOp,
	reply *ReplyEmpty) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) Bmap(
	ctx context.Context,
	op *fuseops.BmapOp,
	reply *ReplyBmap) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) Fallocate(
	ctx context.Context,
	op *fuseops.FallocateOp,
	reply *ReplyEmpty) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) Lseek(
	ctx context.Context,
	op *fuseops.LseekOp,
	reply *ReplyLseek) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) CopyFileRange(
	ctx context.Context,
	op *fuseops.CopyFileRangeOp,
	reply *ReplyWrite) {
	reply.Error(ENOSYS)
}

func (fs *NotImplementedFileSystem) Ioctl(
	ctx context.Context,
	op *fuseops.IoctlOp,
	reply *ReplyIoctl) {
	reply.Error(ENOSYS)
}
