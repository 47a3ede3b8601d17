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

// DarwinFileSystem is an optional extension of FileSystem for the macOS-only
// operations. A file system that does not implement it receives ENOSYS
// replies for these on its behalf.
type DarwinFileSystem interface {
	FileSystem

	// Set the volume name displayed in Finder.
	SetVolumeName(ctx context.Context, op *fuseops.SetVolumeNameOp, reply *ReplyEmpty)

	// Report the inode's backup and creation times.
	GetXTimes(ctx context.Context, op *fuseops.GetXTimesOp, reply *ReplyXTimes)

	// Atomically exchange two directory entries: exchangedata(2).
	Exchange(ctx context.Context, op *fuseops.ExchangeOp, reply *ReplyEmpty)
}
