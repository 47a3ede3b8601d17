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

// Set the name of the mounted volume, as shown in the Finder. Sent only by
// osxfuse.
type SetVolumeNameOp struct {
	commonOp

	// The new volume name. Aliases the request buffer.
	Name []byte
}

// Report the backup and creation times of the inode identified by
// Header().Inode. Sent only by osxfuse.
type GetXTimesOp struct {
	commonOp
}

// Atomically exchange two files, as called for by exchangedata(2). The old
// parent directory is identified by Header().Inode. Sent only by osxfuse.
type ExchangeOp struct {
	commonOp

	// The old name, within the old parent. Aliases the request buffer.
	OldName []byte

	// The new parent directory and the name within it. The name aliases the
	// request buffer.
	NewParent InodeID
	NewName   []byte

	// exchangedata(2) options.
	Options uint64
}
