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
	"github.com/emberfs/fuse/fuseops"
	"github.com/emberfs/fuse/fuseutil"
)

// ReplyDirectory answers readdir. The file system appends entries with
// AddDirent until it runs out of entries or AddDirent reports that the
// kernel's buffer is full, then finalizes with Ok. Unlike the other reply
// types it is filled incrementally, possibly across several callback
// invocations, but it must still be finalized exactly once.
type ReplyDirectory struct {
	r       replyRaw
	entries *fuseutil.DirentList
}

// AddDirent appends an entry to the listing. It returns true when the entry
// did not fit within the size the kernel requested; in that case nothing was
// written and the caller must stop adding and call Ok.
func (p *ReplyDirectory) AddDirent(d fuseutil.Dirent) (full bool) {
	return p.entries.AddDirent(d)
}

// Ok completes the reply with the entries added so far. An empty listing
// tells the kernel it has reached the end of the directory.
func (p *ReplyDirectory) Ok() {
	p.r.out.Append(p.entries.Bytes())
	p.r.sendOK()
}

func (p *ReplyDirectory) Error(err error) { p.r.sendError(err) }

// ReplyDirectoryPlus answers readdirplus, where each record carries a full
// entry (attributes and cache expirations) alongside the dirent. Entries
// added here acquire a kernel lookup reference, exactly as if the name had
// been looked up individually.
type ReplyDirectoryPlus struct {
	r       replyRaw
	entries *fuseutil.DirentPlusList
}

// AddDirentPlus appends an entry and its attributes to the listing,
// returning true when it did not fit.
func (p *ReplyDirectoryPlus) AddDirentPlus(
	d fuseutil.Dirent,
	e *fuseops.ChildInodeEntry) (full bool) {
	return p.entries.AddDirentPlus(d, e)
}

func (p *ReplyDirectoryPlus) Ok() {
	p.r.out.Append(p.entries.Bytes())
	p.r.sendOK()
}

func (p *ReplyDirectoryPlus) Error(err error) { p.r.sendError(err) }
