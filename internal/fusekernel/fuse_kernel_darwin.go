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

package fusekernel

// OS X only opcodes, spoken by osxfuse.
const (
	OpSetvolname Opcode = 61
	OpGetxtimes  Opcode = 62
	OpExchange   Opcode = 63
)

func init() {
	opcodeTable[OpSetvolname] = opcodeInfo{"OpSetvolname", 0}
	opcodeTable[OpGetxtimes] = opcodeInfo{"OpGetxtimes", 0}
	opcodeTable[OpExchange] = opcodeInfo{"OpExchange", 0}
}

// Inode attributes, as returned in EntryOut and AttrOut. The osxfuse
// layout interleaves the creation time with the standard timestamps and
// appends a BSD flags word.
//
// The Blksize field was appended in protocol 7.9; AttrSize reports how
// much of the struct a given protocol version understands.
type Attr struct {
	Ino        uint64
	Size       uint64
	Blocks     uint64
	Atime      uint64
	Mtime      uint64
	Ctime      uint64
	Crtime     uint64 // OS X only
	AtimeNsec  uint32
	MtimeNsec  uint32
	CtimeNsec  uint32
	CrtimeNsec uint32 // OS X only
	Mode       uint32
	Nlink      uint32
	Uid        uint32
	Gid        uint32
	Rdev       uint32
	Flags      uint32 // OS X only; chflags(2) flags
	Blksize    uint32
	Padding    uint32
}

func (a *Attr) SetCrtime(s uint64, ns uint32) {
	a.Crtime, a.CrtimeNsec = s, ns
}

func (a *Attr) SetFlags(f uint32) {
	a.Flags = f
}

type GetxtimesOut struct {
	Bkuptime     uint64
	Crtime       uint64
	BkuptimeNsec uint32
	CrtimeNsec   uint32
}

type ExchangeIn struct {
	Olddir  uint64
	Newdir  uint64
	Options uint64
	// "oldname\x00newname\x00" follows.
}
