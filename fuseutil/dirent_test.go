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
	"testing"
	"unsafe"

	"github.com/emberfs/fuse/fuseops"
	"github.com/emberfs/fuse/internal/fusekernel"
	. "github.com/jacobsa/ogletest"
)

func TestDirent(t *testing.T) { RunTests(t) }

type DirentTest struct {
}

func init() { RegisterTestSuite(&DirentTest{}) }

func (t *DirentTest) AppendAlignment() {
	// Names of every length modulo the alignment must produce records padded
	// to a multiple of eight bytes.
	names := []string{"a", "ab", "abc", "abcdefg", "abcdefgh", "abcdefghi"}

	for _, name := range names {
		b := AppendDirent(nil, Dirent{
			Offset: 1,
			Inode:  17,
			Name:   name,
			Type:   DT_File,
		})

		AssertEq(0, len(b)%8, "name %q", name)

		de := (*fusekernel.Dirent)(unsafe.Pointer(&b[0]))
		ExpectEq(17, de.Ino)
		ExpectEq(1, de.Off)
		ExpectEq(len(name), de.Namelen)
		ExpectEq(uint32(DT_File), de.Type)
		ExpectEq(name, string(b[fusekernel.DirentSize:fusekernel.DirentSize+len(name)]))
	}
}

func (t *DirentTest) ListRespectsCapacity() {
	const capacity = 64
	l := NewDirentList(capacity)

	// One record with a one-byte name occupies 24+8 = 32 bytes.
	full := l.AddDirent(Dirent{Offset: 1, Inode: 2, Name: "a", Type: DT_File})
	AssertFalse(full)
	AssertEq(32, l.Len())

	full = l.AddDirent(Dirent{Offset: 2, Inode: 3, Name: "b", Type: DT_File})
	AssertFalse(full)
	AssertEq(64, l.Len())

	// A third entry does not fit. The buffer must be left untouched.
	before := append([]byte(nil), l.Bytes()...)

	full = l.AddDirent(Dirent{Offset: 3, Inode: 4, Name: "c", Type: DT_File})
	ExpectTrue(full)
	ExpectEq(64, l.Len())
	ExpectEq(string(before), string(l.Bytes()))
}

func (t *DirentTest) ListNeverExceedsCapacity() {
	const capacity = 123
	l := NewDirentList(capacity)

	for i := 0; !l.AddDirent(Dirent{
		Offset: fuseops.DirOffset(i + 1),
		Inode:  fuseops.InodeID(i + 100),
		Name:   "somewhat_longer_name",
		Type:   DT_Directory,
	}); i++ {
	}

	ExpectLe(l.Len(), capacity)
}

func (t *DirentTest) PlusListRespectsCapacity() {
	entrySize := int(unsafe.Sizeof(fusekernel.EntryOut{}))

	// Room for exactly one record.
	capacity := entrySize + 32
	l := NewDirentPlusList(capacity)

	e := &fuseops.ChildInodeEntry{
		Child: 17,
		Attributes: fuseops.InodeAttributes{
			Nlink: 1,
			Mode:  0o644,
		},
	}

	full := l.AddDirentPlus(
		Dirent{Offset: 1, Inode: 17, Name: "a", Type: DT_File}, e)
	AssertFalse(full)
	AssertEq(capacity, l.Len())

	// The packed record must open with the lookup result.
	out := (*fusekernel.EntryOut)(unsafe.Pointer(&l.Bytes()[0]))
	ExpectEq(17, out.Nodeid)
	ExpectEq(17, out.Attr.Ino)

	// The plain dirent header follows.
	de := (*fusekernel.Dirent)(unsafe.Pointer(&l.Bytes()[entrySize]))
	ExpectEq(17, de.Ino)
	ExpectEq(1, de.Namelen)

	full = l.AddDirentPlus(
		Dirent{Offset: 2, Inode: 18, Name: "b", Type: DT_File}, e)
	ExpectTrue(full)
	ExpectEq(capacity, l.Len())
}
