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
	"os"
	"testing"

	"github.com/jacobsa/timeutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberfs/fuse"
	"github.com/emberfs/fuse/fuseops"
	"github.com/emberfs/fuse/fuseutil"
)

func newTestDir() *inode {
	return newInode(timeutil.RealClock(), fuseops.InodeAttributes{
		Nlink: 1,
		Mode:  0700 | os.ModeDir,
	})
}

func newTestFile() *inode {
	return newInode(timeutil.RealClock(), fuseops.InodeAttributes{
		Nlink: 1,
		Mode:  0600,
	})
}

func TestDirEntriesSortedByName(t *testing.T) {
	dir := newTestDir()

	// Insert out of order.
	dir.AddChild(10, "zebra", fuseutil.DT_File)
	dir.AddChild(11, "apple", fuseutil.DT_Directory)
	dir.AddChild(12, "mango", fuseutil.DT_File)

	dirents := dir.ReadDir()
	require.Len(t, dirents, 3)

	assert.Equal(t, "apple", dirents[0].Name)
	assert.Equal(t, "mango", dirents[1].Name)
	assert.Equal(t, "zebra", dirents[2].Name)

	// Offsets are one past the entry's position, so a resumed read picks up
	// after the entry.
	for i, d := range dirents {
		assert.Equal(t, fuseops.DirOffset(i+1), d.Offset)
	}

	dir.CheckInvariants()
}

func TestDirLookUpAndRemove(t *testing.T) {
	dir := newTestDir()
	dir.AddChild(10, "foo", fuseutil.DT_File)

	id, dtype, ok := dir.LookUpChild("foo")
	require.True(t, ok)
	assert.Equal(t, fuseops.InodeID(10), id)
	assert.Equal(t, fuseutil.DT_File, dtype)

	_, _, ok = dir.LookUpChild("bar")
	assert.False(t, ok)

	dir.RemoveChild("foo")
	_, _, ok = dir.LookUpChild("foo")
	assert.False(t, ok)
	assert.Equal(t, 0, dir.ChildCount())
}

func TestFileWriteExtendsAndPads(t *testing.T) {
	f := newTestFile()

	n, err := f.WriteAt([]byte("taco"), 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	// Writing past the end leaves a hole of zeroes.
	_, err = f.WriteAt([]byte("burrito"), 10)
	require.NoError(t, err)

	assert.Equal(t, uint64(17), f.attrs.Size)
	assert.Equal(t, []byte("taco\x00\x00\x00\x00\x00\x00burrito"), f.contents)

	// Reads past the end are short, not errors.
	buf := make([]byte, 100)
	n, err = f.ReadAt(buf, 10)
	require.NoError(t, err)
	assert.Equal(t, "burrito", string(buf[:n]))

	n, err = f.ReadAt(buf, 1000)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	f.CheckInvariants()
}

func TestFileSetSize(t *testing.T) {
	f := newTestFile()

	_, err := f.WriteAt([]byte("enchilada"), 0)
	require.NoError(t, err)

	f.SetSize(4)
	assert.Equal(t, []byte("ench"), f.contents)

	f.SetSize(6)
	assert.Equal(t, []byte("ench\x00\x00"), f.contents)

	f.CheckInvariants()
}

func TestFileFallocate(t *testing.T) {
	f := newTestFile()

	require.NoError(t, f.Fallocate(0, 0, 16))
	assert.Equal(t, uint64(16), f.attrs.Size)

	// Preallocation never shrinks the file.
	require.NoError(t, f.Fallocate(0, 0, 4))
	assert.Equal(t, uint64(16), f.attrs.Size)

	// Only the default mode is supported.
	assert.Equal(t, fuse.ENOSYS, f.Fallocate(1, 0, 4))

	f.CheckInvariants()
}

func TestListingCache(t *testing.T) {
	lc := newListingCache(2)

	listing := []fuseutil.Dirent{{Inode: 10, Name: "foo"}}
	lc.insert(1, listing)

	got, ok := lc.lookup(1)
	require.True(t, ok)
	assert.Equal(t, listing, got)

	lc.invalidate(1)
	_, ok = lc.lookup(1)
	assert.False(t, ok)

	// Old entries fall out once the capacity is exceeded.
	lc.insert(1, listing)
	lc.insert(2, listing)
	lc.insert(3, listing)
	_, ok = lc.lookup(1)
	assert.False(t, ok)
}

func TestInodeAllocationReuse(t *testing.T) {
	fs := NewMemFS(123, 456, timeutil.RealClock()).(*memFS)

	id1, _ := fs.allocateInode(fuseops.InodeAttributes{Nlink: 1, Mode: 0600})
	id2, _ := fs.allocateInode(fuseops.InodeAttributes{Nlink: 1, Mode: 0600})
	assert.NotEqual(t, id1, id2)

	fs.checkInvariants()

	// A freed ID is handed out again.
	fs.deallocateInode(id1)
	fs.checkInvariants()

	id3, _ := fs.allocateInode(fuseops.InodeAttributes{Nlink: 1, Mode: 0600})
	assert.Equal(t, id1, id3)

	fs.checkInvariants()
}
