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

import (
	"os"
	"syscall"

	"github.com/emberfs/fuse/internal/fusekernel"
)

// ConvertGoMode translates an os.FileMode to the packed mode_t form used on
// the wire, combining the file type bits with the permission bits.
func ConvertGoMode(m os.FileMode) (mode uint32) {
	mode = uint32(m & os.ModePerm)
	if m&os.ModeSetuid != 0 {
		mode |= syscall.S_ISUID
	}
	if m&os.ModeSetgid != 0 {
		mode |= syscall.S_ISGID
	}
	if m&os.ModeSticky != 0 {
		mode |= syscall.S_ISVTX
	}

	switch {
	case m&os.ModeDir != 0:
		mode |= syscall.S_IFDIR
	case m&os.ModeSymlink != 0:
		mode |= syscall.S_IFLNK
	case m&os.ModeNamedPipe != 0:
		mode |= syscall.S_IFIFO
	case m&os.ModeSocket != 0:
		mode |= syscall.S_IFSOCK
	case m&os.ModeCharDevice != 0:
		mode |= syscall.S_IFCHR
	case m&os.ModeDevice != 0:
		mode |= syscall.S_IFBLK
	default:
		mode |= syscall.S_IFREG
	}

	return
}

// ConvertKernelMode is the inverse of ConvertGoMode.
func ConvertKernelMode(mode uint32) (m os.FileMode) {
	m = os.FileMode(mode & 0777)
	if mode&syscall.S_ISUID != 0 {
		m |= os.ModeSetuid
	}
	if mode&syscall.S_ISGID != 0 {
		m |= os.ModeSetgid
	}
	if mode&syscall.S_ISVTX != 0 {
		m |= os.ModeSticky
	}

	switch mode & syscall.S_IFMT {
	case syscall.S_IFDIR:
		m |= os.ModeDir
	case syscall.S_IFLNK:
		m |= os.ModeSymlink
	case syscall.S_IFIFO:
		m |= os.ModeNamedPipe
	case syscall.S_IFSOCK:
		m |= os.ModeSocket
	case syscall.S_IFCHR:
		m |= os.ModeCharDevice | os.ModeDevice
	case syscall.S_IFBLK:
		m |= os.ModeDevice
	}

	return
}

// DirentTypeFor returns the wire directory entry type corresponding to the
// supplied mode.
func DirentTypeFor(m os.FileMode) fusekernel.DirentType {
	return fusekernel.DirentType(ConvertGoMode(m) >> 12)
}
