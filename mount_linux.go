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
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

func findFusermount() (string, error) {
	path, err := exec.LookPath("fusermount3")
	if err != nil {
		path, err = exec.LookPath("fusermount")
	}
	if err != nil {
		return "", err
	}
	return path, nil
}

func fusermountViaHelper(dir string, cfg *MountConfig) (*os.File, error) {
	binary, err := findFusermount()
	if err != nil {
		return nil, err
	}

	argv := []string{
		"-o", cfg.toOptionsString(),
		"--",
		dir,
	}

	return fusermount(binary, argv, nil, true)
}

func enableFunc(flag uintptr) func(uintptr) uintptr {
	return func(v uintptr) uintptr {
		return v | flag
	}
}

func disableFunc(flag uintptr) func(uintptr) uintptr {
	return func(v uintptr) uintptr {
		return v &^ flag
	}
}

// Options that translate to mount(2) flags rather than fuse data string
// entries, as fusermount itself treats them.
var mountflagopts = map[string]func(uintptr) uintptr{
	"rw":      disableFunc(unix.MS_RDONLY),
	"ro":      enableFunc(unix.MS_RDONLY),
	"suid":    disableFunc(unix.MS_NOSUID),
	"nosuid":  enableFunc(unix.MS_NOSUID),
	"dev":     disableFunc(unix.MS_NODEV),
	"nodev":   enableFunc(unix.MS_NODEV),
	"exec":    disableFunc(unix.MS_NOEXEC),
	"noexec":  enableFunc(unix.MS_NOEXEC),
	"async":   disableFunc(unix.MS_SYNCHRONOUS),
	"sync":    enableFunc(unix.MS_SYNCHRONOUS),
	"atime":   disableFunc(unix.MS_NOATIME),
	"noatime": enableFunc(unix.MS_NOATIME),
	"dirsync": enableFunc(unix.MS_DIRSYNC),
}

var errFallback = errors.New("sentinel: fallback to fusermount(1)")

func directmount(dir string, cfg *MountConfig) (*os.File, error) {
	// auto_unmount is implemented entirely inside fusermount; a direct mount
	// cannot honor it.
	if cfg.EnableAutoUnmount {
		return nil, errFallback
	}

	// We use syscall.Open + os.NewFile instead of os.OpenFile so that the
	// file is opened in blocking mode. When opened in non-blocking mode, the
	// Go runtime tries to use poll(2), which does not work with /dev/fuse.
	fd, err := syscall.Open("/dev/fuse", syscall.O_RDWR, 0644)
	if err != nil {
		return nil, errFallback
	}
	dev := os.NewFile(uintptr(fd), "/dev/fuse")

	data := fmt.Sprintf("fd=%d,rootmode=40000,user_id=%d,group_id=%d",
		dev.Fd(), os.Getuid(), os.Getgid())

	mountflag := uintptr(unix.MS_NODEV | unix.MS_NOSUID)
	opts := cfg.toMap()
	for k := range opts {
		fn, ok := mountflagopts[k]
		if !ok {
			continue
		}
		mountflag = fn(mountflag)
		delete(opts, k)
	}

	fsname := opts["fsname"]
	delete(opts, "fsname") // handled via the mount(2) source parameter
	fstype := "fuse"
	if subtype, ok := opts["subtype"]; ok {
		fstype += "." + subtype
	}
	delete(opts, "subtype")
	data += "," + mapToOptionsString(opts)

	if err := unix.Mount(
		fsname,    // source
		dir,       // target
		fstype,    // fstype
		mountflag, // mountflag
		data,      // data
	); err != nil {
		dev.Close()
		if err == syscall.EPERM {
			return nil, errFallback
		}
		return nil, err
	}
	return dev, nil
}

// Begin the process of mounting at the given directory, returning a
// connection to the kernel. Mounting continues in the background, and is
// complete when an error is written to the supplied channel. The file
// system may need to service the connection in order for mounting to
// complete.
func mount(dir string, cfg *MountConfig, ready chan<- error) (*os.File, error) {
	// On linux, mounting is never delayed.
	ready <- nil

	// A mount point of the form /dev/fd/N denotes an already-open fuse
	// device inherited from a parent process, per fusermount's magic
	// mountpoint protocol. No mounting is needed; just adopt the fd.
	if fd, err := parseFuseFd(dir); err == nil {
		syscall.SetNonblock(fd, false)
		return os.NewFile(uintptr(fd), "/dev/fuse"), nil
	}

	// Try mounting without fusermount(1) first: we might be running as root
	// or have the CAP_SYS_ADMIN capability.
	dev, err := directmount(dir, cfg)
	if err == errFallback {
		return fusermountViaHelper(dir, cfg)
	}
	return dev, err
}

func parseFuseFd(dir string) (int, error) {
	if !strings.HasPrefix(dir, "/dev/fd/") {
		return -1, fmt.Errorf("not a /dev/fd mount point: %q", dir)
	}

	fd, err := strconv.Atoi(strings.TrimPrefix(dir, "/dev/fd/"))
	if err != nil || fd < 0 {
		return -1, fmt.Errorf("invalid fd in mount point %q", dir)
	}

	return fd, nil
}
