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

// A tool that mounts the memfs sample file system.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/user"
	"strconv"

	"github.com/emberfs/fuse"
	"github.com/emberfs/fuse/samples/memfs"
	"github.com/jacobsa/timeutil"
)

var fMountPoint = flag.String("mount_point", "", "Path to mount point.")
var fDebug = flag.Bool("debug", false, "Enable debug logging.")

func main() {
	flag.Parse()

	if *fMountPoint == "" {
		log.Fatalf("You must set --mount_point.")
	}

	user, err := user.Current()
	if err != nil {
		log.Fatalf("user.Current: %v", err)
	}

	uid, err := strconv.ParseUint(user.Uid, 10, 32)
	if err != nil {
		log.Fatalf("Parsing uid (%s): %v", user.Uid, err)
	}

	gid, err := strconv.ParseUint(user.Gid, 10, 32)
	if err != nil {
		log.Fatalf("Parsing gid (%s): %v", user.Gid, err)
	}

	server := memfs.NewMemFS(uint32(uid), uint32(gid), timeutil.RealClock())

	cfg := &fuse.MountConfig{
		ErrorLogger: log.New(os.Stderr, "fuse: ", 0),
	}

	if *fDebug {
		cfg.DebugLogger = log.New(os.Stderr, "fuse: ", 0)
	}

	mfs, err := fuse.Mount(*fMountPoint, server, cfg)
	if err != nil {
		log.Fatalf("Mount: %v", err)
	}

	// Wait for it to be unmounted.
	if err = mfs.Join(context.Background()); err != nil {
		log.Fatalf("Join: %v", err)
	}
}
