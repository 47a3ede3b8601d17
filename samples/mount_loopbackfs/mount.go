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

// A tool that mirrors an existing directory tree through the loopbackfs
// sample file system.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/emberfs/fuse"
	"github.com/emberfs/fuse/samples/loopbackfs"
)

var fMountPoint = flag.String("mount_point", "", "Path to mount point.")
var fTarget = flag.String("target", "", "Path to the directory to mirror.")
var fReadOnly = flag.Bool("read_only", false, "Mount in read-only mode.")
var fDebug = flag.Bool("debug", false, "Enable debug logging.")

func main() {
	flag.Parse()

	if *fMountPoint == "" {
		log.Fatalf("You must set --mount_point.")
	}

	if *fTarget == "" {
		log.Fatalf("You must set --target.")
	}

	server, err := loopbackfs.NewLoopbackFS(
		*fTarget,
		log.New(os.Stderr, "loopback: ", 0))
	if err != nil {
		log.Fatalf("NewLoopbackFS: %v", err)
	}

	cfg := &fuse.MountConfig{
		ReadOnly:    *fReadOnly,
		FSName:      "loopbackfs",
		Subtype:     "loopbackfs",
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
