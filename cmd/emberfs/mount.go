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

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/emberfs/fuse"
	"github.com/emberfs/fuse/samples/hellofs"
	"github.com/emberfs/fuse/samples/loopbackfs"
	"github.com/emberfs/fuse/samples/memfs"
	"github.com/jacobsa/daemonize"
	"github.com/jacobsa/timeutil"
)

// Create the file system requested by the configuration.
func makeFS(c *config) (fuse.FileSystem, error) {
	switch c.Type {
	case typeHello:
		return &hellofs.HelloFS{Clock: timeutil.RealClock()}, nil

	case typeMemFS:
		return memfs.NewMemFS(
			uint32(os.Getuid()),
			uint32(os.Getgid()),
			timeutil.RealClock()), nil

	case typeLoopback:
		return loopbackfs.NewLoopbackFS(
			c.Target,
			log.New(os.Stderr, "loopback: ", 0))
	}

	return nil, fmt.Errorf("unknown file system type %q", c.Type)
}

func makeMountConfig(c *config) (*fuse.MountConfig, error) {
	opts, err := parseOptions(c.Options)
	if err != nil {
		return nil, err
	}

	cfg := &fuse.MountConfig{
		FSName:      c.FSName,
		Subtype:     c.Subtype,
		ReadOnly:    c.ReadOnly,
		AllowOther:  c.AllowOther,
		Options:     opts,
		ErrorLogger: log.New(os.Stderr, "fuse: ", log.Flags()),
	}

	if cfg.FSName == "" {
		cfg.FSName = c.Type
	}

	if c.DebugFuse {
		cfg.DebugLogger = log.New(os.Stderr, "fuse_debug: ", log.Flags())
	}

	return cfg, nil
}

// Register a handler that unmounts the file system on SIGINT, so that Serve
// returns cleanly instead of the process dying with the mount still active.
func registerSIGINTHandler(mountPoint string) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)

	go func() {
		for range signalChan {
			log.Println("Received SIGINT, attempting to unmount...")
			if err := fuse.Unmount(mountPoint); err != nil {
				log.Printf("Failed to unmount in response to SIGINT: %v", err)
			} else {
				log.Println("Successfully unmounted in response to SIGINT.")
				return
			}
		}
	}()
}

// Mount and serve in the foreground, telling package daemonize about the
// outcome in case we are the daemon child.
func mountAndServe(c *config) error {
	server, err := makeFS(c)
	if err != nil {
		err = fmt.Errorf("makeFS: %w", err)
		daemonize.SignalOutcome(err)
		return err
	}

	cfg, err := makeMountConfig(c)
	if err != nil {
		daemonize.SignalOutcome(err)
		return err
	}

	mfs, err := fuse.Mount(c.MountPoint, server, cfg)
	if err != nil {
		err = fmt.Errorf("mounting %s at %s: %w", c.Type, c.MountPoint, err)
		daemonize.SignalOutcome(err)
		return err
	}

	daemonize.SignalOutcome(nil)
	registerSIGINTHandler(mfs.Dir())

	if err := mfs.Join(context.Background()); err != nil {
		return fmt.Errorf("Join: %w", err)
	}

	return nil
}

func run(c *config) error {
	if c.Foreground {
		return mountAndServe(c)
	}

	// Re-invoke ourselves with --foreground appended, and wait for the child
	// to report that the mount succeeded or failed.
	path, err := os.Executable()
	if err != nil {
		return fmt.Errorf("os.Executable: %w", err)
	}

	args := append([]string{"--foreground"}, os.Args[1:]...)
	if err := daemonize.Run(path, args, os.Environ(), os.Stdout, nil); err != nil {
		return fmt.Errorf("daemonize.Run: %w", err)
	}

	return nil
}
