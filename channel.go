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
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// Sender is anything that can atomically write a sequence of byte buffers as
// a single message. Reply objects hold a Sender so that they may be completed
// after the dispatch call that created them has returned.
//
// Implementations must be safe for concurrent use.
type Sender interface {
	// Write the concatenation of the supplied buffers as one message. Return an
	// error if the message could not be written in its entirety.
	Send(buffers [][]byte) error
}

// A Channel carries kernel requests and replies over an open fuse device
// file. Reading yields exactly one request message per call; writing is a
// single scatter write per reply.
//
// Channel values are cheap handles over a shared device; copying one yields
// another handle to the same device.
type Channel struct {
	dev *os.File
}

func newChannel(dev *os.File) *Channel {
	return &Channel{dev: dev}
}

// Read the next request message into p, blocking until the kernel delivers
// one. Return io.EOF when the file system has been unmounted.
func (c *Channel) Read(p []byte) (n int, err error) {
	for {
		n, err = c.dev.Read(p)
		if err == nil {
			return n, nil
		}

		pe, ok := err.(*os.PathError)
		if ok {
			err = pe.Err
		}

		switch err {
		case syscall.EINTR:
			// The read was interrupted by a signal. Try again.
			continue

		case syscall.ENODEV, io.EOF:
			// The kernel tore down the connection; the mount is gone.
			return 0, io.EOF

		default:
			return 0, err
		}
	}
}

// Send writes the supplied buffers to the device as a single message using a
// scatter write. The kernel requires each reply to arrive in one write.
func (c *Channel) Send(buffers [][]byte) error {
	var expected int
	for _, b := range buffers {
		expected += len(b)
	}

	n, err := writevRetry(int(c.dev.Fd()), buffers)
	if err != nil {
		return err
	}

	if n != expected {
		return fmt.Errorf("partial reply write: wrote %d of %d bytes", n, expected)
	}

	return nil
}

func (c *Channel) Close() error {
	return c.dev.Close()
}

// Write the buffers with writev(2), retrying when interrupted by a signal.
func writevRetry(fd int, buffers [][]byte) (n int, err error) {
	for {
		n, err = unix.Writev(fd, buffers)
		if err == syscall.EINTR {
			continue
		}

		return n, err
	}
}
