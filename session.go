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
	"context"
	"io"
	"log"
	"os"
	"sync"

	"github.com/emberfs/fuse/internal/buffer"
	"github.com/emberfs/fuse/internal/fusekernel"
)

// An AccessPolicy restricts which caller uids may issue requests on a
// session. Requests from other uids receive EACCES, except for a fixed set
// of operations that any caller may always issue (reads, writes, syncs and
// releases on handles that were legitimately opened, and the forget family).
type AccessPolicy int

const (
	// Allow the mounting user and root. The default.
	AllowRootAndOwner AccessPolicy = iota

	// Allow only the mounting user.
	AllowOwner

	// Allow everyone. Used together with the allow_other mount option.
	AllowAll
)

// A transport carries request messages in and reply messages out. *Channel
// is the production implementation; tests substitute an in-memory one.
type transport interface {
	io.Reader
	Sender
}

// A Session runs the request loop for one mounted file system: read one
// kernel message, decode it, dispatch it to the FileSystem, repeat. Replies
// are written through the transport by the reply objects themselves, not
// necessarily before the next request is read.
//
// A Session begins uninitialized. The kernel's init request transitions it
// to initialized, its destroy request to destroyed; requests arriving
// outside that window receive EIO.
type Session struct {
	fs        FileSystem
	transport transport

	opContext   context.Context
	debugLogger *log.Logger
	errorLogger *log.Logger

	policy AccessPolicy
	owner  uint32

	// Negotiated with the kernel during init. Before then, decoding assumes
	// the newest protocol this package speaks.
	protocol fusekernel.Protocol

	initialized bool
	destroyed   bool

	// Request buffers are large, so they are recycled rather than allocated
	// per request. A buffer is returned to the pool only once its request's
	// reply has been completed, since the decoded op borrows it.
	messages sync.Pool

	// In-flight requests whose replies have not yet completed.
	inFlight sync.WaitGroup
}

// NewSession creates a session serving the supplied file system over the
// supplied channel. The config contributes loggers, the op context, and the
// access policy; it may be nil for defaults.
func NewSession(fs FileSystem, channel *Channel, config *MountConfig) *Session {
	if config == nil {
		config = &MountConfig{}
	}

	return newSession(fs, channel, config)
}

func newSession(fs FileSystem, t transport, config *MountConfig) *Session {
	opContext := config.OpContext
	if opContext == nil {
		opContext = context.Background()
	}

	debugLogger := config.DebugLogger
	if debugLogger == nil && flagDebugEnabled() {
		debugLogger = getLogger()
	}

	s := &Session{
		fs:          fs,
		transport:   t,
		opContext:   opContext,
		debugLogger: debugLogger,
		errorLogger: config.ErrorLogger,
		policy:      config.accessPolicy(),
		owner:       uint32(os.Getuid()),
		protocol: fusekernel.Protocol{
			Major: fusekernel.KernelVersion,
			Minor: fusekernel.KernelMinorVersion,
		},
	}

	s.messages.New = func() interface{} {
		return new(buffer.InMessage)
	}

	return s
}

// Serve reads and dispatches requests until the kernel closes the
// connection, then waits for all outstanding replies to complete. The
// file system's Destroy hook is invoked before returning if the kernel
// never sent a destroy request. Must not be called more than once.
func (s *Session) Serve() error {
	err := s.readLoop()

	// Don't tear down until every borrowed request buffer has been returned.
	s.inFlight.Wait()

	if !s.destroyed {
		s.destroyed = true
		s.fs.Destroy()
	}

	return err
}

func (s *Session) readLoop() error {
	for {
		m := s.getMessage()

		if err := m.Init(s.transport); err != nil {
			s.putMessage(m)

			if err == io.EOF {
				return nil
			}

			// A malformed message fails only itself; the device delivers each
			// request as one complete datagram, so the next read starts clean.
			s.logError("dropping malformed request: %v", err)
			continue
		}

		s.inFlight.Add(1)
		s.handleRequest(m)
	}
}

func (s *Session) getMessage() *buffer.InMessage {
	return s.messages.Get().(*buffer.InMessage)
}

func (s *Session) putMessage(m *buffer.InMessage) {
	s.messages.Put(m)
}

func (s *Session) logError(format string, v ...interface{}) {
	if s.errorLogger != nil {
		s.errorLogger.Printf(format, v...)
	}
}

func (s *Session) logDebug(format string, v ...interface{}) {
	if s.debugLogger != nil {
		s.debugLogger.Printf(format, v...)
	}
}

func flagDebugEnabled() bool {
	return fEnableDebug != nil && *fEnableDebug
}
