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
	"reflect"

	"github.com/emberfs/fuse/internal/fusekernel"
)

// OpHeader echoes the fixed header of the kernel request an op was decoded
// from: the request's unique ID, the target inode, and the credentials of
// the calling process.
type OpHeader struct {
	// A unique ID for the request, reused by the kernel only after the
	// request has been answered.
	Unique RequestID

	// The inode the request targets. For ops addressed to a parent
	// directory (lookup, create, unlink) this is the parent.
	Inode InodeID

	// Credentials of the process that triggered the request. For requests
	// originating inside the kernel, such as writeback, these may be zero.
	Uid uint32
	Gid uint32
	Pid uint32
}

// A helper for embedding common behavior.
type commonOp struct {
	header OpHeader
}

func (o *commonOp) Header() OpHeader {
	return o.header
}

func (o *commonOp) setHeader(h *fusekernel.InHeader) {
	o.header = OpHeader{
		Unique: RequestID(h.Unique),
		Inode:  InodeID(h.Nodeid),
		Uid:    h.Uid,
		Gid:    h.Gid,
		Pid:    h.Pid,
	}
}

// ShortDesc returns a terse description of the supplied op for debug
// logging, of the form "ReadFileOp".
func ShortDesc(op Op) string {
	t := reflect.TypeOf(op)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
