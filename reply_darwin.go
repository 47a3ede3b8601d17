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
	"time"
	"unsafe"

	"github.com/emberfs/fuse/internal/fusekernel"
)

// ReplyXTimes answers the macOS getxtimes operation with the inode's backup
// and creation times.
type ReplyXTimes struct {
	r replyRaw
}

func (p *ReplyXTimes) XTimes(bkuptime, crtime time.Time) {
	out := (*fusekernel.GetxtimesOut)(p.r.out.Grow(unsafe.Sizeof(fusekernel.GetxtimesOut{})))
	out.Bkuptime = uint64(bkuptime.Unix())
	out.BkuptimeNsec = uint32(bkuptime.Nanosecond())
	out.Crtime = uint64(crtime.Unix())
	out.CrtimeNsec = uint32(crtime.Nanosecond())

	p.r.sendOK()
}

func (p *ReplyXTimes) Error(err error) { p.r.sendError(err) }
