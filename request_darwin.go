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

	"github.com/jacobsa/reqtrace"

	"github.com/emberfs/fuse/fuseops"
)

func init() {
	dispatchPlatform = dispatchDarwin
}

// Route the macOS-only ops to a DarwinFileSystem, or answer ENOSYS when the
// file system doesn't implement the extension.
func dispatchDarwin(
	s *Session,
	ctx context.Context,
	op fuseops.Op,
	done func(),
	report reqtrace.ReportFunc) bool {
	dfs, extended := s.fs.(DarwinFileSystem)
	desc := fuseops.ShortDesc(op)
	unique := uint64(op.Header().Unique)

	switch typed := op.(type) {
	case *fuseops.SetVolumeNameOp:
		if !extended {
			s.replyErrorTraced(unique, desc, ENOSYS, done, report)
			return true
		}
		dfs.SetVolumeName(ctx, typed, s.newReplyEmpty(desc, unique, done, report))
		return true

	case *fuseops.GetXTimesOp:
		if !extended {
			s.replyErrorTraced(unique, desc, ENOSYS, done, report)
			return true
		}
		reply := &ReplyXTimes{}
		s.initRaw(&reply.r, desc, unique, done, report)
		dfs.GetXTimes(ctx, typed, reply)
		return true

	case *fuseops.ExchangeOp:
		if !extended {
			s.replyErrorTraced(unique, desc, ENOSYS, done, report)
			return true
		}
		dfs.Exchange(ctx, typed, s.newReplyEmpty(desc, unique, done, report))
		return true
	}

	return false
}
