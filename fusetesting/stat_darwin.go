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

package fusetesting

import (
	"syscall"
	"time"
)

func extractMtime(sys interface{}) (mtime time.Time, ok bool) {
	stat, ok := sys.(*syscall.Stat_t)
	if !ok {
		return
	}

	return time.Unix(stat.Mtimespec.Unix()), true
}

func extractBirthtime(sys interface{}) (birthtime time.Time, ok bool) {
	stat, ok := sys.(*syscall.Stat_t)
	if !ok {
		return
	}

	return time.Unix(stat.Birthtimespec.Unix()), true
}

func extractNlink(sys interface{}) (nlink uint64, ok bool) {
	stat, ok := sys.(*syscall.Stat_t)
	if !ok {
		return
	}

	return uint64(stat.Nlink), true
}
