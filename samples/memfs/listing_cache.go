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

package memfs

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/emberfs/fuse/fuseops"
	"github.com/emberfs/fuse/fuseutil"
)

// A listingCache memoizes the sorted entry listings of recently read
// directories, so that a large directory walked one READDIR request at a
// time is not re-collected from its btree for every request.
//
// Entries are invalidated whenever the directory's contents change. Safe
// for concurrent use.
type listingCache struct {
	cache *lru.Cache
}

func newListingCache(size int) *listingCache {
	c, err := lru.New(size)
	if err != nil {
		// Only reachable with a non-positive size.
		panic(err)
	}

	return &listingCache{cache: c}
}

func (lc *listingCache) lookup(dir fuseops.InodeID) ([]fuseutil.Dirent, bool) {
	v, ok := lc.cache.Get(dir)
	if !ok {
		return nil, false
	}

	return v.([]fuseutil.Dirent), true
}

func (lc *listingCache) insert(dir fuseops.InodeID, listing []fuseutil.Dirent) {
	lc.cache.Add(dir, listing)
}

// invalidate drops the cached listing for the directory, if any. Must be
// called whenever a child is added to or removed from the directory.
func (lc *listingCache) invalidate(dir fuseops.InodeID) {
	lc.cache.Remove(dir)
}
