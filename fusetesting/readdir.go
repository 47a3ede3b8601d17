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
	"os"
	"sort"
)

type sortedEntries []os.FileInfo

func (f sortedEntries) Len() int           { return len(f) }
func (f sortedEntries) Less(i, j int) bool { return f[i].Name() < f[j].Name() }
func (f sortedEntries) Swap(i, j int)      { f[i], f[j] = f[j], f[i] }

// Read the directory with the given name and return a list of directory
// entries, sorted by name.
//
// Unlike os.ReadDir, don't silently return a partial result for a directory
// whose entries cannot all be statted.
func ReadDirPicky(dirname string) (entries []os.FileInfo, err error) {
	dirEntries, err := os.ReadDir(dirname)
	if err != nil {
		return nil, err
	}

	for _, entry := range dirEntries {
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		entries = append(entries, info)
	}

	sort.Sort(sortedEntries(entries))
	return entries, nil
}
