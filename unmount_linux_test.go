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
	"errors"
	"testing"
)

func Test_umountExpectCustomError(t *testing.T) {
	dir := "/dev/fd/42"
	t.Setenv("PATH", "") // Clear PATH to fail unmount with fusermount is not found

	err := unmount(dir)

	if err == nil || !errors.Is(err, ErrExternallyManagedMountPoint) {
		t.Errorf("Expected: %v, but got: %v", ErrExternallyManagedMountPoint, err)
	}
}

func Test_umountNoCustomError(t *testing.T) {
	dir := "/dev"
	t.Setenv("PATH", "") // Clear PATH to fail unmount with fusermount is not found

	err := unmount(dir)

	if err != nil && errors.Is(err, ErrExternallyManagedMountPoint) {
		t.Errorf("Not expected custom error.")
	}
}
