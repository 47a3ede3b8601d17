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
	"log"
	"runtime"
	"sort"
	"strings"
)

// Optional configuration accepted by Mount.
type MountConfig struct {
	// The context from which every op served by the session should inherit.
	// If nil, context.Background() is used.
	OpContext context.Context

	// If non-empty, the name of the file system as displayed by e.g. `mount`.
	// This is important because the `umount` command requires root privileges
	// if it doesn't agree with /etc/fstab.
	FSName string

	// If non-empty, the second component of the mounted file system type, as
	// in `fuse.subtype`.
	Subtype string

	// Mount the file system in read-only mode. File modes will appear as
	// normal, but opening a file for writing and metadata operations like
	// chmod and chtimes will fail.
	ReadOnly bool

	// Allow users other than the mounting user and root to access the file
	// system. Requires the allow_other option in /etc/fuse.conf unless
	// mounting as root. Implies the AllowAll access policy unless Policy is
	// set explicitly.
	AllowOther bool

	// The userspace access policy for the session. The zero value allows the
	// mounting user and root.
	Policy AccessPolicy

	// Ask fusermount to unmount automatically when the process exits. Only
	// effective when mounting goes through fusermount, i.e. not when running
	// with privileges sufficient for a direct mount(2).
	EnableAutoUnmount bool

	// Disable the default_permissions mount option, delegating all permission
	// checking to the file system's Access method instead of the kernel.
	DisableDefaultPermissions bool

	// A logger for errors. All errors are logged except a few expected ones.
	// If nil, no error logging is performed.
	ErrorLogger *log.Logger

	// A logger for protocol traffic, one line per request and reply. If nil,
	// the --fuse.debug flag decides.
	DebugLogger *log.Logger

	// OS X only.
	//
	// Normally on OS X we mount with the novncache option, which disables
	// entry caching in the kernel, because osxfuse does not honor the entry
	// expiration values we return to it and may otherwise cache entries
	// forever. This field restores entry caching. Beware: entry expiration
	// values are then ignored and entries are cached arbitrarily long.
	EnableVnodeCaching bool

	// OS X only. The name of the mounted volume, as displayed in Finder.
	VolumeName string

	// Additional key=value options to pass unadulterated to the underlying
	// mount command. See `man 8 mount` and the fuse documentation for
	// system-specific information.
	//
	// For expert use only! May invalidate other guarantees made in the
	// documentation for this package.
	Options map[string]string
}

func (c *MountConfig) accessPolicy() AccessPolicy {
	if c.Policy == AllowRootAndOwner && c.AllowOther {
		return AllowAll
	}
	return c.Policy
}

// Convert to a map of mount options understood by the platform mount
// machinery.
func (c *MountConfig) toMap() (opts map[string]string) {
	isDarwin := runtime.GOOS == "darwin"
	opts = make(map[string]string)

	// Enable permissions checking in the kernel. See the comments on
	// InodeAttributes.Mode.
	if !c.DisableDefaultPermissions {
		opts["default_permissions"] = ""
	}

	// Special file system name?
	if c.FSName != "" {
		opts["fsname"] = c.FSName
	}

	if c.Subtype != "" {
		opts["subtype"] = c.Subtype
	}

	// Read only?
	if c.ReadOnly {
		opts["ro"] = ""
	}

	if c.AllowOther {
		opts["allow_other"] = ""
	}

	if c.EnableAutoUnmount {
		opts["auto_unmount"] = ""
	}

	// OS X: set novncache when appropriate.
	if isDarwin && !c.EnableVnodeCaching {
		opts["novncache"] = ""
	}

	// OS X: disable the use of "Apple Double" (._foo and .DS_Store) files,
	// which add noise to debug output and can have significant cost on
	// network-based file systems.
	if isDarwin {
		opts["noappledouble"] = ""
	}

	if isDarwin && c.VolumeName != "" {
		opts["volname"] = c.VolumeName
	}

	// Last but not least: other user-supplied options.
	for k, v := range c.Options {
		opts[k] = v
	}

	return opts
}

func escapeOptionsKey(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `,`, `\,`)
	return s
}

func mapToOptionsString(opts map[string]string) string {
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	components := make([]string, 0, len(keys))
	for _, k := range keys {
		v := opts[k]
		if v == "" {
			components = append(components, escapeOptionsKey(k))
			continue
		}
		components = append(components, escapeOptionsKey(k)+"="+escapeOptionsKey(v))
	}

	return strings.Join(components, ",")
}

// Convert to an option string to be passed to a mount helper.
func (c *MountConfig) toOptionsString() string {
	return mapToOptionsString(c.toMap())
}
