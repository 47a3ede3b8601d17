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
	"os"

	"github.com/emberfs/fuse/internal/buffer"
	"github.com/emberfs/fuse/internal/fusekernel"
)

// A Capability is an optional kernel feature that the file system may enable
// during negotiation. The set actually granted is the intersection of what
// the file system asks for and what the kernel offers.
type Capability uint32

const (
	CapAsyncRead       = Capability(fusekernel.InitAsyncRead)
	CapPosixLocks      = Capability(fusekernel.InitPosixLocks)
	CapAtomicTrunc     = Capability(fusekernel.InitAtomicTrunc)
	CapExportSupport   = Capability(fusekernel.InitExportSupport)
	CapBigWrites       = Capability(fusekernel.InitBigWrites)
	CapDontMask        = Capability(fusekernel.InitDontMask)
	CapFlockLocks      = Capability(fusekernel.InitFlockLocks)
	CapAutoInvalData   = Capability(fusekernel.InitAutoInvalData)
	CapReaddirplus     = Capability(fusekernel.InitDoReaddirplus)
	CapReaddirplusAuto = Capability(fusekernel.InitReaddirplusAuto)
	CapAsyncDIO        = Capability(fusekernel.InitAsyncDIO)
	CapWritebackCache  = Capability(fusekernel.InitWritebackCache)
	CapNoOpenSupport   = Capability(fusekernel.InitNoOpenSupport)
	CapParallelDirops  = Capability(fusekernel.InitParallelDirops)
	CapPosixACL        = Capability(fusekernel.InitPosixACL)
	CapMaxPages        = Capability(fusekernel.InitMaxPages)
	CapCacheSymlinks   = Capability(fusekernel.InitCacheSymlinks)
)

// A ConfigError is returned by a KernelConfig setter that rejects a value.
// Nearest is the closest value the setter would have accepted.
type ConfigError struct {
	Field   string
	Value   uint64
	Nearest uint64
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf(
		"kernel config: illegal %s %d (nearest legal value: %d)",
		e.Field,
		e.Value,
		e.Nearest)
}

// Limits on negotiated parameters. The upper bound on write size is dictated
// by the size of the buffer each request is read into.
const (
	minMaxWrite = 4096
	maxMaxWrite = buffer.MaxReadSize
)

// A KernelConfig holds the tunable parameters exchanged with the kernel
// while handling its init request. A fresh one, populated with defaults and
// with the kernel's offered feature set, is passed to the file system's Init
// hook; the hook may adjust it through the validated setters before the init
// reply is built.
type KernelConfig struct {
	protocol fusekernel.Protocol

	// What the kernel reported it supports.
	kernelFlags fusekernel.InitFlags

	// What the file system has asked for, before intersection.
	wanted fusekernel.InitFlags

	maxWrite            uint32
	maxReadahead        uint32
	timeGran            uint32
	maxBackground       uint16
	congestionThreshold uint16
}

func newKernelConfig(
	protocol fusekernel.Protocol,
	kernelFlags fusekernel.InitFlags,
	maxReadahead uint32) *KernelConfig {
	return &KernelConfig{
		protocol:     protocol,
		kernelFlags:  kernelFlags,
		wanted:       defaultCapabilities,
		maxWrite:     maxMaxWrite,
		maxReadahead: maxReadahead,
		timeGran:     1,
	}
}

// Capabilities enabled unless the file system clears them. All are safe for
// arbitrary file systems; features that change operation semantics (locks,
// writeback caching, readdirplus) must be opted into.
const defaultCapabilities = fusekernel.InitAsyncRead |
	fusekernel.InitAtomicTrunc |
	fusekernel.InitBigWrites |
	fusekernel.InitParallelDirops |
	fusekernel.InitMaxPages

// Protocol returns the negotiated protocol version.
func (c *KernelConfig) Protocol() (major, minor uint32) {
	return c.protocol.Major, c.protocol.Minor
}

// AddCapabilities asks the kernel to enable the supplied features. Features
// the kernel did not offer are silently dropped at reply time.
func (c *KernelConfig) AddCapabilities(caps Capability) {
	c.wanted |= fusekernel.InitFlags(caps)
}

// RemoveCapabilities clears features previously requested or enabled by
// default.
func (c *KernelConfig) RemoveCapabilities(caps Capability) {
	c.wanted &^= fusekernel.InitFlags(caps)
}

// Granted reports whether the given capability will be present in the init
// reply as currently configured.
func (c *KernelConfig) Granted(cap_ Capability) bool {
	return c.flags()&fusekernel.InitFlags(cap_) != 0
}

// The flag set to send to the kernel: requested features intersected with
// offered ones.
func (c *KernelConfig) flags() fusekernel.InitFlags {
	return c.wanted & c.kernelFlags
}

// SetMaxWrite sets the largest write request size, in bytes, that the kernel
// may send. Legal values are multiples of 4096 in [4096, 1<<20]. On success
// the previous value is returned; on rejection the error carries the nearest
// legal value and the configuration is unchanged.
func (c *KernelConfig) SetMaxWrite(n uint32) (prev uint32, err error) {
	if n < minMaxWrite || n > maxMaxWrite || n%4096 != 0 {
		nearest := (uint64(n) / 4096) * 4096
		if nearest < minMaxWrite {
			nearest = minMaxWrite
		}
		if nearest > maxMaxWrite {
			nearest = maxMaxWrite
		}

		return 0, &ConfigError{
			Field:   "max write",
			Value:   uint64(n),
			Nearest: nearest,
		}
	}

	prev = c.maxWrite
	c.maxWrite = n
	return prev, nil
}

// SetMaxReadahead sets the readahead size, in bytes, advertised to the
// kernel. The kernel clamps this against what it asked for; any value fits
// in the wire field, so the only illegal values are non-multiples of the
// page size.
func (c *KernelConfig) SetMaxReadahead(n uint32) (prev uint32, err error) {
	pageSize := uint32(os.Getpagesize())
	if n%pageSize != 0 {
		return 0, &ConfigError{
			Field:   "max readahead",
			Value:   uint64(n),
			Nearest: (uint64(n) / uint64(pageSize)) * uint64(pageSize),
		}
	}

	prev = c.maxReadahead
	c.maxReadahead = n
	return prev, nil
}

// SetTimeGranularity sets the granularity, in nanoseconds, of the timestamps
// the file system stores. Must be a power of ten in [1, 1e9]. Sent to the
// kernel only when the negotiated protocol carries the field.
func (c *KernelConfig) SetTimeGranularity(ns uint32) (prev uint32, err error) {
	if !isPowerOfTen(ns) || ns > 1e9 {
		return 0, &ConfigError{
			Field:   "time granularity",
			Value:   uint64(ns),
			Nearest: nearestPowerOfTen(ns),
		}
	}

	prev = c.timeGran
	c.timeGran = ns
	return prev, nil
}

// SetMaxBackground sets the number of background requests the kernel may
// keep in flight. Zero tells the kernel to use its own default.
func (c *KernelConfig) SetMaxBackground(n uint16) (prev uint16, err error) {
	prev = c.maxBackground
	c.maxBackground = n
	return prev, nil
}

// SetCongestionThreshold sets the number of in-flight background requests at
// which the kernel considers the file system congested. Must not exceed the
// configured max background count. Zero means three quarters of it.
func (c *KernelConfig) SetCongestionThreshold(n uint16) (prev uint16, err error) {
	if c.maxBackground != 0 && n > c.maxBackground {
		return 0, &ConfigError{
			Field:   "congestion threshold",
			Value:   uint64(n),
			Nearest: uint64(c.maxBackground),
		}
	}

	prev = c.congestionThreshold
	c.congestionThreshold = n
	return prev, nil
}

// MaxPages returns the per-request page count implied by the configured max
// write size.
func (c *KernelConfig) MaxPages() uint16 {
	pageSize := uint32(os.Getpagesize())
	return uint16((c.maxWrite + pageSize - 1) / pageSize)
}

// Fill in the init reply from the negotiated configuration.
func (c *KernelConfig) pack(out *fusekernel.InitOut) {
	out.Major = c.protocol.Major
	out.Minor = c.protocol.Minor
	out.MaxReadahead = c.maxReadahead
	out.Flags = c.flags()
	out.MaxWrite = c.maxWrite

	if c.protocol.HasBackgroundTunables() {
		out.MaxBackground = c.maxBackground

		threshold := c.congestionThreshold
		if threshold == 0 && c.maxBackground != 0 {
			threshold = c.maxBackground * 3 / 4
		}
		out.CongestionThreshold = threshold
	}

	if c.protocol.HasTimeGran() {
		out.TimeGran = c.timeGran
	}

	if c.protocol.HasMaxPages() && c.flags()&fusekernel.InitMaxPages != 0 {
		out.MaxPages = c.MaxPages()
	}
}

func isPowerOfTen(n uint32) bool {
	if n == 0 {
		return false
	}

	for n%10 == 0 {
		n /= 10
	}

	return n == 1
}

func nearestPowerOfTen(n uint32) uint64 {
	var p uint64 = 1
	for p*10 <= uint64(n) && p < 1e9 {
		p *= 10
	}

	if p > 1e9 {
		p = 1e9
	}

	return p
}
