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

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// The set of file system types the tool knows how to mount.
const (
	typeHello    = "hello"
	typeMemFS    = "memfs"
	typeLoopback = "loopback"
)

// Settings resolved from flags, environment variables (EMBERFS_*), and an
// optional YAML config file, in decreasing order of precedence.
type config struct {
	// Positional arguments.
	Type       string
	MountPoint string

	// The directory mirrored by the loopback file system. Required for
	// --type loopback, forbidden otherwise.
	Target string

	FSName     string
	Subtype    string
	ReadOnly   bool
	AllowOther bool
	DebugFuse  bool
	Foreground bool

	// Additional raw key=value mount options.
	Options []string
}

// Define the tool's flags on the supplied flag set and bind each one to the
// supplied viper instance, so that EMBERFS_FOO environment variables and
// config file keys can stand in for flags.
func bindFlags(flags *pflag.FlagSet, v *viper.Viper) error {
	flags.String("target", "", "Directory to mirror (loopback only).")
	flags.String("fsname", "", "Value of the fsname mount option.")
	flags.String("subtype", "emberfs", "Value of the subtype mount option.")
	flags.Bool("read-only", false, "Mount in read-only mode.")
	flags.Bool("allow-other", false, "Allow access by users other than the mounting user.")
	flags.Bool("debug-fuse", false, "Log one line per request and reply.")
	flags.Bool("foreground", false, "Stay in the foreground after mounting.")
	flags.StringSliceP("o", "o", nil, "Additional key=value mount options. May be repeated.")

	v.SetEnvPrefix("EMBERFS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		err = v.BindPFlag(f.Name, f)
	})

	return err
}

// Resolve the final configuration from the bound viper instance and the
// positional arguments.
func resolveConfig(v *viper.Viper, args []string) (*config, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("expected two arguments (type, mount point), got %d", len(args))
	}

	c := &config{
		Type:       args[0],
		MountPoint: args[1],
		Target:     v.GetString("target"),
		FSName:     v.GetString("fsname"),
		Subtype:    v.GetString("subtype"),
		ReadOnly:   v.GetBool("read-only"),
		AllowOther: v.GetBool("allow-other"),
		DebugFuse:  v.GetBool("debug-fuse"),
		Foreground: v.GetBool("foreground"),
		Options:    v.GetStringSlice("o"),
	}

	switch c.Type {
	case typeHello, typeMemFS:
		if c.Target != "" {
			return nil, fmt.Errorf("--target is not supported for type %q", c.Type)
		}

	case typeLoopback:
		if c.Target == "" {
			return nil, fmt.Errorf("--target is required for type %q", c.Type)
		}

	default:
		return nil, fmt.Errorf("unknown file system type %q", c.Type)
	}

	if c.MountPoint == "" {
		return nil, fmt.Errorf("mount point must be non-empty")
	}

	return c, nil
}

// Turn the raw -o options into a map accepted by MountConfig.Options.
func parseOptions(raw []string) (map[string]string, error) {
	opts := make(map[string]string)
	for _, o := range raw {
		// Respect the Linux kernel's mount option format: an option can be
		// bare or have a value.
		name, value, _ := strings.Cut(o, "=")
		if name == "" {
			return nil, fmt.Errorf("malformed mount option %q", o)
		}
		opts[name] = value
	}

	return opts, nil
}
