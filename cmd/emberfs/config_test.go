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
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args []string) (*viper.Viper, []string) {
	t.Helper()

	flags := pflag.NewFlagSet("emberfs", pflag.ContinueOnError)
	v := viper.New()
	require.NoError(t, bindFlags(flags, v))
	require.NoError(t, flags.Parse(args))

	return v, flags.Args()
}

func TestResolveConfigDefaults(t *testing.T) {
	v, args := parse(t, []string{"memfs", "/mnt/ember"})

	c, err := resolveConfig(v, args)
	require.NoError(t, err)

	assert.Equal(t, typeMemFS, c.Type)
	assert.Equal(t, "/mnt/ember", c.MountPoint)
	assert.Equal(t, "emberfs", c.Subtype)
	assert.False(t, c.ReadOnly)
	assert.False(t, c.AllowOther)
	assert.False(t, c.Foreground)
	assert.Empty(t, c.Options)
}

func TestResolveConfigFlags(t *testing.T) {
	v, args := parse(t, []string{
		"--target=/some/dir",
		"--fsname=myfs",
		"--read-only",
		"--allow-other",
		"--debug-fuse",
		"--foreground",
		"-o", "nosuid",
		"-o", "max_read=65536",
		"loopback", "/mnt/ember",
	})

	c, err := resolveConfig(v, args)
	require.NoError(t, err)

	assert.Equal(t, typeLoopback, c.Type)
	assert.Equal(t, "/some/dir", c.Target)
	assert.Equal(t, "myfs", c.FSName)
	assert.True(t, c.ReadOnly)
	assert.True(t, c.AllowOther)
	assert.True(t, c.DebugFuse)
	assert.True(t, c.Foreground)
	assert.Equal(t, []string{"nosuid", "max_read=65536"}, c.Options)
}

func TestResolveConfigEnv(t *testing.T) {
	t.Setenv("EMBERFS_READ_ONLY", "true")
	t.Setenv("EMBERFS_FSNAME", "fromenv")

	v, args := parse(t, []string{"hello", "/mnt/ember"})

	c, err := resolveConfig(v, args)
	require.NoError(t, err)

	assert.True(t, c.ReadOnly)
	assert.Equal(t, "fromenv", c.FSName)
}

func TestResolveConfigErrors(t *testing.T) {
	testCases := []struct {
		name string
		args []string
	}{
		{"unknown type", []string{"ftpfs", "/mnt/ember"}},
		{"loopback without target", []string{"loopback", "/mnt/ember"}},
		{"target for memfs", []string{"--target=/some/dir", "memfs", "/mnt/ember"}},
		{"empty mount point", []string{"hello", ""}},
		{"too few args", []string{"hello"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v, args := parse(t, tc.args)
			_, err := resolveConfig(v, args)
			assert.Error(t, err)
		})
	}
}

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"nosuid", "max_read=65536", "subdir=a=b"})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"nosuid":   "",
		"max_read": "65536",
		"subdir":   "a=b",
	}, opts)

	_, err = parseOptions([]string{"=oops"})
	assert.Error(t, err)
}

func TestMakeMountConfig(t *testing.T) {
	c := &config{
		Type:       typeHello,
		MountPoint: "/mnt/ember",
		ReadOnly:   true,
		AllowOther: true,
		Subtype:    "emberfs",
		Options:    []string{"nosuid"},
	}

	cfg, err := makeMountConfig(c)
	require.NoError(t, err)

	// The fsname defaults to the file system type.
	assert.Equal(t, "hello", cfg.FSName)
	assert.Equal(t, "emberfs", cfg.Subtype)
	assert.True(t, cfg.ReadOnly)
	assert.True(t, cfg.AllowOther)
	assert.Equal(t, map[string]string{"nosuid": ""}, cfg.Options)
	assert.Nil(t, cfg.DebugLogger)
}

func TestMakeFS(t *testing.T) {
	for _, fsType := range []string{typeHello, typeMemFS} {
		server, err := makeFS(&config{Type: fsType})
		require.NoError(t, err, "type %s", fsType)
		assert.NotNil(t, server, "type %s", fsType)
	}

	_, err := makeFS(&config{Type: "loopback", Target: t.TempDir()})
	assert.NoError(t, err)

	_, err = makeFS(&config{Type: "bogus"})
	assert.Error(t, err)
}
