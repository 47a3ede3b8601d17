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

// A tool for mounting emberfs file systems.
//
// Usage:
//
//	emberfs [flags] type mount_point
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var gConfigFile string

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "emberfs [flags] type mount_point",
		Short: "Mount an emberfs file system",
		Long: `Mount one of the emberfs file systems (hello, memfs, loopback) on a local
directory. By default the tool daemonizes and returns once the file system
is ready; pass --foreground to keep it attached to the terminal.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if gConfigFile != "" {
				v.SetConfigFile(gConfigFile)
				v.SetConfigType("yaml")
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("reading config file: %w", err)
				}
			}

			c, err := resolveConfig(v, args)
			if err != nil {
				return err
			}

			return run(c)
		},
	}

	cmd.Flags().StringVar(&gConfigFile, "config-file", "", "Path to a YAML config file.")
	if err := bindFlags(cmd.Flags(), v); err != nil {
		panic(fmt.Sprintf("bindFlags: %v", err))
	}

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "emberfs: %v\n", err)
		os.Exit(1)
	}
}
