// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cmd is the CLI surface (spec.md §6): `listen host:port`,
// `forward host:port`, `mode client|server`, `config <path>`, wired as
// a root command plus client/server subcommands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	gitHash   = "none"
	buildTime = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "fteproxy",
	Short: "Format-transforming-encryption tunnel proxy",
}

// Execute runs the CLI, exiting the process with the code the invoked
// subcommand set via os.Exit. Exit codes (spec.md §6): 0 clean
// shutdown, 1 fatal config error, 2 bind failure. Exit code 3 is never
// used: a negotiation timeout ends only the connection it happened on,
// not the process.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "fteproxy.yaml", "Configuration file path")
	rootCmd.Version = version
}
