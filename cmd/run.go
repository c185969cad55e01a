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

package cmd

import (
	"fmt"
	"os"

	"github.com/fteproxy/fteproxy/common"
	"github.com/fteproxy/fteproxy/confengine"
	"github.com/fteproxy/fteproxy/controller"
	"github.com/fteproxy/fteproxy/internal/sigs"
	"github.com/fteproxy/fteproxy/logger"
)

// runOpts carries the listen/forward CLI overrides shared by the
// client and server subcommands.
type runOpts struct {
	mode    controller.Mode
	listen  string
	forward string
}

// run loads configPath, applies the CLI's listen/forward/mode
// overrides, and blocks serving until a termination signal arrives.
// It calls os.Exit directly with the exit code from spec.md §6.
func run(opts runOpts) {
	cfg, err := confengine.LoadConfigPath(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctr, err := controller.New(cfg, common.BuildInfo{Version: version, GitHash: gitHash, Time: buildTime},
		controller.Overrides{Mode: opts.mode, Listen: opts.listen, Forward: opts.forward})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create controller: %v\n", err)
		os.Exit(1)
	}

	pidPath, err := controller.WritePidFile(ctr.PidDir())
	if err != nil {
		logger.Warnf("failed to write pid file: %v", err)
	} else if pidPath != "" {
		logger.Infof("wrote pid file %s", pidPath)
	}

	if err := ctr.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start controller: %v\n", err)
		os.Exit(2)
	}

	for {
		select {
		case <-sigs.Terminate():
			ctr.Stop()
			if pidPath != "" {
				_ = os.Remove(pidPath)
			}
			return

		case <-sigs.Reload():
			logger.Infof("reload signal received; fteproxy does not support live config reload, restart to apply changes")
		}
	}
}
