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
	"github.com/spf13/cobra"

	"github.com/fteproxy/fteproxy/controller"
)

var serverListen, serverForward string

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run as the tunnel server: accept the regex language, emit plaintext",
	Run: func(cmd *cobra.Command, args []string) {
		run(runOpts{mode: controller.ModeServer, listen: serverListen, forward: serverForward})
	},
	Example: "# fteproxy server --listen 0.0.0.0:443 --forward 127.0.0.1:8080 --config fteproxy.yaml",
}

func init() {
	serverCmd.Flags().StringVar(&serverListen, "listen", "", "Address to accept tunnel connections on (host:port)")
	serverCmd.Flags().StringVar(&serverForward, "forward", "", "Origin address to forward decoded traffic to (host:port)")
	rootCmd.AddCommand(serverCmd)
}
