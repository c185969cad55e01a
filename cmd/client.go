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

var clientListen, clientForward string

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Run as the tunnel client: accept plaintext, emit the regex language",
	Run: func(cmd *cobra.Command, args []string) {
		run(runOpts{mode: controller.ModeClient, listen: clientListen, forward: clientForward})
	},
	Example: "# fteproxy client --listen 127.0.0.1:8080 --forward 10.0.0.1:443 --config fteproxy.yaml",
}

func init() {
	clientCmd.Flags().StringVar(&clientListen, "listen", "", "Address to accept application connections on (host:port)")
	clientCmd.Flags().StringVar(&clientForward, "forward", "", "Tunnel server address to dial (host:port)")
	rootCmd.AddCommand(clientCmd)
}
