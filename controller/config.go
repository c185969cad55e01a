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

package controller

import "time"

// Mode is the process's runtime.mode config value.
type Mode string

const (
	ModeClient Mode = "client"
	ModeServer Mode = "server"
)

// RelayConfig maps runtime.fte.relay.* (spec.md §6).
type RelayConfig struct {
	EncoderBlockSize int           `config:"encoder_block_size"`
	DecoderBlockSize int           `config:"decoder_block_size"`
	ClockSpeed       time.Duration `config:"clock_speed"`
	SelectSpeed      time.Duration `config:"select_speed"`
	ServerTimeout    time.Duration `config:"server_timeout"`
	ClientTimeout    time.Duration `config:"client_timeout"`
	Backlog          int           `config:"backlog"`
	NoLinger         bool          `config:"nolinger"`
	ForcefulShutdown bool          `config:"forceful_shutdown"`
}

// FTEConfig maps runtime.fte.*.
type FTEConfig struct {
	Encrypter struct {
		Key string `config:"key"` // hex, 32 bytes (K1||K2)
	} `config:"encrypter"`
	Relay     RelayConfig `config:"relay"`
	Negotiate struct {
		Timeout time.Duration `config:"timeout"`
	} `config:"negotiate"`
}

// StateConfig maps runtime.state.*: which languages this process uses
// for its outgoing/incoming directions.
type StateConfig struct {
	UpstreamLanguage   string `config:"upstream_language"`
	DownstreamLanguage string `config:"downstream_language"`
}

// RuntimeConfig maps the runtime.* config tree.
type RuntimeConfig struct {
	Mode  Mode          `config:"mode"`
	FTE   FTEConfig     `config:"fte"`
	State StateConfig   `config:"state"`
	TCP   struct {
		Timeout time.Duration `config:"timeout"`
	} `config:"tcp"`
	HTTPProxy struct {
		Enable bool `config:"enable"`
	} `config:"http_proxy"`
}

// LanguageConfig is one entry of the top-level languages.regex list.
type LanguageConfig struct {
	Name    string `config:"name"`
	Pattern string `config:"pattern"`
	MaxLen  int    `config:"max_len"`
}

// LanguagesConfig maps the top-level languages.* config tree.
type LanguagesConfig struct {
	Regex []LanguageConfig `config:"regex"`
}

// GeneralConfig maps the top-level general.* config tree.
type GeneralConfig struct {
	PidDir string `config:"pid_dir"`
}

// Config is the full configuration tree this binary consumes
// (spec.md §6's "Configuration keys consumed"). Listen/Forward are
// populated from the CLI surface (spec §6), not the config file.
type Config struct {
	Runtime   RuntimeConfig   `config:"runtime"`
	Languages LanguagesConfig `config:"languages"`
	General   GeneralConfig   `config:"general"`

	// Listen/Forward come from the CLI surface (spec §6: `listen
	// host:port`, `forward host:port`), not the config file. New sets
	// them from the Overrides cmd passes in, after Unpack.
	Listen  string `config:"listen_cli"`
	Forward string `config:"forward_cli"`
}
