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

package languages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSpecs() []Spec {
	return []Spec{
		{Name: "http-request", Pattern: "[a-zA-Z0-9+/]{90}", MaxLen: 90},
		{Name: "http-response", Pattern: "[a-zA-Z0-9+/]{90}", MaxLen: 90},
		{Name: "ftp-request", Pattern: "[a-zA-Z0-9+/]{90}", MaxLen: 90},
	}
}

func TestBuildAndLookup(t *testing.T) {
	set, err := Build(testSpecs())
	require.NoError(t, err)

	req, err := set.Request("http")
	require.NoError(t, err)
	assert.Equal(t, 90, req.MaxLen())

	resp, err := set.Response("http")
	require.NoError(t, err)
	assert.Equal(t, 90, resp.MaxLen())

	_, err = set.Response("ftp")
	assert.ErrorIs(t, err, ErrUnknownLanguage)
}

func TestCandidatesOrder(t *testing.T) {
	set, err := Build(testSpecs())
	require.NoError(t, err)
	assert.Equal(t, []string{"http", "ftp"}, set.Candidates())
}

func TestBuildRejectsSingleWordSlice(t *testing.T) {
	_, err := Build([]Spec{{Name: "degenerate-request", Pattern: "a", MaxLen: 1}})
	assert.ErrorIs(t, err, ErrLanguageTooSmall)
}
