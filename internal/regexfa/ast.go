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

package regexfa

// byteRange is an inclusive [lo, hi] range of byte values, the leaf
// building block every AST node eventually compiles down to.
type byteRange struct {
	lo, hi byte
}

// node is one AST node of the extended-regex grammar:
//
//	literal    -> a single byte
//	any        -> '.'
//	class      -> '[...]' / '[^...]'
//	concat     -> implicit juxtaposition
//	alt        -> 'a|b'
//	star/plus/quest -> '*'/'+'/'?'
//	repeat     -> '{m,n}', max == -1 means unbounded
//
// Anchors ('^', '$') are parsed and discarded: every ranked word is
// exactly max_len bytes, so anchoring to start/end of string is implicit.
type node interface {
	isNode()
}

type litNode struct{ b byte }

type anyNode struct{}

type classNode struct {
	ranges []byteRange
	negate bool
}

type concatNode struct{ parts []node }

type altNode struct{ parts []node }

type starNode struct{ sub node }

type plusNode struct{ sub node }

type questNode struct{ sub node }

type repeatNode struct {
	sub      node
	min, max int // max == -1 means unbounded
}

func (litNode) isNode()    {}
func (anyNode) isNode()    {}
func (classNode) isNode()  {}
func (concatNode) isNode() {}
func (altNode) isNode()    {}
func (starNode) isNode()   {}
func (plusNode) isNode()   {}
func (questNode) isNode()  {}
func (repeatNode) isNode() {}
