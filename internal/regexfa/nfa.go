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

// nfaState is one state of the Thompson-constructed NFA: epsilon edges
// plus, per byte value, a list of target states. Grounded on
// coregx-coregex/nfa/nfa.go's state/edge representation, simplified to a
// byte alphabet since ranking/unranking only ever works over raw bytes.
type nfaState struct {
	eps   []int
	trans [256][]int
}

type nfaFragment struct {
	start, accept int
}

// nfaBuilder incrementally constructs an NFA via Thompson's construction.
type nfaBuilder struct {
	states []nfaState
}

func (b *nfaBuilder) newState() int {
	b.states = append(b.states, nfaState{})
	return len(b.states) - 1
}

func (b *nfaBuilder) addEps(from, to int) {
	b.states[from].eps = append(b.states[from].eps, to)
}

func (b *nfaBuilder) addByte(from int, lo, hi byte, to int) {
	for c := int(lo); c <= int(hi); c++ {
		b.states[from].trans[c] = append(b.states[from].trans[c], to)
	}
}

// compileThompson walks the AST bottom-up, building one fragment per node
// with a single start and single accept state, threaded together with
// epsilon edges exactly as Thompson's construction describes.
func compileThompson(n node) (*nfaBuilder, nfaFragment) {
	b := &nfaBuilder{}
	frag := b.compile(n)
	return b, frag
}

func (b *nfaBuilder) compile(n node) nfaFragment {
	switch v := n.(type) {
	case litNode:
		return b.compileByteRanges([]byteRange{{lo: v.b, hi: v.b}}, false)
	case anyNode:
		return b.compileByteRanges(nil, true)
	case classNode:
		return b.compileByteRanges(v.ranges, v.negate)
	case concatNode:
		if len(v.parts) == 0 {
			s := b.newState()
			return nfaFragment{start: s, accept: s}
		}
		frag := b.compile(v.parts[0])
		for _, part := range v.parts[1:] {
			next := b.compile(part)
			b.addEps(frag.accept, next.start)
			frag.accept = next.accept
		}
		return frag
	case altNode:
		start := b.newState()
		accept := b.newState()
		for _, part := range v.parts {
			f := b.compile(part)
			b.addEps(start, f.start)
			b.addEps(f.accept, accept)
		}
		return nfaFragment{start: start, accept: accept}
	case starNode:
		return b.star(b.compile(v.sub))
	case plusNode:
		f := b.compile(v.sub)
		return b.concatFrag(f, b.star(b.cloneFragment(v.sub)))
	case questNode:
		f := b.compile(v.sub)
		start := b.newState()
		accept := b.newState()
		b.addEps(start, f.start)
		b.addEps(f.accept, accept)
		b.addEps(start, accept)
		return nfaFragment{start: start, accept: accept}
	case repeatNode:
		return b.repeat(v)
	default:
		s := b.newState()
		return nfaFragment{start: s, accept: s}
	}
}

// cloneFragment recompiles the same AST subtree into a fresh set of
// states; Thompson's construction needs a distinct copy of the body for
// every occurrence (e.g. {m,n} unrolls the body m times, plus a starred
// tail), since NFA states cannot be shared between fragments.
func (b *nfaBuilder) cloneFragment(n node) nfaFragment {
	return b.compile(n)
}

func (b *nfaBuilder) concatFrag(a, c nfaFragment) nfaFragment {
	b.addEps(a.accept, c.start)
	return nfaFragment{start: a.start, accept: c.accept}
}

func (b *nfaBuilder) star(f nfaFragment) nfaFragment {
	start := b.newState()
	accept := b.newState()
	b.addEps(start, f.start)
	b.addEps(f.accept, f.start)
	b.addEps(f.accept, accept)
	b.addEps(start, accept)
	return nfaFragment{start: start, accept: accept}
}

func (b *nfaBuilder) repeat(v repeatNode) nfaFragment {
	if v.min == 0 && v.max == 0 {
		s := b.newState()
		return nfaFragment{start: s, accept: s}
	}
	var frag nfaFragment
	first := true
	for i := 0; i < v.min; i++ {
		f := b.cloneFragment(v.sub)
		if first {
			frag = f
			first = false
		} else {
			frag = b.concatFrag(frag, f)
		}
	}
	switch {
	case v.max == -1:
		tail := b.star(b.cloneFragment(v.sub))
		if first {
			return tail
		}
		return b.concatFrag(frag, tail)
	case v.max > v.min:
		for i := v.min; i < v.max; i++ {
			f := b.cloneFragment(v.sub)
			start := b.newState()
			accept := b.newState()
			b.addEps(start, f.start)
			b.addEps(f.accept, accept)
			b.addEps(start, accept)
			opt := nfaFragment{start: start, accept: accept}
			if first {
				frag = opt
				first = false
			} else {
				frag = b.concatFrag(frag, opt)
			}
		}
	}
	return frag
}

// compileByteRanges builds a single-byte-transition fragment covering the
// given ranges; negate complements the set over the full [0,255] alphabet
// ('.' is modeled as an empty, negated range set: every byte).
func (b *nfaBuilder) compileByteRanges(ranges []byteRange, negate bool) nfaFragment {
	var covered [256]bool
	for _, r := range ranges {
		for c := int(r.lo); c <= int(r.hi); c++ {
			covered[c] = true
		}
	}
	start := b.newState()
	accept := b.newState()
	for c := 0; c < 256; c++ {
		include := covered[c]
		if negate {
			include = !include
		}
		if include {
			b.addByte(start, byte(c), byte(c), accept)
		}
	}
	return nfaFragment{start: start, accept: accept}
}
