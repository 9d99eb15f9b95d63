package leakdetect

// Package-private Aho-Corasick automaton used to prefilter which secret
// patterns are worth evaluating with their (expensive) full regex. No
// third-party multi-pattern matcher exists anywhere in the dependency
// corpus this module was grounded on, so the automaton is hand-rolled
// here the same way the reference implementation hand-rolls it.

type acNode struct {
	children map[byte]int
	fail     int
	output   []int // indices into the keyword list whose match ends at this node
}

// acAutomaton is a byte-oriented Aho-Corasick automaton supporting overlapping
// matches against a fixed set of keywords.
type acAutomaton struct {
	nodes []acNode
}

func newACNode() acNode {
	return acNode{children: make(map[byte]int)}
}

// buildAhoCorasick constructs an automaton over keywords. Empty keywords are
// ignored (they carry no usable literal prefix and match nothing here; the
// caller treats them as always-candidate).
func buildAhoCorasick(keywords []string) *acAutomaton {
	a := &acAutomaton{nodes: []acNode{newACNode()}}

	for kwIdx, kw := range keywords {
		if kw == "" {
			continue
		}
		cur := 0
		for i := 0; i < len(kw); i++ {
			c := kw[i]
			next, ok := a.nodes[cur].children[c]
			if !ok {
				a.nodes = append(a.nodes, newACNode())
				next = len(a.nodes) - 1
				a.nodes[cur].children[c] = next
			}
			cur = next
		}
		a.nodes[cur].output = append(a.nodes[cur].output, kwIdx)
	}

	// BFS to build fail links.
	queue := make([]int, 0, len(a.nodes))
	for _, child := range a.nodes[0].children {
		a.nodes[child].fail = 0
		queue = append(queue, child)
	}

	for qi := 0; qi < len(queue); qi++ {
		u := queue[qi]
		for c, v := range a.nodes[u].children {
			queue = append(queue, v)
			f := a.nodes[u].fail
			for {
				if nf, ok := a.nodes[f].children[c]; ok && nf != v {
					a.nodes[v].fail = nf
					break
				}
				if f == 0 {
					a.nodes[v].fail = 0
					break
				}
				f = a.nodes[f].fail
			}
			a.nodes[v].output = append(a.nodes[v].output, a.nodes[a.nodes[v].fail].output...)
		}
	}

	return a
}

// MatchAny scans text and returns a boolean slice (indexed like the keyword
// list passed to buildAhoCorasick) marking which keywords occur anywhere in
// text, including overlapping occurrences.
func (a *acAutomaton) MatchAny(text string) []bool {
	// Determine output cardinality from the largest keyword index seen.
	maxIdx := -1
	for _, n := range a.nodes {
		for _, idx := range n.output {
			if idx > maxIdx {
				maxIdx = idx
			}
		}
	}
	found := make([]bool, maxIdx+1)

	state := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		for {
			if next, ok := a.nodes[state].children[c]; ok {
				state = next
				break
			}
			if state == 0 {
				break
			}
			state = a.nodes[state].fail
		}
		for _, idx := range a.nodes[state].output {
			found[idx] = true
		}
	}
	return found
}
