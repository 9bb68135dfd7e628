package score

import (
	"fmt"

	gr "github.com/jsdoublel/duploss/internal/graphs"
)

// Loss counters. Each marks a different way the losses of a gene node change
// along the regraft path; lossScores folds them into one diff per node.
const (
	climbLoss    = iota // losses on the path between a mapping and its parent's
	rootLoss            // losses between secondary mappings below the root
	branchLoss          // losses that start below a node
	leaveRootA          // node no longer under the root, secondary side maps to the root
	leaveRootB          // node no longer under the root, secondary side maps outside
	siblingLoss         // losses on the sibling of the regraft path
)

// How lossScores stores the folded diffs
type lossMode int

const (
	addLoss     lossMode = iota // add to lossScore
	addTempLoss                 // add to lossScoreTemp
	setDiff                     // leave in diff for minTempDuplications
)

// Builds the relevant subtree for g and links relevant nodes to their
// nearest relevant ancestors. Clears all loss counters.
func (e *Engine) buildLossTree(g *gr.GeneTree) {
	s := e.species
	e.build(s, g, e.limit)
	for i := range s.Nodes {
		st := &e.state[i]
		st.diff, st.counter = 0, [6]int{}
		st.lossParent, st.lossChild = gr.None, [2]int{gr.None, gr.None}
	}
	var link func(n, anc int)
	link = func(n, anc int) {
		if e.relevant[n] {
			if anc != gr.None {
				e.state[n].lossParent = anc
				if e.state[anc].lossChild[0] == gr.None {
					e.state[anc].lossChild[0] = n
				} else {
					e.state[anc].lossChild[1] = n
				}
			}
			anc = n
		}
		if !s.IsLeaf(n) {
			link(s.Child(n, 0), anc)
			link(s.Child(n, 1), anc)
		}
	}
	link(s.Root, gr.None)
}

// Topmost relevant node on the sibling side of the pruned subtree
func (e *Engine) lossSibling(subtree int) int {
	s := e.species
	root := e.state[s.Root]
	if s.Child(s.Root, 0) == subtree {
		return root.lossChild[1]
	}
	return root.lossChild[0]
}

func (e *Engine) lossParent(n int) int {
	return e.state[n].lossParent
}

// other loss child of n's loss parent
func (e *Engine) lossSiblingOf(n int) int {
	p := e.state[n].lossParent
	if e.state[p].lossChild[0] == n {
		return e.state[p].lossChild[1]
	}
	return e.state[p].lossChild[0]
}

func (e *Engine) hasLossChildren(n int) bool {
	return e.state[n].lossChild[0] != gr.None
}

func (e *Engine) bumpLossChildren(n, counter int) {
	for _, c := range e.state[n].lossChild {
		if c != gr.None {
			e.state[c].counter[counter]++
		}
	}
}

// increments counter on from and its loss ancestors below to
func (e *Engine) climb(from, to, counter int) {
	for t := from; t != to; t = e.state[t].lossParent {
		if t == gr.None {
			panic(fmt.Sprintf("species node %d is not a loss ancestor of %d", to, from))
		}
		e.state[t].counter[counter]++
	}
}

// marks the path from n up to the root's loss child together with the
// siblings along it
func (e *Engine) climbToRoot(n int) {
	root := e.species.Root
	for t := n; e.lossParent(t) != root; t = e.lossParent(t) {
		e.state[t].counter[siblingLoss]++
		e.state[e.lossSiblingOf(t)].counter[siblingLoss]++
	}
}

// Case analysis over the internal nodes of g
func (e *Engine) lossCounters(g *gr.GeneTree, subtree int) {
	s := e.species
	root := s.Root
	outside := func(x int) bool { return !s.InSubtree(x, subtree) }
	g.PostOrder(func(n int) {
		if g.IsLeaf(n) {
			return
		}
		c0, c1 := g.Child(n, 0), g.Child(n, 1)
		m, l, r := e.mapping(g, n), e.mapping(g, c0), e.mapping(g, c1)
		if e.partial && (m == gr.None || l == gr.None || r == gr.None) {
			return
		}
		switch {
		case m != root:
			e.climb(l, m, climbLoss)
			e.climb(r, m, climbLoss)
		case l == root && r == root:
			sec := g.Nodes[n].Sec
			if ls := g.Nodes[c0].Sec; sec != ls {
				e.climb(ls, sec, rootLoss)
			}
			if rs := g.Nodes[c1].Sec; sec != rs {
				e.climb(rs, sec, rootLoss)
			}
		case l == root && outside(r):
			e.rootAndOutside(g.Nodes[n].Sec, g.Nodes[c0].Sec, r)
		case r == root && outside(l):
			e.rootAndOutside(g.Nodes[n].Sec, g.Nodes[c1].Sec, l)
		case r == root && !outside(l):
			e.rootAndInside(g.Nodes[n].Sec, g.Nodes[c1].Sec)
		case l == root && !outside(r):
			e.rootAndInside(g.Nodes[n].Sec, g.Nodes[c0].Sec)
		case !outside(l) && outside(r):
			e.insideAndOutside(g.Nodes[n].Sec, r)
		case !outside(r) && outside(l):
			e.insideAndOutside(g.Nodes[n].Sec, l)
		default:
			panic(fmt.Sprintf("gene node %d maps to the species root with both children on one side", n))
		}
	})
}

// node maps to the root, one child maps to the root (secondary aSec) and the
// other to b outside the pruned subtree
func (e *Engine) rootAndOutside(sec, aSec, b int) {
	switch {
	case sec != aSec && sec != b:
		e.climbToRoot(sec)
		e.bumpLossChildren(sec, siblingLoss)
		t := aSec
		for e.lossParent(t) != sec {
			e.state[t].counter[rootLoss]++
			t = e.lossParent(t)
		}
		e.state[t].counter[siblingLoss]++
		e.climb(b, sec, climbLoss)
	case sec == aSec && sec != b:
		e.climbToRoot(sec)
		e.bumpLossChildren(sec, siblingLoss)
		e.climb(b, sec, climbLoss)
	case sec != aSec && sec == b:
		e.climbToRoot(sec)
		t := aSec
		sib := e.lossSiblingOf(t)
		for e.lossParent(t) != sec {
			e.state[t].counter[rootLoss]++
			t = e.lossParent(t)
			sib = e.lossSiblingOf(t)
		}
		e.state[sib].counter[siblingLoss]++
	default:
		e.climbToRoot(sec)
		if e.hasLossChildren(sec) {
			e.bumpLossChildren(sec, siblingLoss)
		}
	}
}

// node maps to the root, one child maps to the root (secondary aSec) and the
// other inside the pruned subtree
func (e *Engine) rootAndInside(sec, aSec int) {
	if sec != aSec {
		panic(fmt.Sprintf("secondary mapping %d differs from the root side's %d", sec, aSec))
	}
	if e.lossParent(sec) != e.species.Root {
		e.state[sec].counter[leaveRootA]++
	}
	if e.hasLossChildren(sec) {
		e.bumpLossChildren(sec, branchLoss)
	}
}

// node maps to the root, one child inside the pruned subtree and the other
// at b outside of it
func (e *Engine) insideAndOutside(sec, b int) {
	if sec != b {
		panic(fmt.Sprintf("secondary mapping %d differs from the outside child's %d", sec, b))
	}
	if e.lossParent(sec) != e.species.Root {
		e.state[sec].counter[leaveRootB]++
	}
	if e.hasLossChildren(sec) {
		e.bumpLossChildren(sec, branchLoss)
		e.bumpLossChildren(sec, rootLoss)
	}
}

// Folds the loss counters of the relevant subtree below top into diffs and
// spreads them over the whole sibling side
func (e *Engine) lossScores(top int, w float64, mode lossMode) {
	e.pushDown(top, leaveRootB)
	e.accumulateFirst(top, 0)
	e.pushDown(top, leaveRootA)
	e.prefixBranch(top, 0)
	e.accumulateBranch(top, 0)
	e.transfer(top, w, mode)
}

// Sums the leave-root counter over loss subtrees and hands it to the loss
// siblings
func (e *Engine) pushDown(n, counter int) {
	st := &e.state[n]
	if e.hasLossChildren(n) {
		e.pushDown(st.lossChild[0], counter)
		e.pushDown(st.lossChild[1], counter)
	}
	if st.lossParent == e.species.Root {
		return
	}
	if e.hasLossChildren(n) {
		st.counter[counter] += e.state[st.lossChild[0]].counter[counter] + e.state[st.lossChild[1]].counter[counter]
	}
	c := st.counter[counter]
	sib := &e.state[e.lossSiblingOf(n)]
	sib.counter[branchLoss] += c
	if counter == leaveRootB {
		sib.counter[siblingLoss] += c
		st.counter[siblingLoss] += c
	}
}

func (e *Engine) checkRootChild(n int, counters ...int) {
	st := e.state[n]
	if st.lossParent != e.species.Root {
		return
	}
	for _, c := range counters {
		if st.counter[c] != 0 {
			panic(fmt.Sprintf("loss counter %d of root child %d is %d", c, n, st.counter[c]))
		}
	}
}

func (e *Engine) accumulateFirst(n, c int) {
	e.checkRootChild(n, climbLoss, rootLoss, siblingLoss)
	st := &e.state[n]
	if !e.relevant[n] {
		panic(fmt.Sprintf("species node %d in the loss tree is not relevant", n))
	}
	c += st.counter[rootLoss] - st.counter[siblingLoss]
	st.diff += c + st.counter[climbLoss]
	if e.hasLossChildren(n) {
		e.accumulateFirst(st.lossChild[0], c)
		e.accumulateFirst(st.lossChild[1], c)
	}
}

func (e *Engine) prefixBranch(n, c int) {
	e.checkRootChild(n, branchLoss)
	st := &e.state[n]
	c += st.counter[branchLoss]
	st.counter[branchLoss] = c
	if e.hasLossChildren(n) {
		e.prefixBranch(st.lossChild[0], c)
		e.prefixBranch(st.lossChild[1], c)
	}
}

func (e *Engine) accumulateBranch(n, c int) {
	e.checkRootChild(n, branchLoss)
	st := &e.state[n]
	c += st.counter[branchLoss]
	st.diff += c
	if e.hasLossChildren(n) {
		e.accumulateBranch(st.lossChild[0], c)
		e.accumulateBranch(st.lossChild[1], c)
	}
}

// Copies each relevant node's diff onto the non-relevant nodes between it
// and its loss parent and onto the gene-free subtrees hanging off them
func (e *Engine) transfer(n int, w float64, mode lossMode) {
	s := e.species
	if !s.IsLeaf(n) {
		e.transfer(s.Child(n, 0), w, mode)
		e.transfer(s.Child(n, 1), w, mode)
	}
	if !e.relevant[n] {
		return
	}
	diff := e.state[n].diff
	apply := func(t int) {
		switch mode {
		case addLoss:
			e.state[t].lossScore += w * float64(diff)
		case addTempLoss:
			e.state[t].lossScoreTemp += w * float64(diff)
		case setDiff:
			e.state[t].diff = diff
		}
	}
	apply(n)
	if s.Parent(n) == s.Root {
		return
	}
	for t := s.Parent(n); !e.relevant[t]; t = s.Parent(t) {
		apply(t)
		empty := s.Child(t, 0)
		if e.size[empty] != 0 {
			empty = s.Child(t, 1)
		}
		s.PostOrderFrom(empty, apply)
	}
}
