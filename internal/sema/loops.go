package sema

import (
	"github.com/decisionlang/decision/internal/diag"
	"github.com/decisionlang/decision/internal/ir"
	"github.com/decisionlang/decision/internal/types"
)

type dfsState int

const (
	white dfsState = iota
	gray
	black
)

// detectLoops runs a depth-first traversal from every Start and Define node
// along execution wires to find back-edges (CycleDetected), runs a second
// DFS over the pure-value subgraph to catch value-only cycles, and finally
// flags nodes that neither traversal ever reaches as RedundantNode.
func detectLoops(sheet *ir.Sheet, sink *diag.Sink) {
	execAdj, valueAdj := buildAdjacency(sheet)

	execVisited := make([]bool, len(sheet.Nodes))
	state := make([]dfsState, len(sheet.Nodes))

	var walkExec func(n int)
	walkExec = func(n int) {
		state[n] = gray
		execVisited[n] = true
		for _, next := range execAdj[n] {
			switch state[next] {
			case white:
				walkExec(next)
			case gray:
				sink.Add(diag.CycleDetected, sheet.Nodes[n].Line, 0,
					"execution cycle through node %d back to node %d", n, next)
			}
		}
		state[n] = black
	}

	entries := []int{}
	if sheet.StartNodeIndex >= 0 {
		entries = append(entries, sheet.StartNodeIndex)
	}
	for _, f := range sheet.Functions {
		if f.Sheet == sheet {
			entries = append(entries, f.DefineNodeIndex)
		}
	}
	for _, e := range entries {
		if !execVisited[e] {
			walkExec(e)
		}
	}

	valueState := make([]dfsState, len(sheet.Nodes))
	var walkValue func(n int)
	walkValue = func(n int) {
		valueState[n] = gray
		for _, next := range valueAdj[n] {
			switch valueState[next] {
			case white:
				walkValue(next)
			case gray:
				sink.Add(diag.CycleDetected, sheet.Nodes[n].Line, 0,
					"value-only cycle through node %d back to node %d", n, next)
			}
		}
		valueState[n] = black
	}
	for n := range sheet.Nodes {
		if valueState[n] == white {
			walkValue(n)
		}
	}

	producerOf := make(map[ir.NodeSocket]int, len(sheet.Wires))
	for _, w := range sheet.Wires {
		producerOf[w.To] = w.From.NodeIndex
	}

	reachable := make([]bool, len(sheet.Nodes))
	queue := []int{}
	for _, e := range entries {
		if !reachable[e] {
			reachable[e] = true
			queue = append(queue, e)
		}
	}
	for n := range sheet.Nodes {
		if execVisited[n] && !reachable[n] {
			reachable[n] = true
			queue = append(queue, n)
		}
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		node := sheet.Nodes[n]
		for i := 0; i < node.NumInputs(); i++ {
			producer, ok := producerOf[ir.NodeSocket{NodeIndex: n, SocketIndex: i}]
			if !ok {
				continue
			}
			if !reachable[producer] {
				reachable[producer] = true
				queue = append(queue, producer)
			}
		}
	}

	for n, node := range sheet.Nodes {
		if !reachable[n] {
			sink.Add(diag.RedundantNode, node.Line, 0, "node %d is unreachable from any Start/Define entry", n)
		}
	}
}

// buildAdjacency partitions the wire set into an execution-wire adjacency
// list (both endpoints reduced to Execution) and a value-wire adjacency
// list (everything else), at node granularity.
func buildAdjacency(sheet *ir.Sheet) (exec, value [][]int) {
	exec = make([][]int, len(sheet.Nodes))
	value = make([][]int, len(sheet.Nodes))
	for _, w := range sheet.Wires {
		fromNode := sheet.Nodes[w.From.NodeIndex]
		toNode := sheet.Nodes[w.To.NodeIndex]
		fromT := fromNode.ReducedTypes[w.From.SocketIndex]
		toT := toNode.ReducedTypes[w.To.SocketIndex]
		if fromT == types.Execution && toT == types.Execution {
			exec[w.From.NodeIndex] = append(exec[w.From.NodeIndex], w.To.NodeIndex)
		} else {
			value[w.From.NodeIndex] = append(value[w.From.NodeIndex], w.To.NodeIndex)
		}
	}
	return exec, value
}
