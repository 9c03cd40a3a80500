// Package search generates seed traces by depth-first search over the grid's
// valid-move graph.
//
// The search keeps an explicit stack of frames (position, incoming direction,
// parent frame) and a visited set keyed by position. Neighbors are pushed in
// a rotation that starts at the preferred direction; because the stack is
// LIFO the last pushed neighbor is expanded first. The search ends as soon as
// a goal cell is pushed and the trace is rebuilt by following parent frames.
//
// Usage:
//
//	trace, err := search.Search(grid, engine.Left)
//	if errors.Is(err, search.ErrNoPath) {
//		// no goal is reachable from the player
//	}
package search
