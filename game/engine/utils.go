package engine

import "strings"

// ManhattanDistance calculates the Manhattan distance between two positions
func ManhattanDistance(from, to Position) int {
	dr := from.Row - to.Row
	if dr < 0 {
		dr = -dr
	}
	dc := from.Col - to.Col
	if dc < 0 {
		dc = -dc
	}
	return dr + dc
}

// FindNearestGoal finds the goal closest to the player and returns its position and distance
func FindNearestGoal(g *Grid) (Position, int, bool) {
	minDistance := -1
	var nearest Position
	for _, goal := range g.goals {
		d := ManhattanDistance(g.player.Pos, goal.Pos)
		if minDistance == -1 || d < minDistance {
			minDistance = d
			nearest = goal.Pos
		}
	}
	return nearest, minDistance, minDistance >= 0
}

// RenderRows draws the board as one string per row. Later layers overwrite
// earlier ones: walls, goals, pits, paths, then the player.
func RenderRows(s GridSnapshot) []string {
	cells := make([][]string, s.Size)
	for i := range cells {
		cells[i] = make([]string, s.Size)
		for j := range cells[i] {
			cells[i][j] = EmptyCode
		}
	}

	put := func(p Piece) {
		if p.Pos.Row >= 0 && p.Pos.Row < s.Size && p.Pos.Col >= 0 && p.Pos.Col < s.Size {
			cells[p.Pos.Row][p.Pos.Col] = p.Code
		}
	}
	for _, layer := range [][]Piece{s.Walls, s.Goals, s.Pits, s.Paths} {
		for _, p := range layer {
			put(p)
		}
	}
	put(s.Player)

	rows := make([]string, s.Size)
	for i, row := range cells {
		rows[i] = "[" + strings.Join(row, " ") + "]"
	}
	return rows
}

// Render draws the board as a multi-line string
func (g *Grid) Render() string {
	return strings.Join(RenderRows(g.Snapshot()), "\n")
}

// FormatTrace joins a trace into its single-letter form, e.g. "lld"
func FormatTrace(trace []Direction) string {
	var b strings.Builder
	for _, d := range trace {
		b.WriteString(d.Symbol())
	}
	return b.String()
}
