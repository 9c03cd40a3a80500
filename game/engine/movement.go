package engine

// IsValidMove checks if the player may stand on pos. Walls and cells off the
// board are invalid; pits are valid but hazardous.
func (g *Grid) IsValidMove(pos Position) bool {
	if !g.InBounds(pos) {
		return false
	}
	return !g.IsWall(pos)
}

// ApplyMove attempts to move the player one step in direction. On success a
// path marker is left on the cell being vacated. Invalid or unknown moves
// return false and leave the board untouched.
func (g *Grid) ApplyMove(direction Direction) bool {
	from := g.player.Pos
	to, ok := from.Add(direction)
	if !ok || !g.IsValidMove(to) {
		return false
	}

	code := PathCode
	switch {
	case from == g.start:
		code = StartPathCode
	case g.IsPit(from):
		code = HazardPathCode
	}
	g.paths = append(g.paths, Piece{Pos: from, Code: code})
	g.player.Pos = to
	return true
}

// ApplyTrace applies every move of trace in order and returns the success
// status for each one
func (g *Grid) ApplyTrace(trace []Direction) []bool {
	results := make([]bool, 0, len(trace))
	for _, d := range trace {
		results = append(results, g.ApplyMove(d))
	}
	return results
}

// MarkTrace overlays the cells a trace would visit from the current player
// position without moving the player. Blocked moves are skipped.
func (g *Grid) MarkTrace(trace []Direction) {
	pos := g.player.Pos
	for _, d := range trace {
		next, ok := pos.Add(d)
		if !ok || !g.IsValidMove(next) {
			continue
		}
		pos = next
		switch {
		case g.IsGoal(pos):
			g.paths = append(g.paths, Piece{Pos: pos, Code: GoalPathCode})
		case g.IsPit(pos):
			g.paths = append(g.paths, Piece{Pos: pos, Code: HazardPathCode})
		case !g.IsPlayer(pos):
			g.paths = append(g.paths, Piece{Pos: pos, Code: PathCode})
		}
	}
}

// ClearPaths removes every path marker
func (g *Grid) ClearPaths() {
	g.paths = nil
}

// AdjacentToPit reports whether any 4-neighbor of pos is a pit
func (g *Grid) AdjacentToPit(pos Position) bool {
	for _, n := range pos.Neighbors() {
		if g.IsPit(n) {
			return true
		}
	}
	return false
}

// PossibleMoves returns the directions the player can currently take
func (g *Grid) PossibleMoves() []Direction {
	var possible []Direction
	for _, d := range Directions {
		next, _ := g.player.Pos.Add(d)
		if g.IsValidMove(next) {
			possible = append(possible, d)
		}
	}
	return possible
}
