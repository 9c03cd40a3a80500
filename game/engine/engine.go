package engine

import (
	"fmt"
	"log"
	"math/rand"
)

// Board defines the read side of a grid, used by search and fitness code
type Board interface {
	Size() int
	PlayerPosition() Position
	IsValidMove(pos Position) bool
	IsGoal(pos Position) bool
	IsPit(pos Position) bool
	IsWall(pos Position) bool
	IsPlayer(pos Position) bool
}

// Grid is a square board holding one player plus walls, pits, goals and the
// path markers left behind by successful moves
type Grid struct {
	size   int
	start  Position
	player Piece
	walls  []Piece
	pits   []Piece
	goals  []Piece
	paths  []Piece

	wallSet map[Position]struct{}
	pitSet  map[Position]struct{}
	goalSet map[Position]struct{}
}

var _ Board = (*Grid)(nil)

// NewEmptyGrid creates a board with no pieces and the player at (0,0).
// Sizes below MinGridSize are clamped.
func NewEmptyGrid(size int) *Grid {
	if size < MinGridSize {
		log.Printf("Minimum board size is %d. Initialized to size %d.", MinGridSize, MinGridSize)
		size = MinGridSize
	}
	return &Grid{
		size:    size,
		player:  Piece{Code: PlayerCode},
		wallSet: make(map[Position]struct{}),
		pitSet:  make(map[Position]struct{}),
		goalSet: make(map[Position]struct{}),
	}
}

// NewGrid builds a board in the requested mode. The rng is only drawn from
// in player and random modes.
func NewGrid(size int, mode Mode, rng *rand.Rand) (*Grid, error) {
	switch mode {
	case ModeStatic, "":
		g := NewEmptyGrid(size)
		g.initStatic()
		return g, nil
	case ModePlayer:
		if rng == nil {
			return nil, fmt.Errorf("grid mode %q requires a random source", mode)
		}
		return newPlayerGrid(size, rng), nil
	case ModeRandom:
		if rng == nil {
			return nil, fmt.Errorf("grid mode %q requires a random source", mode)
		}
		g := NewEmptyGrid(size)
		g.initRandom(rng)
		return g, nil
	default:
		return nil, fmt.Errorf("unknown grid mode %q", mode)
	}
}

// initStatic places every piece at fixed coordinates
func (g *Grid) initStatic() {
	g.SetPlayer(Position{Row: 0, Col: 3})
	g.addPiece(&g.goals, g.goalSet, Position{Row: 0, Col: 0}, GoalCode)
	g.addPiece(&g.pits, g.pitSet, Position{Row: 0, Col: 1}, StaticPitCode)
	g.addPiece(&g.walls, g.wallSet, Position{Row: 2, Col: 0}, StaticWallCode)
}

// newPlayerGrid keeps the static layout and moves the player to a random
// cell, rebuilding until no two pieces overlap
func newPlayerGrid(size int, rng *rand.Rand) *Grid {
	for {
		g := NewEmptyGrid(size)
		g.initStatic()
		g.SetPlayer(Position{Row: rng.Intn(g.size), Col: rng.Intn(g.size)})
		if g.Validate() {
			return g
		}
	}
}

// initRandom places the player on the left edge, fills the right edge with
// goals, then scatters walls and pits. Each wall or pit clears its 3x3
// neighborhood from the pool of legal cells, so no two pieces can overlap.
func (g *Grid) initRandom(rng *rand.Rand) {
	legal := make([]Position, 0, g.size*g.size)
	var playerCandidates []Position
	for row := 0; row < g.size; row++ {
		for col := 0; col < g.size-1; col++ {
			pos := Position{Row: row, Col: col}
			legal = append(legal, pos)
			if col == 0 {
				playerCandidates = append(playerCandidates, pos)
			}
		}
	}

	start := playerCandidates[rng.Intn(len(playerCandidates))]
	g.SetPlayer(start)
	legal = removePositions(legal, start)

	for row := 0; row < g.size; row++ {
		g.addPiece(&g.goals, g.goalSet, Position{Row: row, Col: g.size - 1}, GoalCode)
	}

	area := float64(g.size * g.size)
	for placed := 0; float64(placed) <= area/10 && len(legal) > 0; placed++ {
		pos := legal[rng.Intn(len(legal))]
		g.addPiece(&g.walls, g.wallSet, pos, RandomWallCode)
		legal = removePositions(legal, blockAround(pos)...)
	}
	for placed := 0; float64(placed) <= area/20 && len(legal) > 0; placed++ {
		pos := legal[rng.Intn(len(legal))]
		g.addPiece(&g.pits, g.pitSet, pos, RandomPitCode)
		legal = removePositions(legal, blockAround(pos)...)
	}
}

// blockAround returns pos and its 8 surrounding cells
func blockAround(pos Position) []Position {
	out := make([]Position, 0, 9)
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			out = append(out, Position{Row: pos.Row + dr, Col: pos.Col + dc})
		}
	}
	return out
}

// removePositions filters drop out of pool, preserving order
func removePositions(pool []Position, drop ...Position) []Position {
	skip := make(map[Position]struct{}, len(drop))
	for _, p := range drop {
		skip[p] = struct{}{}
	}
	out := pool[:0]
	for _, p := range pool {
		if _, ok := skip[p]; !ok {
			out = append(out, p)
		}
	}
	return out
}

func (g *Grid) addPiece(list *[]Piece, set map[Position]struct{}, pos Position, code string) {
	*list = append(*list, Piece{Pos: pos, Code: code})
	set[pos] = struct{}{}
}

// SetPlayer moves the player to pos and records it as the starting cell
func (g *Grid) SetPlayer(pos Position) {
	g.player = Piece{Pos: pos, Code: PlayerCode}
	g.start = pos
}

// AddWall places a wall with the static display code
func (g *Grid) AddWall(pos Position) {
	g.addPiece(&g.walls, g.wallSet, pos, StaticWallCode)
}

// AddPit places a pit with the static display code
func (g *Grid) AddPit(pos Position) {
	g.addPiece(&g.pits, g.pitSet, pos, StaticPitCode)
}

// AddGoal places a goal
func (g *Grid) AddGoal(pos Position) {
	g.addPiece(&g.goals, g.goalSet, pos, GoalCode)
}

// Validate reports whether the player, walls, pits and goals all occupy
// distinct cells
func (g *Grid) Validate() bool {
	seen := make(map[Position]struct{}, 1+len(g.walls)+len(g.pits)+len(g.goals))
	seen[g.player.Pos] = struct{}{}
	for _, group := range [][]Piece{g.walls, g.pits, g.goals} {
		for _, p := range group {
			if _, dup := seen[p.Pos]; dup {
				return false
			}
			seen[p.Pos] = struct{}{}
		}
	}
	return true
}

// Clone returns a deep copy that shares no state with g
func (g *Grid) Clone() *Grid {
	c := &Grid{
		size:    g.size,
		start:   g.start,
		player:  g.player,
		walls:   append([]Piece(nil), g.walls...),
		pits:    append([]Piece(nil), g.pits...),
		goals:   append([]Piece(nil), g.goals...),
		paths:   append([]Piece(nil), g.paths...),
		wallSet: make(map[Position]struct{}, len(g.wallSet)),
		pitSet:  make(map[Position]struct{}, len(g.pitSet)),
		goalSet: make(map[Position]struct{}, len(g.goalSet)),
	}
	for p := range g.wallSet {
		c.wallSet[p] = struct{}{}
	}
	for p := range g.pitSet {
		c.pitSet[p] = struct{}{}
	}
	for p := range g.goalSet {
		c.goalSet[p] = struct{}{}
	}
	return c
}

// Snapshot returns a read-only copy of all pieces
func (g *Grid) Snapshot() GridSnapshot {
	return GridSnapshot{
		Size:   g.size,
		Start:  g.start,
		Player: g.player,
		Walls:  append([]Piece(nil), g.walls...),
		Pits:   append([]Piece(nil), g.pits...),
		Goals:  append([]Piece(nil), g.goals...),
		Paths:  append([]Piece(nil), g.paths...),
	}
}

// GridFromSnapshot rebuilds a board from a snapshot, e.g. one loaded from storage
func GridFromSnapshot(s GridSnapshot) (*Grid, error) {
	if s.Size < MinGridSize {
		return nil, fmt.Errorf("snapshot size %d is below minimum %d", s.Size, MinGridSize)
	}
	g := NewEmptyGrid(s.Size)
	g.player = s.Player
	if g.player.Code == "" {
		g.player.Code = PlayerCode
	}
	g.start = s.Start
	for _, p := range s.Walls {
		g.addPiece(&g.walls, g.wallSet, p.Pos, p.Code)
	}
	for _, p := range s.Pits {
		g.addPiece(&g.pits, g.pitSet, p.Pos, p.Code)
	}
	for _, p := range s.Goals {
		g.addPiece(&g.goals, g.goalSet, p.Pos, p.Code)
	}
	g.paths = append(g.paths, s.Paths...)
	if !g.Validate() {
		return nil, fmt.Errorf("snapshot has overlapping pieces")
	}
	return g, nil
}

// Size returns the side length of the board
func (g *Grid) Size() int {
	return g.size
}

// Start returns the cell the player started on
func (g *Grid) Start() Position {
	return g.start
}

// PlayerPosition returns the current player position
func (g *Grid) PlayerPosition() Position {
	return g.player.Pos
}

// Walls returns the wall pieces in placement order
func (g *Grid) Walls() []Piece {
	return g.walls
}

// Pits returns the pit pieces in placement order
func (g *Grid) Pits() []Piece {
	return g.pits
}

// Goals returns the goal pieces in placement order
func (g *Grid) Goals() []Piece {
	return g.goals
}

// Paths returns the recorded path markers in the order they were left
func (g *Grid) Paths() []Piece {
	return g.paths
}

// IsGoal checks if a position is a goal cell
func (g *Grid) IsGoal(pos Position) bool {
	_, ok := g.goalSet[pos]
	return ok
}

// IsPit checks if a position is a pit cell
func (g *Grid) IsPit(pos Position) bool {
	_, ok := g.pitSet[pos]
	return ok
}

// IsWall checks if a position is a wall cell
func (g *Grid) IsWall(pos Position) bool {
	_, ok := g.wallSet[pos]
	return ok
}

// IsPlayer checks if the player currently stands on pos
func (g *Grid) IsPlayer(pos Position) bool {
	return g.player.Pos == pos
}

// InBounds reports whether pos lies on the board
func (g *Grid) InBounds(pos Position) bool {
	return pos.Row >= 0 && pos.Row < g.size && pos.Col >= 0 && pos.Col < g.size
}
