package engine

// Direction is a single move symbol of a trace
type Direction string

const (
	Up    Direction = "up"
	Down  Direction = "down"
	Left  Direction = "left"
	Right Direction = "right"
)

// Directions lists the move alphabet in its canonical order
var Directions = []Direction{Up, Down, Left, Right}

// Mode selects how a grid is laid out at construction time
type Mode string

const (
	ModeStatic Mode = "static"
	ModePlayer Mode = "player"
	ModeRandom Mode = "random"
)

// Display codes used by the renderer
const (
	PlayerCode     = "P"
	GoalCode       = "G"
	StaticPitCode  = "O"
	StaticWallCode = "X"
	RandomWallCode = "W"
	RandomPitCode  = "-"
	StartPathCode  = "S"
	HazardPathCode = "X"
	PathCode       = "*"
	GoalPathCode   = "$"
	EmptyCode      = " "
)

const (
	// Validation constants
	MinGridSize       = 4
	MaxGridSize       = 64
	MinPopulationSize = 4
	MaxPopulationSize = 10000
	MaxGenerations    = 100000
)

// Position represents row,col coordinates on the board
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Add returns the position shifted by the offset of d. Unknown directions
// return p unchanged and ok=false.
func (p Position) Add(d Direction) (Position, bool) {
	switch d {
	case Up:
		return Position{Row: p.Row - 1, Col: p.Col}, true
	case Down:
		return Position{Row: p.Row + 1, Col: p.Col}, true
	case Left:
		return Position{Row: p.Row, Col: p.Col - 1}, true
	case Right:
		return Position{Row: p.Row, Col: p.Col + 1}, true
	}
	return p, false
}

// Neighbors returns the 4-neighborhood of p in canonical direction order
func (p Position) Neighbors() []Position {
	out := make([]Position, 0, len(Directions))
	for _, d := range Directions {
		n, _ := p.Add(d)
		out = append(out, n)
	}
	return out
}

// Piece is a single board item with its display code
type Piece struct {
	Pos  Position `json:"pos"`
	Code string   `json:"code"`
}

// GridSnapshot is a read-only copy of every piece on the board, used by the
// renderer and JSON transports
type GridSnapshot struct {
	Size   int      `json:"size"`
	Start  Position `json:"start"`
	Player Piece    `json:"player"`
	Walls  []Piece  `json:"walls"`
	Pits   []Piece  `json:"pits"`
	Goals  []Piece  `json:"goals"`
	Paths  []Piece  `json:"paths,omitempty"`
}

// RunConfig represents a GA run configuration, loaded from JSON presets or
// built from command line flags
type RunConfig struct {
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	Size           int     `json:"size"`
	Seed           int64   `json:"seed"`
	Generations    int     `json:"generations"`
	Crossover      float64 `json:"crossover"`
	Mutation       float64 `json:"mutation"`
	PopulationSize int     `json:"population_size"`
	Mode           Mode    `json:"mode"`
	Workers        int     `json:"workers,omitempty"`
}

// DefaultRunConfig returns the command line defaults
func DefaultRunConfig() *RunConfig {
	return &RunConfig{
		Name:           "default",
		Description:    "Static 4x4 board with command line defaults",
		Size:           4,
		Seed:           1,
		Generations:    1,
		Crossover:      0.7,
		Mutation:       0.1,
		PopulationSize: 4,
		Mode:           ModeStatic,
	}
}

// ParseDirection converts a move symbol to a Direction. Single-letter
// abbreviations (u, d, l, r) are accepted.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "up", "u", "U":
		return Up, true
	case "down", "d", "D":
		return Down, true
	case "left", "l", "L":
		return Left, true
	case "right", "r", "R":
		return Right, true
	}
	return "", false
}

// Symbol returns the single-letter form of d
func (d Direction) Symbol() string {
	switch d {
	case Up:
		return "u"
	case Down:
		return "d"
	case Left:
		return "l"
	case Right:
		return "r"
	}
	return "?"
}
