package game

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

// boardScaling holds the base side length and per-player increment
type boardScaling struct {
	base      float64
	increment float64
}

var difficultyScaling = map[Difficulty]boardScaling{
	DifficultyEasy:   {base: 10, increment: 1},
	DifficultyMedium: {base: 12, increment: 1.5},
	DifficultyHard:   {base: 14, increment: 2},
}

var difficultyOccupation = map[Difficulty]float64{
	DifficultyEasy:   0.70,
	DifficultyMedium: 0.55,
	DifficultyHard:   0.35,
}

// Extra occupation allowed when playing in teams
const teamsOccupationBonus = 0.05

// Ship sizes handed to every player, in placement order
var fleetComposition = map[Difficulty][]int{
	DifficultyEasy:   {5, 4, 4, 3, 3},
	DifficultyMedium: {4, 4, 3, 3, 2},
	DifficultyHard:   {3, 3, 2, 2},
}

// BoardSize returns the side length of a board for the given difficulty
// and number of players, capped at MaxBoardSize.
func BoardSize(difficulty Difficulty, playerCount int) (int, error) {
	scaling, ok := difficultyScaling[difficulty]
	if !ok {
		return 0, errors.Wrapf(ErrInvalidConfiguration, "unknown difficulty %q", difficulty)
	}
	size := int(math.Ceil(scaling.base + float64(playerCount)*scaling.increment))
	return Min(MaxBoardSize, size), nil
}

// OccupationPercentage returns the share of the board fleets may cover
func OccupationPercentage(difficulty Difficulty, mode Mode) (float64, error) {
	occupation, ok := difficultyOccupation[difficulty]
	if !ok {
		return 0, errors.Wrapf(ErrInvalidConfiguration, "unknown difficulty %q", difficulty)
	}
	if mode == ModeTeams {
		occupation += teamsOccupationBonus
	}
	return occupation, nil
}

// FleetComposition returns the ship sizes each player receives.
// Unknown difficulties are rejected here as well as in BoardSize.
func FleetComposition(difficulty Difficulty) ([]int, error) {
	sizes, ok := fleetComposition[difficulty]
	if !ok {
		return nil, errors.Wrapf(ErrInvalidConfiguration, "unknown difficulty %q", difficulty)
	}
	out := make([]int, len(sizes))
	copy(out, sizes)
	return out, nil
}

func averageShipSize(sizes []int) float64 {
	if len(sizes) == 0 {
		return 0
	}
	total := 0
	for _, s := range sizes {
		total += s
	}
	return float64(total) / float64(len(sizes))
}

// GenerateGlobalBoard places the fleets of all players on one shared board.
// Placement is greedy: each ship gets MaxPlacementAttempts tries and the
// whole generation fails if any ship cannot be placed.
func GenerateGlobalBoard(playerIDs []int, difficulty Difficulty, mode Mode, rng *rand.Rand) (*Board, error) {
	if len(playerIDs) == 0 {
		return nil, errors.Wrap(ErrInvalidConfiguration, "no players")
	}

	size, err := BoardSize(difficulty, len(playerIDs))
	if err != nil {
		return nil, err
	}
	occupation, err := OccupationPercentage(difficulty, mode)
	if err != nil {
		return nil, err
	}
	sizes, err := FleetComposition(difficulty)
	if err != nil {
		return nil, err
	}

	capacity := math.Floor(float64(size*size) * occupation)
	required := float64(len(playerIDs)) * averageShipSize(sizes)
	if required > capacity {
		return nil, errors.Wrapf(ErrInsufficientBoardSpace,
			"%d players need %.1f cells, board %dx%d allows %.0f", len(playerIDs), required, size, size, capacity)
	}

	board := &Board{
		Size:  size,
		Ships: make([]*Ship, 0, len(playerIDs)*len(sizes)),
		Shots: make([]Shot, 0),
	}
	occupied := make(map[Coordinate]bool)
	nextID := 1

	for _, playerID := range playerIDs {
		for _, length := range sizes {
			positions, ok := placeShip(length, size, occupied, rng)
			if !ok {
				return nil, errors.Wrapf(ErrPlacementExhausted,
					"player %d ship of length %d after %d attempts", playerID, length, MaxPlacementAttempts)
			}
			for _, p := range positions {
				occupied[Coordinate{Row: p.Row, Col: p.Col}] = true
			}
			board.Ships = append(board.Ships, &Ship{
				ID:        nextID,
				OwnerID:   intPtr(playerID),
				Positions: positions,
			})
			nextID++
		}
	}

	return board, nil
}

// placeShip picks a random orientation and start cell that keeps the ship
// on the board, retrying while it collides with an occupied cell.
func placeShip(length, size int, occupied map[Coordinate]bool, rng *rand.Rand) ([]Position, bool) {
	for attempt := 0; attempt < MaxPlacementAttempts; attempt++ {
		horizontal := rng.Intn(2) == 0

		var row, col, dr, dc int
		if horizontal {
			row = rng.Intn(size)
			col = rng.Intn(size - length + 1)
			dc = 1
		} else {
			row = rng.Intn(size - length + 1)
			col = rng.Intn(size)
			dr = 1
		}

		positions := make([]Position, length)
		collision := false
		for i := 0; i < length; i++ {
			p := Position{Row: row + i*dr, Col: col + i*dc}
			if occupied[Coordinate{Row: p.Row, Col: p.Col}] {
				collision = true
				break
			}
			positions[i] = p
		}
		if !collision {
			return positions, true
		}
	}
	return nil, false
}

// Min returns the minimum of two integers
func Min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
