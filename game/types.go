package game

import (
	"time"

	"github.com/pkg/errors"
)

// Board limits
const (
	MinBoardSize = 10
	MaxBoardSize = 20

	// MaxPlacementAttempts is the retry budget for placing a single ship
	MaxPlacementAttempts = 100

	// SecondaryShotID tags pattern cells that are resolved in memory only
	SecondaryShotID = -1
)

// Errors raised while generating or targeting a board
var (
	ErrInvalidConfiguration   = errors.New("invalid board configuration")
	ErrInsufficientBoardSpace = errors.New("insufficient board space")
	ErrPlacementExhausted     = errors.New("ship placement attempts exhausted")
	ErrOutOfBounds            = errors.New("coordinate outside the board")
)

// Difficulty selects board size, occupation and fleet composition
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Mode is the play mode of a session
type Mode string

const (
	ModeIndividual Mode = "individual"
	ModeTeams      Mode = "teams"
)

// ShotType is one of the shot archetypes
type ShotType string

const (
	ShotSimple  ShotType = "simple"
	ShotCross   ShotType = "cross"
	ShotMulti   ShotType = "multi"
	ShotArea    ShotType = "area"
	ShotScan    ShotType = "scan"
	ShotNuclear ShotType = "nuclear"
)

// ShotTypes lists every archetype in a stable order
var ShotTypes = []ShotType{ShotSimple, ShotCross, ShotMulti, ShotArea, ShotScan, ShotNuclear}

// ParseShotType maps a wire string to a known shot type.
// The second return value is false for unknown strings.
func ParseShotType(s string) (ShotType, bool) {
	for _, t := range ShotTypes {
		if string(t) == s {
			return t, true
		}
	}
	return ShotType(s), false
}

// Coordinate is a cell on the board
type Coordinate struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Position is a cell occupied by a ship
type Position struct {
	Row   int  `json:"row"`
	Col   int  `json:"col"`
	IsHit bool `json:"isHit"`
}

// Ship is one vessel of the fleet
type Ship struct {
	ID        int        `json:"shipId"`
	OwnerID   *int       `json:"ownerId"`
	TeamID    *int       `json:"teamId"`
	Positions []Position `json:"positions"`
	IsSunk    bool       `json:"isSunk"`
}

// Occupies reports whether the ship covers the given cell
func (s *Ship) Occupies(row, col int) bool {
	for _, p := range s.Positions {
		if p.Row == row && p.Col == col {
			return true
		}
	}
	return false
}

// OwnedBy reports whether playerID owns the ship
func (s *Ship) OwnedBy(playerID int) bool {
	return s.OwnerID != nil && *s.OwnerID == playerID
}

// Shot is a single struck cell.
// Canonical shots carry a repository id, pattern cells carry SecondaryShotID.
type Shot struct {
	ID         int64      `json:"id"`
	GameID     string     `json:"gameId"`
	ShooterID  int        `json:"shooterId"`
	Type       ShotType   `json:"type"`
	Target     Coordinate `json:"target"`
	Hit        bool       `json:"hit"`
	SunkShipID *int       `json:"sunkShipId,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// IsSecondary reports whether the shot was never persisted on its own
func (s Shot) IsSecondary() bool {
	return s.ID == SecondaryShotID
}

// Board holds the shared grid of one session
type Board struct {
	Size  int     `json:"size"`
	Ships []*Ship `json:"ships"`
	Shots []Shot  `json:"shots"`
}

// ShipAt returns the ship covering the cell, or nil
func (b *Board) ShipAt(row, col int) *Ship {
	return shipAt(b.Ships, row, col)
}

// AlreadyShot reports whether any recorded shot targeted the cell
func (b *Board) AlreadyShot(row, col int) bool {
	for _, s := range b.Shots {
		if s.Target.Row == row && s.Target.Col == col {
			return true
		}
	}
	return false
}

// ShipsOf returns the ships owned by a player
func (b *Board) ShipsOf(playerID int) []*Ship {
	var ships []*Ship
	for _, s := range b.Ships {
		if s.OwnedBy(playerID) {
			ships = append(ships, s)
		}
	}
	return ships
}

func shipAt(ships []*Ship, row, col int) *Ship {
	for _, s := range ships {
		if s.Occupies(row, col) {
			return s
		}
	}
	return nil
}

func intPtr(v int) *int {
	return &v
}
