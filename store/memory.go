// Package store provides the board and shot persistence used by the engine.
package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/lab1702/broadside/game"
	"github.com/pkg/errors"
)

// ErrGameNotFound is returned when no board was saved for a game
var ErrGameNotFound = errors.New("game not found")

// Memory keeps boards as serialized blobs and shots in a slice per game
type Memory struct {
	mu     sync.Mutex
	boards map[string][]byte
	shots  map[string][]game.Shot
	nextID int64
	now    func() time.Time
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		boards: make(map[string][]byte),
		shots:  make(map[string][]game.Shot),
		now:    time.Now,
	}
}

// LoadBoard decodes a fresh copy of the saved board
func (m *Memory) LoadBoard(ctx context.Context, gameID string) (*game.Board, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	blob, ok := m.boards[gameID]
	m.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(ErrGameNotFound, "game %s", gameID)
	}
	return decodeBoard(blob)
}

// SaveBoard stores the board as a serialized blob
func (m *Memory) SaveBoard(ctx context.Context, gameID string, board *game.Board) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	blob, err := encodeBoard(board)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.boards[gameID] = blob
	m.mu.Unlock()
	return nil
}

// RegisterShot appends a canonical shot and assigns its id and timestamp
func (m *Memory) RegisterShot(ctx context.Context, gameID string, shooterID int, shotType game.ShotType, target game.Coordinate, hit bool, sunkShipID *int) (game.Shot, error) {
	if err := ctx.Err(); err != nil {
		return game.Shot{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	shot := game.Shot{
		ID:         m.nextID,
		GameID:     gameID,
		ShooterID:  shooterID,
		Type:       shotType,
		Target:     target,
		Hit:        hit,
		SunkShipID: sunkShipID,
		CreatedAt:  m.now(),
	}
	m.shots[gameID] = append(m.shots[gameID], shot)
	return shot, nil
}

// ShotsForGame returns the persisted shots of a game in insertion order
func (m *Memory) ShotsForGame(ctx context.Context, gameID string) ([]game.Shot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]game.Shot(nil), m.shots[gameID]...), nil
}

func encodeBoard(board *game.Board) ([]byte, error) {
	blob, err := json.Marshal(board)
	if err != nil {
		return nil, errors.Wrap(err, "encode board")
	}
	return blob, nil
}

func decodeBoard(blob []byte) (*game.Board, error) {
	var board game.Board
	if err := json.Unmarshal(blob, &board); err != nil {
		return nil, errors.Wrap(err, "decode board")
	}
	if board.Shots == nil {
		board.Shots = make([]game.Shot, 0)
	}
	return &board, nil
}
