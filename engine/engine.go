// Package engine drives shots against the shared board of a game session.
//
// Every game id is owned by a single actor goroutine that executes
// requests one at a time in arrival order, so the read-modify-write of a
// board (team lookup, resolution, persistence) never interleaves with
// another shot on the same game. Different games run in parallel.
package engine

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lab1702/broadside/game"
	"github.com/pkg/errors"
)

// Engine errors
var (
	ErrPrimaryShotNotRegistered = errors.New("primary shot not registered")
	ErrEngineClosed             = errors.New("engine closed")
	ErrSessionClosed            = errors.New("session closed")
)

// Notification event names
const (
	EventShot = "shot"
)

// TeamProvider returns the userId -> teamId snapshot of a game
type TeamProvider interface {
	GetAllTeams(ctx context.Context, gameID string) (map[int]int, error)
}

// ShotRepository persists canonical shots and assigns their id and timestamp
type ShotRepository interface {
	RegisterShot(ctx context.Context, gameID string, shooterID int, shotType game.ShotType, target game.Coordinate, hit bool, sunkShipID *int) (game.Shot, error)
}

// BoardRepository loads and saves serialized boards
type BoardRepository interface {
	LoadBoard(ctx context.Context, gameID string) (*game.Board, error)
	SaveBoard(ctx context.Context, gameID string, board *game.Board) error
}

// Notifier tells the members of a session about an event
type Notifier interface {
	Notify(gameID, event string, payload interface{})
}

// Config wires the engine to its collaborators. Teams and Notifier may be
// nil. A zero Seed uses the current time.
type Config struct {
	Teams    TeamProvider
	Shots    ShotRepository
	Boards   BoardRepository
	Notifier Notifier
	Seed     int64
}

// Result is the outcome of one registered shot
type Result struct {
	Shot      game.Shot   `json:"shot"`
	Board     *game.Board `json:"-"`
	Secondary []game.Shot `json:"secondary"`
}

// Sunk returns the ids of ships sunk by the shot, canonical cell first
func (r Result) Sunk() []int {
	var ids []int
	if r.Shot.SunkShipID != nil {
		ids = append(ids, *r.Shot.SunkShipID)
	}
	for _, s := range r.Secondary {
		if s.SunkShipID != nil {
			ids = append(ids, *s.SunkShipID)
		}
	}
	return ids
}

// ShotEvent is the payload broadcast after a shot
type ShotEvent struct {
	GameID    string      `json:"gameId"`
	Shot      game.Shot   `json:"shot"`
	Secondary []game.Shot `json:"secondary"`
	Sunk      []int       `json:"sunk"`
}

// Engine serializes all board mutations per game
type Engine struct {
	teams    TeamProvider
	shots    ShotRepository
	boards   BoardRepository
	notifier Notifier

	mu       sync.Mutex
	seeds    *rand.Rand // guarded by mu
	genRand  *rand.Rand // guarded by mu
	sessions map[string]*session
	closed   bool
	wg       sync.WaitGroup
}

// session is the actor owning one game's board
type session struct {
	gameID   string
	requests chan request // unbuffered: blocked senders are served in arrival order
	quit     chan struct{}
	done     chan struct{}
	rng      *rand.Rand
}

type request struct {
	ctx    context.Context
	fn     func(rng *rand.Rand) error
	result chan error
}

// New creates an engine. Shots and Boards are required.
func New(cfg Config) *Engine {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	e := &Engine{
		teams:    cfg.Teams,
		shots:    cfg.Shots,
		boards:   cfg.Boards,
		notifier: cfg.Notifier,
		seeds:    rand.New(rand.NewSource(seed)),
		sessions: make(map[string]*session),
	}
	e.genRand = rand.New(rand.NewSource(e.seeds.Int63()))
	if e.teams == nil {
		e.teams = noTeams{}
	}
	if e.notifier == nil {
		e.notifier = noNotifier{}
	}
	return e
}

type noTeams struct{}

func (noTeams) GetAllTeams(context.Context, string) (map[int]int, error) {
	return map[int]int{}, nil
}

type noNotifier struct{}

func (noNotifier) Notify(string, string, interface{}) {}

// session returns the actor of a game, starting it on first use
func (e *Engine) session(gameID string) (*session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrEngineClosed
	}
	if s, ok := e.sessions[gameID]; ok {
		return s, nil
	}

	s := &session{
		gameID:   gameID,
		requests: make(chan request),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		rng:      rand.New(rand.NewSource(e.seeds.Int63())),
	}
	e.sessions[gameID] = s
	e.wg.Add(1)
	go e.runSession(s)
	return s, nil
}

// runSession executes the requests of one game until told to quit
func (e *Engine) runSession(s *session) {
	defer e.wg.Done()
	defer close(s.done)

	for {
		select {
		case req := <-s.requests:
			if err := req.ctx.Err(); err != nil {
				req.result <- err
				continue
			}
			req.result <- s.execute(req.fn)
		case <-s.quit:
			return
		}
	}
}

// execute runs fn and turns a panic into an error so the actor survives
func (s *session) execute(fn func(rng *rand.Rand) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ENGINE] PANIC in session %s: %v", s.gameID, r)
			err = fmt.Errorf("session %s: panic: %v", s.gameID, r)
		}
	}()
	return fn(s.rng)
}

// do runs fn on the actor of gameID. The request may be abandoned while it
// waits in line; once started it always runs to completion.
func (e *Engine) do(ctx context.Context, gameID string, fn func(rng *rand.Rand) error) error {
	s, err := e.session(gameID)
	if err != nil {
		return err
	}

	req := request{ctx: ctx, fn: fn, result: make(chan error, 1)}
	select {
	case s.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return errors.Wrapf(ErrSessionClosed, "game %s", gameID)
	}
	return <-req.result
}

// RegisterShot applies a shot to board under the game's exclusive lock and
// persists the canonical shot. On error the board may hold partial
// mutations and should be reloaded before retrying.
func (e *Engine) RegisterShot(ctx context.Context, gameID string, shooterID int, shotType game.ShotType, origin game.Coordinate, board *game.Board) (Result, error) {
	var result Result
	err := e.do(ctx, gameID, func(rng *rand.Rand) error {
		var err error
		result, err = e.registerShot(context.WithoutCancel(ctx), rng, gameID, shooterID, shotType, origin, board)
		return err
	})
	return result, err
}

// Fire loads the board of a game, registers the shot, saves the board and
// notifies the session, all inside the game's actor.
func (e *Engine) Fire(ctx context.Context, gameID string, shooterID int, shotType game.ShotType, origin game.Coordinate) (Result, error) {
	var result Result
	err := e.do(ctx, gameID, func(rng *rand.Rand) error {
		ioCtx := context.WithoutCancel(ctx)

		board, err := e.boards.LoadBoard(ioCtx, gameID)
		if err != nil {
			return errors.Wrapf(err, "load board for game %s", gameID)
		}
		result, err = e.registerShot(ioCtx, rng, gameID, shooterID, shotType, origin, board)
		if err != nil {
			return err
		}
		if err := e.boards.SaveBoard(ioCtx, gameID, board); err != nil {
			return errors.Wrapf(err, "save board for game %s", gameID)
		}

		e.notifier.Notify(gameID, EventShot, ShotEvent{
			GameID:    gameID,
			Shot:      result.Shot,
			Secondary: result.Secondary,
			Sunk:      result.Sunk(),
		})
		return nil
	})
	return result, err
}

// CreateGame generates a board for the players and saves it under a new
// game id.
func (e *Engine) CreateGame(ctx context.Context, playerIDs []int, difficulty game.Difficulty, mode game.Mode) (string, *game.Board, error) {
	e.mu.Lock()
	board, err := game.GenerateGlobalBoard(playerIDs, difficulty, mode, e.genRand)
	e.mu.Unlock()
	if err != nil {
		return "", nil, err
	}

	gameID := uuid.NewString()
	if err := e.boards.SaveBoard(ctx, gameID, board); err != nil {
		return "", nil, errors.Wrapf(err, "save board for game %s", gameID)
	}
	log.Printf("[ENGINE] game %s created: %d players, %s/%s, board %dx%d, %d ships",
		gameID, len(playerIDs), difficulty, mode, board.Size, board.Size, len(board.Ships))
	return gameID, board, nil
}

// Stats aggregates player statistics from a consistent snapshot of the
// board. An empty players list reports every fleet owner.
func (e *Engine) Stats(ctx context.Context, gameID string, players []int) ([]game.PlayerStats, error) {
	var stats []game.PlayerStats
	err := e.do(ctx, gameID, func(*rand.Rand) error {
		board, err := e.boards.LoadBoard(ctx, gameID)
		if err != nil {
			return errors.Wrapf(err, "load board for game %s", gameID)
		}
		if len(players) == 0 {
			players = fleetOwners(board)
		}
		stats = game.AggregateStats(board, players)
		return nil
	})
	return stats, err
}

// Board returns a copy of a game's board read inside its actor
func (e *Engine) Board(ctx context.Context, gameID string) (*game.Board, error) {
	var board *game.Board
	err := e.do(ctx, gameID, func(*rand.Rand) error {
		var err error
		board, err = e.boards.LoadBoard(ctx, gameID)
		return errors.Wrapf(err, "load board for game %s", gameID)
	})
	return board, err
}

func fleetOwners(board *game.Board) []int {
	var owners []int
	seen := make(map[int]bool)
	for _, ship := range board.Ships {
		if ship.OwnerID == nil || seen[*ship.OwnerID] {
			continue
		}
		seen[*ship.OwnerID] = true
		owners = append(owners, *ship.OwnerID)
	}
	return owners
}

// CloseSession stops the actor of a game. Requests already waiting fail
// with ErrSessionClosed.
func (e *Engine) CloseSession(gameID string) {
	e.mu.Lock()
	s, ok := e.sessions[gameID]
	delete(e.sessions, gameID)
	e.mu.Unlock()

	if ok {
		close(s.quit)
		<-s.done
	}
}

// Close stops every actor and waits for them to exit
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	sessions := e.sessions
	e.sessions = make(map[string]*session)
	e.mu.Unlock()

	for _, s := range sessions {
		close(s.quit)
	}
	e.wg.Wait()
}
