package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/lab1702/broadside/game"
	"github.com/lab1702/broadside/store"
	"github.com/lab1702/broadside/teams"
	"github.com/pkg/errors"
)

// recordingNotifier keeps every notification for inspection
type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	gameID  string
	event   string
	payload interface{}
}

func (n *recordingNotifier) Notify(gameID, event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{gameID, event, payload})
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

// failingShots refuses to persist anything
type failingShots struct{}

var errDatabaseDown = errors.New("database down")

func (failingShots) RegisterShot(context.Context, string, int, game.ShotType, game.Coordinate, bool, *int) (game.Shot, error) {
	return game.Shot{}, errDatabaseDown
}

func ownedShip(id, owner int, cells ...game.Coordinate) *game.Ship {
	o := owner
	ship := &game.Ship{ID: id, OwnerID: &o}
	for _, c := range cells {
		ship.Positions = append(ship.Positions, game.Position{Row: c.Row, Col: c.Col})
	}
	return ship
}

func testBoard() *game.Board {
	return &game.Board{
		Size: 10,
		Ships: []*game.Ship{
			ownedShip(1, 2, game.Coordinate{Row: 4, Col: 4}, game.Coordinate{Row: 4, Col: 5}),
			ownedShip(2, 7, game.Coordinate{Row: 5, Col: 4}, game.Coordinate{Row: 6, Col: 4}),
			ownedShip(3, 5, game.Coordinate{Row: 0, Col: 9}),
		},
		Shots: []game.Shot{},
	}
}

func newTestEngine(t *testing.T) (*Engine, *store.Memory, *teams.Store, *recordingNotifier) {
	t.Helper()
	mem := store.NewMemory()
	ts := teams.NewStore()
	notifier := &recordingNotifier{}
	e := New(Config{Teams: ts, Shots: mem, Boards: mem, Notifier: notifier, Seed: 99})
	t.Cleanup(e.Close)
	return e, mem, ts, notifier
}

func TestRegisterShotCanonicalAndSecondary(t *testing.T) {
	e, mem, _, _ := newTestEngine(t)
	ctx := context.Background()
	board := testBoard()
	origin := game.Coordinate{Row: 4, Col: 4}

	result, err := e.RegisterShot(ctx, "g1", 9, game.ShotCross, origin, board)
	if err != nil {
		t.Fatalf("RegisterShot failed: %v", err)
	}

	if result.Shot.Target != origin {
		t.Errorf("Canonical target %v, expected %v", result.Shot.Target, origin)
	}
	if result.Shot.ID <= 0 || result.Shot.IsSecondary() {
		t.Errorf("Canonical shot should carry a repository id, got %d", result.Shot.ID)
	}
	if !result.Shot.Hit {
		t.Errorf("Canonical shot at (4,4) should hit ship 1")
	}
	if len(result.Secondary) != 4 {
		t.Fatalf("Expected 4 secondary cells, got %d", len(result.Secondary))
	}
	for _, s := range result.Secondary {
		if s.ID != game.SecondaryShotID {
			t.Errorf("Secondary shot %v should carry id %d", s.Target, game.SecondaryShotID)
		}
	}
	if len(board.Shots) != 5 {
		t.Errorf("Board should log 5 shots, got %d", len(board.Shots))
	}
	if !board.Ships[0].IsSunk {
		t.Errorf("Cross at (4,4) covers (4,5) and should sink ship 1")
	}
	if sunk := result.Sunk(); len(sunk) != 1 || sunk[0] != 1 {
		t.Errorf("Expected ship 1 reported sunk, got %v", sunk)
	}

	persisted, _ := mem.ShotsForGame(ctx, "g1")
	if len(persisted) != 1 || persisted[0].Target != origin {
		t.Errorf("Only the canonical shot should be persisted, got %+v", persisted)
	}
}

func TestRegisterShotFallsBackToOrigin(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	ctx := context.Background()
	board := testBoard()
	origin := game.Coordinate{Row: 2, Col: 2}

	if _, err := e.RegisterShot(ctx, "g1", 9, game.ShotSimple, origin, board); err != nil {
		t.Fatalf("First shot failed: %v", err)
	}
	result, err := e.RegisterShot(ctx, "g1", 9, game.ShotSimple, origin, board)
	if err != nil {
		t.Fatalf("Repeat shot failed: %v", err)
	}
	if result.Shot.Target != origin || result.Shot.Hit {
		t.Errorf("Repeat shot should still register a canonical miss at the origin, got %+v", result.Shot)
	}
	if len(result.Secondary) != 0 {
		t.Errorf("Repeat simple shot should have no secondary cells")
	}
}

func TestRegisterShotFiltersAllies(t *testing.T) {
	e, _, ts, _ := newTestEngine(t)
	ctx := context.Background()

	// Player 2 and shooter 5 share team 1, player 7 is on team 2
	ts.SetTeam("g1", teams.MemberKey("a", 2), 1)
	ts.SetTeam("g1", teams.MemberKey("b", 5), 1)
	ts.SetTeam("g1", teams.MemberKey("c", 7), 2)

	board := testBoard()
	// Cross at (5,5) touches (4,5) [ally] and (5,4) [enemy]
	result, err := e.RegisterShot(ctx, "g1", 5, game.ShotCross, game.Coordinate{Row: 5, Col: 5}, board)
	if err != nil {
		t.Fatalf("RegisterShot failed: %v", err)
	}
	for _, s := range result.Secondary {
		if s.Target == (game.Coordinate{Row: 4, Col: 5}) {
			t.Errorf("Cell of an allied ship should be filtered out")
		}
	}
	if board.Ships[0].Positions[1].IsHit {
		t.Errorf("Allied ship was damaged")
	}
	// (5,4) belongs to the enemy on team 2
	if !board.Ships[1].Positions[0].IsHit {
		t.Errorf("Enemy ship at (5,4) should be hit by the cross")
	}

	// A team-less shooter is not filtered
	board = testBoard()
	result, err = e.RegisterShot(ctx, "g1", 11, game.ShotCross, game.Coordinate{Row: 5, Col: 5}, board)
	if err != nil {
		t.Fatalf("RegisterShot failed: %v", err)
	}
	found := false
	for _, s := range result.Secondary {
		if s.Target == (game.Coordinate{Row: 4, Col: 5}) {
			found = true
			if !s.Hit {
				t.Errorf("Team-less shooter should hit (4,5)")
			}
		}
	}
	if !found {
		t.Errorf("Team-less shooter should not have (4,5) filtered")
	}
}

func TestRegisterShotOriginOnOwnShip(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	board := testBoard()
	origin := game.Coordinate{Row: 4, Col: 4}

	// Shooter 2 aims a cross at its own ship: the origin is re-added,
	// the own ship cell at (4,5) stays filtered.
	result, err := e.RegisterShot(context.Background(), "g1", 2, game.ShotCross, origin, board)
	if err != nil {
		t.Fatalf("RegisterShot failed: %v", err)
	}
	if result.Shot.Target != origin {
		t.Errorf("Canonical target %v, expected %v", result.Shot.Target, origin)
	}
	for _, s := range result.Secondary {
		if s.Target == (game.Coordinate{Row: 4, Col: 5}) {
			t.Errorf("Own ship cell should be filtered out")
		}
	}
}

func TestRegisterShotErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("out of bounds", func(t *testing.T) {
		e, _, _, _ := newTestEngine(t)
		_, err := e.RegisterShot(ctx, "g1", 1, game.ShotSimple, game.Coordinate{Row: 10, Col: 0}, testBoard())
		if !errors.Is(err, game.ErrOutOfBounds) {
			t.Errorf("Expected ErrOutOfBounds, got %v", err)
		}
	})

	t.Run("persistence failure", func(t *testing.T) {
		mem := store.NewMemory()
		e := New(Config{Shots: failingShots{}, Boards: mem, Seed: 1})
		defer e.Close()
		_, err := e.RegisterShot(ctx, "g1", 1, game.ShotSimple, game.Coordinate{Row: 1, Col: 1}, testBoard())
		if !errors.Is(err, errDatabaseDown) {
			t.Errorf("Expected upstream error to pass through, got %v", err)
		}
	})

	t.Run("cancelled before start", func(t *testing.T) {
		e, _, _, _ := newTestEngine(t)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		board := testBoard()
		_, err := e.RegisterShot(cancelled, "g1", 1, game.ShotSimple, game.Coordinate{Row: 4, Col: 4}, board)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
		if board.Ships[0].Positions[0].IsHit {
			t.Errorf("Cancelled request must not touch the board")
		}
	})

	t.Run("closed engine", func(t *testing.T) {
		e, _, _, _ := newTestEngine(t)
		e.Close()
		_, err := e.RegisterShot(ctx, "g1", 1, game.ShotSimple, game.Coordinate{Row: 1, Col: 1}, testBoard())
		if !errors.Is(err, ErrEngineClosed) {
			t.Errorf("Expected ErrEngineClosed, got %v", err)
		}
	})
}

func TestRegisterShotUnknownTypeRecordedAsSimple(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	result, err := e.RegisterShot(context.Background(), "g1", 1, game.ShotType("laser"), game.Coordinate{Row: 3, Col: 3}, testBoard())
	if err != nil {
		t.Fatalf("RegisterShot failed: %v", err)
	}
	if result.Shot.Type != game.ShotSimple || len(result.Secondary) != 0 {
		t.Errorf("Unknown type should resolve as simple, got %s with %d secondary cells", result.Shot.Type, len(result.Secondary))
	}
}

func TestFilterTargetsKeepsOriginFirst(t *testing.T) {
	board := testBoard()
	board.Shots = append(board.Shots, game.Shot{Target: game.Coordinate{Row: 1, Col: 1}})
	origin := game.Coordinate{Row: 1, Col: 1}
	candidates := []game.Coordinate{origin, {Row: 1, Col: 2}, {Row: 2, Col: 1}}

	targets := filterTargets(board, candidates, origin, 1, nil)
	if len(targets) != 3 || targets[0] != origin {
		t.Errorf("Origin should be re-added in front, got %v", targets)
	}

	board.Shots = append(board.Shots,
		game.Shot{Target: game.Coordinate{Row: 1, Col: 2}},
		game.Shot{Target: game.Coordinate{Row: 2, Col: 1}})
	targets = filterTargets(board, candidates, origin, 1, nil)
	if len(targets) != 1 || targets[0] != origin {
		t.Errorf("Fully filtered pattern should fall back to the origin, got %v", targets)
	}
}

func TestFireLoadsSavesAndNotifies(t *testing.T) {
	e, mem, _, notifier := newTestEngine(t)
	ctx := context.Background()

	gameID, board, err := e.CreateGame(ctx, []int{1, 2}, game.DifficultyEasy, game.ModeIndividual)
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	target := board.ShipsOf(2)[0].Positions[0]

	result, err := e.Fire(ctx, gameID, 1, game.ShotSimple, game.Coordinate{Row: target.Row, Col: target.Col})
	if err != nil {
		t.Fatalf("Fire failed: %v", err)
	}
	if !result.Shot.Hit {
		t.Errorf("Shot at a ship cell should hit")
	}

	saved, err := mem.LoadBoard(ctx, gameID)
	if err != nil {
		t.Fatalf("LoadBoard failed: %v", err)
	}
	if len(saved.Shots) != 1 || !saved.ShipAt(target.Row, target.Col).Positions[0].IsHit {
		t.Errorf("Fire should save the mutated board")
	}

	if notifier.count() != 1 {
		t.Fatalf("Expected one notification, got %d", notifier.count())
	}
	ev := notifier.events[0]
	if ev.gameID != gameID || ev.event != EventShot {
		t.Errorf("Unexpected notification %+v", ev)
	}
	if payload, ok := ev.payload.(ShotEvent); !ok || payload.Shot.ID != result.Shot.ID {
		t.Errorf("Notification payload should carry the canonical shot, got %#v", ev.payload)
	}

	if _, err := e.Fire(ctx, "missing", 1, game.ShotSimple, game.Coordinate{}); !errors.Is(err, store.ErrGameNotFound) {
		t.Errorf("Expected ErrGameNotFound for unknown game, got %v", err)
	}
}

// TestConcurrentFireSinksEveryShip fires at every cell of a board from many
// goroutines and checks that no hit is lost or counted twice.
func TestConcurrentFireSinksEveryShip(t *testing.T) {
	e, mem, _, notifier := newTestEngine(t)
	ctx := context.Background()

	players := []int{1, 2, 3, 4}
	gameID, board, err := e.CreateGame(ctx, players, game.DifficultyMedium, game.ModeIndividual)
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}

	totalPositions := 0
	for _, ship := range board.Ships {
		totalPositions += len(ship.Positions)
	}

	cells := make(chan game.Coordinate, board.Size*board.Size)
	for r := 0; r < board.Size; r++ {
		for c := 0; c < board.Size; c++ {
			cells <- game.Coordinate{Row: r, Col: c}
		}
	}
	close(cells)

	var wg sync.WaitGroup
	for _, shooter := range players {
		wg.Add(1)
		go func(shooter int) {
			defer wg.Done()
			for cell := range cells {
				if _, err := e.Fire(ctx, gameID, shooter, game.ShotSimple, cell); err != nil {
					t.Errorf("Fire(%v) failed: %v", cell, err)
				}
			}
		}(shooter)
	}
	wg.Wait()

	final, err := mem.LoadBoard(ctx, gameID)
	if err != nil {
		t.Fatalf("LoadBoard failed: %v", err)
	}
	if len(final.Shots) != board.Size*board.Size {
		t.Errorf("Expected %d shots, got %d", board.Size*board.Size, len(final.Shots))
	}
	hits := 0
	for _, s := range final.Shots {
		if s.Hit {
			hits++
		}
	}
	if hits != totalPositions {
		t.Errorf("Expected %d hits, got %d", totalPositions, hits)
	}
	for _, ship := range final.Ships {
		if !ship.IsSunk {
			t.Errorf("Ship %d should be sunk", ship.ID)
		}
	}
	if notifier.count() != board.Size*board.Size {
		t.Errorf("Expected one notification per shot, got %d", notifier.count())
	}

	stats, err := e.Stats(ctx, gameID, nil)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if len(stats) != len(players) {
		t.Fatalf("Expected stats for %d fleet owners, got %d", len(players), len(stats))
	}
	sunk, shots := 0, 0
	for _, s := range stats {
		sunk += s.ShipsSunk
		shots += s.TotalShots
		if !s.WasEliminated {
			t.Errorf("Player %d should be eliminated", s.PlayerID)
		}
	}
	if sunk != len(final.Ships) || shots != board.Size*board.Size {
		t.Errorf("Stats disagree with board: sunk %d/%d shots %d", sunk, len(final.Ships), shots)
	}
}

func TestSessionsAreIndependent(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	g1, _, err := e.CreateGame(ctx, []int{1, 2}, game.DifficultyHard, game.ModeTeams)
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	g2, _, err := e.CreateGame(ctx, []int{3, 4}, game.DifficultyHard, game.ModeTeams)
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	if g1 == g2 {
		t.Fatalf("Game ids must be unique")
	}

	if _, err := e.Fire(ctx, g1, 1, game.ShotArea, game.Coordinate{Row: 0, Col: 0}); err != nil {
		t.Fatalf("Fire failed: %v", err)
	}
	e.CloseSession(g1)

	stats, err := e.Stats(ctx, g2, []int{3})
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats[0].TotalShots != 0 {
		t.Errorf("Shots in one game leaked into another")
	}

	// A closed session is restarted on demand and reads the saved board
	stats, err = e.Stats(ctx, g1, []int{1})
	if err != nil {
		t.Fatalf("Stats after CloseSession failed: %v", err)
	}
	if stats[0].TotalShots == 0 {
		t.Errorf("Saved shots lost after the session was closed")
	}
}

func TestBoardReadsSavedCopy(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	gameID, created, err := e.CreateGame(ctx, []int{1, 2}, game.DifficultyMedium, game.ModeIndividual)
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}

	board, err := e.Board(ctx, gameID)
	if err != nil {
		t.Fatalf("Board failed: %v", err)
	}
	if board.Size != created.Size || len(board.Ships) != len(created.Ships) {
		t.Errorf("Board should match the created board, got size %d with %d ships", board.Size, len(board.Ships))
	}

	// Mutating the copy must not leak into the store
	board.Shots = append(board.Shots, game.Shot{ID: 42})
	again, err := e.Board(ctx, gameID)
	if err != nil {
		t.Fatalf("Board failed: %v", err)
	}
	if len(again.Shots) != 0 {
		t.Errorf("Expected a fresh copy, got %d shots", len(again.Shots))
	}

	if _, err := e.Board(ctx, "missing"); !errors.Is(err, store.ErrGameNotFound) {
		t.Errorf("Expected ErrGameNotFound, got %v", err)
	}
	if _, _, err := e.CreateGame(ctx, nil, game.DifficultyEasy, game.ModeIndividual); !errors.Is(err, game.ErrInvalidConfiguration) {
		t.Errorf("Expected ErrInvalidConfiguration for no players, got %v", err)
	}
}
