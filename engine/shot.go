package engine

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/lab1702/broadside/game"
	"github.com/pkg/errors"
)

// registerShot runs the full resolution of one shot. The caller must own
// the game's actor.
func (e *Engine) registerShot(ctx context.Context, rng *rand.Rand, gameID string, shooterID int, shotType game.ShotType, origin game.Coordinate, board *game.Board) (Result, error) {
	if !origin.In(board.Size) {
		return Result{}, errors.Wrapf(game.ErrOutOfBounds, "(%d,%d) on board of size %d", origin.Row, origin.Col, board.Size)
	}
	if _, ok := game.ParseShotType(string(shotType)); !ok {
		log.Printf("[ENGINE] game %s: player %d sent unknown shot type %q, recording as %s",
			gameID, shooterID, shotType, game.ShotSimple)
		shotType = game.ShotSimple
	}

	teamOf, err := e.teams.GetAllTeams(ctx, gameID)
	if err != nil {
		return Result{}, errors.Wrapf(err, "fetch teams for game %s", gameID)
	}

	candidates := game.ExpandPattern(shotType, origin, board.Size, rng)
	targets := filterTargets(board, candidates, origin, shooterID, teamOf)

	result := Result{Board: board, Secondary: make([]game.Shot, 0, len(targets))}
	registered := false
	for _, cell := range targets {
		impact := game.ResolveShot(board.Ships, cell.Row, cell.Col)
		canonical := cell == origin
		logCellResolved(gameID, shooterID, shotType, cell, impact, canonical)

		if canonical {
			shot, err := e.shots.RegisterShot(ctx, gameID, shooterID, shotType, cell, impact.Hit, impact.SunkShipID)
			if err != nil {
				return Result{}, errors.Wrapf(err, "persist shot for game %s", gameID)
			}
			board.Shots = append(board.Shots, shot)
			result.Shot = shot
			registered = true
			continue
		}

		secondary := game.Shot{
			ID:         game.SecondaryShotID,
			GameID:     gameID,
			ShooterID:  shooterID,
			Type:       shotType,
			Target:     cell,
			Hit:        impact.Hit,
			SunkShipID: impact.SunkShipID,
			CreatedAt:  time.Now(),
		}
		board.Shots = append(board.Shots, secondary)
		result.Secondary = append(result.Secondary, secondary)
	}

	if !registered {
		return Result{}, errors.Wrapf(ErrPrimaryShotNotRegistered, "game %s origin (%d,%d)", gameID, origin.Row, origin.Col)
	}
	return result, nil
}

// filterTargets drops cells that were already shot and cells holding a
// friendly ship. The origin is always kept, in front, so the canonical shot
// has a cell to resolve even when every candidate was filtered out.
func filterTargets(board *game.Board, candidates []game.Coordinate, origin game.Coordinate, shooterID int, teamOf map[int]int) []game.Coordinate {
	targets := make([]game.Coordinate, 0, len(candidates)+1)
	originKept := false
	for _, c := range candidates {
		if board.AlreadyShot(c.Row, c.Col) || game.IsAllied(board.Ships, c.Row, c.Col, shooterID, teamOf) {
			continue
		}
		if c == origin {
			originKept = true
		}
		targets = append(targets, c)
	}

	if !originKept {
		if DebugShots {
			log.Printf("[ENGINE DEBUG] origin (%d,%d) filtered out, re-adding it (%d other cells)", origin.Row, origin.Col, len(targets))
		}
		targets = append([]game.Coordinate{origin}, targets...)
	}
	return targets
}
