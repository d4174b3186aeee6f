package engine

import (
	"log"

	"github.com/lab1702/broadside/game"
)

// Debug flags for the engine
var (
	DebugShots = false // Set to true to log every resolved cell
)

// logCellResolved logs a single struck cell when debugging is enabled
func logCellResolved(gameID string, shooterID int, shotType game.ShotType, cell game.Coordinate, impact game.Impact, canonical bool) {
	if !DebugShots {
		return
	}
	sunk := -1
	if impact.SunkShipID != nil {
		sunk = *impact.SunkShipID
	}
	log.Printf("[ENGINE DEBUG] game:%s shooter:%d type:%s cell:(%d,%d) canonical:%v hit:%v sunk:%d",
		gameID, shooterID, shotType, cell.Row, cell.Col, canonical, impact.Hit, sunk)
}
