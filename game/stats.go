package game

import "math"

// PlayerStats summarises one player's performance in a session
type PlayerStats struct {
	PlayerID        int              `json:"playerId"`
	TotalShots      int              `json:"totalShots"`
	SuccessfulShots int              `json:"successfulShots"`
	Accuracy        float64          `json:"accuracy"` // Percentage, two decimals
	ShipsSunk       int              `json:"shipsSunk"`
	ShipsRemaining  int              `json:"shipsRemaining"`
	WasEliminated   bool             `json:"wasEliminated"`
	HitStreak       int              `json:"hitStreak"` // Longest run of consecutive hits
	LastShotWasHit  bool             `json:"lastShotWasHit"`
	ShotsByType     map[ShotType]int `json:"shotsByType"`
}

// AggregateStats derives per-player statistics from the board's shot log.
// The log is taken to be in chronological order. Results follow the order
// of players.
func AggregateStats(board *Board, players []int) []PlayerStats {
	stats := make([]PlayerStats, 0, len(players))
	for _, playerID := range players {
		stats = append(stats, playerStats(board, playerID))
	}
	return stats
}

func playerStats(board *Board, playerID int) PlayerStats {
	ps := PlayerStats{
		PlayerID:    playerID,
		ShotsByType: make(map[ShotType]int, len(ShotTypes)),
	}
	for _, t := range ShotTypes {
		ps.ShotsByType[t] = 0
	}

	sunk := make(map[int]bool)
	streak := 0
	for _, shot := range board.Shots {
		if shot.ShooterID != playerID {
			continue
		}
		ps.TotalShots++
		ps.ShotsByType[shot.Type]++
		ps.LastShotWasHit = shot.Hit

		if shot.Hit {
			ps.SuccessfulShots++
			streak++
			if streak > ps.HitStreak {
				ps.HitStreak = streak
			}
		} else {
			streak = 0
		}
		if shot.SunkShipID != nil {
			sunk[*shot.SunkShipID] = true
		}
	}
	ps.ShipsSunk = len(sunk)

	if ps.TotalShots > 0 {
		ps.Accuracy = roundTo(float64(ps.SuccessfulShots)/float64(ps.TotalShots)*100, 2)
	}

	for _, ship := range board.ShipsOf(playerID) {
		if !ship.IsSunk {
			ps.ShipsRemaining++
		}
	}
	ps.WasEliminated = ps.ShipsRemaining == 0

	return ps
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
