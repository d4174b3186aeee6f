package game

// Impact is the outcome of striking a single cell
type Impact struct {
	Hit        bool `json:"hit"`
	SunkShipID *int `json:"sunkShipId,omitempty"`
}

// IsAllied reports whether the ship at (row, col) belongs to the shooter or
// to a player on the shooter's team. Players missing from teamOf have no
// team and are only ever allied with themselves.
func IsAllied(ships []*Ship, row, col, shooterID int, teamOf map[int]int) bool {
	ship := shipAt(ships, row, col)
	if ship == nil || ship.OwnerID == nil {
		return false
	}
	owner := *ship.OwnerID
	if owner == shooterID {
		return true
	}

	shooterTeam, ok := teamOf[shooterID]
	if !ok {
		return false
	}
	ownerTeam, ok := teamOf[owner]
	if !ok {
		return false
	}
	return ownerTeam == shooterTeam
}

// ResolveShot strikes (row, col) and mutates the first ship in generation
// order that still has an intact position there. Striking a position that
// is already hit, or a sunk ship, is a miss.
func ResolveShot(ships []*Ship, row, col int) Impact {
	for _, ship := range ships {
		if ship.IsSunk {
			continue
		}
		for i := range ship.Positions {
			p := &ship.Positions[i]
			if p.Row != row || p.Col != col || p.IsHit {
				continue
			}

			p.IsHit = true
			if allHit(ship.Positions) {
				ship.IsSunk = true
				return Impact{Hit: true, SunkShipID: intPtr(ship.ID)}
			}
			return Impact{Hit: true}
		}
	}
	return Impact{Hit: false}
}

func allHit(positions []Position) bool {
	for _, p := range positions {
		if !p.IsHit {
			return false
		}
	}
	return true
}
