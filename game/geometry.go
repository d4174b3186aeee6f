package game

// InBounds reports whether (row, col) lies on a board of the given size
func InBounds(row, col, size int) bool {
	return row >= 0 && row < size && col >= 0 && col < size
}

// In reports whether the coordinate lies on a board of the given size
func (c Coordinate) In(size int) bool {
	return InBounds(c.Row, c.Col, size)
}

// Offset returns the coordinate shifted by (dr, dc)
func (c Coordinate) Offset(dr, dc int) Coordinate {
	return Coordinate{Row: c.Row + dr, Col: c.Col + dc}
}
