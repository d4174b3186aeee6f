package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/lab1702/broadside/game"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// Config holds the database connection settings
type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
}

// LoadConfig reads the database settings from the environment. The second
// return value is false when DB_HOST is empty and no database should be used.
func LoadConfig() (Config, bool) {
	if os.Getenv("DB_HOST") == "" {
		return Config{}, false
	}
	return Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "broadside"),
	}, true
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

// ConnectionString formats the settings as a lib/pq connection string
func (c Config) ConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}

const schema = `
CREATE TABLE IF NOT EXISTS boards (
	game_id    TEXT PRIMARY KEY,
	state      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS shots (
	id           BIGSERIAL PRIMARY KEY,
	game_id      TEXT NOT NULL,
	shooter_id   INTEGER NOT NULL,
	type         TEXT NOT NULL,
	target_row   INTEGER NOT NULL,
	target_col   INTEGER NOT NULL,
	hit          BOOLEAN NOT NULL,
	sunk_ship_id INTEGER,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS shots_game_id_idx ON shots (game_id, id);`

// Postgres persists boards as JSONB blobs and shots as rows
type Postgres struct {
	db *sql.DB
}

// Open connects to the database and creates the tables if needed
func Open(ctx context.Context, cfg Config) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "ping database %s:%s", cfg.DBHost, cfg.DBPort)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create schema")
	}
	log.Printf("[STORE] connected to postgres %s:%s/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)
	return &Postgres{db: db}, nil
}

// Close releases the connection pool
func (p *Postgres) Close() error {
	return p.db.Close()
}

// LoadBoard reads and decodes the board of a game
func (p *Postgres) LoadBoard(ctx context.Context, gameID string) (*game.Board, error) {
	var blob []byte
	err := p.db.QueryRowContext(ctx, "SELECT state FROM boards WHERE game_id = $1", gameID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrGameNotFound, "game %s", gameID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load board %s", gameID)
	}
	return decodeBoard(blob)
}

// SaveBoard upserts the board of a game
func (p *Postgres) SaveBoard(ctx context.Context, gameID string, board *game.Board) error {
	blob, err := encodeBoard(board)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO boards (game_id, state, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (game_id) DO UPDATE SET state = EXCLUDED.state, updated_at = now()`,
		gameID, blob)
	if err != nil {
		return errors.Wrapf(err, "save board %s", gameID)
	}
	return nil
}

// RegisterShot inserts a canonical shot and returns it with its id and timestamp
func (p *Postgres) RegisterShot(ctx context.Context, gameID string, shooterID int, shotType game.ShotType, target game.Coordinate, hit bool, sunkShipID *int) (game.Shot, error) {
	shot := game.Shot{
		GameID:     gameID,
		ShooterID:  shooterID,
		Type:       shotType,
		Target:     target,
		Hit:        hit,
		SunkShipID: sunkShipID,
	}

	var sunk sql.NullInt64
	if sunkShipID != nil {
		sunk = sql.NullInt64{Int64: int64(*sunkShipID), Valid: true}
	}

	err := p.db.QueryRowContext(ctx, `
		INSERT INTO shots (game_id, shooter_id, type, target_row, target_col, hit, sunk_ship_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		gameID, shooterID, string(shotType), target.Row, target.Col, hit, sunk,
	).Scan(&shot.ID, &shot.CreatedAt)
	if err != nil {
		return game.Shot{}, errors.Wrapf(err, "register shot for game %s", gameID)
	}
	return shot, nil
}

// ShotsForGame returns the persisted shots of a game in insertion order
func (p *Postgres) ShotsForGame(ctx context.Context, gameID string) ([]game.Shot, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, shooter_id, type, target_row, target_col, hit, sunk_ship_id, created_at
		FROM shots WHERE game_id = $1 ORDER BY id`, gameID)
	if err != nil {
		return nil, errors.Wrapf(err, "query shots for game %s", gameID)
	}
	defer rows.Close()

	var shots []game.Shot
	for rows.Next() {
		var (
			shot     game.Shot
			shotType string
			sunk     sql.NullInt64
		)
		if err := rows.Scan(&shot.ID, &shot.ShooterID, &shotType, &shot.Target.Row, &shot.Target.Col, &shot.Hit, &sunk, &shot.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan shot")
		}
		shot.GameID = gameID
		shot.Type = game.ShotType(shotType)
		if sunk.Valid {
			id := int(sunk.Int64)
			shot.SunkShipID = &id
		}
		shots = append(shots, shot)
	}
	return shots, errors.Wrap(rows.Err(), "iterate shots")
}
