package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"questbot/internal/db/models"
	"questbot/internal/quest"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

const gameColumns = `g.id, g.owner_chat_id, g.name, g.start_at, g.status, g.created_at`

// CreateGame stores a fully formed game with its levels and codes in one
// transaction and assigns g.ID.
func (db *DB) CreateGame(ctx context.Context, g *quest.Game) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	if g.Status == "" {
		g.Status = quest.StatusPending
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO games (owner_chat_id, name, start_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		g.OwnerChatID.String(), g.Name, g.Start, string(g.Status), g.CreatedAt,
	).Scan(&g.ID)
	if err != nil {
		return fmt.Errorf("error creating game: %w", err)
	}

	for _, l := range g.Levels {
		l.GameID = g.ID
		_, err := tx.Exec(ctx, `
			INSERT INTO levels (id, game_id, position, name, task, duration_minutes, to_pass)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			l.ID.String(), g.ID, l.Position, l.Name, l.Task, l.Duration, l.ToPass,
		)
		if err != nil {
			return fmt.Errorf("error creating level %d: %w", l.Position+1, err)
		}
		for _, c := range l.Codes {
			_, err := tx.Exec(ctx, `
				INSERT INTO codes (id, level_id, position, fingerprint, bonus)
				VALUES ($1, $2, $3, $4, $5)`,
				c.ID.String(), l.ID.String(), c.Position, c.Fingerprint, c.Bonus,
			)
			if err != nil {
				return fmt.Errorf("error creating code %d of level %d: %w", c.Position+1, l.Position+1, err)
			}
		}
	}

	return tx.Commit(ctx)
}

func (db *DB) GetGame(ctx context.Context, id int64) (*quest.Game, error) {
	games, err := db.queryGames(ctx, `SELECT `+gameColumns+` FROM games g WHERE g.id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return nil, quest.ErrGameNotFound
	}
	return games[0], nil
}

func (db *DB) GamesByStatus(ctx context.Context, status quest.Status) ([]*quest.Game, error) {
	return db.queryGames(ctx, `
		SELECT `+gameColumns+`
		FROM games g
		WHERE g.status = $1
		ORDER BY g.id`, string(status))
}

// SetStatus moves a game from one status to another only if it is still in
// the expected status.
func (db *DB) SetStatus(ctx context.Context, id int64, from, to quest.Status) (bool, error) {
	tag, err := db.Exec(ctx, `
		UPDATE games
		SET status = $1
		WHERE id = $2 AND status = $3`,
		string(to), id, string(from),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (db *DB) RunningGamesForChat(ctx context.Context, chatID uuid.UUID) ([]*quest.Game, error) {
	return db.queryGames(ctx, `
		SELECT `+gameColumns+`
		FROM games g
		JOIN game_players gp ON gp.game_id = g.id
		WHERE gp.chat_id = $1 AND g.status = $2
		ORDER BY g.id`, chatID.String(), string(quest.StatusRunning))
}

// OwnedGames lists the games created by chatID.
func (db *DB) OwnedGames(ctx context.Context, chatID uuid.UUID) ([]models.GameListing, error) {
	query := `
		SELECT ` + gameColumns + `,
			COALESCE(ARRAY(
				SELECT l.name FROM levels l WHERE l.game_id = g.id ORDER BY l.position
			), '{}') AS level_names,
			(SELECT COUNT(*) FROM game_players gp WHERE gp.game_id = g.id) AS players
		FROM games g
		WHERE g.owner_chat_id = $1
		ORDER BY g.id`

	rows, err := db.Query(ctx, query, chatID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.GameListing
	for rows.Next() {
		var gl models.GameListing
		err := rows.Scan(
			&gl.ID,
			&gl.OwnerChatID,
			&gl.Name,
			&gl.StartAt,
			&gl.Status,
			&gl.CreatedAt,
			&gl.LevelNames,
			&gl.Players,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, gl)
	}
	return out, rows.Err()
}

// UpdateStart moves the start of a pending game owned by ownerID.
func (db *DB) UpdateStart(ctx context.Context, ownerID uuid.UUID, gameID int64, start time.Time) error {
	tag, err := db.Exec(ctx, `
		UPDATE games
		SET start_at = $1
		WHERE id = $2 AND owner_chat_id = $3 AND status = $4`,
		start, gameID, ownerID.String(), string(quest.StatusPending),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return db.explainMiss(ctx, ownerID, gameID, true)
}

// DeleteGame removes a game owned by ownerID together with everything that
// hangs off it.
func (db *DB) DeleteGame(ctx context.Context, ownerID uuid.UUID, gameID int64) error {
	tag, err := db.Exec(ctx, `DELETE FROM games WHERE id = $1 AND owner_chat_id = $2`, gameID, ownerID.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return db.explainMiss(ctx, ownerID, gameID, false)
}

func (db *DB) explainMiss(ctx context.Context, ownerID uuid.UUID, gameID int64, needPending bool) error {
	var owner uuid.UUID
	var status string
	err := db.QueryRow(ctx, `SELECT owner_chat_id, status FROM games WHERE id = $1`, gameID).Scan(&owner, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return quest.ErrGameNotFound
	}
	if err != nil {
		return err
	}
	if owner != ownerID {
		return quest.ErrNotOwner
	}
	if needPending && status != string(quest.StatusPending) {
		return quest.ErrNotPending
	}
	return fmt.Errorf("game %d was not updated", gameID)
}

func (db *DB) queryGames(ctx context.Context, query string, args ...any) ([]*quest.Game, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []*quest.Game
	byID := make(map[int64]*quest.Game)
	for rows.Next() {
		row := models.Game{}
		err := rows.Scan(
			&row.ID,
			&row.OwnerChatID,
			&row.Name,
			&row.StartAt,
			&row.Status,
			&row.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		status, err := quest.ParseStatus(row.Status)
		if err != nil {
			return nil, err
		}
		g := &quest.Game{
			ID:          row.ID,
			OwnerChatID: row.OwnerChatID,
			Name:        row.Name,
			Start:       row.StartAt,
			Status:      status,
			CreatedAt:   row.CreatedAt,
		}
		games = append(games, g)
		byID[g.ID] = g
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return games, nil
	}
	if err := db.loadLevels(ctx, byID); err != nil {
		return nil, err
	}
	return games, nil
}

// loadLevels attaches levels and codes, in position order, to the games in
// byID.
func (db *DB) loadLevels(ctx context.Context, byID map[int64]*quest.Game) error {
	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	query := `
		SELECT l.id, l.game_id, l.position, l.name, l.task, l.duration_minutes, l.to_pass,
			c.id, c.position, c.fingerprint, c.bonus
		FROM levels l
		LEFT JOIN codes c ON c.level_id = l.id
		WHERE l.game_id = ANY($1::bigint[])
		ORDER BY l.game_id, l.position, c.position`

	rows, err := db.Query(ctx, query, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("error loading levels: %w", err)
	}
	defer rows.Close()

	levels := make(map[uuid.UUID]*quest.Level)
	for rows.Next() {
		var (
			l           models.Level
			codeID      uuid.NullUUID
			codePos     *int
			fingerprint *string
			bonus       *int
		)
		err := rows.Scan(
			&l.ID,
			&l.GameID,
			&l.Position,
			&l.Name,
			&l.Task,
			&l.DurationMinutes,
			&l.ToPass,
			&codeID,
			&codePos,
			&fingerprint,
			&bonus,
		)
		if err != nil {
			return err
		}

		level, ok := levels[l.ID]
		if !ok {
			level = &quest.Level{
				ID:       l.ID,
				GameID:   l.GameID,
				Position: l.Position,
				Name:     l.Name,
				Task:     l.Task,
				Duration: l.DurationMinutes,
				ToPass:   l.ToPass,
			}
			levels[l.ID] = level
			g := byID[l.GameID]
			g.Levels = append(g.Levels, level)
		}
		if codeID.Valid {
			level.Codes = append(level.Codes, &quest.Code{
				ID:          codeID.UUID,
				LevelID:     level.ID,
				Position:    *codePos,
				Fingerprint: *fingerprint,
				Bonus:       *bonus,
			})
		}
	}
	return rows.Err()
}
