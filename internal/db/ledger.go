package db

import (
	"context"
	"fmt"
	"time"

	"questbot/internal/quest"

	"github.com/google/uuid"
)

// Record appends a redemption. Writes for the same chat and code are
// serialized with a transaction-scoped advisory lock so the reject policy
// cannot be raced.
func (db *DB) Record(ctx context.Context, chatID uuid.UUID, code *quest.Code, at time.Time, policy quest.DuplicatePolicy) (*quest.Redemption, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	lockKey := chatID.String() + ":" + code.ID.String()
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
		return nil, fmt.Errorf("error locking redemption: %w", err)
	}

	if policy == quest.RejectDuplicates {
		var exists bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM redemptions WHERE chat_id = $1 AND code_id = $2
			)`, chatID.String(), code.ID.String()).Scan(&exists)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, quest.ErrAlreadyRedeemed
		}
	}

	rec := &quest.Redemption{
		ID:     quest.NewRedemptionID(at),
		ChatID: chatID,
		CodeID: code.ID,
		At:     at,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO redemptions (id, chat_id, code_id, redeemed_at)
		VALUES ($1, $2, $3, $4)`,
		rec.ID, chatID.String(), code.ID.String(), at,
	)
	if err != nil {
		return nil, fmt.Errorf("error inserting redemption: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return rec, nil
}

// ClosedCodes returns the codes of level that chatID has redeemed at least
// once.
func (db *DB) ClosedCodes(ctx context.Context, chatID uuid.UUID, level *quest.Level) (quest.CodeSet, error) {
	rows, err := db.Query(ctx, `
		SELECT DISTINCT c.id
		FROM redemptions r
		JOIN codes c ON c.id = r.code_id
		WHERE r.chat_id = $1 AND c.level_id = $2`,
		chatID.String(), level.ID.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]*quest.Code, len(level.Codes))
	for _, c := range level.Codes {
		byID[c.ID] = c
	}
	closed := make(quest.CodeSet)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		if c, ok := byID[id]; ok {
			closed[id] = c
		}
	}
	return closed, rows.Err()
}
