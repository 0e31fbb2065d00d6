package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// ConnectionStore is the narrow contract with the messaging side of the
// product: the wallet only ever asks "are these two connected" and
// "connect them and deliver the first message".
type ConnectionStore interface {
	Exists(ctx context.Context, userA, userB string) (bool, error)
	CreateWithMessage(ctx context.Context, senderID, recipientID, messageText string) (string, error)
}

// SQLConnectionStore backs ConnectionStore with the shared database.
// Pairs are stored with the lexicographically smaller id first so the
// relationship is direction-free.
type SQLConnectionStore struct {
	db *sql.DB
}

func NewSQLConnectionStore(db *sql.DB) *SQLConnectionStore {
	return &SQLConnectionStore{db: db}
}

func orderPair(userA, userB string) (string, string) {
	if userA > userB {
		return userB, userA
	}
	return userA, userB
}

func (s *SQLConnectionStore) Exists(ctx context.Context, userA, userB string) (bool, error) {
	first, second := orderPair(userA, userB)
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM connections WHERE user_a = $1 AND user_b = $2)`,
		first, second).Scan(&exists)
	return exists, err
}

func (s *SQLConnectionStore) CreateWithMessage(ctx context.Context, senderID, recipientID, messageText string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	first, second := orderPair(senderID, recipientID)
	connectionID := uuid.New().String()
	now := time.Now()

	_, err = tx.Exec(`
		INSERT INTO connections (id, user_a, user_b, created_at)
		VALUES ($1, $2, $3, $4)`,
		connectionID, first, second, now)
	if err != nil {
		return "", err
	}

	_, err = tx.Exec(`
		INSERT INTO direct_messages (id, connection_id, sender_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), connectionID, senderID, messageText, now)
	if err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return connectionID, nil
}
