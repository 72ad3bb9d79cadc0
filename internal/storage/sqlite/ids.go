package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"strings"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/utils"
)

// MaxIDAttempts bounds random id generation before IdCollisionError.
const MaxIDAttempts = 5

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// randomSuffix returns n random base36 characters.
type randomSuffix func(n int) (string, error)

func cryptoSuffix(n int) (string, error) {
	var sb strings.Builder
	max := big.NewInt(int64(len(base36Alphabet)))
	for i := 0; i < n; i++ {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		sb.WriteByte(base36Alphabet[v.Int64()])
	}
	return sb.String(), nil
}

// idGenerator is swapped in tests to force collisions.
var idGenerator randomSuffix = cryptoSuffix

// generateIssueID picks an unused <prefix>-<4 base36> id and records it in
// the id ledger. Must run inside the creating transaction.
func generateIssueID(ctx context.Context, tx *sql.Tx, prefix string, issuedAt string) (string, error) {
	for attempt := 0; attempt < MaxIDAttempts; attempt++ {
		suffix, err := idGenerator(utils.HashLength)
		if err != nil {
			return "", err
		}
		candidate := prefix + "-" + suffix
		taken, err := idIssued(ctx, tx, candidate)
		if err != nil {
			return "", err
		}
		if taken {
			continue
		}
		if err := registerID(ctx, tx, candidate, issuedAt); err != nil {
			return "", err
		}
		return candidate, nil
	}
	return "", &types.IdCollisionError{Prefix: prefix, Attempts: MaxIDAttempts}
}

// nextChildID returns parentID.N where N is one past both the persisted
// counter and the highest direct child ever issued.
func nextChildID(ctx context.Context, tx *sql.Tx, parentID string, issuedAt string) (string, error) {
	var last int
	err := tx.QueryRowContext(ctx, `SELECT last_child FROM child_counters WHERE parent_id = ?`, parentID).Scan(&last)
	if err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to read child counter: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT id FROM issued_ids WHERE id LIKE ? ESCAPE '\'`, escapeLike(parentID)+".%")
	if err != nil {
		return "", fmt.Errorf("failed to scan child ids: %w", err)
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return "", err
		}
		if utils.IsDirectChildOf(id, parentID) {
			if n := utils.ChildNumber(id); n > last {
				last = n
			}
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return "", err
	}
	rows.Close()

	next := last + 1
	childID := utils.ChildID(parentID, next)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO child_counters (parent_id, last_child) VALUES (?, ?)
		ON CONFLICT (parent_id) DO UPDATE SET last_child = excluded.last_child
	`, parentID, next)
	if err != nil {
		return "", fmt.Errorf("failed to update child counter: %w", err)
	}
	if err := registerID(ctx, tx, childID, issuedAt); err != nil {
		return "", err
	}
	return childID, nil
}

func idIssued(ctx context.Context, q querier, id string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM issued_ids WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check id %s: %w", id, err)
	}
	return true, nil
}

func registerID(ctx context.Context, q querier, id string, issuedAt string) error {
	if _, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO issued_ids (id, issued_at) VALUES (?, ?)`, id, issuedAt); err != nil {
		return fmt.Errorf("failed to register id %s: %w", id, err)
	}
	return nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
