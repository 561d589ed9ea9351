package relay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRebindPostgresPlaceholders(t *testing.T) {
	require.Equal(t,
		"INSERT INTO chain_events (sig, ts) VALUES ($1, $2)",
		rebindPostgresPlaceholders("INSERT INTO chain_events (sig, ts) VALUES (?, ?)"),
	)
}

func TestRebindLeavesQuotedQuestionMarksAlone(t *testing.T) {
	require.Equal(t,
		`SELECT '?' , 'it''s ?' , $1`,
		rebindPostgresPlaceholders(`SELECT '?' , 'it''s ?' , ?`),
	)
}
