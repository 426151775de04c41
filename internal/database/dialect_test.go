package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gidwell/jiro/internal/apperr"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name    string
		neutral string
		want    map[Dialect]string
	}{
		{
			name:    "placeholders",
			neutral: `SELECT id FROM learners WHERE id = ? AND revision = ?`,
			want: map[Dialect]string{
				DialectSQLite:   `SELECT id FROM learners WHERE id = ? AND revision = ?`,
				DialectMySQL:    `SELECT id FROM learners WHERE id = ? AND revision = ?`,
				DialectPostgres: `SELECT id FROM learners WHERE id = $1 AND revision = $2`,
			},
		},
		{
			name:    "boolean literal",
			neutral: `SELECT COUNT(*) FROM review_events WHERE correct = {{bool true}} OR correct = {{bool false}}`,
			want: map[Dialect]string{
				DialectSQLite:   `SELECT COUNT(*) FROM review_events WHERE correct = 1 OR correct = 0`,
				DialectMySQL:    `SELECT COUNT(*) FROM review_events WHERE correct = TRUE OR correct = FALSE`,
				DialectPostgres: `SELECT COUNT(*) FROM review_events WHERE correct = TRUE OR correct = FALSE`,
			},
		},
		{
			name:    "date truncation",
			neutral: `SELECT COUNT(DISTINCT {{date reviewed_at}}) FROM review_events`,
			want: map[Dialect]string{
				DialectSQLite:   `SELECT COUNT(DISTINCT date(reviewed_at)) FROM review_events`,
				DialectMySQL:    `SELECT COUNT(DISTINCT DATE(reviewed_at)) FROM review_events`,
				DialectPostgres: `SELECT COUNT(DISTINCT CAST(reviewed_at AS DATE)) FROM review_events`,
			},
		},
		{
			name:    "day arithmetic on a placeholder",
			neutral: `SELECT id FROM learning_items WHERE next_due_at > ? AND next_due_at <= {{add_days ? 7}}`,
			want: map[Dialect]string{
				DialectSQLite:   `SELECT id FROM learning_items WHERE next_due_at > ? AND next_due_at <= datetime(?, '+7 days')`,
				DialectMySQL:    `SELECT id FROM learning_items WHERE next_due_at > ? AND next_due_at <= DATE_ADD(?, INTERVAL 7 DAY)`,
				DialectPostgres: `SELECT id FROM learning_items WHERE next_due_at > $1 AND next_due_at <= (CAST($2 AS TIMESTAMPTZ) + INTERVAL '7 days')`,
			},
		},
		{
			name:    "upsert tail",
			neutral: `INSERT INTO learner_summaries (learner_id, summary) VALUES (?, ?) {{upsert learner_id: summary}}`,
			want: map[Dialect]string{
				DialectSQLite:   `INSERT INTO learner_summaries (learner_id, summary) VALUES (?, ?) ON CONFLICT (learner_id) DO UPDATE SET summary = excluded.summary`,
				DialectMySQL:    `INSERT INTO learner_summaries (learner_id, summary) VALUES (?, ?) ON DUPLICATE KEY UPDATE summary = VALUES(summary)`,
				DialectPostgres: `INSERT INTO learner_summaries (learner_id, summary) VALUES ($1, $2) ON CONFLICT (learner_id) DO UPDATE SET summary = excluded.summary`,
			},
		},
	}

	for _, tt := range tests {
		for dialect, want := range tt.want {
			t.Run(tt.name+"/"+string(dialect), func(t *testing.T) {
				got, err := Translate(dialect, tt.neutral)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			})
		}
	}
}

func TestTranslate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		neutral string
		reason  string
	}{
		{
			name:    "unsupported backend",
			dialect: Dialect("oracle"),
			neutral: `SELECT 1`,
			reason:  "unsupported backend",
		},
		{
			name:    "unknown macro",
			dialect: DialectSQLite,
			neutral: `SELECT {{now}}`,
			reason:  `unknown macro "now"`,
		},
		{
			name:    "day count is not an integer",
			dialect: DialectPostgres,
			neutral: `SELECT {{add_days created_at seven}}`,
			reason:  "not an integer",
		},
		{
			name:    "bad bool literal",
			dialect: DialectMySQL,
			neutral: `SELECT {{bool yes}}`,
			reason:  "invalid literal",
		},
		{
			name:    "upsert without key",
			dialect: DialectSQLite,
			neutral: `INSERT INTO t (a) VALUES (?) {{upsert a}}`,
			reason:  "missing key separator",
		},
		{
			name:    "unterminated macro",
			dialect: DialectSQLite,
			neutral: `SELECT {{date created_at`,
			reason:  "malformed macro",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Translate(tt.dialect, tt.neutral)

			var dialectErr *apperr.DialectError
			require.ErrorAs(t, err, &dialectErr)
			assert.Contains(t, dialectErr.Reason, tt.reason)
		})
	}
}

func TestCompileStatements(t *testing.T) {
	for _, dialect := range []Dialect{DialectSQLite, DialectMySQL, DialectPostgres} {
		t.Run(string(dialect), func(t *testing.T) {
			statements, err := compileStatements(dialect)
			require.NoError(t, err)
			assert.Len(t, statements, len(Intents()))
			for intent, stmt := range statements {
				assert.NotContains(t, stmt, "{{", intent)
			}
		})
	}
}
