package database

// Intent names one statement of the closed set the gateway can run.
// Every intent is translated once per backend when the gateway is built.
type Intent string

const (
	IntentSelectLearner         Intent = "select-learner"
	IntentSelectLearnerIDs      Intent = "select-learner-ids"
	IntentSelectLearnerTimezone Intent = "select-learner-timezone"
	IntentInsertLearner         Intent = "insert-learner"
	IntentUpdateLearnerSettings Intent = "update-learner-settings"
	IntentUpdateLearnerModel    Intent = "update-learner-model"
	IntentTouchLearner          Intent = "touch-learner"
	IntentDeleteLearner         Intent = "delete-learner"

	IntentSelectSummary Intent = "select-summary"
	IntentUpsertSummary Intent = "upsert-summary"
	IntentDeleteSummary Intent = "delete-summary"

	IntentSelectDue      Intent = "select-due"
	IntentCountDue       Intent = "count-due"
	IntentSelectUpcoming Intent = "select-upcoming"
	IntentSelectItem     Intent = "select-item"
	IntentSelectItems    Intent = "select-items"
	IntentItemStats      Intent = "item-stats"
	IntentTopDifficulty  Intent = "top-difficulty"
	IntentUpsertItem     Intent = "upsert-item"
	IntentDeleteItems    Intent = "delete-items"

	IntentInsertEvent       Intent = "insert-event"
	IntentSelectItemEvents  Intent = "select-item-events"
	IntentSelectEventsSince Intent = "select-events-since"
	IntentReviewStats       Intent = "review-stats"
	IntentRecentOutcomes    Intent = "recent-outcomes"
	IntentMissesSince       Intent = "misses-since"
	IntentDeleteEvents      Intent = "delete-events"

	IntentInsertTurn        Intent = "insert-turn"
	IntentSelectRecentTurns Intent = "select-recent-turns"
	IntentSelectTurnsSince  Intent = "select-turns-since"
	IntentCountTurnsSince   Intent = "count-turns-since"
	IntentSelectAudioRefs   Intent = "select-audio-refs"
	IntentDeleteTurns       Intent = "delete-turns"
)

const (
	learnerColumns = `id, display_name, strictness, delivery_time, timezone, mode, streak_count, streak_day,
	last_active_at, checkpoint_at, error_patterns, revision, created_at, updated_at`
	itemColumns = `id, learner_id, kind, content, difficulty, ease_factor, interval_days, repetitions,
	next_due_at, last_reviewed_at, created_at, updated_at`
	eventColumns = `id, item_id, learner_id, seq, correct, latency_ms, reviewed_at`
	turnColumns  = `id, learner_id, transcript, reply, input_audio_ref, reply_audio_ref, mode, created_at`

	// most overdue first, easiest first among equally overdue items
	dueOrder = `ORDER BY next_due_at ASC, difficulty ASC, id ASC`
)

var neutralStatements = map[Intent]string{
	IntentSelectLearner:         `SELECT ` + learnerColumns + ` FROM learners WHERE id = ?`,
	IntentSelectLearnerIDs:      `SELECT id FROM learners ORDER BY id`,
	IntentSelectLearnerTimezone: `SELECT timezone FROM learners WHERE id = ?`,
	IntentInsertLearner: `INSERT INTO learners (` + learnerColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	IntentUpdateLearnerSettings: `UPDATE learners
	SET strictness = ?, delivery_time = ?, timezone = ?, mode = ?, revision = revision + 1, updated_at = ?
	WHERE id = ? AND revision = ?`,
	IntentUpdateLearnerModel: `UPDATE learners
	SET streak_count = ?, streak_day = ?, checkpoint_at = ?, error_patterns = ?, revision = revision + 1, updated_at = ?
	WHERE id = ? AND revision = ?`,
	IntentTouchLearner:  `UPDATE learners SET last_active_at = ?, updated_at = ? WHERE id = ?`,
	IntentDeleteLearner: `DELETE FROM learners WHERE id = ?`,

	IntentSelectSummary: `SELECT learner_id, summary, turns_through, updated_at FROM learner_summaries WHERE learner_id = ?`,
	IntentUpsertSummary: `INSERT INTO learner_summaries (learner_id, summary, turns_through, updated_at)
	VALUES (?, ?, ?, ?)
	{{upsert learner_id: summary, turns_through, updated_at}}`,
	IntentDeleteSummary: `DELETE FROM learner_summaries WHERE learner_id = ?`,

	IntentSelectDue: `SELECT ` + itemColumns + ` FROM learning_items
	WHERE learner_id = ? AND next_due_at <= ?
	` + dueOrder + ` LIMIT ?`,
	IntentCountDue: `SELECT COUNT(*) FROM learning_items WHERE learner_id = ? AND next_due_at <= ?`,
	IntentSelectUpcoming: `SELECT ` + itemColumns + ` FROM learning_items
	WHERE learner_id = ? AND next_due_at > ? AND next_due_at <= {{add_days ? 7}}
	` + dueOrder + ` LIMIT ?`,
	IntentSelectItem:  `SELECT ` + itemColumns + ` FROM learning_items WHERE id = ?`,
	IntentSelectItems: `SELECT ` + itemColumns + ` FROM learning_items WHERE learner_id = ? ` + dueOrder,
	IntentItemStats: `SELECT COUNT(*) AS total,
	COALESCE(SUM(CASE WHEN interval_days >= ? THEN 1 ELSE 0 END), 0) AS mastered
	FROM learning_items WHERE learner_id = ?`,
	IntentTopDifficulty: `SELECT COALESCE(MAX(difficulty), 0) FROM learning_items WHERE learner_id = ?`,
	IntentUpsertItem: `INSERT INTO learning_items (` + itemColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	{{upsert id: ease_factor, interval_days, repetitions, next_due_at, last_reviewed_at, updated_at}}`,
	IntentDeleteItems: `DELETE FROM learning_items WHERE learner_id = ?`,

	IntentInsertEvent:      `INSERT INTO review_events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`,
	IntentSelectItemEvents: `SELECT ` + eventColumns + ` FROM review_events WHERE item_id = ? ORDER BY seq ASC`,
	IntentSelectEventsSince: `SELECT ` + eventColumns + ` FROM review_events
	WHERE learner_id = ? AND reviewed_at > ? ORDER BY reviewed_at ASC, seq ASC`,
	IntentReviewStats: `SELECT COUNT(*) AS total,
	COALESCE(SUM(CASE WHEN correct = {{bool true}} THEN 1 ELSE 0 END), 0) AS correct,
	COUNT(DISTINCT {{date reviewed_at}}) AS active_days
	FROM review_events WHERE learner_id = ?`,
	IntentRecentOutcomes: `SELECT correct FROM review_events
	WHERE learner_id = ? ORDER BY reviewed_at DESC, seq DESC LIMIT ?`,
	IntentMissesSince: `SELECT i.kind AS kind, COUNT(*) AS misses
	FROM review_events e JOIN learning_items i ON i.id = e.item_id
	WHERE e.learner_id = ? AND e.reviewed_at > ? AND e.correct = {{bool false}}
	GROUP BY i.kind ORDER BY i.kind`,
	IntentDeleteEvents: `DELETE FROM review_events WHERE learner_id = ?`,

	IntentInsertTurn: `INSERT INTO conversation_turns (` + turnColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	IntentSelectRecentTurns: `SELECT ` + turnColumns + ` FROM conversation_turns
	WHERE learner_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
	IntentSelectTurnsSince: `SELECT ` + turnColumns + ` FROM conversation_turns
	WHERE learner_id = ? AND created_at > ? ORDER BY created_at ASC, id ASC LIMIT ?`,
	IntentCountTurnsSince: `SELECT COUNT(*) FROM conversation_turns WHERE learner_id = ? AND created_at >= ?`,
	IntentSelectAudioRefs: `SELECT input_audio_ref, reply_audio_ref FROM conversation_turns
	WHERE learner_id = ? AND (input_audio_ref IS NOT NULL OR reply_audio_ref IS NOT NULL)`,
	IntentDeleteTurns: `DELETE FROM conversation_turns WHERE learner_id = ?`,
}

// Intents lists every known intent.
func Intents() []Intent {
	intents := make([]Intent, 0, len(neutralStatements))
	for intent := range neutralStatements {
		intents = append(intents, intent)
	}
	return intents
}

// compileStatements translates every intent for d.
func compileStatements(d Dialect) (map[Intent]string, error) {
	compiled := make(map[Intent]string, len(neutralStatements))
	for intent, neutral := range neutralStatements {
		stmt, err := Translate(d, neutral)
		if err != nil {
			return nil, err
		}
		compiled[intent] = stmt
	}
	return compiled, nil
}
