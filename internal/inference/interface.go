package inference

import (
	"context"
	"strings"
	"time"
)

//go:generate mockgen -source=interface.go -destination=../mocks/inference/mock_client.go -package=mock_inference

// Client is the generation backend used by turns and background jobs.
type Client interface {
	// Generate produces the tutor reply to one learner utterance.
	Generate(ctx context.Context, conversation ConversationContext) (Reply, error)
	// Summarize rewrites the learner summary from the current one and newer turns.
	Summarize(ctx context.Context, request SummaryRequest) (string, error)
	// GenerateItems proposes new review material for the curriculum state.
	GenerateItems(ctx context.Context, state CurriculumState) ([]GeneratedItem, error)
}

// Turn is one past exchange given to the backend as context.
type Turn struct {
	Transcript string    `json:"transcript"`
	Reply      string    `json:"reply"`
	CreatedAt  time.Time `json:"created_at"`
}

// DueItem is review material the reply may weave in.
type DueItem struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Content    string `json:"content"`
	Difficulty int    `json:"difficulty"`
}

// ConversationContext is everything the backend sees for one turn.
type ConversationContext struct {
	Transcript    string         `json:"transcript"`
	Mode          string         `json:"mode"`
	Strictness    string         `json:"strictness"`
	Summary       string         `json:"summary,omitempty"`
	ErrorPatterns map[string]int `json:"error_patterns,omitempty"`
	RecentTurns   []Turn         `json:"recent_turns,omitempty"`
	DueItems      []DueItem      `json:"due_items,omitempty"`
}

// Issue is one correction of the learner utterance.
type Issue struct {
	Type        string `json:"type"`
	Original    string `json:"original"`
	Corrected   string `json:"corrected"`
	Explanation string `json:"explanation"`
}

// Assessment grades a due item the learner used or was asked about.
type Assessment struct {
	ItemID  string `json:"item_id"`
	Correct bool   `json:"correct"`
}

// Reply is the structured tutor response.
type Reply struct {
	Text        string       `json:"reply"`
	FollowUp    string       `json:"follow_up_question"`
	Issues      []Issue      `json:"issues"`
	Assessments []Assessment `json:"assessments"`
}

// Spoken is the text read out to the learner.
func (r Reply) Spoken() string {
	parts := make([]string, 0, 2)
	for _, p := range []string{r.Text, r.FollowUp} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

type SummaryRequest struct {
	Current string `json:"current_summary"`
	Turns   []Turn `json:"turns"`
}

// CurriculumState describes what the learner should be given next.
type CurriculumState struct {
	Mode             string         `json:"mode"`
	TargetDifficulty int            `json:"target_difficulty"`
	Count            int            `json:"count"`
	Summary          string         `json:"summary,omitempty"`
	ErrorPatterns    map[string]int `json:"error_patterns,omitempty"`
	Topics           []string       `json:"topics,omitempty"`
	Existing         []string       `json:"existing,omitempty"`
}

// GeneratedItem is proposed review material.
type GeneratedItem struct {
	Kind       string `json:"kind"`
	Content    string `json:"content"`
	Difficulty int    `json:"difficulty"`
}

const (
	DefaultMaxRetryAttempts = 3
)
