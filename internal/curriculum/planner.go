// Package curriculum seeds new learners and steers the difficulty of
// generated material.
package curriculum

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Gidwell/jiro/internal/inference"
	"github.com/Gidwell/jiro/internal/learner"
	"github.com/Gidwell/jiro/internal/learning"
)

//go:embed seed.yaml
var defaultSeed []byte

const (
	// RaiseAccuracy and LowerAccuracy bound the recent accuracy band in
	// which the target tier stays put.
	RaiseAccuracy = 0.8
	LowerAccuracy = 0.5

	defaultWindow   = 20
	existingSamples = 50
)

type SeedItem struct {
	Content    string `yaml:"content"`
	Difficulty int    `yaml:"difficulty"`
}

// Seed is the curriculum file.
type Seed struct {
	Topics  []string   `yaml:"topics"`
	Grammar []SeedItem `yaml:"grammar"`
	Vocab   []SeedItem `yaml:"vocab"`
	Phrases []SeedItem `yaml:"phrases"`
}

// LoadSeed reads the seed file at path, or the built in seed when path is
// empty.
func LoadSeed(path string) (*Seed, error) {
	data := defaultSeed
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("os.ReadFile(%s) > %w", path, err)
		}
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("yaml.Unmarshal > %w", err)
	}
	return &seed, nil
}

// Items flattens the seed into item bank input.
func (s *Seed) Items() []learning.NewItem {
	items := make([]learning.NewItem, 0, len(s.Grammar)+len(s.Vocab)+len(s.Phrases))
	for _, group := range []struct {
		kind  learning.Kind
		items []SeedItem
	}{
		{learning.KindGrammar, s.Grammar},
		{learning.KindVocab, s.Vocab},
		{learning.KindPhrase, s.Phrases},
	} {
		for _, item := range group.items {
			items = append(items, learning.NewItem{
				Kind:       group.kind,
				Content:    item.Content,
				Difficulty: item.Difficulty,
			})
		}
	}
	return items
}

type progressSource interface {
	TopDifficulty(ctx context.Context, learnerID int64) (int, error)
	RecentAccuracy(ctx context.Context, learnerID int64, limit int) (float64, bool, error)
	ListItems(ctx context.Context, learnerID int64) ([]learning.Item, error)
}

// Planner turns the seed and a learner's recent performance into the state
// handed to the generation backend.
type Planner struct {
	seed     *Seed
	progress progressSource
	window   int
}

func NewPlanner(seed *Seed, progress progressSource) *Planner {
	return &Planner{
		seed:     seed,
		progress: progress,
		window:   defaultWindow,
	}
}

// InitialItems is the bank given to a learner on first contact. Only the
// lowest tier is seeded; the rest is unlocked by progression.
func (p *Planner) InitialItems() []learning.NewItem {
	var items []learning.NewItem
	for _, item := range p.seed.Items() {
		if item.Difficulty <= learning.MinDifficulty {
			items = append(items, item)
		}
	}
	return items
}

// TargetDifficulty moves the learner's current tier by one depending on
// recent accuracy.
func (p *Planner) TargetDifficulty(ctx context.Context, learnerID int64) (int, error) {
	current, err := p.progress.TopDifficulty(ctx, learnerID)
	if err != nil {
		return 0, err
	}
	if current < learning.MinDifficulty {
		current = learning.MinDifficulty
	}

	accuracy, ok, err := p.progress.RecentAccuracy(ctx, learnerID, p.window)
	if err != nil {
		return 0, err
	}
	return nextTier(current, accuracy, ok), nil
}

func nextTier(current int, accuracy float64, known bool) int {
	switch {
	case !known:
		return current
	case accuracy >= RaiseAccuracy:
		return min(current+1, learning.MaxDifficulty)
	case accuracy < LowerAccuracy:
		return max(current-1, learning.MinDifficulty)
	default:
		return current
	}
}

// State describes what the generation backend should produce next for l.
func (p *Planner) State(ctx context.Context, l *learner.Learner, summary string, count int) (inference.CurriculumState, error) {
	target, err := p.TargetDifficulty(ctx, l.ID)
	if err != nil {
		return inference.CurriculumState{}, err
	}
	items, err := p.progress.ListItems(ctx, l.ID)
	if err != nil {
		return inference.CurriculumState{}, err
	}
	existing := make([]string, 0, min(len(items), existingSamples))
	for _, item := range items {
		if len(existing) == existingSamples {
			break
		}
		existing = append(existing, item.Content)
	}

	return inference.CurriculumState{
		Mode:             string(l.Mode),
		TargetDifficulty: target,
		Count:            count,
		Summary:          summary,
		ErrorPatterns:    l.ErrorPatterns.Recurring(),
		Topics:           p.seed.Topics,
		Existing:         existing,
	}, nil
}
