package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Gidwell/jiro/internal/learning"
	"github.com/Gidwell/jiro/internal/mocks/cli"
	"github.com/Gidwell/jiro/internal/tutor"
)

var reviewNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func dueItems() []learning.Item {
	return []learning.Item{
		{ID: "item-1", LearnerID: 3, Kind: learning.KindVocab, Content: "駅"},
		{ID: "item-2", LearnerID: 3, Kind: learning.KindGrammar, Content: "〜たい"},
	}
}

func graded(id string, days int) *learning.Item {
	return &learning.Item{ID: id, NextDueAt: reviewNow.AddDate(0, 0, days)}
}

func TestReviewCLI_Run(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	tests := []struct {
		name       string
		input      string
		setup      func(m *mock_cli.MockReviewerMockRecorder)
		want       ReviewResult
		wantOutput []string
		wantErr    string
	}{
		{
			name:  "answers and skips",
			input: "駅に行きます\ny\n\n",
			setup: func(m *mock_cli.MockReviewerMockRecorder) {
				gomock.InOrder(
					m.Grade(gomock.Any(), int64(3), "item-1", true, gomock.Any()).Return(graded("item-1", 3), nil),
					m.Grade(gomock.Any(), int64(3), "item-2", false, gomock.Any()).Return(graded("item-2", 1), nil),
				)
			},
			want: ReviewResult{Reviewed: 2, Correct: 1},
			wantOutput: []string{
				"[vocab] 駅",
				`You said "駅に行きます". Was it right? [y/N]: `,
				"Nice. Next review on 2026-05-07",
				"〜たい comes back on 2026-05-05",
			},
		},
		{
			name:  "self graded wrong",
			input: "駅で食べたい\nn\n",
			setup: func(m *mock_cli.MockReviewerMockRecorder) {
				m.Grade(gomock.Any(), int64(3), "item-1", false, gomock.Any()).Return(graded("item-1", 1), nil)
			},
			want:       ReviewResult{Reviewed: 1},
			wantOutput: []string{"駅 comes back on 2026-05-05"},
		},
		{
			name:  "input ends before the verdict",
			input: "駅\n",
			setup: func(m *mock_cli.MockReviewerMockRecorder) {},
			want:  ReviewResult{},
		},
		{
			name:  "grade fails",
			input: "\n",
			setup: func(m *mock_cli.MockReviewerMockRecorder) {
				m.Grade(gomock.Any(), int64(3), "item-1", false, gomock.Any()).Return(nil, errors.New("database is locked"))
			},
			wantErr: "reviewer.Grade(item-1)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			reviewer := mock_cli.NewMockReviewer(ctrl)
			reviewer.EXPECT().GetDueReview(gomock.Any(), int64(3), 10).Return(dueItems(), nil)
			tt.setup(reviewer.EXPECT())

			var out bytes.Buffer
			r, err := NewReviewCLI(context.Background(), reviewer, 3, 10, strings.NewReader(tt.input), &out)
			require.NoError(t, err)
			r.now = func() time.Time { return reviewNow }
			assert.Equal(t, 2, r.ItemCount())

			got, err := r.Run(context.Background())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			for _, want := range tt.wantOutput {
				assert.Contains(t, out.String(), want)
			}
		})
	}
}

func TestReviewCLI_NothingDue(t *testing.T) {
	ctrl := gomock.NewController(t)
	reviewer := mock_cli.NewMockReviewer(ctrl)
	reviewer.EXPECT().GetDueReview(gomock.Any(), int64(3), 5).Return(nil, nil)

	var out bytes.Buffer
	r, err := NewReviewCLI(context.Background(), reviewer, 3, 5, strings.NewReader(""), &out)
	require.NoError(t, err)

	got, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReviewResult{}, got)
	assert.Equal(t, "Nothing is due right now.\n", out.String())
}

func TestNewReviewCLI_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	reviewer := mock_cli.NewMockReviewer(ctrl)
	reviewer.EXPECT().GetDueReview(gomock.Any(), int64(3), 5).Return(nil, errors.New("learner not found"))

	_, err := NewReviewCLI(context.Background(), reviewer, 3, 5, strings.NewReader(""), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reviewer.GetDueReview()")
}

func TestPrintStats(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	var out bytes.Buffer
	PrintStats(&out, 3, &tutor.Stats{
		Stats:      learning.Stats{Reviews: 8, Correct: 6, ActiveDays: 2, Mastered: 1, Total: 12},
		Streak:     2,
		TurnsToday: 4,
		DueCount:   5,
		Strictness: "normal",
		Mode:       "free",
	})

	got := out.String()
	assert.Contains(t, got, "Learner 3\n")
	assert.Contains(t, got, "  Mode:        free\n")
	assert.Contains(t, got, "  Items:       12 total, 1 mastered, 5 due\n")
	assert.Contains(t, got, "  Reviews:     8 over 2 days, 75% correct\n")
}
