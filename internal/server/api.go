package server

import "time"

// Messages of jiro.v1.TutorService. They travel as JSON.

type StartTalkRequest struct {
	LearnerID   int64  `json:"learner_id" validate:"required,gt=0"`
	DisplayName string `json:"display_name" validate:"max=64"`
}

type StartTalkResponse struct {
	SessionVersion uint64 `json:"session_version"`
	Mode           string `json:"mode"`
	NewLearner     bool   `json:"new_learner"`
	Returning      bool   `json:"returning"`
	Streak         int    `json:"streak"`
	DueCount       int    `json:"due_count"`
}

type TalkRequest struct {
	LearnerID       int64  `json:"learner_id" validate:"required,gt=0"`
	DisplayName     string `json:"display_name" validate:"max=64"`
	SessionVersion  uint64 `json:"session_version"`
	Transcript      string `json:"transcript" validate:"max=2000"`
	Audio           []byte `json:"audio,omitempty"`
	AudioMIMEType   string `json:"audio_mime_type,omitempty" validate:"required_with=Audio"`
	AudioDurationMs int64  `json:"audio_duration_ms,omitempty" validate:"min=0"`
}

type Correction struct {
	Type        string `json:"type"`
	Original    string `json:"original"`
	Corrected   string `json:"corrected"`
	Explanation string `json:"explanation"`
}

type TalkResponse struct {
	TurnID         string       `json:"turn_id"`
	Transcript     string       `json:"transcript"`
	Reply          string       `json:"reply"`
	FollowUp       string       `json:"follow_up,omitempty"`
	Corrections    []Correction `json:"corrections,omitempty"`
	ReplyAudio     []byte       `json:"reply_audio,omitempty"`
	ReplyAudioRef  string       `json:"reply_audio_ref,omitempty"`
	SessionVersion uint64       `json:"session_version"`
	Graded         int          `json:"graded"`
}

type SetModeRequest struct {
	LearnerID      int64  `json:"learner_id" validate:"required,gt=0"`
	Mode           string `json:"mode" validate:"required,oneof=free drill review"`
	SessionVersion uint64 `json:"session_version"`
}

type SetModeResponse struct {
	Mode           string `json:"mode"`
	SessionVersion uint64 `json:"session_version"`
}

type LearnerRequest struct {
	LearnerID int64 `json:"learner_id" validate:"required,gt=0"`
}

type Item struct {
	ID           string     `json:"id"`
	Kind         string     `json:"kind"`
	Content      string     `json:"content"`
	Difficulty   int        `json:"difficulty"`
	IntervalDays float64    `json:"interval_days"`
	NextDueAt    time.Time  `json:"next_due_at"`
	LastReviewed *time.Time `json:"last_reviewed_at,omitempty"`
}

type GetPlanResponse struct {
	Due      []Item `json:"due"`
	DueCount int    `json:"due_count"`
	Upcoming []Item `json:"upcoming"`
	Mastered int    `json:"mastered"`
	Total    int    `json:"total"`
}

type GetDueReviewRequest struct {
	LearnerID int64 `json:"learner_id" validate:"required,gt=0"`
	Limit     int   `json:"limit" validate:"min=0,max=50"`
}

type GetDueReviewResponse struct {
	Items []Item `json:"items"`
}

type GradeItemRequest struct {
	LearnerID int64  `json:"learner_id" validate:"required,gt=0"`
	ItemID    string `json:"item_id" validate:"required,uuid"`
	Correct   bool   `json:"correct"`
	LatencyMs int64  `json:"latency_ms" validate:"min=0"`
}

type GradeItemResponse struct {
	Item Item `json:"item"`
}

type GetStatsResponse struct {
	Reviews    int     `json:"reviews"`
	Correct    int     `json:"correct"`
	Accuracy   float64 `json:"accuracy"`
	ActiveDays int     `json:"active_days"`
	Mastered   int     `json:"mastered"`
	Total      int     `json:"total"`
	DueCount   int     `json:"due_count"`
	Streak     int     `json:"streak"`
	TurnsToday int     `json:"turns_today"`
	Strictness string  `json:"strictness"`
	Mode       string  `json:"mode"`
}

type SetStrictRequest struct {
	LearnerID int64 `json:"learner_id" validate:"required,gt=0"`
	// Level is empty to cycle to the next level.
	Level string `json:"level" validate:"omitempty,oneof=light normal strict"`
}

type SetStrictResponse struct {
	Level string `json:"level"`
}

type SetDeliveryTimeRequest struct {
	LearnerID    int64  `json:"learner_id" validate:"required,gt=0"`
	DeliveryTime string `json:"delivery_time" validate:"required"`
	Timezone     string `json:"timezone"`
}

type SetDeliveryTimeResponse struct {
	DeliveryTime string `json:"delivery_time"`
	Timezone     string `json:"timezone"`
}

type GetLastReplyResponse struct {
	Reply         string `json:"reply"`
	ReplyAudioRef string `json:"reply_audio_ref,omitempty"`
}

type RequestDeletionResponse struct {
	ConfirmationToken string `json:"confirmation_token"`
}

type DeleteLearnerDataRequest struct {
	LearnerID         int64  `json:"learner_id" validate:"required,gt=0"`
	ConfirmationToken string `json:"confirmation_token" validate:"required"`
}

type DeleteLearnerDataResponse struct {
	SessionClosed bool `json:"session_closed"`
	AudioObjects  int  `json:"audio_objects"`
}
