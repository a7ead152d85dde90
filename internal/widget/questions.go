package widget

import (
	"encoding/json"

	"qualify/internal/model"
	"qualify/internal/probe"
)

const lastSubmissionKey = "qualify_last_submission"

// DefaultQuestions is asked whenever the backend cannot supply a question set
func DefaultQuestions() []model.Question {
	return []model.Question{
		{ID: "intent", Text: "What brings you here today?"},
		{ID: "timeline", Text: "When are you looking to get started?"},
		{ID: "size", Text: "How large is your team?"},
	}
}

// Submission summarises the most recent successful submit
type Submission struct {
	ResponseID string  `json:"responseId,omitempty"`
	Qualified  bool    `json:"qualified"`
	Score      float64 `json:"score"`
	Timestamp  string  `json:"timestamp"`
}

// LastSubmission reads the summary stored by the previous completed conversation
func LastSubmission(store probe.Storage) (Submission, bool) {
	if store == nil {
		return Submission{}, false
	}
	raw, ok, err := store.GetItem(lastSubmissionKey)
	if err != nil || !ok {
		return Submission{}, false
	}
	var s Submission
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return Submission{}, false
	}
	return s, true
}

func saveSubmission(store probe.Storage, s Submission) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return store.SetItem(lastSubmissionKey, string(data))
}
