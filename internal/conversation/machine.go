// Package conversation drives the qualification question sequence. It holds
// no I/O: the widget feeds it events and renders whatever state it reports.
package conversation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"qualify/internal/model"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrEmptyAnswer       = errors.New("empty answer")
	ErrNoQuestions       = errors.New("no questions")
)

// Phase is the coarse conversation state
type Phase int

const (
	Closed Phase = iota
	Open
	Asking
	Submitting
	Qualified
	NotQualified
	OfflineSaved
	Failed
)

var phaseNames = map[Phase]string{
	Closed:       "closed",
	Open:         "open",
	Asking:       "asking",
	Submitting:   "submitting",
	Qualified:    "qualified",
	NotQualified: "notQualified",
	OfflineSaved: "offlineSaved",
	Failed:       "error",
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Terminal reports whether no further visitor-driven transition can occur
func (p Phase) Terminal() bool {
	switch p {
	case Qualified, NotQualified, OfflineSaved, Failed:
		return true
	}
	return false
}

// State is a snapshot of the machine
type State struct {
	Phase Phase
	Index int
	Score float64
}

func (s State) String() string {
	switch s.Phase {
	case Asking:
		return fmt.Sprintf("asking(%d)", s.Index)
	case Qualified:
		return fmt.Sprintf("qualified(%.2f)", s.Score)
	}
	return s.Phase.String()
}

// Machine is the conversation state machine. It is not safe for concurrent
// use; the widget only touches it from its event loop.
type Machine struct {
	phase     Phase
	index     int
	score     float64
	questions []model.Question
	answers   []model.Answer
	startedAt time.Time
	shownAt   time.Time
	inFlight  bool
	opened    bool
}

func New() *Machine {
	return &Machine{phase: Closed}
}

func (m *Machine) State() State {
	return State{Phase: m.phase, Index: m.index, Score: m.score}
}

// Opened reports whether the conversation ever reached asking
func (m *Machine) Opened() bool {
	return m.opened
}

// Completed reports whether the answers were handed to submit
func (m *Machine) Completed() bool {
	return m.phase == Submitting || m.phase.Terminal()
}

func (m *Machine) Questions() []model.Question {
	return m.questions
}

// Answers returns a copy of the answers in question order
func (m *Machine) Answers() []model.Answer {
	out := make([]model.Answer, len(m.answers))
	copy(out, m.answers)
	return out
}

// Current returns the question being asked
func (m *Machine) Current() (model.Question, bool) {
	if m.phase != Asking {
		return model.Question{}, false
	}
	return m.questions[m.index], true
}

// LastAnswer returns the most recent answer text
func (m *Machine) LastAnswer() string {
	if len(m.answers) == 0 {
		return ""
	}
	return m.answers[len(m.answers)-1].Answer
}

// TotalTime is the time from the first question being shown until now
func (m *Machine) TotalTime(now time.Time) time.Duration {
	if m.startedAt.IsZero() {
		return 0
	}
	return now.Sub(m.startedAt)
}

// Open moves closed → open while the question set is fetched
func (m *Machine) Open() error {
	if m.phase != Closed || m.opened {
		return fmt.Errorf("%w: open from %s", ErrInvalidTransition, m.State())
	}
	m.phase = Open
	return nil
}

// Begin moves open → asking(0). An empty question set returns the machine to
// closed with ErrNoQuestions.
func (m *Machine) Begin(questions []model.Question, now time.Time) error {
	if m.phase != Open {
		return fmt.Errorf("%w: begin from %s", ErrInvalidTransition, m.State())
	}
	if len(questions) == 0 {
		m.phase = Closed
		return ErrNoQuestions
	}
	m.questions = append([]model.Question(nil), questions...)
	m.answers = make([]model.Answer, 0, len(questions))
	m.phase = Asking
	m.index = 0
	m.opened = true
	m.startedAt = now
	m.shownAt = now
	return nil
}

// Answer records value for the current question and advances
func (m *Machine) Answer(value string, now time.Time) (model.Answer, error) {
	if m.phase != Asking {
		return model.Answer{}, fmt.Errorf("%w: answer from %s", ErrInvalidTransition, m.State())
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return model.Answer{}, ErrEmptyAnswer
	}

	q := m.questions[m.index]
	a := model.Answer{
		QuestionID:   q.ID,
		Question:     q.Text,
		Answer:       value,
		Timestamp:    now.UTC().Format(time.RFC3339Nano),
		TimeToAnswer: now.Sub(m.shownAt).Milliseconds(),
	}
	m.answers = append(m.answers, a)

	if m.index == len(m.questions)-1 {
		m.phase = Submitting
		return a, nil
	}
	m.index++
	m.shownAt = now
	return a, nil
}

// BeginSubmit claims the single submit slot. It returns false when a submit is
// already in flight or the machine is not submitting.
func (m *Machine) BeginSubmit() bool {
	if m.phase != Submitting || m.inFlight {
		return false
	}
	m.inFlight = true
	return true
}

// InFlight reports whether a submit request is outstanding
func (m *Machine) InFlight() bool {
	return m.inFlight
}

// Complete applies the backend verdict
func (m *Machine) Complete(qualified bool, score float64) error {
	if err := m.finish("complete"); err != nil {
		return err
	}
	m.score = score
	if qualified {
		m.phase = Qualified
	} else {
		m.phase = NotQualified
	}
	return nil
}

// FailOffline records that the submission was queued for later delivery
func (m *Machine) FailOffline() error {
	if err := m.finish("fail offline"); err != nil {
		return err
	}
	m.phase = OfflineSaved
	return nil
}

// Fail records a submission failure while online
func (m *Machine) Fail() error {
	if err := m.finish("fail"); err != nil {
		return err
	}
	m.phase = Failed
	return nil
}

func (m *Machine) finish(op string) error {
	if m.phase != Submitting {
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, op, m.State())
	}
	m.inFlight = false
	return nil
}

// Close returns the machine to closed. abandoned is true when the visitor
// leaves before all questions were answered.
func (m *Machine) Close() (abandoned bool) {
	abandoned = m.phase == Open || m.phase == Asking
	m.phase = Closed
	m.inFlight = false
	return abandoned
}
