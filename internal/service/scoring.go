package service

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"

	"qualify/internal/model"
)

var firstNumber = regexp.MustCompile(`\d+`)

// RuleScore scores a conversation in [0, 1] from keyword signals in each
// answer, averaged over the answers.
func RuleScore(answers []model.Answer) float64 {
	if len(answers) == 0 {
		return 0
	}

	var total float64
	for _, a := range answers {
		text := strings.ToLower(a.Answer)
		score := 0.5

		// Intent
		if containsAny(text, "urgent", "asap", "immediately") {
			score += 0.3
		}
		if containsAny(text, "exploring", "research", "maybe") {
			score -= 0.2
		}

		// Budget
		if containsAny(text, "budget", "approved", "allocated") {
			score += 0.2
		}

		// Timeline
		if containsAny(text, "this month", "next month") {
			score += 0.2
		}
		if containsAny(text, "next year", "someday") {
			score -= 0.1
		}

		// Company size
		if m := firstNumber.FindString(text); m != "" {
			n, err := strconv.Atoi(m)
			if err != nil || n > 10 {
				score += 0.1
			}
		}

		// Quick answers signal intent
		if a.TimeToAnswer > 0 && a.TimeToAnswer < 3000 {
			score += 0.1
		}

		total += clamp(score)
	}
	return clamp(total / float64(len(answers)))
}

// EngagementScore rates answer depth and pacing in [0, 1]
func EngagementScore(answers []model.Answer, totalTime int64) float64 {
	if len(answers) == 0 {
		return 0
	}
	n := float64(len(answers))

	var words int
	for _, a := range answers {
		words += len(strings.Split(a.Answer, " "))
	}
	var score float64
	avgWords := float64(words) / n
	if avgWords > 10 {
		score += 0.3
	}
	if avgWords > 20 {
		score += 0.2
	}

	avgTime := float64(totalTime) / n
	if avgTime > 5000 && avgTime < 30000 {
		score += 0.3
	}

	// Every question was answered
	score += 0.2
	return math.Min(1, score)
}

// VisitorBucket maps a visitor ID to a stable bucket in [0, 100). The hash
// is the 32-bit string hash the embed script has always used, so existing
// visitors keep their variant.
func VisitorBucket(visitorID string) int {
	var h int32
	for _, c := range utf16.Encode([]rune(visitorID)) {
		h = (h << 5) - h + int32(c)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return int(abs % 100)
}

// ShowWidget reports whether the visitor is in the widget variant
func ShowWidget(visitorID string, sharePercent int) bool {
	return VisitorBucket(visitorID) < sharePercent
}

// PlanLeadLimit returns the monthly lead allowance of a plan, -1 for unlimited
func PlanLeadLimit(plan string) int64 {
	switch plan {
	case "starter":
		return 1000
	case "growth":
		return 10000
	case "enterprise":
		return -1
	default:
		return 100
	}
}

var industryQuestions = map[string][]model.Question{
	"saas": {
		{ID: "use_case", Text: "What specific challenge are you looking to solve?"},
		{ID: "timeline", Text: "When do you need a solution in place?"},
		{ID: "decision", Text: "Who else is involved in this decision?"},
	},
	"ecommerce": {
		{ID: "volume", Text: "How many orders do you process monthly?"},
		{ID: "platform", Text: "What platform are you currently using?"},
		{ID: "pain", Text: "What's your biggest operational challenge?"},
	},
	"default": {
		{ID: "intent", Text: "What brings you here today?"},
		{ID: "timeline", Text: "What's your timeline for making a change?"},
		{ID: "budget", Text: "Have you allocated budget for this initiative?"},
	},
}

// QuestionsForIndustry returns a copy of the industry's question template
func QuestionsForIndustry(industry string) []model.Question {
	qs, ok := industryQuestions[industry]
	if !ok {
		qs = industryQuestions["default"]
	}
	return append([]model.Question(nil), qs...)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
