package model

// DeviceType classifies the visitor's device
type DeviceType string

const (
	DeviceMobile  DeviceType = "mobile"
	DeviceDesktop DeviceType = "desktop"
)

// QuestionType represents the expected input for a question
type QuestionType string

const (
	QuestionText   QuestionType = "text"
	QuestionSelect QuestionType = "select"
	QuestionEmail  QuestionType = "email"
	QuestionPhone  QuestionType = "phone"
)

// EventType names a widget lifecycle event
type EventType string

const (
	EventWidgetOpened     EventType = "widget_opened"
	EventQuestionAnswered EventType = "question_answered"
	EventFormCompleted    EventType = "form_completed"
	EventWidgetClosed     EventType = "widget_closed"
	EventWidgetAbandoned  EventType = "widget_abandoned"

	// Server-side events
	EventImpression      EventType = "impression"
	EventQualifiedLead   EventType = "qualified_lead"
	EventUnqualifiedLead EventType = "unqualified_lead"
	EventLeadStatus      EventType = "lead_status_changed"
)

// LeadStatus represents the review status of a lead
type LeadStatus string

const (
	LeadQualified    LeadStatus = "qualified"
	LeadNotQualified LeadStatus = "not_qualified"
	LeadPending      LeadStatus = "pending"
)

// Valid reports whether s is an accepted lead status
func (s LeadStatus) Valid() bool {
	switch s {
	case LeadQualified, LeadNotQualified, LeadPending:
		return true
	}
	return false
}

// Viewport is the visible area of the host page
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DeviceInfo describes the visitor's device
type DeviceInfo struct {
	Type         DeviceType `json:"type"`
	OS           string     `json:"os"`
	Browser      string     `json:"browser"`
	ScreenWidth  int        `json:"screenWidth"`
	ScreenHeight int        `json:"screenHeight"`
	Viewport     Viewport   `json:"viewport"`
}

// Mobile reports whether the device is classified as mobile
func (d DeviceInfo) Mobile() bool {
	return d.Type == DeviceMobile
}

// Question is a single qualification question
type Question struct {
	ID      string       `json:"id"`
	Text    string       `json:"text"`
	Type    QuestionType `json:"type,omitempty"`
	Options []string     `json:"options,omitempty"`
}

// Answer is the visitor's response to a question
type Answer struct {
	QuestionID   string `json:"questionId"`
	Question     string `json:"question"`
	Answer       string `json:"answer"`
	Timestamp    string `json:"timestamp"`
	TimeToAnswer int64  `json:"timeToAnswer"`
}

// InitRequest is sent when the widget opens
type InitRequest struct {
	APIKey    string     `json:"apiKey"`
	VisitorID string     `json:"visitorId"`
	PageURL   string     `json:"pageUrl"`
	PageTitle string     `json:"pageTitle"`
	Referrer  string     `json:"referrer"`
	Device    DeviceInfo `json:"device"`
	Timezone  string     `json:"timezone"`
	Language  string     `json:"language"`
	Timestamp string     `json:"timestamp"`
}

// InitResponse carries the question set, or showWidget=false for the control group
type InitResponse struct {
	ShowWidget bool       `json:"showWidget"`
	Questions  []Question `json:"questions"`
	AccountID  string     `json:"accountId"`
}

// SubmitRequest carries the full ordered answer sequence
type SubmitRequest struct {
	APIKey    string     `json:"apiKey"`
	VisitorID string     `json:"visitorId"`
	SessionID string     `json:"sessionId"`
	PageURL   string     `json:"pageUrl"`
	PageTitle string     `json:"pageTitle"`
	Answers   []Answer   `json:"answers"`
	Device    DeviceInfo `json:"device"`
	TotalTime int64      `json:"totalTime"`
	Timestamp string     `json:"timestamp"`
}

// SubmitResponse is the backend's qualification verdict
type SubmitResponse struct {
	Qualified   bool    `json:"qualified"`
	Score       float64 `json:"score"`
	CalendlyURL *string `json:"calendlyUrl,omitempty"`
	ResponseID  string  `json:"responseId"`
}

// TrackEvent is a fire-and-forget analytics event
type TrackEvent struct {
	APIKey    string                 `json:"apiKey"`
	VisitorID string                 `json:"visitorId"`
	SessionID string                 `json:"sessionId"`
	EventType EventType              `json:"eventType"`
	PageURL   string                 `json:"pageUrl"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// TrackResponse acknowledges a tracked event
type TrackResponse struct {
	Success bool `json:"success"`
}

// VerifyRequest checks a widget installation
type VerifyRequest struct {
	APIKey string `json:"apiKey"`
	Domain string `json:"domain"`
}

// VerifyResponse reports the installation check result
type VerifyResponse struct {
	Verified  bool   `json:"verified"`
	Message   string `json:"message"`
	Domain    string `json:"domain,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Account is a customer account owning an API key
type Account struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	CompanyName string `json:"companyName"`
	APIKey      string `json:"apiKey"`
	Plan        string `json:"plan"`
	Industry    string `json:"industry,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
}

// Lead is a stored widget submission
type Lead struct {
	ID              string                 `json:"id"`
	AccountID       string                 `json:"accountId"`
	VisitorID       string                 `json:"visitorId"`
	SessionID       string                 `json:"sessionId"`
	PageURL         string                 `json:"pageUrl"`
	PageTitle       string                 `json:"pageTitle"`
	Answers         []Answer               `json:"answers"`
	Score           float64                `json:"score"`
	Qualified       bool                   `json:"qualified"`
	Status          LeadStatus             `json:"status"`
	EngagementScore float64                `json:"engagementScore"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt       string                 `json:"createdAt,omitempty"`
	UpdatedAt       string                 `json:"updatedAt,omitempty"`
}

// AnalyticsEvent is a server-side analytics record
type AnalyticsEvent struct {
	ID        string                 `json:"id"`
	AccountID string                 `json:"accountId"`
	EventType EventType              `json:"eventType"`
	VisitorID string                 `json:"visitorId"`
	SessionID string                 `json:"sessionId,omitempty"`
	PageURL   string                 `json:"pageUrl"`
	Variant   string                 `json:"variant,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt string                 `json:"createdAt,omitempty"`
}
