package model

// Route is the outcome of a turn's branching decisions.
type Route string

const (
	RouteRetrieve Route = "retrieve"
	RouteClarify  Route = "clarify"
)

// DepartmentSource records how the department filter of a turn was bound.
type DepartmentSource string

const (
	DepartmentNone      DepartmentSource = ""
	DepartmentFollowUp  DepartmentSource = "follow_up"
	DepartmentMentioned DepartmentSource = "mentioned"
	DepartmentPredicted DepartmentSource = "predicted"
)

// QueryInput represents the input for processing one user turn.
type QueryInput struct {
	ThreadID string `json:"thread_id"`
	Question string `json:"question"`
}

// TurnInput is what the runner hands to the graph: the question plus the loaded state.
type TurnInput struct {
	Question string
	State    *ConversationState
}

// Step is the token passed between graph nodes. All data lives in TurnState.
type Step struct {
	From string
}

// TurnState stores per-invocation state for the Eino Graph.
// Concurrency model:
//   - Registered as graph local state via compose.WithGenLocalState.
//   - Nodes receive a snapshot and return an Update; the node adapter merges it
//     through compose.ProcessState, so no extra locking is needed.
//   - Never touch it outside handlers or ProcessState.
type TurnState struct {
	Conversation ConversationState

	Question         string
	SearchQuery      string
	Department       string
	DepartmentSource DepartmentSource
	RawResults       []string
	Failure          string
	Route            Route
	Reply            *Message

	// Accumulated LLM cost (USD) across model invocations for this turn
	CostUSD float64
}

// Appropriate reports the tri-state gate decision as (value, set).
func (s *TurnState) Appropriate() (bool, bool) {
	if s.Conversation.QuestionAppropriate == nil {
		return false, false
	}
	return *s.Conversation.QuestionAppropriate, true
}

// Update is a partial state change returned by a node.
// Zero-valued fields leave the state unchanged.
type Update struct {
	Language    Language
	Appropriate *bool
	Reason      *string
	// CurrentDepartment replaces the thread's department binding when non-nil.
	CurrentDepartment *string
	FollowUp          *bool
	FollowUpChain     []string
	ReplaceChain      bool

	SearchQuery      string
	Department       string
	DepartmentSource DepartmentSource

	Documents        []Document
	ReplaceDocuments bool
	RawResults       []string

	Append  []Message
	Summary *string
	// Window > 0 evicts all but the newest Window messages after Append.
	Window int

	Failure string
	Route   Route
	CostUSD float64
}

// Apply merges u into the state.
func (s *TurnState) Apply(u Update) {
	c := &s.Conversation
	if u.Language != "" {
		c.Language = u.Language
	}
	if u.Appropriate != nil {
		v := *u.Appropriate
		c.QuestionAppropriate = &v
	}
	if u.Reason != nil {
		c.QuestionReason = *u.Reason
	}
	if u.CurrentDepartment != nil {
		c.CurrentDepartment = *u.CurrentDepartment
	}
	if u.FollowUp != nil {
		c.FollowUp = *u.FollowUp
	}
	if u.ReplaceChain {
		c.FollowUpChain = append([]string(nil), u.FollowUpChain...)
	}
	if u.SearchQuery != "" {
		s.SearchQuery = u.SearchQuery
	}
	if u.Department != "" {
		s.Department = u.Department
		s.DepartmentSource = u.DepartmentSource
	}
	if u.ReplaceDocuments {
		c.Documents = append([]Document(nil), u.Documents...)
	}
	if len(u.RawResults) > 0 {
		s.RawResults = append(s.RawResults, u.RawResults...)
	}
	for _, m := range u.Append {
		c.Messages = append(c.Messages, m)
		if m.Role == RoleAssistant {
			reply := m
			s.Reply = &reply
		}
	}
	if u.Summary != nil {
		c.Summarization = *u.Summary
	}
	if u.Window > 0 && len(c.Messages) > u.Window {
		c.Messages = append([]Message(nil), c.Messages[len(c.Messages)-u.Window:]...)
	}
	if u.Failure != "" && s.Failure == "" {
		s.Failure = u.Failure
	}
	if u.Route != "" {
		s.Route = u.Route
	}
	s.CostUSD += u.CostUSD
}

// TurnResult is returned to the caller after a turn completes.
type TurnResult struct {
	ThreadID   string     `json:"thread_id"`
	Reply      Message    `json:"reply"`
	Route      Route      `json:"route"`
	Language   Language   `json:"language"`
	Department string     `json:"department,omitempty"`
	FollowUp   bool       `json:"follow_up"`
	Documents  []Document `json:"documents,omitempty"`
	Summary    string     `json:"summary,omitempty"`
	CostUSD    float64    `json:"cost_usd"`

	State *ConversationState `json:"-"`
}
