package flowplugin

// Result is one row shown by the launcher.
type Result struct {
	Title              string  `json:"title"`
	Subtitle           string  `json:"subtitle"`
	IcoPath            string  `json:"icoPath,omitempty"`
	TitleHighlightData []int   `json:"titleHighlightData,omitempty"`
	TitleTooltip       string  `json:"titleTooltip,omitempty"`
	SubtitleTooltip    string  `json:"subtitleTooltip,omitempty"`
	CopyText           string  `json:"copyText,omitempty"`
	Action             *Action `json:"jsonRPCAction,omitempty"`
	Score              int     `json:"score,omitempty"`
}

// Action is the plugin method the launcher calls back when a result is
// selected.
type Action struct {
	ID         int           `json:"id"`
	Method     string        `json:"method"`
	Parameters []interface{} `json:"parameters"`
}

// NewAction creates an Action calling method with the given parameters.
func NewAction(method string, params ...interface{}) *Action {
	if params == nil {
		params = []interface{}{}
	}
	return &Action{Method: method, Parameters: params}
}

// QueryResponse answers a query or context menu request.
type QueryResponse struct {
	Result          []Result               `json:"result"`
	SettingsChanges map[string]interface{} `json:"settingsChanges,omitempty"`
	DebugMessage    string                 `json:"debugMessage,omitempty"`
}

// ExecuteResponse answers an action invocation.
type ExecuteResponse struct {
	Hide bool `json:"hide"`
}

// Query is the launcher's description of what the user typed.
type Query struct {
	Search        string `json:"Search"`
	RawQuery      string `json:"RawQuery"`
	ActionKeyword string `json:"ActionKeyword,omitempty"`
	IsReQuery     bool   `json:"IsReQuery,omitempty"`
}

// MatchResult is the launcher's answer to FuzzySearch.
type MatchResult struct {
	Score     int   `json:"Score"`
	MatchData []int `json:"MatchData"`
}

// Success reports whether the text matched the query at all.
func (m MatchResult) Success() bool {
	return m.Score > 0
}
