package domain

// Entity is a typed value the classifier extracted from guest text.
type Entity struct {
	Type       string  `json:"type"`
	Value      string  `json:"value"`
	Span       [2]int  `json:"span,omitempty"`
	Confidence float64 `json:"confidence"`
}

// IntentResult is what the NLP collaborator returns for one message. The
// orchestrator consumes it read-only.
type IntentResult struct {
	Intent     Intent   `json:"intent"`
	Confidence float64  `json:"confidence"`
	Entities   []Entity `json:"entities,omitempty"`
	Fallback   bool     `json:"fallback,omitempty"`
}

// EntityValue returns the value of the first entity of the given type, or "".
func (r *IntentResult) EntityValue(entityType string) string {
	if r == nil {
		return ""
	}
	for _, e := range r.Entities {
		if e.Type == entityType {
			return e.Value
		}
	}
	return ""
}
