package provider

// DefaultTemperature applies wherever no temperature is configured.
const DefaultTemperature = 0.7

// ChatRequest is the JSON body of POST {base}/chat. A nil Temperature
// leaves the choice to the server; an explicit 0 is kept.
type ChatRequest struct {
	Message     string   `json:"message"`
	Context     string   `json:"context"`
	MaxTokens   int      `json:"maxTokens"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// TemperatureOr returns the requested temperature, or fallback when unset.
func (r ChatRequest) TemperatureOr(fallback float64) float64 {
	if r.Temperature == nil {
		return fallback
	}
	return *r.Temperature
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Usage reports token accounting for one chat call.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// ChatResponse is the JSON body of a successful POST {base}/chat.
type ChatResponse struct {
	Response  string `json:"response"`
	Usage     Usage  `json:"usage"`
	Model     string `json:"model"`
	Timestamp string `json:"timestamp"`
}

// HealthResponse is the JSON body of GET {base}/health.
type HealthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model,omitempty"`
}

// ErrorResponse is the JSON body the coach API sends with non-200 codes.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}
