package model

const (
	RunTypeTool      = "tool"
	RunTypeChain     = "chain"
	RunTypeLLM       = "llm"
	RunTypeRetriever = "retriever"
	RunTypeEmbedding = "embedding"
	RunTypePrompt    = "prompt"
	RunTypeParser    = "parser"
)

// Run is one unit of execution (a span) within a LangSmith trace, as returned
// by the public share endpoints and as accepted by the ingestion API. Pointer
// fields distinguish "absent" from zero values so that payload copied from a
// shared trace round-trips exactly.
type Run struct {
	ID          *string                `json:"id"`
	TraceID     *string                `json:"trace_id,omitempty"`
	Name        *string                `json:"name,omitempty"`
	RunType     *string                `json:"run_type,omitempty" validate:"oneof=tool chain llm retriever embedding prompt parser"`
	StartTime   *string                `json:"start_time,omitempty"`
	EndTime     *string                `json:"end_time,omitempty"`
	SessionID   *string                `json:"session_id,omitempty"`
	SessionName *string                `json:"session_name,omitempty"`
	DottedOrder *string                `json:"dotted_order,omitempty"`
	Status      *string                `json:"status,omitempty"`
	Inputs      map[string]interface{} `json:"inputs,omitempty"`
	Outputs     map[string]interface{} `json:"outputs,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
	Error       *string                `json:"error,omitempty"`
	Serialized  map[string]interface{} `json:"serialized,omitempty"`
	Events      []interface{}          `json:"events,omitempty"`
	ParentRunID *string                `json:"parent_run_id,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	// Token accounting, present on LLM runs only.
	TotalTokens      *int    `json:"total_tokens,omitempty"`
	PromptTokens     *int    `json:"prompt_tokens,omitempty"`
	CompletionTokens *int    `json:"completion_tokens,omitempty"`
	FirstTokenTime   *string `json:"first_token_time,omitempty"`
}

// Feedback is a feedback entry attached to a shared run. The copy tooling
// only reports on feedback, so the payload stays opaque.
type Feedback struct {
	ID      *string                `json:"id"`
	RunID   *string                `json:"run_id,omitempty"`
	Key     *string                `json:"key,omitempty"`
	Score   interface{}            `json:"score,omitempty"`
	Value   interface{}            `json:"value,omitempty"`
	Comment *string                `json:"comment,omitempty"`
	Extra   map[string]interface{} `json:"extra,omitempty"`
}

func StringPtr(s string) *string { return &s }
