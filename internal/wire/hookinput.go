package wire

import "encoding/json"

// HookInput is the union of fields any hook's input payload may carry.
// Each hook only populates the subset it needs; the dispatcher decodes
// Request.Input into this shape once per request rather than re-parsing
// raw JSON in every handler (§6 "input").
type HookInput struct {
	SessionID      string `json:"session_id,omitempty"`
	ToolName       string `json:"tool_name,omitempty"`
	Command        string `json:"command,omitempty"`
	Description    string `json:"description,omitempty"`
	FilePath       string `json:"file_path,omitempty"`
	Success        *bool  `json:"success,omitempty"`
	InputSummary   string `json:"input_summary,omitempty"`
	OutputSummary  string `json:"output_summary,omitempty"`
	Prompt         string `json:"prompt,omitempty"`
	AgentID        string `json:"agent_id,omitempty"`
	AgentType      string `json:"agent_type,omitempty"`
	TranscriptPath string `json:"transcript_path,omitempty"`
	ResultSummary  string `json:"result_summary,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
	Team           string `json:"team,omitempty"`
	Name           string `json:"name,omitempty"`
}

// DecodeHookInput unmarshals a request's raw input into a HookInput,
// tolerating an empty or malformed payload by returning the zero value
// (§7(a) "Input malformed ... respond {}").
func DecodeHookInput(raw json.RawMessage) HookInput {
	var in HookInput
	if len(raw) == 0 {
		return in
	}
	_ = json.Unmarshal(raw, &in)
	return in
}
