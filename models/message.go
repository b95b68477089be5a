package models

// InboundMessage is one text received from a user on any channel.
type InboundMessage struct {
	UserKey string `json:"user" binding:"required"`
	Text    string `json:"text"`
}

// Reply holds the outbound messages produced for one inbound message.
type Reply struct {
	State    DialogState `json:"state"`
	Messages []string    `json:"messages"`
}

func (r *Reply) Add(msg ...string) {
	r.Messages = append(r.Messages, msg...)
}

// ToolRequest is the payload of a voice-agent tool call.
type ToolRequest struct {
	Tool       string         `json:"tool" binding:"required"`
	ToolCallID string         `json:"toolCallId"`
	Arguments  map[string]any `json:"arguments"`
}

type ToolResult struct {
	ToolCallID string `json:"toolCallId"`
	Result     any    `json:"result"`
}

type ToolResponse struct {
	Results []ToolResult `json:"results"`
}
