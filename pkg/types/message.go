package types //nolint:revive // package name is intentional

import "github.com/goccy/go-json"

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single turn in a conversation. Content is either a plain
// string or an ordered sequence of ContentPart for multi-modal input;
// Text and Parts are mutually exclusive, mirroring how ChatMessage.Content
// round-trips either shape over the wire.
type Message struct {
	Role       Role          `json:"role"`
	Text       string        `json:"-"`
	Parts      []ContentPart `json:"-"`
	Name       string        `json:"name,omitempty"`
	ToolCalls  []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

// ContentPartType enumerates the multi-modal content shapes a Message
// part may carry.
type ContentPartType string

const (
	ContentPartText       ContentPartType = "text"
	ContentPartImageURL   ContentPartType = "image_url"
	ContentPartAudioInput ContentPartType = "input_audio"
)

// ContentPart is one element of a multi-modal Message.
type ContentPart struct {
	Type     ContentPartType `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *ImageURL       `json:"image_url,omitempty"`
	Audio    *AudioInput     `json:"input_audio,omitempty"`
}

// ImageURL carries an inline or remote image reference.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// AudioInput carries an inline audio payload.
type AudioInput struct {
	Data   string `json:"data"`
	Format string `json:"format,omitempty"`
}

// messageWire is the JSON shape exchanged over the wire; Content is left
// raw so UnmarshalJSON can decide whether it's a string or a part array.
type messageWire struct {
	Role       Role            `json:"role"`
	Content    json.RawMessage `json:"content"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// UnmarshalJSON accepts either a plain string or an array of content
// parts for "content", matching the OpenAI and Anthropic wire shapes.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.Role = w.Role
	m.Name = w.Name
	m.ToolCalls = w.ToolCalls
	m.ToolCallID = w.ToolCallID
	m.Text = ""
	m.Parts = nil

	if len(w.Content) == 0 || string(w.Content) == "null" {
		return nil
	}
	var text string
	if err := json.Unmarshal(w.Content, &text); err == nil {
		m.Text = text
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(w.Content, &parts); err != nil {
		return err
	}
	m.Parts = parts
	return nil
}

// MarshalJSON emits "content" as a string when Parts is unset, otherwise
// as a part array.
func (m Message) MarshalJSON() ([]byte, error) {
	w := messageWire{
		Role:       m.Role,
		Name:       m.Name,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
	}
	var err error
	if m.Parts != nil {
		w.Content, err = json.Marshal(m.Parts)
	} else {
		w.Content, err = json.Marshal(m.Text)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// PlainText returns the flattened text of a Message regardless of
// whether it was built from Text or from a Parts sequence.
func (m Message) PlainText() string {
	if m.Parts == nil {
		return m.Text
	}
	out := ""
	for _, p := range m.Parts {
		if p.Type == ContentPartText {
			out += p.Text
		}
	}
	return out
}
