package ws

// MessageType represents the type of WebSocket message.
type MessageType string

const (
	// Client -> Server message types
	MessageTypeGenerate MessageType = "generate"
	MessageTypeModify   MessageType = "modify" // alias of generate

	// Server -> Client message types
	MessageTypeMessage     MessageType = "message"
	MessageTypeDiagramCode MessageType = "diagram_code"
	MessageTypeError       MessageType = "error"
)

// InboundMessage is a request frame sent by the web UI.
type InboundMessage struct {
	Type    MessageType     `json:"type"`
	Message string          `json:"message"`
	Context *RequestContext `json:"context,omitempty"`
}

// RequestContext carries the editor state attached to a request.
type RequestContext struct {
	DiagramType string `json:"diagramType,omitempty"`
	Format      string `json:"format,omitempty"`
	CurrentCode string `json:"currentCode,omitempty"`
}

// Message is a frame pushed to the web UI.
type Message struct {
	Type      MessageType `json:"type"`
	Content   string      `json:"content,omitempty"`
	Code      string      `json:"code,omitempty"`
	Message   string      `json:"message,omitempty"`
	RequestID int64       `json:"requestId,omitempty"`
}

// NewInfoMessage builds an informational message.
func NewInfoMessage(content string) *Message {
	return &Message{Type: MessageTypeMessage, Content: content}
}

// NewErrorMessage builds an error message.
func NewErrorMessage(text string) *Message {
	return &Message{Type: MessageTypeError, Message: text}
}

// NewDiagramMessage builds a diagram_code message for a fulfilled request.
func NewDiagramMessage(requestID int64, code string) *Message {
	return &Message{Type: MessageTypeDiagramCode, Code: code, RequestID: requestID}
}
