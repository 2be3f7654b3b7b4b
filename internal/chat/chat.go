package chat

// DefaultTitle is the placeholder title of a session nobody has named yet.
const DefaultTitle = "New Chat"

// titleMaxRunes bounds titles derived from the first user message.
const titleMaxRunes = 40

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
	SenderSystem    Sender = "system"
)

// Status is the delivery state of a message.
type Status string

const (
	StatusSending      Status = "sending"
	StatusSent         Status = "sent"
	StatusFailed       Status = "failed"
	StatusRegenerating Status = "regenerating"
)

// Transient reports whether the status is not a stable, displayable answer.
func (s Status) Transient() bool {
	return s == StatusSending || s == StatusRegenerating
}

type MessageType string

const (
	TypeText  MessageType = "text"
	TypeImage MessageType = "image"
	TypeFile  MessageType = "file"
)

// Attachment describes a file or image attached to a message.
type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}
