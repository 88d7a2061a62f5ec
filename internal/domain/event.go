package domain

// Event is an inbound messaging event. The set is closed: TextEvent and
// ImageEvent.
type Event interface {
	Sender() string
	Token() string
	isEvent()
}

// TextEvent carries a text message from a user.
type TextEvent struct {
	UserID     string
	ReplyToken string
	Text       string
}

func (e TextEvent) Sender() string { return e.UserID }
func (e TextEvent) Token() string  { return e.ReplyToken }
func (TextEvent) isEvent()         {}

// ImageEvent carries an uploaded image whose content must be fetched by id.
type ImageEvent struct {
	UserID     string
	ReplyToken string
	MessageID  string
}

func (e ImageEvent) Sender() string { return e.UserID }
func (e ImageEvent) Token() string  { return e.ReplyToken }
func (ImageEvent) isEvent()         {}

// ReplyKind enumerates outbound message shapes.
type ReplyKind string

const (
	ReplyText  ReplyKind = "text"
	ReplyImage ReplyKind = "image"
	ReplyVideo ReplyKind = "video"
)

// Reply is one outbound message.
type Reply struct {
	Kind        ReplyKind
	Text        string
	OriginalURL string
	PreviewURL  string
}

// TextReply builds a text message.
func TextReply(text string) Reply {
	return Reply{Kind: ReplyText, Text: text}
}

// VideoReply builds a video message with its preview image.
func VideoReply(videoURL, previewURL string) Reply {
	return Reply{Kind: ReplyVideo, OriginalURL: videoURL, PreviewURL: previewURL}
}

// ImageReply builds an image message.
func ImageReply(imageURL, previewURL string) Reply {
	return Reply{Kind: ReplyImage, OriginalURL: imageURL, PreviewURL: previewURL}
}
