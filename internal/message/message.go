package message

// This file provides the common data objects used by the rest of the
// program.

// NoContent is the body text used when a message has nothing that can
// be rendered.
const NoContent = "No readable content found in the email."

// ID defines the properties that uniquely identify a message.
type ID struct {
	// The permanent and unique ID of a message in a storage
	// system.
	PermID string

	// The permanent and unique ID of a thread associated with the
	// message.  May be empty in storage systems that do not
	// support this concept.
	ThreadID string
}

// Header is a single (name, value) pair from a message or part
// header.  Order and duplicates are preserved as delivered.
type Header struct {
	Name  string
	Value string
}

// Body is the inline content of a part, if any.
type Body struct {
	// Base64url encoded content.  Empty when the part is a
	// container or when the content must be fetched separately
	// (see AttachmentID).
	Data string

	// The declared size of the decoded content (bytes).
	Size int64

	// Set for attachments whose content is not delivered inline.
	AttachmentID string
}

// Part is one node of a message's MIME tree.  Container types
// (multipart/*) carry Parts; leaves carry a Body.
type Part struct {
	PartID   string
	MimeType string
	Filename string
	Headers  []Header
	Body     *Body
	Parts    []*Part
}

// Raw is a message as delivered by the remote store.  It is never
// mutated locally.
type Raw struct {
	ID

	// The current set of label identifiers associated with the
	// message.  These identifiers are not the user visible label
	// names!
	LabelIDs []string

	// The top level message headers.
	Headers []Header

	// The root of the MIME tree.
	Payload *Part
}

// UnsubscribeKind says how an unsubscribe request is carried out.
type UnsubscribeKind int

const (
	UnsubscribeUnsupported UnsubscribeKind = iota
	UnsubscribeHTTP
	UnsubscribeMailto
)

func (k UnsubscribeKind) String() string {
	switch k {
	case UnsubscribeHTTP:
		return "http"
	case UnsubscribeMailto:
		return "mailto"
	default:
		return "unsupported"
	}
}

// Unsubscribe is the action derived from a List-Unsubscribe header.
type Unsubscribe struct {
	Kind UnsubscribeKind

	// The URL for UnsubscribeHTTP, the address (without the
	// "mailto:" prefix) for UnsubscribeMailto, and the raw
	// directive otherwise.
	Target string
}

// Message is a fetched message reduced to what the user sees.  It is
// immutable once built.
type Message struct {
	ID      string
	Subject string

	// Rendered, fixed width text.  Never empty; NoContent stands
	// in when nothing could be rendered.
	Body string

	// Nil when the message carries no List-Unsubscribe header.
	Unsubscribe *Unsubscribe
}

// Profile defines per-account information in a message mailbox.
type Profile struct {
	EmailAddress string

	// The number of unread messages in the account, across all
	// labels.
	MessagesUnread int64
}
