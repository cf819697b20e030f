package archive

import (
	"strconv"
	"strings"
)

// ReplyStatus describes how a quoted/forwarded attachment was resolved.
type ReplyStatus string

const (
	// ReplyNone marks an ordinary attachment.
	ReplyNone ReplyStatus = ""
	// ReplyResolvedHeuristic means the target was guessed as the nearest preceding message
	// in the same document. It is an approximation, not a structural link.
	ReplyResolvedHeuristic ReplyStatus = "resolved_heuristic"
	// ReplyUnresolved means no preceding candidate existed; only the kind label is kept.
	ReplyUnresolved ReplyStatus = "unresolved"
)

// MessageRecord is one message extracted from an archive shard.
type MessageRecord struct {
	ID           string          `json:"id"`
	Sender       string          `json:"sender"`
	TimestampRaw string          `json:"date"`
	Text         string          `json:"text"`
	Attachments  []AttachmentRef `json:"attachments,omitempty"`
}

// AttachmentRef is one attachment of a message.
type AttachmentRef struct {
	Kind        string      `json:"type"`
	Link        string      `json:"link,omitempty"`
	Reply       *ReplyRef   `json:"reply,omitempty"`
	ReplyStatus ReplyStatus `json:"reply_status,omitempty"`
}

// ReplyRef points at the message a quoted/forwarded attachment most likely refers to.
type ReplyRef struct {
	TargetID     string `json:"reply_to_id"`
	TargetHeader string `json:"reply_to_header"`
	TargetText   string `json:"reply_to_text"`
}

// SeqNum returns the numeric value of the record id, if it has one.
func (m MessageRecord) SeqNum() (int64, bool) {
	id := strings.TrimSpace(m.ID)
	if id == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsReply reports whether the attachment is a quoted/forwarded message.
func (a AttachmentRef) IsReply() bool {
	return a.ReplyStatus != ReplyNone
}
