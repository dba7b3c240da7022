package model

import (
	"crypto/sha256"
	"encoding/binary"
	"hash"
	"time"
)

const lastSeenHashMarker = byte(0x46)

type (
	// MessageContent is the signed text and its optional decorated rendering.
	MessageContent struct {
		Plain     string `json:"plain"`
		Decorated string `json:"decorated,omitempty"`
	}

	MessageBody struct {
		Content   MessageContent   `json:"content"`
		Timestamp time.Time        `json:"timestamp"`
		Salt      int64            `json:"salt"`
		LastSeen  LastSeenMessages `json:"last_seen"`
	}
)

func PlainContent(text string) MessageContent {
	return MessageContent{Plain: text}
}

// Display is the text a recipient sees for the signed content.
func (c MessageContent) Display() string {
	if c.Decorated != "" {
		return c.Decorated
	}
	return c.Plain
}

func (c MessageContent) isDecorated() bool {
	return c.Decorated != "" && c.Decorated != c.Plain
}

func NewMessageBody(content MessageContent, signer SignerIdentity, lastSeen LastSeenMessages) MessageBody {
	return MessageBody{
		Content:   content,
		Timestamp: signer.Timestamp,
		Salt:      signer.Salt,
		LastSeen:  lastSeen,
	}
}

// Hash is the signable digest of the body. Timestamps are hashed at second precision.
// Variable-length fields carry a uint32 length prefix so no two bodies share an encoding.
func (b MessageBody) Hash() []byte {
	h := sha256.New()

	var num [8]byte
	binary.BigEndian.PutUint64(num[:], uint64(b.Salt))
	h.Write(num[:])
	binary.BigEndian.PutUint64(num[:], uint64(b.Timestamp.Unix()))
	h.Write(num[:])

	writeHashField(h, []byte(b.Content.Plain))
	if b.Content.isDecorated() {
		h.Write([]byte{1})
		writeHashField(h, []byte(b.Content.Decorated))
	} else {
		h.Write([]byte{0})
	}

	var count [4]byte
	binary.BigEndian.PutUint32(count[:], uint32(len(b.LastSeen.Entries)))
	h.Write(count[:])
	for _, e := range b.LastSeen.Entries {
		h.Write([]byte{lastSeenHashMarker})
		h.Write(e.ProfileID[:])
		writeHashField(h, e.Signature)
	}
	return h.Sum(nil)
}

func writeHashField(h hash.Hash, field []byte) {
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(field)))
	h.Write(size[:])
	h.Write(field)
}
