package codec

import (
	"fmt"
	"time"

	"secure_chat/internal/model"
)

const maxFilterWords = MaxStringLength/64 + 1

// lastSeenEntryMinSize is the smallest encoded entry: profile id plus an empty signature.
const lastSeenEntryMinSize = 16 + 1

func WriteSignature(w *Writer, s model.Signature) {
	w.WriteByteArray(s)
}

func ReadSignature(r *Reader) model.Signature {
	b := r.ReadByteArray(model.MaxSignatureLength)
	if len(b) == 0 {
		return model.EmptySignature
	}
	return model.Signature(b)
}

func WriteSigner(w *Writer, s model.SignerIdentity) {
	w.WriteUUID(s.ProfileID)
	w.WriteInt64(s.Timestamp.UnixMilli())
	w.WriteInt64(s.Salt)
}

func ReadSigner(r *Reader) model.SignerIdentity {
	return model.SignerIdentity{
		ProfileID: r.ReadUUID(),
		Timestamp: time.UnixMilli(r.ReadInt64()),
		Salt:      r.ReadInt64(),
	}
}

func WriteHeader(w *Writer, h model.MessageHeader) {
	w.WriteBool(h.HasPrevious())
	if h.HasPrevious() {
		WriteSignature(w, h.PreviousSignature)
	}
	w.WriteUUID(h.Sender)
}

func ReadHeader(r *Reader) model.MessageHeader {
	var h model.MessageHeader
	if r.ReadBool() {
		h.PreviousSignature = ReadSignature(r)
	}
	h.Sender = r.ReadUUID()
	return h
}

func WriteLastSeenEntry(w *Writer, e model.LastSeenEntry) {
	w.WriteUUID(e.ProfileID)
	WriteSignature(w, e.Signature)
}

func ReadLastSeenEntry(r *Reader) model.LastSeenEntry {
	return model.LastSeenEntry{
		ProfileID: r.ReadUUID(),
		Signature: ReadSignature(r),
	}
}

func WriteLastSeen(w *Writer, l model.LastSeenMessages) {
	entries := l.Entries
	if len(entries) > model.LastSeenMaxEntries {
		entries = entries[:model.LastSeenMaxEntries]
	}
	w.WriteUvarint(uint64(len(entries)))
	for _, e := range entries {
		WriteLastSeenEntry(w, e)
	}
}

// ReadLastSeen truncates lists longer than the window instead of rejecting them.
func ReadLastSeen(r *Reader) model.LastSeenMessages {
	n := r.ReadUvarint()
	if r.Err() != nil {
		return model.LastSeenMessages{}
	}
	if n > uint64(r.Remaining()/lastSeenEntryMinSize) {
		r.fail("last seen count %d larger than payload", n)
		return model.LastSeenMessages{}
	}

	keep := min(int(n), model.LastSeenMaxEntries)
	entries := make([]model.LastSeenEntry, 0, keep)
	for i := 0; i < int(n); i++ {
		e := ReadLastSeenEntry(r)
		if r.Err() != nil {
			return model.LastSeenMessages{}
		}
		if i < keep {
			entries = append(entries, e)
		}
	}
	return model.LastSeenMessages{Entries: entries}
}

func WriteLastSeenUpdate(w *Writer, u model.LastSeenUpdate) {
	WriteLastSeen(w, u.LastSeen)
	w.WriteBool(u.LastReceived != nil)
	if u.LastReceived != nil {
		WriteLastSeenEntry(w, *u.LastReceived)
	}
}

func ReadLastSeenUpdate(r *Reader) model.LastSeenUpdate {
	u := model.LastSeenUpdate{LastSeen: ReadLastSeen(r)}
	if r.ReadBool() {
		e := ReadLastSeenEntry(r)
		u.LastReceived = &e
	}
	return u
}

func WriteFilterMask(w *Writer, m model.FilterMask) {
	w.WriteUvarint(uint64(m.Kind))
	if m.Kind != model.PartiallyFiltered {
		return
	}
	w.WriteUvarint(uint64(len(m.Words)))
	for _, word := range m.Words {
		w.WriteUint64(word)
	}
}

func ReadFilterMask(r *Reader) model.FilterMask {
	kind := model.FilterKind(r.ReadUvarint())
	switch kind {
	case model.PassThrough:
		return model.PassThroughMask
	case model.FullyFiltered:
		return model.FullyFilteredMask
	case model.PartiallyFiltered:
	default:
		r.fail("unknown filter kind %d", kind)
		return model.PassThroughMask
	}

	n := r.ReadUvarint()
	if n > maxFilterWords {
		r.fail("filter mask of %d words", n)
		return model.PassThroughMask
	}
	m := model.FilterMask{Kind: model.PartiallyFiltered, Words: make([]uint64, 0, n)}
	for i := uint64(0); i < n; i++ {
		m.Words = append(m.Words, r.ReadUint64())
	}
	return m
}

func WriteBody(w *Writer, b model.MessageBody) {
	w.WriteString(b.Content.Plain)
	w.WriteBool(b.Content.Decorated != "")
	if b.Content.Decorated != "" {
		w.WriteString(b.Content.Decorated)
	}
	w.WriteInt64(b.Timestamp.UnixMilli())
	w.WriteInt64(b.Salt)
	WriteLastSeen(w, b.LastSeen)
}

func ReadBody(r *Reader) model.MessageBody {
	var b model.MessageBody
	b.Content.Plain = r.ReadString(MaxStringLength)
	if r.ReadBool() {
		b.Content.Decorated = r.ReadString(MaxStringLength)
	}
	b.Timestamp = time.UnixMilli(r.ReadInt64())
	b.Salt = r.ReadInt64()
	b.LastSeen = ReadLastSeen(r)
	return b
}

func WriteChatMessage(w *Writer, m model.ChatMessage) {
	WriteHeader(w, m.Header)
	WriteSignature(w, m.HeaderSignature)
	WriteBody(w, m.Body)
	w.WriteBool(m.UnsignedContent != nil)
	if m.UnsignedContent != nil {
		w.WriteString(*m.UnsignedContent)
	}
	WriteFilterMask(w, m.FilterMask)
}

func ReadChatMessage(r *Reader) model.ChatMessage {
	var m model.ChatMessage
	m.Header = ReadHeader(r)
	m.HeaderSignature = ReadSignature(r)
	m.Body = ReadBody(r)
	if r.ReadBool() {
		s := r.ReadString(MaxStringLength)
		m.UnsignedContent = &s
	}
	m.FilterMask = ReadFilterMask(r)
	return m
}

func WriteHeaderNotice(w *Writer, n model.HeaderNotice) {
	WriteHeader(w, n.Header)
	WriteSignature(w, n.HeaderSignature)
	w.WriteByteArray(n.BodyHash)
}

func ReadHeaderNotice(r *Reader) model.HeaderNotice {
	return model.HeaderNotice{
		Header:          ReadHeader(r),
		HeaderSignature: ReadSignature(r),
		BodyHash:        r.ReadByteArray(64),
	}
}

// EncodeLastSeen and DecodeLastSeen are standalone helpers for a bare window.
func EncodeLastSeen(l model.LastSeenMessages) []byte {
	w := NewWriter(1 + len(l.Entries)*(16+65))
	WriteLastSeen(w, l)
	return w.Bytes()
}

func DecodeLastSeen(b []byte) (model.LastSeenMessages, error) {
	r := NewReader(b)
	l := ReadLastSeen(r)
	if err := r.Done(); err != nil {
		return model.LastSeenMessages{}, fmt.Errorf("decode last seen: %w", err)
	}
	return l, nil
}

func EncodeChatMessage(m model.ChatMessage) []byte {
	w := NewWriter(128 + len(m.Body.Content.Plain))
	WriteChatMessage(w, m)
	return w.Bytes()
}

func DecodeChatMessage(b []byte) (model.ChatMessage, error) {
	r := NewReader(b)
	m := ReadChatMessage(r)
	if err := r.Done(); err != nil {
		return model.ChatMessage{}, fmt.Errorf("decode chat message: %w", err)
	}
	return m, nil
}
