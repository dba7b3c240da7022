package codec

import (
	"fmt"

	"secure_chat/internal/model"
)

type PacketType byte

const (
	// client -> server
	PacketChat PacketType = iota + 1
	PacketAck

	// server -> client
	PacketMessage
	PacketHeader
)

func (t PacketType) String() string {
	switch t {
	case PacketChat:
		return "chat"
	case PacketAck:
		return "ack"
	case PacketMessage:
		return "message"
	case PacketHeader:
		return "header"
	default:
		return fmt.Sprintf("packet(%d)", byte(t))
	}
}

type (
	// Packet is one websocket frame. Exactly one payload field is set, matching Type.
	Packet struct {
		Type    PacketType
		Chat    *ChatPacket
		Ack     *model.LastSeenUpdate
		Message *model.ChatMessage
		Header  *model.HeaderNotice
	}

	// ChatPacket carries a signed message and the sender's acknowledgment of what it has seen.
	ChatPacket struct {
		Message model.ChatMessage
		Update  model.LastSeenUpdate
	}
)

func NewChatPacket(msg model.ChatMessage, update model.LastSeenUpdate) Packet {
	return Packet{Type: PacketChat, Chat: &ChatPacket{Message: msg, Update: update}}
}

func NewAckPacket(update model.LastSeenUpdate) Packet {
	return Packet{Type: PacketAck, Ack: &update}
}

func NewMessagePacket(msg model.ChatMessage) Packet {
	return Packet{Type: PacketMessage, Message: &msg}
}

func NewHeaderPacket(n model.HeaderNotice) Packet {
	return Packet{Type: PacketHeader, Header: &n}
}

func EncodePacket(p Packet) ([]byte, error) {
	w := NewWriter(256)
	_ = w.WriteByte(byte(p.Type))

	switch {
	case p.Type == PacketChat && p.Chat != nil:
		WriteChatMessage(w, p.Chat.Message)
		WriteLastSeenUpdate(w, p.Chat.Update)
	case p.Type == PacketAck && p.Ack != nil:
		WriteLastSeenUpdate(w, *p.Ack)
	case p.Type == PacketMessage && p.Message != nil:
		WriteChatMessage(w, *p.Message)
	case p.Type == PacketHeader && p.Header != nil:
		WriteHeaderNotice(w, *p.Header)
	default:
		return nil, fmt.Errorf("encode %s: missing payload", p.Type)
	}
	return w.Bytes(), nil
}

func DecodePacket(b []byte) (Packet, error) {
	r := NewReader(b)
	t, err := r.ReadByte()
	if err != nil {
		return Packet{}, fmt.Errorf("decode packet type: %w", err)
	}

	p := Packet{Type: PacketType(t)}
	switch p.Type {
	case PacketChat:
		c := ChatPacket{Message: ReadChatMessage(r)}
		c.Update = ReadLastSeenUpdate(r)
		p.Chat = &c
	case PacketAck:
		u := ReadLastSeenUpdate(r)
		p.Ack = &u
	case PacketMessage:
		m := ReadChatMessage(r)
		p.Message = &m
	case PacketHeader:
		n := ReadHeaderNotice(r)
		p.Header = &n
	default:
		return Packet{}, fmt.Errorf("decode %s: %w: unknown type", p.Type, ErrMalformed)
	}

	if err := r.Done(); err != nil {
		return Packet{}, fmt.Errorf("decode %s: %w", p.Type, err)
	}
	return p, nil
}
