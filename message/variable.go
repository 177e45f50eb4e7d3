package message

import (
	"game-rpc/codec"
	"game-rpc/protocol"
)

// DefineVar announces a replicated variable and its current value.
type DefineVar struct {
	ServerName string
	ClientName string
	Default    string
	Current    string
}

func (*DefineVar) Type() protocol.MsgType { return protocol.MsgTypeDefineVar }

func (m *DefineVar) MarshalTo(s codec.Sink) error {
	return writeStrings(s, m.ServerName, m.ClientName, m.Default, m.Current)
}

func (m *DefineVar) UnmarshalFrom(s codec.Source) error {
	return readStrings(s, &m.ServerName, &m.ClientName, &m.Default, &m.Current)
}

// RequestChange asks the server to set a replicated variable.
type RequestChange struct {
	ServerName string
	Value      string
}

func (*RequestChange) Type() protocol.MsgType { return protocol.MsgTypeRequestChange }

func (m *RequestChange) MarshalTo(s codec.Sink) error {
	return writeStrings(s, m.ServerName, m.Value)
}

func (m *RequestChange) UnmarshalFrom(s codec.Source) error {
	return readStrings(s, &m.ServerName, &m.Value)
}

// Update carries an authoritative value change. A denied request is answered
// with the same shape and Old == New, telling the client to snap back.
type Update struct {
	ClientName string
	Old        string
	New        string
}

func (*Update) Type() protocol.MsgType { return protocol.MsgTypeUpdate }

func (m *Update) MarshalTo(s codec.Sink) error {
	return writeStrings(s, m.ClientName, m.Old, m.New)
}

func (m *Update) UnmarshalFrom(s codec.Source) error {
	return readStrings(s, &m.ClientName, &m.Old, &m.New)
}

// Notice is a line of text shown to the player.
type Notice struct {
	Text string
}

func (*Notice) Type() protocol.MsgType { return protocol.MsgTypeNotice }

func (m *Notice) MarshalTo(s codec.Sink) error {
	return writeStrings(s, m.Text)
}

func (m *Notice) UnmarshalFrom(s codec.Source) error {
	return readStrings(s, &m.Text)
}

// Ready is sent once by a client after it has finished loading.
type Ready struct{}

func (*Ready) Type() protocol.MsgType { return protocol.MsgTypeReady }

func (*Ready) MarshalTo(codec.Sink) error { return nil }

func (*Ready) UnmarshalFrom(codec.Source) error { return nil }
