// Package callbacks decodes inline button payloads into typed values.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Kind classifies a decoded callback payload.
type Kind int

const (
	// KindUnknown is an empty or unparsable payload.
	KindUnknown Kind = iota
	// KindAction is a regular button routed by its unique key.
	KindAction
	// KindReturn is a back button carrying a return token.
	KindReturn
)

func (k Kind) String() string {
	switch k {
	case KindAction:
		return "action"
	case KindReturn:
		return "return"
	}
	return "unknown"
}

// ReturnUnique is the unique key of back buttons backed by a return action.
const ReturnUnique = "nav_return"

// Payload is callback data decoded once at the routing boundary.
type Payload struct {
	Kind   Kind
	Unique string
	Data   string
	// Token is set for KindReturn.
	Token string
	// Raw is the callback data exactly as Telegram delivered it.
	Raw string
}

// Decode parses telebot's "\f<unique>|<data>" wire form. Data without the
// leading form feed is treated as a bare unique key.
func Decode(raw string) Payload {
	p := Payload{Raw: raw}
	s := strings.TrimPrefix(raw, "\f")
	if strings.TrimSpace(s) == "" {
		return p
	}
	unique, data, _ := strings.Cut(s, "|")
	p.Unique = strings.TrimSpace(unique)
	p.Data = data
	if p.Unique == "" {
		return p
	}
	if p.Unique == ReturnUnique {
		p.Kind = KindReturn
		p.Token = data
		return p
	}
	p.Kind = KindAction
	return p
}

// DecodeCallback decodes cb. When telebot already split the payload, Unique
// and Data are taken as they are.
func DecodeCallback(cb *tele.Callback) Payload {
	if cb == nil {
		return Payload{}
	}
	if cb.Unique != "" {
		return Decode("\f" + cb.Unique + "|" + cb.Data)
	}
	return Decode(cb.Data)
}

// Encode builds the wire form for unique and data.
func Encode(unique, data string) string {
	if data == "" {
		return "\f" + unique
	}
	return "\f" + unique + "|" + data
}

// ReturnData returns the callback data of a back button bound to token.
func ReturnData(token string) string {
	return Encode(ReturnUnique, token)
}

// IsReturn reports whether p names a return token.
func (p Payload) IsReturn() bool {
	return p.Kind == KindReturn && p.Token != ""
}
