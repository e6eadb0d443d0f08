// Package position stores the shared playback and scroll positions and
// pushes every change to live viewers.
package position

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind names one of the two position documents. It doubles as the
// broadcast channel name.
type Kind string

const (
	KindPlayback Kind = "playback"
	KindScroll   Kind = "scroll"
)

// Kinds lists every document kind.
var Kinds = []Kind{KindPlayback, KindScroll}

// File returns the document's file name inside the data directory.
func (k Kind) File() string {
	return string(k) + "-position.json"
}

// Channel returns the broadcast channel for the kind.
func (k Kind) Channel() string {
	return string(k)
}

// Document is a position record. Playback and Scroll are the only
// implementations.
type Document interface {
	Kind() Kind
	Stamp() int64
	withStamp(ms int64) Document
}

// Playback is the last sentence played and where it was played.
type Playback struct {
	LastPlayedIndex int64  `json:"lastPlayedIndex"`
	NotePath        string `json:"notePath"`
	NoteTitle       string `json:"noteTitle"`
	Timestamp       int64  `json:"timestamp"` // unix milliseconds, server clock
	DeviceID        string `json:"deviceId"`
}

func (p Playback) Kind() Kind   { return KindPlayback }
func (p Playback) Stamp() int64 { return p.Timestamp }

func (p Playback) withStamp(ms int64) Document {
	p.Timestamp = ms
	return p
}

// Scroll is the reader's scroll offset in a note.
type Scroll struct {
	ScrollTop int64  `json:"scrollTop"`
	NotePath  string `json:"notePath"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds, server clock
	DeviceID  string `json:"deviceId"`
}

func (s Scroll) Kind() Kind   { return KindScroll }
func (s Scroll) Stamp() int64 { return s.Timestamp }

func (s Scroll) withStamp(ms int64) Document {
	s.Timestamp = ms
	return s
}

// Default returns the document served before anything was stored.
func Default(kind Kind) Document {
	if kind == KindScroll {
		return Scroll{}
	}
	return Playback{LastPlayedIndex: -1}
}

func decode(kind Kind, data []byte) (Document, error) {
	switch kind {
	case KindPlayback:
		var p Playback
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case KindScroll:
		var s Scroll
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown position kind %q", kind)
	}
}

// Encode renders doc as single-line JSON, suitable for an event frame.
func Encode(doc Document) ([]byte, error) {
	return marshal(doc, "")
}

func marshal(doc Document, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
