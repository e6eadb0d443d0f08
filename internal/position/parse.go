package position

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoData is returned for an empty body, a body that is not a JSON
// object, or an empty object.
var ErrNoData = errors.New("no data provided")

// ErrInvalidDocument is matched by every field validation error.
var ErrInvalidDocument = errors.New("invalid position document")

// FieldError reports a field with the wrong JSON type.
type FieldError struct {
	Field string
	Want  string // "an integer", "a number", "a string"
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s must be %s", e.Field, e.Want)
}

func (e *FieldError) Is(target error) bool {
	return target == ErrInvalidDocument
}

const defaultDeviceID = "unknown"

// ParsePlayback validates a playback update body. lastPlayedIndex is
// required; any client timestamp is ignored.
func ParsePlayback(body []byte) (Playback, error) {
	fields, err := parseObject(body)
	if err != nil {
		return Playback{}, err
	}

	raw, ok := fields["lastPlayedIndex"].(json.Number)
	if !ok {
		return Playback{}, &FieldError{Field: "lastPlayedIndex", Want: "an integer"}
	}
	index, err := raw.Int64()
	if err != nil {
		return Playback{}, &FieldError{Field: "lastPlayedIndex", Want: "an integer"}
	}

	p := Playback{LastPlayedIndex: index}
	if p.NotePath, err = stringField(fields, "notePath", ""); err != nil {
		return Playback{}, err
	}
	if p.NoteTitle, err = stringField(fields, "noteTitle", ""); err != nil {
		return Playback{}, err
	}
	if p.DeviceID, err = stringField(fields, "deviceId", defaultDeviceID); err != nil {
		return Playback{}, err
	}
	return p, nil
}

// ParseScroll validates a scroll update body. scrollTop defaults to 0 and is
// truncated to a whole number of pixels.
func ParseScroll(body []byte) (Scroll, error) {
	fields, err := parseObject(body)
	if err != nil {
		return Scroll{}, err
	}

	var s Scroll
	if v, present := fields["scrollTop"]; present {
		raw, ok := v.(json.Number)
		if !ok {
			return Scroll{}, &FieldError{Field: "scrollTop", Want: "a number"}
		}
		top, err := raw.Float64()
		if err != nil {
			return Scroll{}, &FieldError{Field: "scrollTop", Want: "a number"}
		}
		s.ScrollTop = int64(top)
	}

	if s.NotePath, err = stringField(fields, "notePath", ""); err != nil {
		return Scroll{}, err
	}
	if s.DeviceID, err = stringField(fields, "deviceId", defaultDeviceID); err != nil {
		return Scroll{}, err
	}
	return s, nil
}

func parseObject(body []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrNoData
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil || len(fields) == 0 {
		return nil, ErrNoData
	}
	return fields, nil
}

// stringField returns fields[name], or def when it is absent or null.
func stringField(fields map[string]any, name, def string) (string, error) {
	v, present := fields[name]
	if !present || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &FieldError{Field: name, Want: "a string"}
	}
	return s, nil
}
