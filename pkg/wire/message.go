// Package wire implements the newline-delimited JSON framing shared by the
// fitness server and client. One message is one JSON object serialized on a
// single line, terminated by '\n'.
package wire

const (
	FieldAction  = "action"
	FieldSuccess = "success"
	FieldMessage = "message"
	FieldError   = "error"
)

// Message is a single framed protocol message. Every request carries an
// "action" field; responses carry "action", "success" and, on failure, a
// human-readable "message".
type Message map[string]any

// Action returns the message's action string, or "" when absent or not a
// string.
func (m Message) Action() string {
	s, _ := m[FieldAction].(string)
	return s
}

// String returns the string value under key, or "" when absent or of another
// type. Handlers are deliberately permissive about missing fields: the
// persistence layer reports the resulting domain failure.
func (m Message) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// Bool returns the boolean value under key.
func (m Message) Bool(key string) bool {
	b, _ := m[key].(bool)
	return b
}

// Int returns the numeric value under key as int64. JSON numbers decode as
// float64, so both representations are accepted.
func (m Message) Int(key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}
