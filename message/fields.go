package message

import (
	"encoding/json"
	"fmt"

	"github.com/poiesic/ragrelay/core"
)

// Log entry field names.
const (
	FieldType      = "type"
	FieldData      = "data"
	FieldSessionID = "session_id"
)

// ToFields flattens msg into message log entry fields.
func ToFields(msg Message) map[string]string {
	data := string(msg.Data)
	if data == "" {
		data = "{}"
	}
	return map[string]string{
		FieldType:      string(msg.Type),
		FieldData:      data,
		FieldSessionID: msg.SessionID,
	}
}

// FromFields rebuilds a message from log entry fields.
// A missing type is InvalidInput; missing data decodes as an empty object.
func FromFields(fields map[string]string) (Message, error) {
	t, ok := fields[FieldType]
	if !ok || t == "" {
		return Message{SessionID: fields[FieldSessionID]}, fmt.Errorf("%w: entry has no message type", core.ErrInvalidInput)
	}

	msg := Message{Type: Type(t), SessionID: fields[FieldSessionID]}
	if data := fields[FieldData]; data != "" {
		if !json.Valid([]byte(data)) {
			return msg, fmt.Errorf("%w: entry data is not valid JSON", core.ErrInvalidInput)
		}
		msg.Data = json.RawMessage(data)
	}
	return msg, nil
}
