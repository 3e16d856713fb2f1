package inspector

import (
	"bytes"
	"encoding/json"

	"github.com/felixgeelhaar/agent-fsm/domain/inspector"
)

// JSONFormatter writes indented JSON. Message text is not HTML-escaped, so
// replies containing <, > or & read as typed.
type JSONFormatter struct {
	indent string
}

// NewJSONFormatter creates a JSON formatter indenting with two spaces.
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{indent: "  "}
}

// Format encodes data without a trailing newline.
func (f *JSONFormatter) Format(data any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", f.indent)
	if err := enc.Encode(data); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// FormatType returns the format type.
func (f *JSONFormatter) FormatType() inspector.ExportFormat {
	return inspector.FormatJSON
}

var _ inspector.Formatter = (*JSONFormatter)(nil)
