package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/docsync/internal/client/models"
	"github.com/dmitrijs2005/docsync/internal/common"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// EncodeDocument renders records as a JSON array indented by two spaces,
// with non-ASCII text and HTML characters written literally. The output is
// deterministic for a given input and has no trailing newline.
func EncodeDocument(records []models.Record) ([]byte, error) {
	if records == nil {
		records = []models.Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// DecodeDocument parses document text into records. Malformed JSON is
// returned as a plain error; well-formed JSON that is not an array of
// record objects is a *common.ShapeError.
func DecodeDocument(data []byte) ([]models.Record, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !json.Valid(data) {
		return nil, fmt.Errorf("decode document: invalid JSON (%d bytes)", len(data))
	}

	if k := kindOf(data); k != "array" {
		return nil, &common.ShapeError{Kind: k}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	records := make([]models.Record, len(items))
	for i, item := range items {
		if k := kindOf(item); k != "object" {
			return nil, &common.ShapeError{Kind: fmt.Sprintf("array with a %s at index %d", k, i)}
		}
		if err := json.Unmarshal(item, &records[i]); err != nil {
			return nil, &common.ShapeError{Kind: fmt.Sprintf("malformed record at index %d (%v)", i, err)}
		}
	}
	return records, nil
}

func kindOf(data []byte) string {
	data = bytes.TrimLeft(data, " \t\r\n")
	if len(data) == 0 {
		return "nothing"
	}
	switch data[0] {
	case '[':
		return "array"
	case '{':
		return "object"
	case '"':
		return "string"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}
