package mongosrc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/docsql/internal/ir"
)

// ParseExtJSON reads documents in MongoDB Extended JSON, canonical or
// relaxed. The input is a JSON array of documents or a sequence of
// documents such as JSON Lines.
func ParseExtJSON(data []byte) ([]ir.Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var values []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &values); err != nil {
			return nil, fmt.Errorf("parse document array: %w", err)
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		for {
			var v json.RawMessage
			err := dec.Decode(&v)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("parse document %d: %w", len(values)+1, err)
			}
			values = append(values, v)
		}
	}

	docs := make([]ir.Document, 0, len(values))
	for i, v := range values {
		if t := bytes.TrimSpace(v); len(t) == 0 || t[0] != '{' {
			return nil, fmt.Errorf("document %d: not a JSON object", i+1)
		}
		var raw bson.Raw
		if err := bson.UnmarshalExtJSON(v, false, &raw); err != nil {
			return nil, fmt.Errorf("document %d: %w", i+1, err)
		}
		doc, err := FromRaw(raw)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i+1, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// MarshalExtJSON renders a document as relaxed Extended JSON.
func MarshalExtJSON(doc ir.Document) ([]byte, error) {
	return bson.MarshalExtJSON(toD(doc), false, false)
}
