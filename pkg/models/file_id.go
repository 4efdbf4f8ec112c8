package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// FileID is a typed ID for stored blobs.
//
// Unlike a fixed-table record id, the table a file record lives in depends on
// the namespace it was stored under, so FileID carries only the uuid. The
// SurrealDB store builds the full RecordID from the namespace; CBOR
// unmarshaling accepts both a plain string and a tagged RecordID so values
// read back from either representation round-trip.
type FileID struct {
	uuid uuid.UUID
}

func NewFileID() FileID {
	return FileID{uuid: uuid.New()}
}

func ParseFileID(s string) (FileID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return FileID{}, fmt.Errorf("invalid file ID: %w", err)
	}
	return FileID{uuid: id}, nil
}

func (f FileID) UUID() uuid.UUID { return f.uuid }
func (f FileID) String() string  { return f.uuid.String() }
func (f FileID) IsZero() bool    { return f.uuid == uuid.Nil }

func (f FileID) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.uuid.String())
}

func (f *FileID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	f.uuid = id
	return nil
}

func (f FileID) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(f.uuid.String())
}

func (f *FileID) UnmarshalCBOR(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty CBOR data")
	}

	// SurrealDB encodes record ids as CBOR tag 8 with [table, id] content;
	// values written as plain strings come back as strings.
	if data[0]>>5 == 6 {
		var tag cbor.Tag
		if err := cbor.Unmarshal(data, &tag); err != nil {
			return err
		}
		if tag.Number != 8 {
			return fmt.Errorf("expected RecordID tag (8), got %d", tag.Number)
		}
		arr, ok := tag.Content.([]any)
		if !ok || len(arr) != 2 {
			return fmt.Errorf("invalid RecordID format: expected [table, id] array")
		}
		idStr, ok := arr[1].(string)
		if !ok {
			return fmt.Errorf("invalid RecordID format: ID must be string")
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return fmt.Errorf("invalid UUID in RecordID: %w", err)
		}
		f.uuid = id
		return nil
	}

	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return err
	}
	f.uuid = id
	return nil
}

func (f FileID) Value() (driver.Value, error) {
	if f.IsZero() {
		return nil, nil
	}
	return f.uuid.String(), nil
}

func (f *FileID) Scan(value any) error {
	if value == nil {
		f.uuid = uuid.Nil
		return nil
	}
	switch v := value.(type) {
	case string:
		id, err := uuid.Parse(v)
		if err != nil {
			return err
		}
		f.uuid = id
	case []byte:
		id, err := uuid.ParseBytes(v)
		if err != nil {
			return err
		}
		f.uuid = id
	default:
		return fmt.Errorf("cannot scan type %T into FileID", value)
	}
	return nil
}

func (FileID) GormDataType() string { return "uuid" }
