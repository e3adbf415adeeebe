package badger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/agentstore/storage"
)

// envelope is the stored form of a document: backend timestamps plus the
// JSON-encoded fields. Timestamps are unix microseconds.
type envelope struct {
	CreateTime int64
	UpdateTime int64
	Data       []byte
}

// marshalEnvelope serializes an envelope to bytes.
func marshalEnvelope(e envelope) []byte {
	size := varint.Int64.Size(e.CreateTime) +
		varint.Int64.Size(e.UpdateTime) +
		ord.ByteSlice.Size(e.Data)
	buf := make([]byte, size)
	n := varint.Int64.Marshal(e.CreateTime, buf)
	n += varint.Int64.Marshal(e.UpdateTime, buf[n:])
	ord.ByteSlice.Marshal(e.Data, buf[n:])
	return buf
}

// unmarshalEnvelope deserializes an envelope from bytes.
func unmarshalEnvelope(bs []byte) (envelope, error) {
	var e envelope
	createTime, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return e, fmt.Errorf("%w: create time: %w", storage.ErrTruncatedData, err)
	}
	updateTime, m, err := varint.Int64.Unmarshal(bs[n:])
	if err != nil {
		return e, fmt.Errorf("%w: update time: %w", storage.ErrTruncatedData, err)
	}
	data, _, err := ord.ByteSlice.Unmarshal(bs[n+m:])
	if err != nil {
		return e, fmt.Errorf("%w: data: %w", storage.ErrTruncatedData, err)
	}
	e.CreateTime = createTime
	e.UpdateTime = updateTime
	e.Data = data
	return e, nil
}

// timeTag marks an encoded timestamp inside the JSON payload so that
// times decode back to time.Time rather than plain strings.
const timeTag = "$time"

// encodeDocument builds the stored form of document fields.
func encodeDocument(data map[string]any, createTime, updateTime time.Time) ([]byte, error) {
	payload, err := json.Marshal(toStored(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	return marshalEnvelope(envelope{
		CreateTime: createTime.UnixMicro(),
		UpdateTime: updateTime.UnixMicro(),
		Data:       payload,
	}), nil
}

// decodeDocument rebuilds a document from its stored form. Integers decode
// as int64 and tagged timestamps as time.Time, matching what Firestore
// returns for the same fields.
func decodeDocument(id string, value []byte) (*storage.Document, error) {
	e, err := unmarshalEnvelope(value)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(e.Data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	var data map[string]any
	if raw != nil {
		data = fromStored(raw).(map[string]any)
	}
	return &storage.Document{
		ID:         id,
		Data:       data,
		CreateTime: time.UnixMicro(e.CreateTime).UTC(),
		UpdateTime: time.UnixMicro(e.UpdateTime).UTC(),
	}, nil
}

func toStored(v any) any {
	switch x := v.(type) {
	case time.Time:
		return map[string]any{timeTag: x.UTC().Format(time.RFC3339Nano)}
	case *time.Time:
		if x == nil {
			return nil
		}
		return toStored(*x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = toStored(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = toStored(item)
		}
		return out
	}
	return v
}

func fromStored(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		if s, ok := x[timeTag].(string); ok && len(x) == 1 {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return t
			}
		}
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = fromStored(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = fromStored(item)
		}
		return out
	}
	return v
}
