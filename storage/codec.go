// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
)

var timeType = reflect.TypeFor[time.Time]()

// timeLayouts are tried in order when a stored timestamp is a string.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Encode converts a record into document fields.
//
// Primitive and time.Time fields pass through unchanged. Nested maps, slices
// and structs are round-tripped through JSON so only plain values reach the
// backend. Nil pointers, maps, slices and interfaces become an explicit nil
// rather than being omitted, and so does a zero time.Time.
//
// record must be a struct (or pointer to one) with json tags, or a map[string]any.
func Encode(record any) (map[string]any, error) {
	v := reflect.ValueOf(record)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, fmt.Errorf("%w: nil record", ErrSerializationFailed)
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: map keys must be strings", ErrSerializationFailed)
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			value, err := encodeValue(iter.Value())
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", iter.Key().String(), err)
			}
			out[iter.Key().String()] = value
		}
		return out, nil
	case reflect.Struct:
		fields := fieldsOf(v.Type())
		out := make(map[string]any, len(fields))
		for _, f := range fields {
			value, err := encodeValue(v.Field(f.index))
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.name, err)
			}
			out[f.name] = value
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unsupported record kind %s", ErrSerializationFailed, v.Kind())
}

// EncodePartial is Encode without the nil fields, for merge updates
// where an unset field must leave the stored value alone.
func EncodePartial(record any) (map[string]any, error) {
	fields, err := Encode(record)
	if err != nil {
		return nil, err
	}
	for name, value := range fields {
		if value == nil {
			delete(fields, name)
		}
	}
	return fields, nil
}

func encodeValue(v reflect.Value) (any, error) {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, nil
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return nil, nil
	}

	if v.Type() == timeType {
		t := v.Interface().(time.Time)
		if t.IsZero() {
			return nil, nil
		}
		return t, nil
	}

	switch v.Kind() {
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.String:
		return v.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(v.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.Map, reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
	}

	b, err := json.Marshal(v.Interface())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	var plain any
	if err := json.Unmarshal(b, &plain); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return plain, nil
}

// Decode converts a stored document into a record of type T.
//
// Values of time-typed fields are normalized first: native timestamps are kept,
// strings and unix-millisecond numbers are parsed, and anything else is
// dropped so the field decodes to the zero time.
// Returns ErrRecordDataUndefined if doc carries no data.
func Decode[T any](doc *Document) (*T, error) {
	if doc == nil || len(doc.Data) == 0 {
		return nil, ErrRecordDataUndefined
	}

	data := make(map[string]any, len(doc.Data))
	timeFields := timeFieldsOf(reflect.TypeFor[T]())
	for name, value := range doc.Data {
		if _, ok := timeFields[name]; ok {
			if t, ok := NormalizeTime(value); ok {
				data[name] = t
			}
			continue
		}
		data[name] = value
	}

	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	var record T
	if err := json.Unmarshal(b, &record); err != nil {
		return nil, fmt.Errorf("%w: document %s: %w", ErrSerializationFailed, doc.ID, err)
	}
	return &record, nil
}

// NormalizeTime converts a stored timestamp into a time.Time.
// It accepts native times, RFC3339-like strings and unix-millisecond numbers.
func NormalizeTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, !v.IsZero()
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, !v.IsZero()
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, true
			}
		}
	case json.Number:
		if ms, err := v.Int64(); err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
	case int64:
		return time.UnixMilli(v).UTC(), true
	case int:
		return time.UnixMilli(int64(v)).UTC(), true
	case float64:
		return time.UnixMilli(int64(v)).UTC(), true
	}
	return time.Time{}, false
}

type fieldInfo struct {
	index  int
	name   string
	isTime bool
}

var fieldCache sync.Map // reflect.Type -> []fieldInfo

// fieldsOf lists the exported, json-named fields of a struct type.
func fieldsOf(t reflect.Type) []fieldInfo {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.([]fieldInfo)
	}
	var fields []fieldInfo
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := sf.Name
		if tag, ok := sf.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		ft := sf.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		fields = append(fields, fieldInfo{index: i, name: name, isTime: ft == timeType})
	}
	fieldCache.Store(t, fields)
	return fields
}

// timeFieldsOf returns the json names of time-typed fields of t, if t is a struct.
func timeFieldsOf(t reflect.Type) map[string]struct{} {
	if t.Kind() != reflect.Struct {
		return nil
	}
	names := make(map[string]struct{})
	for _, f := range fieldsOf(t) {
		if f.isTime {
			names[f.name] = struct{}{}
		}
	}
	return names
}

// hasField reports whether struct type t has a field stored under name.
func hasField(t reflect.Type, name string) bool {
	if t.Kind() != reflect.Struct {
		return false
	}
	for _, f := range fieldsOf(t) {
		if f.name == name {
			return true
		}
	}
	return false
}
