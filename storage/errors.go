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
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrRecordDataUndefined indicates an attempt to decode a document that carries no data.
	ErrRecordDataUndefined = errors.New("record data is undefined")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrInvalidQuery indicates invalid query parameters.
	ErrInvalidQuery = errors.New("invalid query parameters")

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrTooManyValues indicates a single backend call was given more values than it accepts.
	ErrTooManyValues = errors.New("too many values for a single call")

	// ErrTruncatedData indicates that data was truncated during reading.
	ErrTruncatedData = errors.New("truncated data")
)

// NotFoundError reports that an update targeted a record that does not exist.
// It matches ErrNotFound with errors.Is.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// BatchError reports a failed window of a chunked batch write.
// Windows before Window were committed and stay applied; nothing after it was attempted.
type BatchError struct {
	// Window is the zero-based index of the window that failed.
	Window int
	// Committed is the number of operations durably applied before the failure.
	Committed int
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch window %d failed after %d committed operations: %v", e.Window, e.Committed, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
