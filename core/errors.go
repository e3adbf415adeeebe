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

package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidThread indicates a Thread failed validation.
	ErrInvalidThread = errors.New("invalid thread")

	// ErrInvalidMessage indicates a Message failed validation.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrInvalidResource indicates a Resource failed validation.
	ErrInvalidResource = errors.New("invalid resource")

	// ErrInvalidScore indicates a Score failed validation.
	ErrInvalidScore = errors.New("invalid score")

	// ErrInvalidEval indicates an Eval failed validation.
	ErrInvalidEval = errors.New("invalid eval")

	// ErrInvalidSpan indicates an AISpan failed validation.
	ErrInvalidSpan = errors.New("invalid span")

	// ErrInvalidWorkflowKey indicates an empty workflow name or run id.
	ErrInvalidWorkflowKey = errors.New("invalid workflow key")

	// ErrEmptyID indicates a required identifier is empty.
	ErrEmptyID = errors.New("id cannot be empty")

	// ErrInvalidRole indicates an unknown message role.
	ErrInvalidRole = errors.New("invalid role")

	// ErrMissingField indicates a required field is empty.
	ErrMissingField = errors.New("required field is empty")
)
