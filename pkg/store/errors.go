// Copyright 2025 The RAGSEARCH Authors
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

package store

import "fmt"

// ErrorKind classifies store failures.
type ErrorKind string

const (
	AlreadyExists ErrorKind = "already_exists"
	NotFound      ErrorKind = "not_found"
	InvalidName   ErrorKind = "invalid_name"
	DimMismatch   ErrorKind = "dimension_mismatch"
)

// StoreError represents a store operation failure.
type StoreError struct {
	Kind       ErrorKind
	Collection string
	Message    string
	Err        error
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("[%s]", e.Kind)
	if e.Collection != "" {
		msg += fmt.Sprintf(" collection %q", e.Collection)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a StoreError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	se, ok := err.(*StoreError)
	return ok && se.Kind == kind
}

// NewAlreadyExistsError reports a taken collection name.
func NewAlreadyExistsError(name string) *StoreError {
	return &StoreError{Kind: AlreadyExists, Collection: name}
}

// NewNotFoundError reports an unknown collection.
func NewNotFoundError(name string) *StoreError {
	return &StoreError{Kind: NotFound, Collection: name}
}

// NewInvalidNameError reports a name violating the naming rule.
func NewInvalidNameError(name string) *StoreError {
	return &StoreError{Kind: InvalidName, Collection: name, Message: NamingRule}
}

// NewDimMismatchError reports a vector of the wrong length.
func NewDimMismatchError(got, want int) *StoreError {
	return &StoreError{Kind: DimMismatch, Message: fmt.Sprintf("got %d, want %d", got, want)}
}
