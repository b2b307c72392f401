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

package extract

import "fmt"

// ErrorKind classifies extraction failures so the HTTP layer can map them
// to status codes.
type ErrorKind string

const (
	UnsupportedFormat ErrorKind = "unsupported_format"
	NoTextExtracted   ErrorKind = "no_text_extracted"
	DecodeFailure     ErrorKind = "decode_failure"
	CorruptFile       ErrorKind = "corrupt_file"
)

// ExtractionError represents a failure to extract text from a document.
type ExtractionError struct {
	Kind     ErrorKind
	Filename string
	Err      error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Filename)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// NewUnsupportedFormatError reports a file extension no extractor handles.
func NewUnsupportedFormatError(filename string) *ExtractionError {
	return &ExtractionError{Kind: UnsupportedFormat, Filename: filename}
}

// NewNoTextError reports a document that yielded no text.
func NewNoTextError(filename string) *ExtractionError {
	return &ExtractionError{Kind: NoTextExtracted, Filename: filename}
}

// NewDecodeError reports bytes that failed both UTF-8 and the CP949
// fallback.
func NewDecodeError(filename string, err error) *ExtractionError {
	return &ExtractionError{Kind: DecodeFailure, Filename: filename, Err: err}
}

// NewCorruptFileError reports a file its format library could not open.
func NewCorruptFileError(filename string, err error) *ExtractionError {
	return &ExtractionError{Kind: CorruptFile, Filename: filename, Err: err}
}
