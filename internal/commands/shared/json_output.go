// Copyright 2025 Tom Barlow
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

package shared

import (
	"encoding/json"
	"errors"
	"io"
)

// JSONResponse is the base envelope for all JSON output
type JSONResponse struct {
	Version string `json:"@version"`
	Command string `json:"command"`
	Success bool   `json:"success"`
}

// NewJSONResponse returns a successful envelope for command.
func NewJSONResponse(command string) JSONResponse {
	return JSONResponse{Version: "1.0", Command: command, Success: true}
}

// JSONError represents a structured error
type JSONError struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// EmitJSON writes response as indented JSON.
func EmitJSON(w io.Writer, response any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// EmitJSONError writes a failed envelope describing err.
func EmitJSONError(w io.Writer, command string, err error) error {
	type errorResponse struct {
		JSONResponse
		Error JSONError `json:"error"`
	}

	typ := "error"
	var classifier interface{ ErrorType() string }
	if errors.As(err, &classifier) {
		typ = classifier.ErrorType()
	}

	return EmitJSON(w, errorResponse{
		JSONResponse: JSONResponse{Version: "1.0", Command: command, Success: false},
		Error: JSONError{
			Type:       typ,
			Message:    err.Error(),
			Suggestion: Suggestion(err),
		},
	})
}
