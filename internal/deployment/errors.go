// Copyright 2026 The AppForge Authors
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

package deployment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/appforge/appforge/internal/recipe"
)

// ErrDeploymentNotFound is returned by repositories when no matching
// deployment exists, or when the match has settled as stopped.
var ErrDeploymentNotFound = errors.New("deployment not found")

// Error codes for the engine's command surface.
const (
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeValidation      = "validation_error"
	CodeQuotaExceeded   = "quota_exceeded"
	CodeRemoteTransient = "remote_transient"
	CodeInternal        = "internal"
)

// Error is the engine's structured error. ValidationError carries field-level
// detail; everything else carries a user-actionable message.
type Error struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  []recipe.FieldError `json:"fields,omitempty"`
}

func (e *Error) Error() string {
	if len(e.Fields) > 0 {
		parts := make([]string, len(e.Fields))
		for i, f := range e.Fields {
			parts[i] = f.Error()
		}
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, strings.Join(parts, "; "))
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a new engine error
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewValidationError wraps field-level schema failures
func NewValidationError(fields []recipe.FieldError) *Error {
	return &Error{
		Code:    CodeValidation,
		Message: "config does not match the recipe schema",
		Fields:  fields,
	}
}

// CodeOf extracts the engine error code, defaulting to internal.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Plain-language failure categories. Raw remote-system error text is never
// shown to end users; it is classified into one of these before surfacing.
const (
	reasonTimeout   = "the service did not become ready in time"
	reasonNetwork   = "a network error occurred while reaching the cluster"
	reasonRegistry  = "the container image could not be pulled"
	reasonQuota     = "the workspace resource quota was exceeded"
	reasonConflict  = "a resource with the same name already exists in the cluster"
	reasonNotReady  = "the service is not ready yet"
	reasonFallback  = "the deployment failed due to an internal cluster error"
)

// ClassifyRemote turns a raw remote-system error into a plain-language
// category suitable for end users. The raw text stays in the logs only.
func ClassifyRemote(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "not ready after"):
		return reasonTimeout
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") || strings.Contains(msg, "network is unreachable"):
		return reasonNetwork
	case strings.Contains(msg, "imagepull") || strings.Contains(msg, "errimage") || strings.Contains(msg, "pull access denied") || strings.Contains(msg, "manifest unknown"):
		return reasonRegistry
	case strings.Contains(msg, "exceeded quota") || strings.Contains(msg, "quota exceeded"):
		return reasonQuota
	case strings.Contains(msg, "already exists"):
		return reasonConflict
	case strings.Contains(msg, "not ready"):
		return reasonNotReady
	default:
		return reasonFallback
	}
}
