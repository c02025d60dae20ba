/*
Copyright 2025 Halcyon Pay Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrConflict           ErrorCode = "VERSION_CONFLICT"
	ErrBadRequest         ErrorCode = "BAD_REQUEST"
	ErrInvalidInput       ErrorCode = "VALIDATION_ERROR"
	ErrInsufficientFunds  ErrorCode = "INSUFFICIENT_FUNDS"
	ErrDuplicateReference ErrorCode = "DUPLICATE_REFERENCE"
	ErrInvalidState       ErrorCode = "INVALID_STATE_TRANSITION"
	ErrLimitExceeded      ErrorCode = "LIMIT_EXCEEDED"
	ErrInternalServer     ErrorCode = "INTERNAL_SERVER_ERROR"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	if details != nil {
		logrus.Error(details)
	}
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// HasCode reports whether err is an APIError carrying the given code.
func HasCode(err error, code ErrorCode) bool {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

func MapErrorToHTTPStatus(err error) int {
	var apiErr APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case ErrNotFound:
			return http.StatusNotFound
		case ErrConflict, ErrDuplicateReference, ErrInvalidState:
			return http.StatusConflict
		case ErrBadRequest, ErrInvalidInput, ErrLimitExceeded:
			return http.StatusBadRequest
		case ErrInsufficientFunds:
			return http.StatusPaymentRequired
		case ErrInternalServer:
			return http.StatusInternalServerError
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
