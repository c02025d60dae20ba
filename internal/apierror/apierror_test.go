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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIErrorMessage(t *testing.T) {
	err := NewAPIError(ErrInsufficientFunds, "wallet cannot cover debit", nil)
	assert.Equal(t, "INSUFFICIENT_FUNDS: wallet cannot cover debit", err.Error())
}

func TestHasCode(t *testing.T) {
	err := NewAPIError(ErrConflict, "stale wallet version", nil)
	assert.True(t, HasCode(err, ErrConflict))
	assert.False(t, HasCode(err, ErrNotFound))

	wrapped := fmt.Errorf("applying transfer: %w", err)
	assert.True(t, HasCode(wrapped, ErrConflict))

	assert.False(t, HasCode(errors.New("plain"), ErrConflict))
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrConflict, http.StatusConflict},
		{ErrInvalidState, http.StatusConflict},
		{ErrDuplicateReference, http.StatusConflict},
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrLimitExceeded, http.StatusBadRequest},
		{ErrInsufficientFunds, http.StatusPaymentRequired},
		{ErrInternalServer, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := NewAPIError(tt.code, "boom", nil)
			assert.Equal(t, tt.want, MapErrorToHTTPStatus(err))
		})
	}

	assert.Equal(t, http.StatusInternalServerError, MapErrorToHTTPStatus(errors.New("not an api error")))
}
