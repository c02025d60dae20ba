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
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/halcyonpay/tako"
	model2 "github.com/halcyonpay/tako/api/model"
	"github.com/halcyonpay/tako/internal/apierror"
	"github.com/halcyonpay/tako/model"
)

// RecordTransfer settles a multi-leg transfer. The caller-supplied reference
// is the idempotency key; replaying a settled reference returns the stored
// result with replayed set.
//
// Responses:
// - 400 Bad Request: If the body fails binding or validation.
// - 402 Payment Required: If a debited wallet cannot cover its leg.
// - 200 OK: The settled transfer.
func (a Api) RecordTransfer(c *gin.Context) {
	var newTransfer model2.RecordTransfer
	if err := c.ShouldBindJSON(&newTransfer); err != nil {
		logrus.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	if err := newTransfer.ValidateRecordTransfer(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	legs, err := newTransfer.ToLegs()
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	service := model.ServiceRef{Type: newTransfer.ServiceType, ID: newTransfer.ServiceID}
	resp, err := a.engine.Transfer(c.Request.Context(), newTransfer.Reference, newTransfer.Kind, newTransfer.Currency, service, legs, newTransfer.MetaData)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetTransfer(c *gin.Context) {
	reference, passed := c.Params.Get("reference")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference is required. pass reference in the route /:reference"})
		return
	}

	resp, err := a.engine.GetTransfer(c.Request.Context(), reference)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ReverseTransfer reverses a settled transfer, fully or partially. A zero or
// missing amount reverses whatever remains refundable.
func (a Api) ReverseTransfer(c *gin.Context) {
	reference, passed := c.Params.Get("reference")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference is required. pass reference in the route /:reference"})
		return
	}

	var body model2.ReverseTransfer
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := tako.ReverseOptions{Reason: body.Reason}
	if !body.Amount.IsZero() {
		// the reversal amount is in the original transfer's currency
		original, err := a.engine.GetTransfer(c.Request.Context(), reference)
		if err != nil {
			c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		minor, err := model.ToMinorUnits(body.Amount, original.Currency)
		if err != nil {
			c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
			return
		}
		opts.Amount = minor
	}

	resp, err := a.engine.Reverse(c.Request.Context(), reference, opts)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetRefunds(c *gin.Context) {
	reference, passed := c.Params.Get("reference")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference is required. pass reference in the route /:reference"})
		return
	}

	refunds, err := a.engine.GetRefunds(c.Request.Context(), reference)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, refunds)
}

// GetTransfersByService lists every transfer settled against one business
// object, e.g. all movements tied to a ride.
func (a Api) GetTransfersByService(c *gin.Context) {
	serviceType, _ := c.Params.Get("type")
	serviceID, _ := c.Params.Get("id")

	limit, offset := pagination(c)
	transfers, err := a.engine.GetTransfersByService(c.Request.Context(), model.ServiceRef{Type: serviceType, ID: serviceID}, limit, offset)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, transfers)
}
