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

	model2 "github.com/halcyonpay/tako/api/model"
	"github.com/halcyonpay/tako/internal/apierror"
	"github.com/halcyonpay/tako/model"
)

// AllocateTip splits a tip from the payer across its recipients and settles
// it in one movement.
func (a Api) AllocateTip(c *gin.Context) {
	var newTip model2.AllocateTip
	if err := c.ShouldBindJSON(&newTip); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := newTip.ValidateAllocateTip(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	amount, err := model.ToMinorUnits(newTip.Amount, newTip.Currency)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	service := model.ServiceRef{Type: newTip.ServiceType, ID: newTip.ServiceID}
	resp, err := a.engine.AllocateTip(c.Request.Context(), newTip.Reference, newTip.Currency, service, newTip.PayerWalletID, amount, newTip.ToRecipients())
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (a Api) GetTip(c *gin.Context) {
	reference, passed := c.Params.Get("reference")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference is required. pass reference in the route /:reference"})
		return
	}

	resp, err := a.engine.GetTip(c.Request.Context(), reference)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetTipsByRecipient(c *gin.Context) {
	recipientID, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	limit, offset := pagination(c)
	tips, err := a.engine.GetTipsByRecipient(c.Request.Context(), recipientID, limit, offset)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, tips)
}

// DisputeTip opens a dispute on an allocated tip.
func (a Api) DisputeTip(c *gin.Context) {
	reference, passed := c.Params.Get("reference")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference is required. pass reference in the route /:reference"})
		return
	}

	resp, err := a.engine.DisputeTip(c.Request.Context(), reference)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// ResolveTipDispute closes a pending dispute. Confirming claws the tip back
// to the payer; ignoring leaves the shares where they are.
func (a Api) ResolveTipDispute(c *gin.Context) {
	reference, passed := c.Params.Get("reference")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference is required. pass reference in the route /:reference"})
		return
	}

	var body struct {
		Confirm bool `json:"confirm"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := a.engine.ResolveTipDispute(c.Request.Context(), reference, body.Confirm)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}
