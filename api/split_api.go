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

	"github.com/halcyonpay/tako"
	model2 "github.com/halcyonpay/tako/api/model"
	"github.com/halcyonpay/tako/internal/apierror"
	"github.com/halcyonpay/tako/model"
)

// InitiateSplit opens a split payment request and computes each
// participant's share.
func (a Api) InitiateSplit(c *gin.Context) {
	var newSplit model2.InitiateSplit
	if err := c.ShouldBindJSON(&newSplit); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := newSplit.ValidateInitiateSplit(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	total, err := model.ToMinorUnits(newSplit.TotalAmount, newSplit.Currency)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	specs := make([]tako.SplitParticipantSpec, 0, len(newSplit.Participants))
	for _, p := range newSplit.Participants {
		spec := tako.SplitParticipantSpec{CustomerID: p.CustomerID, WalletID: p.WalletID, Percent: p.Percent}
		if !p.Amount.IsZero() {
			amount, err := model.ToMinorUnits(p.Amount, newSplit.Currency)
			if err != nil {
				c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
				return
			}
			spec.Amount = amount
		}
		specs = append(specs, spec)
	}

	service := model.ServiceRef{Type: newSplit.ServiceType, ID: newSplit.ServiceID}
	resp, err := a.engine.InitiateSplit(c.Request.Context(), newSplit.Reference, newSplit.SplitType, newSplit.Currency,
		service, newSplit.InitiatorID, newSplit.MerchantWalletID, total, specs)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (a Api) GetSplit(c *gin.Context) {
	reference, passed := c.Params.Get("reference")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference is required. pass reference in the route /:reference"})
		return
	}

	resp, err := a.engine.GetSplit(c.Request.Context(), reference)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) GetSplitsByInitiator(c *gin.Context) {
	initiatorID, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	limit, offset := pagination(c)
	splits, err := a.engine.GetSplitsByInitiator(c.Request.Context(), initiatorID, limit, offset)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, splits)
}

// PayParticipant settles one participant's share from their wallet into the
// merchant wallet. Paying the last pending share settles the whole split.
func (a Api) PayParticipant(c *gin.Context) {
	reference, _ := c.Params.Get("reference")
	participantID, passed := c.Params.Get("participant_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participant_id is required. pass participant_id in the route /:participant_id"})
		return
	}

	resp, err := a.engine.PayParticipant(c.Request.Context(), reference, participantID)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) DeclineParticipant(c *gin.Context) {
	reference, _ := c.Params.Get("reference")
	participantID, passed := c.Params.Get("participant_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "participant_id is required. pass participant_id in the route /:participant_id"})
		return
	}

	resp, err := a.engine.DeclineParticipant(c.Request.Context(), reference, participantID)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CancelSplit cancels an open split and reverses any shares already paid.
func (a Api) CancelSplit(c *gin.Context) {
	reference, passed := c.Params.Get("reference")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference is required. pass reference in the route /:reference"})
		return
	}

	resp, err := a.engine.CancelSplit(c.Request.Context(), reference)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}
