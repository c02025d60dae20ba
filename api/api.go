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
	"github.com/gin-gonic/gin"

	"github.com/halcyonpay/tako"
	"github.com/halcyonpay/tako/api/middleware"
	"github.com/halcyonpay/tako/config"
)

type Api struct {
	engine *tako.Tako
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router

	router.POST("/wallets", a.CreateWallet)
	router.GET("/wallets", a.GetAllWallets)
	router.GET("/wallets/:id", a.GetWallet)
	router.GET("/wallets/:id/history", a.GetWalletHistory)
	router.PATCH("/wallets/:id/metadata", a.UpdateWalletMetadata)

	router.POST("/transfers", a.RecordTransfer)
	router.GET("/transfers/:reference", a.GetTransfer)
	router.POST("/transfers/:reference/reverse", a.ReverseTransfer)
	router.GET("/transfers/:reference/refunds", a.GetRefunds)
	router.GET("/services/:type/:id/transfers", a.GetTransfersByService)

	router.POST("/tips", a.AllocateTip)
	router.GET("/tips/:reference", a.GetTip)
	router.POST("/tips/:reference/dispute", a.DisputeTip)
	router.POST("/tips/:reference/dispute/resolve", a.ResolveTipDispute)
	router.GET("/recipients/:id/tips", a.GetTipsByRecipient)

	router.POST("/splits", a.InitiateSplit)
	router.GET("/splits/:reference", a.GetSplit)
	router.POST("/splits/:reference/participants/:participant_id/pay", a.PayParticipant)
	router.POST("/splits/:reference/participants/:participant_id/decline", a.DeclineParticipant)
	router.POST("/splits/:reference/cancel", a.CancelSplit)
	router.GET("/initiators/:id/splits", a.GetSplitsByInitiator)

	return a.router
}

func NewAPI(engine *tako.Tako) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{engine: engine, router: r}
}
