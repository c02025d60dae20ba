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
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/halcyonpay/tako"
	model2 "github.com/halcyonpay/tako/api/model"
	"github.com/halcyonpay/tako/config"
	"github.com/halcyonpay/tako/database/mocks"
	"github.com/halcyonpay/tako/internal/apierror"
	"github.com/halcyonpay/tako/internal/request"
	"github.com/halcyonpay/tako/model"
)

type TestRequest struct {
	Payload  io.Reader
	Router   *gin.Engine
	Response interface{}
	Method   string
	Route    string
	Header   map[string]string
}

func SetUpTestRequest(s TestRequest) (*httptest.ResponseRecorder, error) {
	req := httptest.NewRequest(s.Method, s.Route, s.Payload)
	for key, value := range s.Header {
		req.Header.Set(key, value)
	}
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	s.Router.ServeHTTP(resp, req)

	if s.Response != nil {
		if err := json.NewDecoder(resp.Body).Decode(&s.Response); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

func setupRouter(t *testing.T) (*gin.Engine, *mocks.MockDataSource) {
	t.Helper()
	mr := miniredis.RunT(t)

	config.MockConfig(&config.Configuration{
		Redis:      config.RedisConfig{Dns: mr.Addr()},
		DataSource: config.DataSourceConfig{Dns: "postgres://postgres:@localhost:5432/tako?sslmode=disable"},
	})

	ds := new(mocks.MockDataSource)
	engine, err := tako.NewTako(ds)
	require.NoError(t, err)

	return NewAPI(engine).Router(), ds
}

func notFoundErr(entity string) error {
	return apierror.NewAPIError(apierror.ErrNotFound, entity+" not found", nil)
}

func TestCreateWalletAPI(t *testing.T) {
	router, ds := setupRouter(t)

	ds.On("CreateWallet", mock.Anything, mock.Anything).Return(nil)

	validPayload := model2.CreateWallet{
		OwnerID:   gofakeit.UUID(),
		OwnerRole: model.RoleCustomer,
		Currency:  "USD",
	}
	payloadBytes, _ := request.ToJsonReq(&validPayload)
	var response model.Wallet
	resp, err := SetUpTestRequest(TestRequest{
		Payload:  payloadBytes,
		Response: &response,
		Method:   "POST",
		Route:    "/wallets",
		Router:   router,
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, validPayload.OwnerID, response.OwnerID)
	assert.Equal(t, "USD", response.Currency)
	assert.NotEmpty(t, response.WalletID)
}

func TestCreateWalletAPI_RejectsMissingCurrency(t *testing.T) {
	router, ds := setupRouter(t)

	payload := model2.CreateWallet{OwnerID: gofakeit.UUID(), OwnerRole: model.RoleCustomer}
	payloadBytes, _ := request.ToJsonReq(&payload)
	resp, err := SetUpTestRequest(TestRequest{
		Payload: payloadBytes,
		Method:  "POST",
		Route:   "/wallets",
		Router:  router,
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	ds.AssertNotCalled(t, "CreateWallet", mock.Anything, mock.Anything)
}

func TestGetWalletAPI(t *testing.T) {
	router, ds := setupRouter(t)

	wallet := &model.Wallet{
		WalletID:  "wlt_123",
		OwnerID:   "cust_1",
		OwnerRole: model.RoleCustomer,
		Currency:  "USD",
		Balance:   big.NewInt(1500),
	}
	ds.On("GetWalletByID", mock.Anything, "wlt_123").Return(wallet, nil)

	var response model.Wallet
	resp, err := SetUpTestRequest(TestRequest{
		Response: &response,
		Method:   "GET",
		Route:    "/wallets/wlt_123",
		Router:   router,
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "wlt_123", response.WalletID)
}

func TestGetWalletAPI_NotFound(t *testing.T) {
	router, ds := setupRouter(t)

	ds.On("GetWalletByID", mock.Anything, "wlt_missing").Return(nil, notFoundErr("wallet"))

	resp, err := SetUpTestRequest(TestRequest{
		Method: "GET",
		Route:  "/wallets/wlt_missing",
		Router: router,
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSecretKeyAuth(t *testing.T) {
	mr := miniredis.RunT(t)
	config.MockConfig(&config.Configuration{
		Redis:      config.RedisConfig{Dns: mr.Addr()},
		DataSource: config.DataSourceConfig{Dns: "postgres://postgres:@localhost:5432/tako?sslmode=disable"},
		Server:     config.ServerConfig{Secure: true, SecretKey: "test-key"},
	})

	ds := new(mocks.MockDataSource)
	engine, err := tako.NewTako(ds)
	require.NoError(t, err)
	router := NewAPI(engine).Router()

	resp, err := SetUpTestRequest(TestRequest{Method: "GET", Route: "/", Router: router})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp, err = SetUpTestRequest(TestRequest{
		Method: "GET",
		Route:  "/",
		Router: router,
		Header: map[string]string{"X-Tako-Key": "test-key"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Code)

	resp, err = SetUpTestRequest(TestRequest{
		Method: "GET",
		Route:  "/",
		Router: router,
		Header: map[string]string{"X-Tako-Key": "wrong-key"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}
