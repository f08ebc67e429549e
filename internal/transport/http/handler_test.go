package http

import (
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/aquadepot/ledger-service/internal/ledger"
	"github.com/aquadepot/ledger-service/internal/logger"
	"github.com/aquadepot/ledger-service/internal/service"
	"github.com/aquadepot/ledger-service/internal/store/gormstore"
)

func newTestRouter(t *testing.T) (*gin.Engine, *service.LedgerService, context.Context) {
	gin.SetMode(gin.TestMode)
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	log, err := logger.NewLogger()
	require.NoError(t, err)

	st := gormstore.New(db, nil, &kafka.Writer{}, log)
	require.NoError(t, st.Migrate())
	svc := service.NewLedgerService(st, log)

	r := gin.New()
	RegisterHandlers(r, svc)
	return r, svc, context.Background()
}

func TestGetBalanceEndpoint(t *testing.T) {
	r, svc, ctx := newTestRouter(t)

	cust, err := svc.CreateCustomer(ctx, ledger.NewCustomer{
		Name:           "Balanced",
		InitialBalance: decimal.NewFromFloat(12.34),
	})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(nethttp.MethodGet, "/v1/customers/"+cust.ID+"/balance", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, nethttp.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, cust.ID, body["customerId"])
	assert.Equal(t, "12.34", body["balance"])

	w = httptest.NewRecorder()
	req = httptest.NewRequest(nethttp.MethodGet, "/v1/customers/no-such-id/balance", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, nethttp.StatusNotFound, w.Code)
}
