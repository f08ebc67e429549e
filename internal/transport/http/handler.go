package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/aquadepot/ledger-service/internal/ledger"
	"github.com/aquadepot/ledger-service/internal/service"
)

func RegisterHandlers(r *gin.Engine, svc *service.LedgerService) {
	v1 := r.Group("/v1")
	{
		v1.POST("/customers", createCustomerHandler(svc))
		v1.GET("/customers", listCustomersHandler(svc))
		v1.GET("/customers/search", searchCustomersHandler(svc))
		v1.GET("/customers/:id", getCustomerHandler(svc))
		v1.PATCH("/customers/:id", updateCustomerHandler(svc))
		v1.GET("/customers/:id/balance", balanceHandler(svc))
		v1.POST("/customers/:id/transactions", createTransactionHandler(svc))
		v1.GET("/customers/:id/transactions", listTransactionsHandler(svc))
		v1.GET("/transactions", globalTransactionsHandler(svc))
		v1.GET("/prices", pricesHandler(svc))
		v1.GET("/prices/history", priceHistoryHandler(svc))
		v1.PUT("/prices", updatePricesHandler(svc))
		v1.GET("/backup", backupHandler(svc))
		v1.POST("/restore", restoreHandler(svc))
	}
}

// writeError maps the ledger error taxonomy onto HTTP statuses. The
// confirmable duplicate warning and balance shortfall carry structured
// bodies so the client can offer the right follow-up action.
func writeError(c *gin.Context, err error) {
	var vErr *ledger.ValidationError
	var balErr *ledger.InsufficientBalanceError
	var dupErr *ledger.DuplicateSuspectedError
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error()})
	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.As(err, &balErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":     "insufficient balance",
			"balance":   balErr.Balance.StringFixed(2),
			"amount":    balErr.Amount.StringFixed(2),
			"shortfall": balErr.Shortfall.StringFixed(2),
		})
	case errors.As(err, &dupErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":              "possible duplicate transaction",
			"priorTransactionId": dupErr.Prior.ID,
			"confirmRequired":    true,
		})
	case errors.Is(err, ledger.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "concurrent update, retry with fresh data"})
	case errors.Is(err, ledger.ErrExhausted), errors.Is(err, ledger.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))
	return page, pageSize
}

type createCustomerReq struct {
	Name           string `json:"name" binding:"required"`
	Phone          string `json:"phone"`
	Notes          string `json:"notes"`
	InitialBalance string `json:"initialBalance"`
}

func createCustomerHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createCustomerReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		initial := decimal.Zero
		if req.InitialBalance != "" {
			var err error
			initial, err = decimal.NewFromString(req.InitialBalance)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid initialBalance"})
				return
			}
		}
		cust, err := svc.CreateCustomer(c, ledger.NewCustomer{
			Name:           req.Name,
			Phone:          req.Phone,
			Notes:          req.Notes,
			InitialBalance: initial,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, cust)
	}
}

func listCustomersHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, pageSize := pageParams(c)
		force := c.Query("refresh") == "true"
		if q := c.Query("q"); q != "" {
			items, hasMore, err := svc.FilterCustomers(c, q, page, pageSize)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"items": items, "hasMore": hasMore})
			return
		}
		items, hasMore, err := svc.ListCustomers(c, page, pageSize, force)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items, "hasMore": hasMore})
	}
}

func searchCustomersHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		term := c.Query("term")
		if term == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "term is required"})
			return
		}
		items, err := svc.SearchCustomers(c, term)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

func getCustomerHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		cust, err := svc.GetCustomer(c, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, cust)
	}
}

type updateCustomerReq struct {
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
	Notes *string `json:"notes"`
}

func updateCustomerHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateCustomerReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cust, err := svc.UpdateCustomerProfile(c, c.Param("id"), ledger.ProfileUpdate{
			Name:  req.Name,
			Phone: req.Phone,
			Notes: req.Notes,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, cust)
	}
}

func balanceHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		bal, err := svc.Balance(c, id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"customerId": id, "balance": bal.StringFixed(2)})
	}
}

type createTransactionReq struct {
	Type             string `json:"type" binding:"required"`
	Gallons          string `json:"gallons"`
	Amount           string `json:"amount"`
	Notes            string `json:"notes"`
	ConfirmDuplicate bool   `json:"confirmDuplicate"`
}

func createTransactionHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createTransactionReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		gallons := decimal.Zero
		if req.Gallons != "" {
			var err error
			gallons, err = decimal.NewFromString(req.Gallons)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid gallons"})
				return
			}
		}
		amount := decimal.Zero
		if req.Amount != "" {
			var err error
			amount, err = decimal.NewFromString(req.Amount)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
				return
			}
		}
		txRow, cust, err := svc.CompleteTransaction(c, service.TransactionRequest{
			CustomerID:       c.Param("id"),
			Type:             req.Type,
			Gallons:          gallons,
			Amount:           amount,
			Notes:            req.Notes,
			ConfirmDuplicate: req.ConfirmDuplicate,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"transaction": txRow, "customer": cust})
	}
}

func listTransactionsHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, pageSize := pageParams(c)
		force := c.Query("refresh") == "true"
		items, hasMore, err := svc.ListTransactions(c, c.Param("id"), page, pageSize, force)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items, "hasMore": hasMore})
	}
}

func globalTransactionsHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, pageSize := pageParams(c)
		if q := c.Query("q"); q != "" {
			items, hasMore, err := svc.FilterTransactions(c, ledger.AllCustomers, q, page, pageSize)
			if err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"items": items, "hasMore": hasMore})
			return
		}
		force := c.Query("refresh") == "true"
		items, hasMore, err := svc.ListTransactions(c, ledger.AllCustomers, page, pageSize, force)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items, "hasMore": hasMore})
	}
}

func pricesHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, err := svc.CurrentPrices(c)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, snap)
	}
}

func priceHistoryHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		items, err := svc.PriceHistory(c, limit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items})
	}
}

type updatePricesReq struct {
	RegularPrice  string `json:"regularPrice" binding:"required"`
	AlkalinePrice string `json:"alkalinePrice" binding:"required"`
	UpdatedBy     string `json:"updatedBy"`
	Notes         string `json:"notes"`
}

func updatePricesHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updatePricesReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		regular, err := decimal.NewFromString(req.RegularPrice)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid regularPrice"})
			return
		}
		alkaline, err := decimal.NewFromString(req.AlkalinePrice)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alkalinePrice"})
			return
		}
		snap, err := svc.UpdatePrices(c, regular, alkaline, req.UpdatedBy, req.Notes)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, snap)
	}
}

func backupHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap, err := svc.Export(c)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, snap)
	}
}

func restoreHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var snap ledger.Snapshot
		if err := c.ShouldBindJSON(&snap); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := svc.Import(c, &snap); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "restored"})
	}
}
