package nobitex

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quantfarm/crossarb/internal/domain"
	"github.com/quantfarm/crossarb/internal/symbols"
)

func orderServer(t *testing.T, status, matchedAmount string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/market/orders/add", r.URL.Path)
		fmt.Fprintf(w, `{"status":"ok","order":{"id":4,"status":%q,"price":"100","matchedAmount":%q}}`,
			status, matchedAmount)
	}))
}

func placeTestOrder(t *testing.T, srv *httptest.Server, typ domain.OrderType) domain.OrderResult {
	t.Helper()
	client := New(Config{BaseURL: srv.URL}, symbols.New(nil, nil, nil))
	res, err := client.PlaceOrder(context.Background(), domain.OrderRequest{
		Symbol: domain.Symbol{Base: "BTC", Quote: domain.QuoteUSDT},
		Side:   domain.OrderSideBuy,
		Amount: 1,
		Price:  100,
		Type:   typ,
	})
	require.NoError(t, err)
	return res
}

func TestPlaceOrderRestingLimitIsNotFilled(t *testing.T) {
	srv := orderServer(t, "Active", "0")
	defer srv.Close()

	res := placeTestOrder(t, srv, domain.OrderTypeLimit)
	require.False(t, res.Filled)
}

func TestPlaceOrderReportsFill(t *testing.T) {
	srv := orderServer(t, "Done", "1")
	defer srv.Close()

	res := placeTestOrder(t, srv, domain.OrderTypeMarket)
	require.True(t, res.Filled)
	require.InDelta(t, 100, res.AveragePrice, 1e-9)
}

func TestPlaceOrderPartialMatchCountsAsFill(t *testing.T) {
	srv := orderServer(t, "Active", "0.4")
	defer srv.Close()

	res := placeTestOrder(t, srv, domain.OrderTypeLimit)
	require.True(t, res.Filled)
}
