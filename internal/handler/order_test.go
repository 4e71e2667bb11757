package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ordering-service/internal/order"
)

type mockOrderService struct {
	CreateOrderFunc           func(ctx context.Context, cmd order.CreateOrderCommand) (*order.Order, error)
	SetAwaitingValidationFunc func(ctx context.Context, orderID, requestID uuid.UUID) (order.Status, error)
	ConfirmStockFunc          func(ctx context.Context, orderID, requestID uuid.UUID, rejected []uuid.UUID) (order.Status, error)
	MarkPaidFunc              func(ctx context.Context, orderID, requestID uuid.UUID) (order.Status, error)
	MarkShippedFunc           func(ctx context.Context, orderID, requestID uuid.UUID) (order.Status, error)
	CancelOrderFunc           func(ctx context.Context, orderID, requestID uuid.UUID) (order.Status, error)
	GetOrderByIDFunc          func(ctx context.Context, orderID uuid.UUID) (*order.Order, error)
	GetOrdersByBuyerIDFunc    func(ctx context.Context, buyerID uuid.UUID) ([]*order.Order, error)
}

func (m *mockOrderService) CreateOrder(ctx context.Context, cmd order.CreateOrderCommand) (*order.Order, error) {
	return m.CreateOrderFunc(ctx, cmd)
}

func (m *mockOrderService) SetAwaitingValidation(ctx context.Context, orderID, requestID uuid.UUID) (order.Status, error) {
	return m.SetAwaitingValidationFunc(ctx, orderID, requestID)
}

func (m *mockOrderService) ConfirmStock(ctx context.Context, orderID, requestID uuid.UUID, rejected []uuid.UUID) (order.Status, error) {
	return m.ConfirmStockFunc(ctx, orderID, requestID, rejected)
}

func (m *mockOrderService) MarkPaid(ctx context.Context, orderID, requestID uuid.UUID) (order.Status, error) {
	return m.MarkPaidFunc(ctx, orderID, requestID)
}

func (m *mockOrderService) MarkShipped(ctx context.Context, orderID, requestID uuid.UUID) (order.Status, error) {
	return m.MarkShippedFunc(ctx, orderID, requestID)
}

func (m *mockOrderService) CancelOrder(ctx context.Context, orderID, requestID uuid.UUID) (order.Status, error) {
	return m.CancelOrderFunc(ctx, orderID, requestID)
}

func (m *mockOrderService) GetOrderByID(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	return m.GetOrderByIDFunc(ctx, orderID)
}

func (m *mockOrderService) GetOrdersByBuyerID(ctx context.Context, buyerID uuid.UUID) ([]*order.Order, error) {
	return m.GetOrdersByBuyerIDFunc(ctx, buyerID)
}

func testRouter(svc order.Service) *chi.Mux {
	h := NewOrderHandler(svc)
	r := chi.NewRouter()
	r.Post("/orders", h.CreateOrder)
	r.Get("/orders/{id}", h.GetOrderByID)
	r.Post("/orders/{id}/pay", h.MarkPaid)
	r.Post("/orders/{id}/confirm-stock", h.ConfirmStock)
	r.Post("/orders/{id}/cancel", h.CancelOrder)
	return r
}

func testOrder(t *testing.T) *order.Order {
	t.Helper()
	buyerID, err := uuid.NewV4()
	require.NoError(t, err)
	addr, err := order.NewAddress("15 Baker St", "London", "", "UK", "NW1 6XE")
	require.NoError(t, err)
	o, err := order.NewOrder(buyerID, "John Doe", addr, order.PaymentMethod{
		CardTypeID:     1,
		CardNumber:     "************1881",
		CardHolderName: "John Doe",
		Expiration:     time.Date(2027, 12, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	productID, err := uuid.NewV4()
	require.NoError(t, err)
	require.NoError(t, o.AddItem(productID, "Mug", 10.0, 0, "", 2))
	o.Events()
	return o
}

func createOrderBody(t *testing.T) string {
	t.Helper()
	requestID, err := uuid.NewV4()
	require.NoError(t, err)
	buyerID, err := uuid.NewV4()
	require.NoError(t, err)
	productID, err := uuid.NewV4()
	require.NoError(t, err)

	body := map[string]any{
		"request_id": requestID.String(),
		"buyer_id":   buyerID.String(),
		"buyer_name": "John Doe",
		"address": map[string]string{
			"street":   "15 Baker St",
			"city":     "London",
			"country":  "UK",
			"zip_code": "NW1 6XE",
		},
		"payment": map[string]any{
			"card_type_id":     1,
			"card_number":      "************1881",
			"card_holder_name": "John Doe",
			"expiration":       "2027-12-01T00:00:00Z",
		},
		"items": []map[string]any{
			{"product_id": productID.String(), "product_name": "Mug", "unit_price": 10.0, "units": 2},
		},
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return string(raw)
}

func TestOrderHandler_CreateOrder(t *testing.T) {
	tests := []struct {
		name           string
		body           func(t *testing.T) string
		createOrder    func(ctx context.Context, cmd order.CreateOrderCommand) (*order.Order, error)
		expectedStatus int
	}{
		{
			name: "success",
			body: createOrderBody,
			createOrder: func(ctx context.Context, cmd order.CreateOrderCommand) (*order.Order, error) {
				return testOrder(t), nil
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "invalid_json",
			body: func(t *testing.T) string { return `{invalid json}` },
			createOrder: func(ctx context.Context, cmd order.CreateOrderCommand) (*order.Order, error) {
				return testOrder(t), nil
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "missing_request_id",
			body: func(t *testing.T) string { return `{"buyer_id":"not-a-uuid"}` },
			createOrder: func(ctx context.Context, cmd order.CreateOrderCommand) (*order.Order, error) {
				return testOrder(t), nil
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "validation_error_from_service",
			body: createOrderBody,
			createOrder: func(ctx context.Context, cmd order.CreateOrderCommand) (*order.Order, error) {
				return nil, &order.ValidationError{Field: "items", Reason: "order must contain at least one item"}
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := &mockOrderService{CreateOrderFunc: tt.createOrder}
			router := testRouter(mockSvc)

			req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewBufferString(tt.body(t)))
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestOrderHandler_GetOrderByID(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		o := testOrder(t)
		mockSvc := &mockOrderService{
			GetOrderByIDFunc: func(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
				return o, nil
			},
		}
		router := testRouter(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/orders/"+o.ID().String(), nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp orderResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, o.ID().String(), resp.ID)
		assert.Equal(t, "SUBMITTED", resp.Status)
		assert.Equal(t, 20.0, resp.Total)
		require.Len(t, resp.Items, 1)
	})

	t.Run("not_found", func(t *testing.T) {
		mockSvc := &mockOrderService{
			GetOrderByIDFunc: func(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
				return nil, order.ErrNotFound
			},
		}
		router := testRouter(mockSvc)

		id, err := uuid.NewV4()
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/orders/"+id.String(), nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid_id", func(t *testing.T) {
		mockSvc := &mockOrderService{}
		router := testRouter(mockSvc)

		req := httptest.NewRequest(http.MethodGet, "/orders/not-a-uuid", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestOrderHandler_MarkPaid(t *testing.T) {
	orderID, err := uuid.NewV4()
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		mockSvc := &mockOrderService{
			MarkPaidFunc: func(ctx context.Context, id, requestID uuid.UUID) (order.Status, error) {
				return order.StatusPaid, nil
			},
		}
		router := testRouter(mockSvc)

		req := httptest.NewRequest(http.MethodPost, "/orders/"+orderID.String()+"/pay", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp statusResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "PAID", resp.Status)
	})

	t.Run("transition_conflict_names_current_status", func(t *testing.T) {
		mockSvc := &mockOrderService{
			MarkPaidFunc: func(ctx context.Context, id, requestID uuid.UUID) (order.Status, error) {
				return "", &order.TransitionError{OrderID: id, From: order.StatusSubmitted, Attempted: order.StatusPaid}
			},
		}
		router := testRouter(mockSvc)

		req := httptest.NewRequest(http.MethodPost, "/orders/"+orderID.String()+"/pay", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)

		var resp errorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "SUBMITTED", resp.CurrentStatus)
	})

	t.Run("request_id_header_is_forwarded", func(t *testing.T) {
		requestID, err := uuid.NewV4()
		require.NoError(t, err)

		var gotRequestID uuid.UUID
		mockSvc := &mockOrderService{
			MarkPaidFunc: func(ctx context.Context, id, reqID uuid.UUID) (order.Status, error) {
				gotRequestID = reqID
				return order.StatusPaid, nil
			},
		}
		router := testRouter(mockSvc)

		req := httptest.NewRequest(http.MethodPost, "/orders/"+orderID.String()+"/pay", nil)
		req.Header.Set("X-Request-ID", requestID.String())
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, requestID, gotRequestID)
	})
}

func TestOrderHandler_ConfirmStock(t *testing.T) {
	orderID, err := uuid.NewV4()
	require.NoError(t, err)
	rejectedID, err := uuid.NewV4()
	require.NoError(t, err)

	t.Run("rejected_items_are_forwarded", func(t *testing.T) {
		var gotRejected []uuid.UUID
		mockSvc := &mockOrderService{
			ConfirmStockFunc: func(ctx context.Context, id, requestID uuid.UUID, rejected []uuid.UUID) (order.Status, error) {
				gotRejected = rejected
				return order.StatusCancelled, nil
			},
		}
		router := testRouter(mockSvc)

		body := `{"rejected_product_ids":["` + rejectedID.String() + `"]}`
		req := httptest.NewRequest(http.MethodPost, "/orders/"+orderID.String()+"/confirm-stock", bytes.NewBufferString(body))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []uuid.UUID{rejectedID}, gotRejected)
	})

	t.Run("empty_body_confirms", func(t *testing.T) {
		mockSvc := &mockOrderService{
			ConfirmStockFunc: func(ctx context.Context, id, requestID uuid.UUID, rejected []uuid.UUID) (order.Status, error) {
				assert.Empty(t, rejected)
				return order.StatusStockConfirmed, nil
			},
		}
		router := testRouter(mockSvc)

		req := httptest.NewRequest(http.MethodPost, "/orders/"+orderID.String()+"/confirm-stock", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp statusResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "STOCK_CONFIRMED", resp.Status)
	})
}
