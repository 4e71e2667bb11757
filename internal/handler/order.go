package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/ordering-service/internal/order"
)

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	svc order.Service
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc order.Service) *OrderHandler {
	return &OrderHandler{svc: svc}
}

type addressDTO struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
	ZipCode string `json:"zip_code"`
}

type paymentDTO struct {
	CardTypeID     int       `json:"card_type_id"`
	CardNumber     string    `json:"card_number"`
	CardHolderName string    `json:"card_holder_name"`
	Expiration     time.Time `json:"expiration"`
}

type itemDTO struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	UnitPrice   float64 `json:"unit_price"`
	Discount    float64 `json:"discount"`
	PictureURL  string  `json:"picture_url"`
	Units       int     `json:"units"`
}

type createOrderRequest struct {
	RequestID string     `json:"request_id"`
	BuyerID   string     `json:"buyer_id"`
	BuyerName string     `json:"buyer_name"`
	Address   addressDTO `json:"address"`
	Payment   paymentDTO `json:"payment"`
	Items     []itemDTO  `json:"items"`
}

type confirmStockRequest struct {
	RejectedProductIDs []string `json:"rejected_product_ids"`
}

type orderResponse struct {
	ID        string     `json:"id"`
	BuyerID   string     `json:"buyer_id"`
	BuyerName string     `json:"buyer_name"`
	Status    string     `json:"status"`
	OrderDate time.Time  `json:"order_date"`
	Total     float64    `json:"total"`
	Address   addressDTO `json:"address"`
	Items     []itemDTO  `json:"items"`
}

type statusResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type errorResponse struct {
	Error         string `json:"error"`
	CurrentStatus string `json:"current_status,omitempty"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := o.Items()
	itemDTOs := make([]itemDTO, 0, len(items))
	for _, item := range items {
		itemDTOs = append(itemDTOs, itemDTO{
			ProductID:   item.ProductID.String(),
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			Discount:    item.Discount,
			PictureURL:  item.PictureURL,
			Units:       item.Units,
		})
	}
	addr := o.Address()
	return orderResponse{
		ID:        o.ID().String(),
		BuyerID:   o.BuyerID().String(),
		BuyerName: o.BuyerName(),
		Status:    o.Status().String(),
		OrderDate: o.OrderDate(),
		Total:     o.Total(),
		Address: addressDTO{
			Street:  addr.Street,
			City:    addr.City,
			State:   addr.State,
			Country: addr.Country,
			ZipCode: addr.ZipCode,
		},
		Items: itemDTOs,
	}
}

// CreateOrder handles the creation of a new order. The idempotency token
// comes from the X-Request-ID header or the request_id body field.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	token := req.RequestID
	if header := r.Header.Get("X-Request-ID"); header != "" {
		token = header
	}
	requestID, err := uuid.FromString(token)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "request_id must be a valid uuid"})
		return
	}

	buyerID, err := uuid.FromString(req.BuyerID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "buyer_id must be a valid uuid"})
		return
	}

	address, err := order.NewAddress(req.Address.Street, req.Address.City, req.Address.State, req.Address.Country, req.Address.ZipCode)
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]order.CreateOrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		productID, err := uuid.FromString(item.ProductID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "product_id must be a valid uuid"})
			return
		}
		items = append(items, order.CreateOrderItem{
			ProductID:   productID,
			ProductName: item.ProductName,
			UnitPrice:   item.UnitPrice,
			Discount:    item.Discount,
			PictureURL:  item.PictureURL,
			Units:       item.Units,
		})
	}

	cmd := order.CreateOrderCommand{
		RequestID: requestID,
		BuyerID:   buyerID,
		BuyerName: req.BuyerName,
		Address:   address,
		Payment: order.PaymentMethod{
			CardTypeID:     req.Payment.CardTypeID,
			CardNumber:     req.Payment.CardNumber,
			CardHolderName: req.Payment.CardHolderName,
			Expiration:     req.Payment.Expiration,
		},
		Items: items,
	}

	o, err := h.svc.CreateOrder(r.Context(), cmd)
	if err != nil {
		log.Info().Msgf("Failed to create order: %v", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// GetOrderByID handles retrieving an order by its ID.
func (h *OrderHandler) GetOrderByID(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	o, err := h.svc.GetOrderByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// GetOrdersByBuyerID lists a buyer's orders, newest first.
func (h *OrderHandler) GetOrdersByBuyerID(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := pathUUID(w, r, "buyerId")
	if !ok {
		return
	}

	orders, err := h.svc.GetOrdersByBuyerID(r.Context(), buyerID)
	if err != nil {
		writeError(w, err)
		return
	}

	responses := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		responses = append(responses, toOrderResponse(o))
	}
	writeJSON(w, http.StatusOK, responses)
}

// SetAwaitingValidation submits the order for stock validation.
func (h *OrderHandler) SetAwaitingValidation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.SetAwaitingValidation)
}

// ConfirmStock confirms stock for the order, or cancels it when the body
// lists rejected products.
func (h *OrderHandler) ConfirmStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req confirmStockRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
	}

	rejected := make([]uuid.UUID, 0, len(req.RejectedProductIDs))
	for _, raw := range req.RejectedProductIDs {
		productID, err := uuid.FromString(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "rejected_product_ids must be valid uuids"})
			return
		}
		rejected = append(rejected, productID)
	}

	status, err := h.svc.ConfirmStock(r.Context(), id, headerRequestID(r), rejected)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{OrderID: id.String(), Status: status.String()})
}

// MarkPaid records the payment for the order.
func (h *OrderHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.MarkPaid)
}

// MarkShipped records the shipment of the order.
func (h *OrderHandler) MarkShipped(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.MarkShipped)
}

// CancelOrder cancels the order.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.CancelOrder)
}

func (h *OrderHandler) transition(w http.ResponseWriter, r *http.Request, cmd func(ctx context.Context, orderID, requestID uuid.UUID) (order.Status, error)) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	status, err := cmd(r.Context(), id, headerRequestID(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{OrderID: id.String(), Status: status.String()})
}

func headerRequestID(r *http.Request) uuid.UUID {
	raw := r.Header.Get("X-Request-ID")
	if raw == "" {
		return uuid.Nil
	}
	id, err := uuid.FromString(raw)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, param)
	id, err := uuid.FromString(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: param + " must be a valid uuid"})
		return uuid.Nil, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, err error) {
	var validationErr *order.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: validationErr.Error()})
		return
	}

	var transitionErr *order.TransitionError
	if errors.As(err, &transitionErr) {
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:         transitionErr.Error(),
			CurrentStatus: transitionErr.From.String(),
		})
		return
	}

	if errors.Is(err, order.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "order not found"})
		return
	}

	if errors.Is(err, order.ErrConflict) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "order was modified concurrently, retry the request"})
		return
	}

	log.Error().Err(err).Msg("Unhandled error in order handler")
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Info().Msgf("Failed to encode response: %v", err)
	}
}
