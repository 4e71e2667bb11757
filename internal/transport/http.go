package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/vasiliy-maslov/ordering-service/internal/handler"
	"github.com/vasiliy-maslov/ordering-service/internal/order"
)

func NewRouter(svc order.Service) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	h := handler.NewOrderHandler(svc)

	r.Post("/orders", h.CreateOrder)
	r.Get("/orders/{id}", h.GetOrderByID)
	r.Get("/buyers/{buyerId}/orders", h.GetOrdersByBuyerID)
	r.Post("/orders/{id}/await-validation", h.SetAwaitingValidation)
	r.Post("/orders/{id}/confirm-stock", h.ConfirmStock)
	r.Post("/orders/{id}/pay", h.MarkPaid)
	r.Post("/orders/{id}/ship", h.MarkShipped)
	r.Post("/orders/{id}/cancel", h.CancelOrder)

	return r
}
