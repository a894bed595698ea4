package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/autoecole-booking/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware тестового API.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Compress(5, "application/json"))
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)

		r.Get("/schools", h.ListSchools)
		r.Get("/schools/{id}", h.GetSchool)
		r.Get("/offers/school/{schoolId}", h.ListOffers)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/bookings", h.CreateBooking)
			r.Get("/bookings", h.ListBookings)
			r.Patch("/bookings/{id}/status", h.UpdateBookingStatus)

			r.Get("/invoices", h.ListInvoices)
			r.Get("/invoices/school/{schoolId}", h.ListSchoolInvoices)
			r.Get("/invoices/{id}", h.GetInvoice)
			r.Post("/invoices/{id}/pay", h.PayInvoice)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
