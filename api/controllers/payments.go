package controllers

import (
	"net/http"
	"strings"

	"github.com/bijaykarki/meromart-backend/api/responses"
	"github.com/bijaykarki/meromart-backend/api/validators"
	"github.com/bijaykarki/meromart-backend/internal/payments"
	pkgerrors "github.com/bijaykarki/meromart-backend/pkg/errors"
	"github.com/bijaykarki/meromart-backend/pkg/logger"
)

// PaymentSuccess is the browser landing after a gateway checkout. eSewa
// returns a signed base64 blob in ?data=, Khalti returns ?pidx=; the
// handler dispatches on whichever is present and reconciles the order.
func PaymentSuccess(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		q := r.URL.Query()
		data := strings.TrimSpace(q.Get("data"))
		pidx := strings.TrimSpace(q.Get("pidx"))

		switch {
		case data != "":
			order, err := svc.HandleEsewaCallback(r.Context(), data)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, order)
		case pidx != "":
			order, err := svc.HandleKhaltiReturn(r.Context(), pidx)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, order)
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "missing gateway payload"))
		}
	}
}

// PaymentCancel is the landing for a customer who backed out of the
// gateway checkout. The pending order is cancelled so its stock is never
// deducted.
func PaymentCancel(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		orderID, err := validators.ParseQueryUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Cancel(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// PaymentNotification is the server-to-server eSewa status webhook. The
// gateway sends its fields as query parameters with an HMAC signature.
func PaymentNotification(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		fields := make(map[string]string)
		for key, values := range r.URL.Query() {
			if len(values) > 0 {
				fields[key] = values[0]
			}
		}
		if len(fields) == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "missing notification fields"))
			return
		}

		order, err := svc.HandleNotification(r.Context(), fields)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
