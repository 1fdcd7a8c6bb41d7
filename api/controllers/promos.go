package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/bijaykarki/meromart-backend/api/responses"
	"github.com/bijaykarki/meromart-backend/api/validators"
	"github.com/bijaykarki/meromart-backend/internal/promos"
	pkgerrors "github.com/bijaykarki/meromart-backend/pkg/errors"
	"github.com/bijaykarki/meromart-backend/pkg/logger"
)

type createPromoRequest struct {
	Code               string          `json:"code" validate:"required,min=3"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage" validate:"required"`
	Active             bool            `json:"active"`
}

// CreatePromo registers a promo code.
func CreatePromo(svc promos.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promo service unavailable"))
			return
		}

		var req createPromoRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		promo, err := svc.Create(r.Context(), promos.CreateInput{
			Code:               req.Code,
			DiscountPercentage: req.DiscountPercentage,
			Active:             req.Active,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, promo)
	}
}

type updatePromoRequest struct {
	DiscountPercentage *decimal.Decimal `json:"discount_percentage"`
	Active             *bool            `json:"active"`
}

// UpdatePromo patches a promo code's rate or active flag.
func UpdatePromo(svc promos.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promo service unavailable"))
			return
		}

		promoID, err := validators.ParsePathUUID(chi.URLParam(r, "promoId"), "promoId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updatePromoRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		promo, err := svc.Update(r.Context(), promoID, promos.UpdateInput{
			DiscountPercentage: req.DiscountPercentage,
			Active:             req.Active,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, promo)
	}
}

// ListPromos returns every promo code.
func ListPromos(svc promos.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promo service unavailable"))
			return
		}

		list, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// DeletePromo retires a promo code.
func DeletePromo(svc promos.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promo service unavailable"))
			return
		}

		promoID, err := validators.ParsePathUUID(chi.URLParam(r, "promoId"), "promoId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), promoID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}
