package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bijaykarki/meromart-backend/api/middleware"
	"github.com/bijaykarki/meromart-backend/api/responses"
	"github.com/bijaykarki/meromart-backend/api/validators"
	"github.com/bijaykarki/meromart-backend/internal/products"
	"github.com/bijaykarki/meromart-backend/pkg/enums"
	pkgerrors "github.com/bijaykarki/meromart-backend/pkg/errors"
	"github.com/bijaykarki/meromart-backend/pkg/logger"
)

type productVariantRequest struct {
	Name  string          `json:"name" validate:"required"`
	Price decimal.Decimal `json:"price" validate:"required"`
	Stock int             `json:"stock" validate:"min=0"`
}

type createProductRequest struct {
	VendorID     *uuid.UUID              `json:"vendor_id"`
	Name         string                  `json:"name" validate:"required,min=2"`
	Description  string                  `json:"description"`
	ImageURL     string                  `json:"image_url"`
	Price        decimal.Decimal         `json:"price" validate:"required"`
	Discount     decimal.Decimal         `json:"discount"`
	DiscountType *string                 `json:"discount_type"`
	Stock        int                     `json:"stock" validate:"min=0"`
	Variants     []productVariantRequest `json:"variants"`
}

// CreateProduct lists a new product. Vendors list under their own
// account; admins must name the vendor explicitly.
func CreateProduct(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		var req createProductRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		vendorID, err := resolveVendorID(r, req.VendorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := products.CreateInput{
			VendorID:    vendorID,
			Name:        req.Name,
			Description: req.Description,
			ImageURL:    req.ImageURL,
			Price:       req.Price,
			Discount:    req.Discount,
			Stock:       req.Stock,
		}
		if req.DiscountType != nil {
			dt, err := enums.ParseDiscountType(*req.DiscountType)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid discount type"))
				return
			}
			input.DiscountType = &dt
		}
		for _, v := range req.Variants {
			input.Variants = append(input.Variants, products.VariantInput{
				Name:  v.Name,
				Price: v.Price,
				Stock: v.Stock,
			})
		}

		product, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, product)
	}
}

type updateProductRequest struct {
	Name         *string          `json:"name"`
	Description  *string          `json:"description"`
	ImageURL     *string          `json:"image_url"`
	Price        *decimal.Decimal `json:"price"`
	Discount     *decimal.Decimal `json:"discount"`
	DiscountType *string          `json:"discount_type"`
	Stock        *int             `json:"stock"`
}

// UpdateProduct patches a listing. Vendors may only touch their own
// products.
func UpdateProduct(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		productID, err := validators.ParsePathUUID(chi.URLParam(r, "productId"), "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := ensureProductOwnership(r, svc, productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateProductRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := products.UpdateInput{
			Name:        req.Name,
			Description: req.Description,
			ImageURL:    req.ImageURL,
			Price:       req.Price,
			Discount:    req.Discount,
			Stock:       req.Stock,
		}
		if req.DiscountType != nil {
			dt, err := enums.ParseDiscountType(*req.DiscountType)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid discount type"))
				return
			}
			input.DiscountType = &dt
		}

		product, err := svc.Update(r.Context(), productID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

// ProductDetail is the public listing view.
func ProductDetail(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		productID, err := validators.ParsePathUUID(chi.URLParam(r, "productId"), "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := svc.Get(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

// ListProducts is the public catalog feed, optionally filtered by vendor.
func ListProducts(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		var filters products.ListFilters
		if raw := r.URL.Query().Get("vendorId"); raw != "" {
			vendorID, err := validators.ParseQueryUUID(r, "vendorId")
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			filters.VendorID = &vendorID
		}

		list, err := svc.List(r.Context(), filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// DeleteProduct removes a listing and its variants.
func DeleteProduct(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		productID, err := validators.ParsePathUUID(chi.URLParam(r, "productId"), "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := ensureProductOwnership(r, svc, productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

// resolveVendorID decides which vendor a listing belongs to. A vendor
// actor always lists under their own id; an admin names the vendor in
// the request body.
func resolveVendorID(r *http.Request, requested *uuid.UUID) (uuid.UUID, error) {
	if middleware.RoleFromContext(r.Context()) == "admin" {
		if requested == nil {
			return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor_id is required")
		}
		return *requested, nil
	}

	vendorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if requested != nil && *requested != vendorID {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeForbidden, "cannot list products for another vendor")
	}
	return vendorID, nil
}

func ensureProductOwnership(r *http.Request, svc products.Service, productID uuid.UUID) error {
	if middleware.RoleFromContext(r.Context()) == "admin" {
		return nil
	}

	vendorID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}

	product, err := svc.Get(r.Context(), productID)
	if err != nil {
		return err
	}
	if product.VendorID != vendorID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "product belongs to another vendor")
	}
	return nil
}
