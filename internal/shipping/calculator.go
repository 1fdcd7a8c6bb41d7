package shipping

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/bijaykarki/meromart-backend/pkg/errors"
)

// Fee schedule per distinct vendor district: a vendor shipping within
// its own district, or between any two Kathmandu-valley metro
// districts, pays the local rate.
var (
	localFee  = decimal.NewFromInt(100)
	remoteFee = decimal.NewFromInt(200)
)

var metroDistricts = map[string]struct{}{
	"kathmandu": {},
	"lalitpur":  {},
	"bhaktapur": {},
}

// VendorLocation is a vendor supplying items on an order, with its
// resolved district.
type VendorLocation struct {
	VendorID uuid.UUID
	District string
}

// Quote is the computed shipping fee plus the distinct vendors touched,
// for downstream notification routing.
type Quote struct {
	Fee       decimal.Decimal
	VendorIDs []uuid.UUID
}

// Calculate sums the per-district fee over the distinct vendor
// districts represented in the order. A vendor without a district on
// file fails the whole computation.
func Calculate(destination string, vendors []VendorLocation) (*Quote, error) {
	dest := normalize(destination)
	if dest == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "destination district is required")
	}

	seenDistricts := map[string]struct{}{}
	seenVendors := map[uuid.UUID]struct{}{}
	fee := decimal.Zero
	var vendorIDs []uuid.UUID

	for _, v := range vendors {
		district := normalize(v.District)
		if district == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("vendor %s has no shipping address on file", v.VendorID))
		}

		if _, ok := seenVendors[v.VendorID]; !ok {
			seenVendors[v.VendorID] = struct{}{}
			vendorIDs = append(vendorIDs, v.VendorID)
		}

		if _, ok := seenDistricts[district]; ok {
			continue
		}
		seenDistricts[district] = struct{}{}

		fee = fee.Add(districtFee(dest, district))
	}

	return &Quote{Fee: fee, VendorIDs: vendorIDs}, nil
}

func districtFee(destination, vendorDistrict string) decimal.Decimal {
	if destination == vendorDistrict {
		return localFee
	}
	if isMetro(destination) && isMetro(vendorDistrict) {
		return localFee
	}
	return remoteFee
}

func isMetro(district string) bool {
	_, ok := metroDistricts[district]
	return ok
}

func normalize(district string) string {
	return strings.ToLower(strings.TrimSpace(district))
}
