package catalog

import (
	"net/http"
	"strings"

	"storefront/internal/apperrors"
	"storefront/internal/models"
)

const errMissingFields = "Missing required fields (title or price)"

// validate checks the required fields and returns the price rounded to
// cents. "0.00" is a valid price; only an absent price is rejected.
func validate(in models.ProductInput) (string, float64, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" || in.Price.IsEmpty() {
		return "", 0, apperrors.Validation(errMissingFields)
	}

	price, err := in.Price.Float()
	if err != nil {
		return "", 0, apperrors.Newf(apperrors.ErrValidation, http.StatusBadRequest, "Invalid price: %q is not a number", string(in.Price))
	}
	if price < 0 {
		return "", 0, apperrors.Newf(apperrors.ErrValidation, http.StatusBadRequest, "Invalid price: %s is negative", string(in.Price))
	}

	return title, models.RoundCents(price), nil
}
