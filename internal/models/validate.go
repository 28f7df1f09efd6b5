package models

import apperrors "github.com/wealthfolio/portfolio-engine/internal/errors"

func fieldErr(field, message string) error {
	return &apperrors.ErrValidation{Field: field, Message: message}
}
