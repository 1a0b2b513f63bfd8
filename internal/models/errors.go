package models

import "errors"

var (
	ErrNoPrincipal        = errors.New("principal required")
	ErrVariantMismatch    = errors.New("principal payload does not match account type")
	ErrUnknownAccountType = errors.New("unknown account type")
)
