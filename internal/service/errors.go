package service

import (
	"errors"
	"fmt"
)

// Kind classifies a service failure for callers.
type Kind string

const (
	KindValidation            Kind = "validation"
	KindNotFound              Kind = "not_found"
	KindAuthorization         Kind = "authorization"
	KindDependencyUnavailable Kind = "dependency_unavailable"
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrValidation            = errors.New("validation failed")
	ErrNotFound              = errors.New("not found")
	ErrAuthorization         = errors.New("not authorized")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
)

// Machine-readable error codes.
const (
	CodeInvalidProduct     = "invalid_product"
	CodeProductNotFound    = "product_not_found"
	CodeCatalogUnavailable = "catalog_unavailable"
	CodeTitleMissing       = "title_missing"
	CodeItemNotFound       = "item_not_found"
	CodeInvalidUser        = "invalid_user"
	CodeInvalidOrder       = "invalid_order"
	CodeInvalidRange       = "invalid_range"
	CodeGuestsNotAllowed   = "guests_not_allowed"
	CodeDisabled           = "wishlist_disabled"
	CodeIdentityMissing    = "identity_missing"
)

// Error is a typed, recoverable service failure.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrValidation) and friends match by kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrAuthorization:
		return e.Kind == KindAuthorization
	case ErrDependencyUnavailable:
		return e.Kind == KindDependencyUnavailable
	}
	return false
}

// AsError extracts the *Error carried by err, if any.
func AsError(err error) (*Error, bool) {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr, true
	}
	return nil, false
}

func validationError(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func errProductNotFound(productID int64) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    CodeProductNotFound,
		Message: fmt.Sprintf("product %d does not exist or cannot be purchased", productID),
	}
}

func errCatalogUnavailable(err error) *Error {
	return &Error{
		Kind:    KindDependencyUnavailable,
		Code:    CodeCatalogUnavailable,
		Message: "product catalog is unavailable",
		Err:     err,
	}
}

func errItemNotFound(productID, variationID int64) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    CodeItemNotFound,
		Message: fmt.Sprintf("product %d (variation %d) is not in the wishlist", productID, variationID),
	}
}

var (
	errTitleMissing     = validationError(CodeTitleMissing, "list title is required")
	errInvalidProduct   = validationError(CodeInvalidProduct, "a valid product id is required")
	errInvalidUser      = validationError(CodeInvalidUser, "a valid user id is required")
	errIdentityMissing  = &Error{Kind: KindAuthorization, Code: CodeIdentityMissing, Message: "no user or guest identity"}
	errGuestsNotAllowed = &Error{Kind: KindAuthorization, Code: CodeGuestsNotAllowed, Message: "sign in to use the wishlist"}
	errDisabled         = &Error{Kind: KindNotFound, Code: CodeDisabled, Message: "the wishlist is disabled"}
)
