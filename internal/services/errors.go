package services

import "errors"

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrValidation         = errors.New("validation failed")

	ErrProductNotFound  = errors.New("product not found")
	ErrCategoryNotFound = errors.New("category not found")
	ErrBannerNotFound   = errors.New("banner not found")
	ErrFlashSaleInvalid = errors.New("invalid flash sale")
	ErrUnknownIcon      = errors.New("unknown category icon")
	ErrAddressNotFound  = errors.New("address not found")
	ErrCartItemNotFound = errors.New("item not in cart")
	ErrOrderNotFound    = errors.New("order not found")

	ErrEmptyCart          = errors.New("cart is empty")
	ErrAddressRequired    = errors.New("a delivery address is required")
	ErrOutOfStock         = errors.New("insufficient stock")
	ErrCheckoutInProgress = errors.New("checkout already in progress")

	ErrAlreadyProcessed  = errors.New("order payment already processed")
	ErrPaymentInProgress = errors.New("payment request already in progress")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrAmountMismatch    = errors.New("gross amount does not match order total")
	ErrInvalidTransition = errors.New("invalid order status transition")
)
