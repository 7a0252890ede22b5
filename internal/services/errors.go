// Package services defines the business logic of the inbound-message
// pipeline: reply orchestration, knowledge retrieval, workflow state,
// billing enforcement, and personality resolution. This file centralizes
// common service-level error values so that they can be consistently
// returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer;
// translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import "errors"

var (
	// ErrConversationNotFound indicates that the requested conversation
	// does not exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrEmptyMessage is returned when an inbound request carries no text.
	ErrEmptyMessage = errors.New("message text is empty")

	// ErrWalletUnavailable is returned when the tenant has no wallet or the
	// wallet is inactive. Maps to billing code WALLET_UNAVAILABLE.
	ErrWalletUnavailable = errors.New("wallet unavailable")

	// ErrInsufficientBalance is returned when the settlement-time balance
	// does not cover the model charge. Maps to billing code
	// INSUFFICIENT_BALANCE. No reply is sent in this case.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrUnpricedModel is returned when no price-list entry exists for the
	// provider/model pair that served the completion.
	ErrUnpricedModel = errors.New("no price configured for model")
)
