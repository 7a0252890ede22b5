// Package handlers defines the HTTP-layer error codes used across all API
// endpoints. Codes are lowercase snake_case and stable: clients branch on
// them for programmatic error handling, supplementing the human-readable
// message.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeConflict         = "conflict"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Billing rejections (402):
	ErrCodeWalletUnavailable   = "wallet_unavailable"
	ErrCodeInsufficientBalance = "insufficient_balance"

	// Domain-specific:
	ErrCodeReplyFailed = "reply_failed"
	ErrCodeListFailed  = "list_failed"
	ErrCodeTopupFailed = "topup_failed"
)
