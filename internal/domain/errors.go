package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrUnsupportedModel    = errors.New("unsupported model")
	ErrEntitlement         = errors.New("subscription does not include this capability")
	ErrConcurrency         = errors.New("generation already in progress")
	ErrProviderInit        = errors.New("provider rejected the request")
	ErrProviderGeneration  = errors.New("provider reported failure")
	ErrPollingTimeout      = errors.New("provider did not finish within the poll budget")
	ErrPersistenceFailed   = errors.New("result could not be stored")
	ErrPersistenceDegraded = errors.New("result stored at provider url only")
)

// ErrorKind is the machine readable error name surfaced to API clients.
type ErrorKind string

const (
	KindUnsupportedModel    ErrorKind = "UnsupportedModel"
	KindInvalidRequest      ErrorKind = "InvalidRequest"
	KindEntitlementRequired ErrorKind = "EntitlementRequired"
	KindConcurrencyConflict ErrorKind = "ConcurrencyConflict"
	KindProviderInit        ErrorKind = "ProviderInit"
	KindProviderGeneration  ErrorKind = "ProviderGeneration"
	KindPollingTimeout      ErrorKind = "PollingTimeout"
	KindPersistenceFailed   ErrorKind = "PersistenceFailed"
	KindPersistenceDegraded ErrorKind = "PersistenceDegraded"
	KindNotFound            ErrorKind = "NotFound"
	KindUnauthorized        ErrorKind = "Unauthorized"
	KindForbidden           ErrorKind = "Forbidden"
	KindInternal            ErrorKind = "Internal"
)

var kindTable = []struct {
	err  error
	kind ErrorKind
}{
	{ErrUnsupportedModel, KindUnsupportedModel},
	{ErrInvalidRequest, KindInvalidRequest},
	{ErrEntitlement, KindEntitlementRequired},
	{ErrConcurrency, KindConcurrencyConflict},
	{ErrProviderInit, KindProviderInit},
	{ErrProviderGeneration, KindProviderGeneration},
	{ErrPollingTimeout, KindPollingTimeout},
	{ErrPersistenceFailed, KindPersistenceFailed},
	{ErrPersistenceDegraded, KindPersistenceDegraded},
	{ErrNotFound, KindNotFound},
	{ErrUnauthorized, KindUnauthorized},
	{ErrForbidden, KindForbidden},
}

// KindOf classifies err by the first sentinel it wraps.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, entry := range kindTable {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return KindInternal
}
