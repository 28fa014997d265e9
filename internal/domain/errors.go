package domain

import "errors"

var (
	ErrFetchTimeout     = errors.New("fetch deadline exceeded")
	ErrFetchTransport   = errors.New("exchange transport failure")
	ErrFetchDecode      = errors.New("exchange payload decode failure")
	ErrAllSourcesFailed = errors.New("all exchange sources failed")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrInvalidSide      = errors.New("unknown quote side")
	ErrNoBook           = errors.New("no aggregated book available")
)

// FetchKind names the classification of a fetch error for logs and source
// reports.
func FetchKind(err error) string {
	switch {
	case errors.Is(err, ErrFetchTimeout):
		return "timeout"
	case errors.Is(err, ErrFetchDecode):
		return "decode"
	case errors.Is(err, ErrFetchTransport):
		return "transport"
	default:
		return "unknown"
	}
}
