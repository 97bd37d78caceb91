package middleware

import (
	"fmt"
	"net/http"

	limiter "github.com/ulule/limiter/v3"
	mhttp "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// RateLimitMiddleware caps requests per client IP per minute. The limiter
// state is in-process; it protects a single instance, not the fleet.
func RateLimitMiddleware(requestsPerMinute int) (func(http.Handler) http.Handler, error) {
	rate, err := limiter.NewRateFromFormatted(fmt.Sprintf("%d-M", requestsPerMinute))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rate limit: %w", err)
	}

	instance := limiter.New(memory.NewStore(), rate)
	return mhttp.NewMiddleware(instance).Handler, nil
}
