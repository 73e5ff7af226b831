package infra

import (
	"time"

	"github.com/imroc/req/v3"
)

// ProvideHttpClient builds the shared rest client used for talking to the
// chat platform api. Platform calls are retried since channel mutations
// right after creation tend to hit transient 5xx on the platform side.
func ProvideHttpClient() *req.Client {
	return req.C().
		// Timeout of all requests.
		SetTimeout(10 * time.Second).
		// Enable retry and set the maximum retry count.
		SetCommonRetryCount(3).
		SetCommonRetryFixedInterval(3 * time.Second)
}
