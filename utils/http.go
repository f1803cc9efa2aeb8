// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is the shared client for calls to the economy service.
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}
