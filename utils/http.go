// utils/http.go
package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by outbound service clients.
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}
