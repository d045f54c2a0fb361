// Package httpclient builds the transport handle used by apiclient
// Sessions.
//
// The client wraps a pooled *http.Transport with a logging round tripper
// that:
//   - Logs every exchange with a sanitized URL (sensitive params redacted)
//   - Sets a User-Agent header when the request has none
//   - Propagates X-Correlation-ID from the request context
//   - Injects W3C traceparent headers for the active span
//
// Retries, rate limiting and authentication are layered above the transport
// by pkg/client, so that each attempt is re-authenticated and re-admitted.
//
// # Usage
//
//	cfg := httpclient.DefaultConfig()
//	cfg.UserAgent = "my-service/2.0"
//	client, err := httpclient.New(cfg)
//	if err != nil {
//	    return err
//	}
//
// # Security
//
//   - Query parameters such as api_key, token and password are redacted
//   - Authorization, Cookie and API key headers are redacted in trace logs
//   - TLS 1.2 minimum with certificate validation enabled
//
// # Observability
//
// Successful exchanges log at debug level, 4xx/5xx and transport failures at
// warn. Request headers are logged at trace level only.
package httpclient
