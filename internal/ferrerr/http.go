package ferrerr

import "net/http"

// StatusFor maps an Error's code to the HTTP status a protocol layer
// should write. Codes with no direct wire status (configuration, ACME)
// map to 500 since they should never escape to a client directly.
func StatusFor(e Error) int {
	if e == nil {
		return http.StatusOK
	}
	switch e.GetCode() {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeRequestEntityLarge:
		return http.StatusRequestEntityTooLarge
	case CodeUpstreamConnect, CodeUpstreamProtocol:
		return http.StatusBadGateway
	case CodeUpstreamTimeout:
		return http.StatusGatewayTimeout
	case CodeConcurrencyCapped:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
