package gateway

// attemptClass categorizes one provider attempt by HTTP status.
type attemptClass int

const (
	classSuccess attemptClass = iota
	classRetryable
	classTerminal
)

// classifyStatus applies one consistent rule to every provider: 2xx is
// success, 429 and 5xx are retryable availability problems, and every
// other status reflects the request itself and is terminal.
func classifyStatus(code int) attemptClass {
	switch {
	case code >= 200 && code < 300:
		return classSuccess
	case code == 429 || code >= 500:
		return classRetryable
	default:
		return classTerminal
	}
}
