package types

// SuccessEnvelope wraps every successful ops response.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string   `json:"code"`
	Reason  string   `json:"reason,omitempty"`
	Message string   `json:"message"`
	Details any      `json:"details,omitempty"`
	Chain   []string `json:"chain,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
