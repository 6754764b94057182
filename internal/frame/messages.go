package frame

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// HeaderMap is the wire encoding of a header set: keys preserve the case
// they arrived in, values preserve order and multiplicity.
type HeaderMap map[string][]string

// RequestStartPayload is the JSON body of a RequestStart frame.
type RequestStartPayload struct {
	Method      string    `json:"method"`
	AbsoluteURL string    `json:"absolute_url"`
	Header      HeaderMap `json:"header"`
}

// ResponseStartPayload is the JSON body of a ResponseStart frame.
type ResponseStartPayload struct {
	StatusCode StatusCode `json:"status_code"`
	Status     string     `json:"status"`
	Header     HeaderMap  `json:"header"`
}

// ConnectOpenPayload is the JSON body of a ConnectOpen frame.
type ConnectOpenPayload struct {
	Host string `json:"host"`
}

// ConnectOpenResultPayload is the JSON body of a ConnectOpenResult frame.
type ConnectOpenResultPayload struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// StatusCode tolerates the source quirk of status_code arriving as either a
// JSON number or a numeric string.
type StatusCode int

// UnmarshalJSON accepts both `200` and `"200"`.
func (s *StatusCode) UnmarshalJSON(data []byte) error {
	var asInt int
	if err := json.Unmarshal(data, &asInt); err == nil {
		*s = StatusCode(asInt)
		return nil
	}
	var asStr string
	if err := json.Unmarshal(data, &asStr); err != nil {
		return fmt.Errorf("status_code: not a number or numeric string: %s", data)
	}
	n, err := strconv.Atoi(asStr)
	if err != nil {
		return fmt.Errorf("status_code: invalid numeric string %q: %w", asStr, err)
	}
	*s = StatusCode(n)
	return nil
}

// MarshalJSON always emits a JSON number.
func (s StatusCode) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(s))
}
