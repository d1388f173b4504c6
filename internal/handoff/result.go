package handoff

import (
	"encoding/json"
	"net/url"
)

// Android callback parameter keys.
const (
	androidClientTransactionID = "com.squareup.pos.CLIENT_TRANSACTION_ID"
	androidServerTransactionID = "com.squareup.pos.SERVER_TRANSACTION_ID"
	androidErrorCode           = "com.squareup.pos.ERROR_CODE"
)

// iOS callback parameter keys.
const (
	iosClientTransactionID = "client_transaction_id"
	iosServerTransactionID = "transaction_id"
	iosErrorCode           = "error_code"
)

// Result is the normalized outcome of a hand-off. Success with an empty
// ServerTransactionID means the external app completed the tender without a
// card (offline or cash-alternative); callers must not treat that as failure.
type Result struct {
	Success             bool
	ClientTransactionID string
	ServerTransactionID string
	ErrorCode           string
}

// ParseResult normalizes a callback payload from either platform family.
// iOS wraps its fields in a JSON document under the data parameter; Android
// delivers them as flat query parameters. An unrecognizable payload is an
// unknown-format failure, never silently a success.
func ParseResult(params url.Values) (Result, error) {
	fields := map[string]string{}
	for key := range params {
		fields[key] = params.Get(key)
	}

	if raw := params.Get("data"); raw != "" {
		var wrapped map[string]any
		if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
			return Result{}, ErrUnknownCallbackShape
		}
		for key, value := range wrapped {
			if s, ok := value.(string); ok {
				fields[key] = s
			}
		}
	}

	if hasAny(fields, androidClientTransactionID, androidServerTransactionID, androidErrorCode) {
		return resultFromKeys(fields, androidClientTransactionID, androidServerTransactionID, androidErrorCode), nil
	}
	if hasAny(fields, iosClientTransactionID, iosServerTransactionID, iosErrorCode) {
		return resultFromKeys(fields, iosClientTransactionID, iosServerTransactionID, iosErrorCode), nil
	}

	return Result{}, ErrUnknownCallbackShape
}

func resultFromKeys(fields map[string]string, clientKey, serverKey, errorKey string) Result {
	result := Result{
		ClientTransactionID: fields[clientKey],
		ServerTransactionID: fields[serverKey],
		ErrorCode:           fields[errorKey],
	}
	result.Success = result.ErrorCode == ""
	return result
}

func hasAny(fields map[string]string, keys ...string) bool {
	for _, key := range keys {
		if _, ok := fields[key]; ok {
			return true
		}
	}
	return false
}
