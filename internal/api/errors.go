/**
 * @description
 * Boundary error payloads. Every failure surfaced over HTTP carries the
 * shape {http_status_code, error, error_message} with an application error
 * code, and each app-layer sentinel maps to a fixed status and code.
 */

package api

import (
	"errors"
	"net/http"

	"github.com/truestack/aggregator-service/internal/app"
)

// Application error codes exposed at the boundary.
const (
	CodeProviderCallbackError = "SERVER_ERROR_PROVIDER_CALLBACK_ERROR"
	CodeTokenExchangeFailure  = "SERVER_ERROR_TOKEN_EXCHANGE_FAILURE"
	CodeInvalidToken          = "SERVER_ERROR_INVALID_TOKEN"
	CodeInfoFetchFailed       = "SERVER_ERROR_CUSTOMER_INFO_FETCH_FAILED"
	CodeTokenRefreshFailure   = "SERVER_ERROR_TOKEN_REFRESH_FAILURE"
	CodeAccountsFetchFailure  = "SERVER_ERROR_ACCOUNTS_FETCH_FAILURE"
	CodeUserGenerationFailed  = "API_ERROR_USER_GENERATION_FAILED"
	CodeTokenUpdateFailed     = "API_ERROR_TOKEN_UPDATE_FAILED"
	CodeTransactionsEmpty     = "BAD_REQUEST_ERROR_TRANSACTIONS_EMPTY"
	CodeAuthenticationFailure = "BAD_REQUEST_ERROR_AUTHENTICATION_FAILURE"
	CodeInternalError         = "INTERNAL_SERVER_ERROR"
)

var errorMessages = map[string]string{
	CodeProviderCallbackError: "There was an error with the callback from the provider",
	CodeTokenExchangeFailure:  "There was an error while fetching provider access tokens",
	CodeInvalidToken:          "Invalid token being used for API calls to the provider",
	CodeInfoFetchFailed:       "There was an error while fetching customer info from the provider",
	CodeTokenRefreshFailure:   "There was an error while refreshing the provider access token",
	CodeAccountsFetchFailure:  "There was an error while fetching customer accounts information",
	CodeUserGenerationFailed:  "User was not saved on API. Please try again later",
	CodeTokenUpdateFailed:     "Token update failed on API",
	CodeTransactionsEmpty:     "Customer transactions have not yet been saved on API. Please make a request to the /user/transactions route and then retry this request",
	CodeAuthenticationFailure: "Authentication failed. Please send a valid x-auth token",
	CodeInternalError:         "An unexpected error occurred. Please try again later",
}

// errorPayload is the fixed JSON error shape at the boundary.
type errorPayload struct {
	HTTPStatusCode int    `json:"http_status_code"`
	Error          string `json:"error"`
	ErrorMessage   string `json:"error_message"`
}

func newErrorPayload(status int, code string) errorPayload {
	return errorPayload{
		HTTPStatusCode: status,
		Error:          code,
		ErrorMessage:   errorMessages[code],
	}
}

// mapAppError resolves an app-layer failure to its fixed status and code.
func mapAppError(err error) (int, string) {
	switch {
	case errors.Is(err, app.ErrAuth):
		return http.StatusUnauthorized, CodeAuthenticationFailure
	case errors.Is(err, app.ErrTokenRefresh):
		return http.StatusBadGateway, CodeTokenRefreshFailure
	case errors.Is(err, app.ErrCredentialPersist):
		return http.StatusInternalServerError, CodeTokenUpdateFailed
	case errors.Is(err, app.ErrAccountList):
		return http.StatusBadGateway, CodeAccountsFetchFailure
	case errors.Is(err, app.ErrTokenExchange):
		return http.StatusBadGateway, CodeTokenExchangeFailure
	case errors.Is(err, app.ErrInvalidUpstreamToken):
		return http.StatusBadGateway, CodeInvalidToken
	case errors.Is(err, app.ErrPrincipalCreate):
		return http.StatusInternalServerError, CodeUserGenerationFailed
	case errors.Is(err, app.ErrInfoFetch):
		return http.StatusUnauthorized, CodeInfoFetchFailed
	case errors.Is(err, app.ErrEmptyDataset):
		return http.StatusBadRequest, CodeTransactionsEmpty
	default:
		return http.StatusInternalServerError, CodeInternalError
	}
}
