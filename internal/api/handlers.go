/**
 * @description
 * This file contains the HTTP handlers for the aggregator-service's API
 * endpoints. Handlers parse incoming requests, call the application service,
 * and write responses; they are the bridge between the web layer and the
 * business logic layer.
 *
 * Successful responses on authenticated routes set the x-auth header with
 * the caller's session token — possibly rotated, when the request triggered
 * an upstream credential refresh.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain: For service logic and models.
 */

package api

import (
	"encoding/json"
	"log"
	"net/http"
	"regexp"

	"github.com/truestack/aggregator-service/internal/app"
	"github.com/truestack/aggregator-service/internal/domain"
)

var alphanumericCode = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// AggregatorHandlers holds the application service that handlers will use.
type AggregatorHandlers struct {
	service *app.Service
}

// NewAggregatorHandlers creates a new instance of AggregatorHandlers.
func NewAggregatorHandlers(service *app.Service) *AggregatorHandlers {
	return &AggregatorHandlers{service: service}
}

// AuthRedirectHandler sends the customer into the provider's consent flow.
func (h *AggregatorHandlers) AuthRedirectHandler(w http.ResponseWriter, r *http.Request) {
	authURL := h.service.AuthURL("aggregator")
	log.Printf("level=info component=api msg=\"redirecting to provider consent flow\"")
	http.Redirect(w, r, authURL, http.StatusFound)
}

// CallbackHandler completes the consent flow: it validates the callback
// query, exchanges the authorization code for an upstream token pair,
// creates the principal, and returns the customer's identity info with the
// first session token in the x-auth header.
func (h *AggregatorHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	// The provider reports a declined consent as an error query param.
	if query.Get("error") != "" || !alphanumericCode.MatchString(query.Get("code")) {
		log.Printf("level=warn component=api msg=\"consent callback rejected\" provider_error=%q", query.Get("error"))
		writeJSON(w, http.StatusUnauthorized, newErrorPayload(http.StatusUnauthorized, CodeProviderCallbackError))
		return
	}

	principal, info, err := h.service.Authorize(r.Context(), query.Get("code"))
	if err != nil {
		// An identity-fetch failure happens after the principal and its
		// session token already exist; returning the token lets the caller
		// proceed without a second consent flow.
		if principal != nil {
			w.Header().Set(SessionTokenHeader, principal.SessionToken)
		}
		h.writeAppError(w, err)
		return
	}

	w.Header().Set(SessionTokenHeader, principal.SessionToken)
	writeJSON(w, http.StatusOK, map[string]interface{}{"Info": info})
}

// TransactionsHandler serves GET /user/transactions: it ensures the upstream
// credential is valid (refreshing transparently when expired), runs a full
// sync, and returns the per-account transaction sets.
func (h *AggregatorHandlers) TransactionsHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.writeAppError(w, app.ErrAuth)
		return
	}

	principal, rotated, err := h.service.EnsureValid(r.Context(), principal)
	if err != nil {
		h.writeAppError(w, err)
		return
	}
	if rotated {
		log.Printf("level=info component=api msg=\"session token rotated during request\" principal_id=%s", principal.ID)
	}

	result, err := h.service.Sync(r.Context(), principal)
	if err != nil {
		h.writeAppError(w, err)
		return
	}

	w.Header().Set(SessionTokenHeader, principal.SessionToken)
	writeJSON(w, http.StatusOK, map[string]interface{}{"Transactions": result.Accounts})
}

// StatisticsHandler serves GET /user/statistics from the cached or stored
// transaction set. This path never talks to the provider, so the session
// token is returned unrotated.
func (h *AggregatorHandlers) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.writeAppError(w, app.ErrAuth)
		return
	}

	stats, err := h.service.CategoryStatistics(r.Context(), principal.ID)
	if err != nil {
		h.writeAppError(w, err)
		return
	}

	w.Header().Set(SessionTokenHeader, principal.SessionToken)
	writeJSON(w, http.StatusOK, map[string]interface{}{"Statistics": statisticsResponse(stats)})
}

// statisticsResponse renders each category as a single-key object, the shape
// consumers of the statistics route expect:
// [{"INTEREST": {"min": 0.77, "max": 0.77, "average": 0.77}}].
func statisticsResponse(stats []domain.CategoryStats) []map[string]domain.AmountStats {
	out := make([]map[string]domain.AmountStats, len(stats))
	for i, s := range stats {
		out[i] = map[string]domain.AmountStats{s.Category: s.Display()}
	}
	return out
}

func (h *AggregatorHandlers) writeAppError(w http.ResponseWriter, err error) {
	status, code := mapAppError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("level=error component=api msg=\"request failed\" code=%s err=%v", code, err)
	}
	writeJSON(w, status, newErrorPayload(status, code))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}
