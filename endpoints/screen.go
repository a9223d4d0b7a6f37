package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/didip/tollbooth"
	"github.com/didip/tollbooth/limiter"
	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/mssola/user_agent"

	"github.com/bidscreen/bidscreen-server/adx"
	"github.com/bidscreen/bidscreen-server/analytics"
	"github.com/bidscreen/bidscreen-server/config"
	"github.com/bidscreen/bidscreen-server/errortypes"
	"github.com/bidscreen/bidscreen-server/exchange"
	"github.com/bidscreen/bidscreen-server/metrics"
)

// screenPayload is the body of a screening call: one auction's request and the
// buyer response to screen against it.
type screenPayload struct {
	Request  *adx.BidRequest  `json:"request"`
	Response *adx.BidResponse `json:"response"`
}

// NewScreenEndpoint builds the handler for POST /screen.
func NewScreenEndpoint(ex exchange.Exchange, cfg *config.Configuration, metricsEngine metrics.MetricsEngine, analyticsModule analytics.Module) (httprouter.Handle, error) {
	if ex == nil || cfg == nil || metricsEngine == nil || analyticsModule == nil {
		return nil, errors.New("NewScreenEndpoint requires non-nil arguments.")
	}

	deps := &endpointDeps{
		ex:            ex,
		cfg:           cfg,
		metricsEngine: metricsEngine,
		analytics:     analyticsModule,
		limiter:       NewRateLimiter(&cfg.RateLimit),
	}
	return httprouter.Handle(deps.Screen), nil
}

type endpointDeps struct {
	ex            exchange.Exchange
	cfg           *config.Configuration
	metricsEngine metrics.MetricsEngine
	analytics     analytics.Module
	limiter       *limiter.Limiter
}

// NewRateLimiter builds the tollbooth limiter guarding a screening endpoint.
// Returns nil when rate limiting is disabled.
func NewRateLimiter(cfg *config.RateLimit) *limiter.Limiter {
	if !cfg.Enabled {
		return nil
	}
	lmt := tollbooth.NewLimiter(float64(cfg.MaxRequestsPerSecond), &limiter.ExpirableOptions{
		DefaultExpirationTTL: time.Hour,
	})
	lmt.SetIPLookups([]string{"X-Forwarded-For", "X-Real-IP", "RemoteAddr"})
	lmt.SetMessage(`{"error": "rate limit reached"}`)
	lmt.SetMessageContentType("application/json")
	return lmt
}

// AccountID pulls the account from the query string. An empty account is fine
// unless the host has been configured to require one.
func AccountID(r *http.Request, cfg *config.Configuration) (string, error) {
	account := r.URL.Query().Get("account")
	if account == "" && cfg.AccountRequired {
		return "", &errortypes.AccountRequired{
			Message: "This server has been configured to discard requests without an account id. Please add ?account= to the request.",
		}
	}
	return account, nil
}

// Screen decodes the auction payload, screens the response against the
// request's placement constraints plus the account's stored defaults, and
// writes back whatever survived.
func (deps *endpointDeps) Screen(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	start := time.Now()

	labels := metrics.Labels{
		RType:         metrics.ReqTypeNative,
		PubID:         "",
		Browser:       metrics.BrowserOther,
		RequestStatus: metrics.RequestStatusOK,
	}
	if ua := user_agent.New(r.Header.Get("User-Agent")); ua != nil {
		name, _ := ua.Browser()
		if name == "Safari" {
			labels.Browser = metrics.BrowserSafari
		}
	}

	so := &analytics.ScreeningObject{
		Type:   analytics.NATIVE,
		Status: http.StatusOK,
	}

	// Defer here because the labels and the screening record fill in as the
	// request progresses.
	defer func() {
		deps.metricsEngine.RecordRequest(labels)
		deps.metricsEngine.RecordCandidateAds(labels, so.AdsIn)
		deps.metricsEngine.RecordCandidateBids(labels, so.BidsIn)
		deps.metricsEngine.RecordRequestTime(labels, time.Since(start))
		deps.analytics.LogScreeningObject(so)
	}()

	if deps.limiter != nil {
		if limited := tollbooth.LimitByRequest(deps.limiter, w, r); limited != nil {
			labels.RequestStatus = metrics.RequestStatusRateLimited
			so.Status = limited.StatusCode
			http.Error(w, limited.Message, limited.StatusCode)
			return
		}
	}

	account, err := AccountID(r, deps.cfg)
	if err != nil {
		labels.RequestStatus = metrics.RequestStatusAccountRequired
		so.Status = http.StatusBadRequest
		so.Errors = append(so.Errors, err)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Invalid request: %s\n", err.Error())
		return
	}
	labels.PubID = account
	so.Account = account

	payload, errL := deps.parseRequest(r)
	if len(errL) > 0 {
		labels.RequestStatus = metrics.RequestStatusBadInput
		so.Status = http.StatusBadRequest
		so.Errors = append(so.Errors, errL...)
		w.WriteHeader(http.StatusBadRequest)
		for _, err := range errL {
			w.Write([]byte(fmt.Sprintf("Invalid request format: %s\n", err.Error())))
		}
		return
	}

	result, err := deps.ex.ScreenNative(r.Context(), payload.Request, payload.Response, account)
	if result != nil {
		recordResult(so, result)
	}
	if err != nil {
		writeScreenError(w, err, &labels, so)
		return
	}

	responseBytes, err := json.Marshal(payload.Response)
	if err != nil {
		labels.RequestStatus = metrics.RequestStatusErr
		so.Status = http.StatusInternalServerError
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "Failed to marshal screening response: %v", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(responseBytes)
}

// parseRequest decodes and structurally validates the screening payload. If
// the errors list is empty, the payload carries a request and a response ready
// for screening; no promises are made otherwise.
func (deps *endpointDeps) parseRequest(httpRequest *http.Request) (*screenPayload, []error) {
	payload := &screenPayload{}
	if err := json.NewDecoder(httpRequest.Body).Decode(payload); err != nil {
		return nil, []error{err}
	}
	if errs := validatePayload(payload); len(errs) > 0 {
		return nil, errs
	}
	return payload, nil
}

func validatePayload(payload *screenPayload) (errs []error) {
	if payload.Request == nil {
		errs = append(errs, errors.New(`payload missing required field: "request"`))
	}
	if payload.Response == nil {
		errs = append(errs, errors.New(`payload missing required field: "response"`))
	}
	if len(errs) > 0 {
		return errs
	}
	return validateRequest(payload.Request)
}

func validateRequest(req *adx.BidRequest) (errs []error) {
	if req.ID == "" {
		errs = append(errs, errors.New(`request missing required field: "id"`))
	}
	seen := make(map[int64]int, len(req.AdSlot))
	for i := range req.AdSlot {
		slot := &req.AdSlot[i]
		if slot.ID == 0 {
			errs = append(errs, fmt.Errorf(`request.adslot[%d] missing required field: "id"`, i))
			continue
		}
		if first, ok := seen[slot.ID]; ok {
			errs = append(errs, fmt.Errorf("request.adslot[%d].id and request.adslot[%d].id are both %d. Placement ids must be unique.", first, i, slot.ID))
		} else {
			seen[slot.ID] = i
		}
		if len(slot.Width) != len(slot.Height) {
			errs = append(errs, fmt.Errorf("request.adslot[%d].width and request.adslot[%d].height must be the same length", i, i))
		}
	}
	return errs
}

func recordResult(so *analytics.ScreeningObject, result *exchange.ScreenResult) {
	so.TransactionID = result.TransactionID
	so.AdsIn = result.AdsIn
	so.AdsOut = result.AdsOut
	so.BidsIn = result.BidsIn
	so.BidsOut = result.BidsOut
	so.Rejections = result.Rejections
	so.Errors = append(so.Errors, result.Errors...)
}

// writeScreenError translates a screening failure into the response. Only
// malformed input fails a transaction, so anything not flagged BadInput is a
// server-side problem.
func writeScreenError(w http.ResponseWriter, err error, labels *metrics.Labels, so *analytics.ScreeningObject) {
	so.Errors = append(so.Errors, err)
	if errortypes.ReadCode(err) == errortypes.BadInputErrorCode {
		labels.RequestStatus = metrics.RequestStatusBadInput
		so.Status = http.StatusBadRequest
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(fmt.Sprintf("Invalid request format: %s\n", err.Error())))
		return
	}
	labels.RequestStatus = metrics.RequestStatusErr
	so.Status = http.StatusInternalServerError
	glog.Errorf("Critical error while screening: %v", err)
	w.WriteHeader(http.StatusInternalServerError)
	fmt.Fprintf(w, "Critical error while screening: %v", err)
}
