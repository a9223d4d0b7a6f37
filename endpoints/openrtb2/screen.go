package openrtb2

import (
	"context"
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
	"github.com/mxmCherry/openrtb"

	"github.com/bidscreen/bidscreen-server/analytics"
	"github.com/bidscreen/bidscreen-server/config"
	"github.com/bidscreen/bidscreen-server/endpoints"
	"github.com/bidscreen/bidscreen-server/errortypes"
	"github.com/bidscreen/bidscreen-server/exchange"
	"github.com/bidscreen/bidscreen-server/metrics"
	"github.com/bidscreen/bidscreen-server/privacy"
)

// screenPayload is the body of an OpenRTB screening call: the bid request and
// the seat bids to screen against it.
type screenPayload struct {
	Request  *openrtb.BidRequest  `json:"request"`
	Response *openrtb.BidResponse `json:"response"`
}

// NewEndpoint builds the handler for POST /openrtb2/screen.
func NewEndpoint(ex exchange.Exchange, cfg *config.Configuration, metricsEngine metrics.MetricsEngine, analyticsModule analytics.Module, privacyPolicy *privacy.Policy) (httprouter.Handle, error) {
	if ex == nil || cfg == nil || metricsEngine == nil || analyticsModule == nil || privacyPolicy == nil {
		return nil, errors.New("NewEndpoint requires non-nil arguments.")
	}

	deps := &endpointDeps{
		ex:            ex,
		cfg:           cfg,
		metricsEngine: metricsEngine,
		analytics:     analyticsModule,
		privacy:       privacyPolicy,
		limiter:       endpoints.NewRateLimiter(&cfg.RateLimit),
	}
	return httprouter.Handle(deps.Screen), nil
}

type endpointDeps struct {
	ex            exchange.Exchange
	cfg           *config.Configuration
	metricsEngine metrics.MetricsEngine
	analytics     analytics.Module
	privacy       *privacy.Policy
	limiter       *limiter.Limiter
}

// Screen decodes the request/response pair, screens the seat bids against the
// impressions' constraints plus the account's stored defaults, and writes back
// the pruned response.
func (deps *endpointDeps) Screen(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	start := time.Now()

	labels := metrics.Labels{
		RType:         metrics.ReqTypeORTB2,
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
		Type:   analytics.OPENRTB2,
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

	account, err := endpoints.AccountID(r, deps.cfg)
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

	payload, ctx, cancel, errL := deps.parseRequest(r)
	defer cancel() // Safe because parseRequest returns a no-op if there's nothing to cancel
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

	// The analytics record only carries personal fields when the request's
	// consent allows logging them.
	if deps.privacy.PersonalInfoAllowed(payload.Request) {
		so.Device = payload.Request.Device
		so.User = payload.Request.User
	}

	result, err := deps.ex.ScreenOpenRTB(ctx, payload.Request, payload.Response, account)
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

// parseRequest decodes the payload and derives the screening deadline from the
// request's tmax. It always returns a context and a cancellation func which
// should be called once screening finishes.
func (deps *endpointDeps) parseRequest(httpRequest *http.Request) (payload *screenPayload, ctx context.Context, cancel func(), errs []error) {
	payload = &screenPayload{}
	ctx = context.Background()
	cancel = func() {}

	if err := json.NewDecoder(httpRequest.Body).Decode(payload); err != nil {
		errs = []error{err}
		return
	}

	if errs = validatePayload(payload); len(errs) > 0 {
		return
	}

	if payload.Request.TMax > 0 {
		ctx, cancel = context.WithTimeout(ctx, time.Duration(payload.Request.TMax)*time.Millisecond)
	}
	return
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

func validateRequest(req *openrtb.BidRequest) (errs []error) {
	if req.ID == "" {
		errs = append(errs, errors.New(`request missing required field: "id"`))
	}
	if req.TMax < 0 {
		errs = append(errs, fmt.Errorf("request.tmax must be nonnegative. Got %d", req.TMax))
	}
	if len(req.Imp) < 1 {
		errs = append(errs, errors.New("request.imp must contain at least one element."))
	}
	seen := make(map[string]int, len(req.Imp))
	for i := range req.Imp {
		imp := &req.Imp[i]
		if imp.ID == "" {
			errs = append(errs, fmt.Errorf(`request.imp[%d] missing required field: "id"`, i))
			continue
		}
		if first, ok := seen[imp.ID]; ok {
			errs = append(errs, fmt.Errorf("request.imp[%d].id and request.imp[%d].id are both %q. Imp ids must be unique.", first, i, imp.ID))
		} else {
			seen[imp.ID] = i
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
