package cerr

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/kazz187/autoprovision/pkg/clog"
)

type responseReceiverKey struct{}

type responseReceiver struct {
	status   int
	response any
	err      error
}

func contextWithResponseReceiver(ctx context.Context, rr *responseReceiver) context.Context {
	return context.WithValue(ctx, responseReceiverKey{}, rr)
}

func responseReceiverFromContext(ctx context.Context) *responseReceiver {
	if rr, ok := ctx.Value(responseReceiverKey{}).(*responseReceiver); ok {
		return rr
	}
	return nil
}

// SetJSONResponse records the value the middleware encodes as the response
// body with status 200.
func SetJSONResponse(ctx context.Context, response any) {
	SetJSONResponseWithStatus(ctx, http.StatusOK, response)
}

func SetJSONResponseWithStatus(ctx context.Context, status int, response any) {
	if rr := responseReceiverFromContext(ctx); rr != nil {
		rr.status = status
		rr.response = response
	}
}

func SetJSONError(ctx context.Context, err error) {
	if rr := responseReceiverFromContext(ctx); rr != nil {
		rr.err = err
	}
}

func SetNewJSONError(ctx context.Context, code Code, msg string, err error) {
	SetJSONError(ctx, NewError(code, msg, err))
}

// NewJSONResponseChiMiddleware lets handlers report their outcome through
// SetJSONResponse / SetJSONError and writes the JSON body once the handler
// returns.
func NewJSONResponseChiMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			rr := &responseReceiver{}
			ctx := contextWithResponseReceiver(r.Context(), rr)
			next.ServeHTTP(rw, r.WithContext(ctx))
			writeResponse(ctx, rw, rr)
		})
	}
}

type httpError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeResponse(ctx context.Context, rw http.ResponseWriter, rr *responseReceiver) {
	if rr.err == nil {
		status := rr.status
		if status == 0 {
			status = http.StatusOK
		}
		writeJSON(ctx, rw, status, rr.response)
		return
	}
	cErr := Convert(rr.err)
	if cErr.Code != Canceled {
		clog.AddError(ctx, rr.err)
		if cErr.Stack != "" {
			clog.AddStack(ctx, cErr.Stack)
		}
	}
	writeJSON(ctx, rw, cErr.Code.HTTPCode(), httpError{Code: cErr.Code.String(), Message: cErr.Msg})
}

func writeJSON(ctx context.Context, rw http.ResponseWriter, status int, body any) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(body); err != nil {
		clog.AddError(ctx, NewError(Internal, "server error", err))
		status = http.StatusInternalServerError
		buf = bytes.NewBufferString(`{"code":"internal","message":"server error"}`)
	}
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(status)
	if _, err := rw.Write(buf.Bytes()); err != nil {
		clog.AddError(ctx, NewError(Internal, "server error", err))
	}
}
