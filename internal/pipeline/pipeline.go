package pipeline

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"parishdesk/internal/observability"
)

// Next forwards a request to the remainder of the chain.
type Next func(http.ResponseWriter, *http.Request)

// Stage is one step of the resolution chain. A stage either calls next,
// possibly after augmenting the request, or writes a terminal response and
// returns without calling it.
type Stage func(http.ResponseWriter, *http.Request, Next)

// Compose folds an ordered list of stages into a single stage. The fold is
// iterative, right to left: the last stage's next is the composed stage's
// next. Compose performs no error translation; a recovery stage, if wanted,
// must be first in the list.
func Compose(stages ...Stage) Stage {
	return func(w http.ResponseWriter, r *http.Request, next Next) {
		for i := len(stages) - 1; i >= 0; i-- {
			stage := stages[i]
			inner := next
			next = func(w http.ResponseWriter, r *http.Request) {
				stage(w, r, inner)
			}
		}
		next(w, r)
	}
}

// Chain composes the stages and terminates them in final, producing a plain
// http.Handler. Inbound contract headers are stripped and a fresh
// RequestContext is installed before the first stage runs.
func Chain(stages []Stage, final http.Handler, observer observability.Observer) http.Handler {
	composed := Compose(stages...)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		StripContractHeaders(r)
		rc := &RequestContext{RequestID: uuid.NewString()}
		r = r.WithContext(WithRequestContext(r.Context(), rc))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		composed(rec, r, func(w http.ResponseWriter, r *http.Request) {
			final.ServeHTTP(w, r)
		})
		observer.RequestCompleted(r.Method, rec.status, time.Since(start))
	})
}

// Recovery converts a panicking stage into the generic error redirect so
// internals never reach the client. It must be the outermost stage.
func Recovery(errorURL string, observer observability.Observer) Stage {
	return func(w http.ResponseWriter, r *http.Request, next Next) {
		defer func() {
			if rec := recover(); rec != nil {
				observer.StagePanicked(r.URL.Path, rec)
				http.Redirect(w, r, errorURL, http.StatusFound)
			}
		}()
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (sr *statusRecorder) WriteHeader(status int) {
	if !sr.wrote {
		sr.status = status
		sr.wrote = true
	}
	sr.ResponseWriter.WriteHeader(status)
}

func (sr *statusRecorder) Write(p []byte) (int, error) {
	sr.wrote = true
	return sr.ResponseWriter.Write(p)
}
