package search

import (
	"bytes"

	"github.com/neexbeast/travelapi-search/internal/upstream"
)

// Outcome classifies the executor's final result.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeClientError
	OutcomeServerError
	OutcomeNoResponse
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeClientError:
		return "client_error"
	case OutcomeServerError:
		return "server_error"
	case OutcomeNoResponse:
		return "no_response"
	default:
		return "unknown"
	}
}

// Action is what the service does with an outcome.
type Action int

const (
	ActionServeLive Action = iota
	ActionServeCache
	ActionClientError
	ActionUnavailable
)

const (
	WarningLiveUnavailable = "Results from cache - live search unavailable"
	WarningLiveHadErrors   = "Results from cache - live search had errors"
)

// Decision is the reconciler's verdict for one request.
type Decision struct {
	Outcome      Outcome
	Action       Action
	CacheWarning string
}

var destinationNotFound = []byte("destination not found")

// Classify maps an executor result to an Outcome. A non-2xx body mentioning an
// unknown destination is a client error whatever its status.
func Classify(res upstream.Result) Outcome {
	resp := res.Response
	if resp == nil {
		return OutcomeNoResponse
	}

	switch {
	case resp.Status >= 200 && resp.Status < 300:
		return OutcomeSuccess
	case DestinationNotFound(resp.Body):
		return OutcomeClientError
	case resp.Status >= 400 && resp.Status < 500:
		return OutcomeClientError
	default:
		return OutcomeServerError
	}
}

// DestinationNotFound reports whether body carries the upstream's unknown
// destination marker.
func DestinationNotFound(body []byte) bool {
	return bytes.Contains(bytes.ToLower(body), destinationNotFound)
}

// Decide maps an outcome and cache availability to an action. The cache is
// consulted only for transient upstream faults.
func Decide(o Outcome, cacheAvailable bool) Decision {
	d := Decision{Outcome: o}

	switch o {
	case OutcomeSuccess:
		d.Action = ActionServeLive
	case OutcomeClientError:
		d.Action = ActionClientError
	case OutcomeNoResponse:
		d.Action = ActionUnavailable
		if cacheAvailable {
			d.Action = ActionServeCache
			d.CacheWarning = WarningLiveUnavailable
		}
	default:
		d.Action = ActionUnavailable
		if cacheAvailable {
			d.Action = ActionServeCache
			d.CacheWarning = WarningLiveHadErrors
		}
	}

	return d
}
