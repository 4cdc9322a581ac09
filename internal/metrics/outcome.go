package metrics

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Class identifies the kind of request a virtual user issued.
type Class string

const (
	ClassLight Class = "light"
	ClassHeavy Class = "heavy"
)

// Kind is the classified result of one request attempt.
type Kind int

const (
	KindSuccess Kind = iota
	KindRateLimited
	KindClientError
	KindServerError
	KindNetworkError

	kindCount
)

// Kinds lists every outcome kind in report order.
var Kinds = []Kind{KindSuccess, KindRateLimited, KindClientError, KindServerError, KindNetworkError}

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRateLimited:
		return "rate_limited"
	case KindClientError:
		return "client_error"
	case KindServerError:
		return "server_error"
	case KindNetworkError:
		return "network_error"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	if k < 0 || k >= kindCount {
		return nil, fmt.Errorf("invalid outcome kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	name := strings.TrimSpace(string(text))
	for _, candidate := range Kinds {
		if candidate.String() == name {
			*k = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown outcome kind %q", name)
}

// Outcome is one completed request attempt. It is a value type and never
// modified after the executor returns it.
type Outcome struct {
	Class      Class
	Kind       Kind
	StatusCode int // 0 when no response was received
	Latency    time.Duration
	Start      time.Time
	Reason     string // network error category, empty otherwise
}

// Classify maps an HTTP status or transport error onto an outcome kind.
// A non-nil err always wins: the request never produced a usable response.
func Classify(status int, err error) Kind {
	if err != nil {
		return KindNetworkError
	}
	switch {
	case status >= 200 && status <= 299:
		return KindSuccess
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServerError
	default:
		return KindClientError
	}
}
