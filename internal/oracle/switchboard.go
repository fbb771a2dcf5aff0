// switchboard.go implements a Switchboard-style HTTP SecondaryReader:
// mantissa*10^scale plus the aggregator's reporting slot and sample
// count, fetched over REST.
package oracle

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

type switchboardResponse struct {
	Result struct {
		Mantissa   int64 `json:"mantissa"`
		Scale      int32 `json:"scale"`
		Slot       uint64 `json:"slot"`
		NumSuccess int    `json:"num_success"`
	} `json:"result"`
}

// SwitchboardReader reads a Switchboard-style aggregator feed over HTTP.
type SwitchboardReader struct {
	http        *resty.Client
	aggregator  string
}

// NewSwitchboardReader builds a reader against baseURL for the given
// aggregator identifier.
func NewSwitchboardReader(baseURL, aggregator string) *SwitchboardReader {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})
	return &SwitchboardReader{http: client, aggregator: aggregator}
}

// Read fetches the latest aggregated value for the configured aggregator.
func (s *SwitchboardReader) Read(ctx context.Context) (SecondarySample, error) {
	var result switchboardResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetQueryParam("aggregator", s.aggregator).
		SetResult(&result).
		Get("/api/v1/aggregator/latest")
	if err != nil {
		return SecondarySample{}, fmt.Errorf("switchboard read: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return SecondarySample{}, fmt.Errorf("switchboard read: status %d: %s", resp.StatusCode(), resp.String())
	}

	return SecondarySample{
		Mantissa:   result.Result.Mantissa,
		Scale:      result.Result.Scale,
		Slot:       result.Result.Slot,
		NumSamples: result.Result.NumSuccess,
	}, nil
}
