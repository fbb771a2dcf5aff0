// pyth.go implements a Pyth-Hermes-style HTTP PrimaryReader: a single
// signed price plus a publish-time timestamp, fetched over REST with a
// bounded timeout and retry on 5xx.
package oracle

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

type pythResponse struct {
	Price struct {
		Price      string `json:"price"`
		PublishTime int64  `json:"publish_time"`
	} `json:"price"`
}

// PythReader reads a Pyth-style price feed over HTTP.
type PythReader struct {
	http   *resty.Client
	feedID string
}

// NewPythReader builds a reader against baseURL for the given price-feed
// identifier.
func NewPythReader(baseURL, feedID string) *PythReader {
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
	return &PythReader{http: client, feedID: feedID}
}

// Read fetches the latest price for the configured feed.
func (p *PythReader) Read(ctx context.Context) (PrimarySample, error) {
	var result pythResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetQueryParam("ids[]", p.feedID).
		SetResult(&result).
		Get("/v2/updates/price/latest")
	if err != nil {
		return PrimarySample{}, fmt.Errorf("pyth read: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return PrimarySample{}, fmt.Errorf("pyth read: status %d: %s", resp.StatusCode(), resp.String())
	}

	value, err := strconv.ParseInt(result.Price.Price, 10, 64)
	if err != nil {
		return PrimarySample{}, fmt.Errorf("pyth read: parse price: %w", err)
	}

	return PrimarySample{
		Value:       value,
		PublishedAt: time.Unix(result.Price.PublishTime, 0),
	}, nil
}
