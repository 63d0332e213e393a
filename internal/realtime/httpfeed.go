package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPFeed polls a JSON trip-status endpoint. The request body lists the
// trips of interest; the response mirrors TripUpdate.
type HTTPFeed struct {
	URL    string
	Client *http.Client
}

func NewHTTPFeed(url string) *HTTPFeed {
	return &HTTPFeed{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

type feedRequest struct {
	Trips []TripQuery `json:"trips"`
}

type feedResponse struct {
	Updates []TripUpdate `json:"updates"`
}

func (f *HTTPFeed) FetchTrips(ctx context.Context, queries []TripQuery) ([]TripUpdate, error) {
	body, err := json.Marshal(feedRequest{Trips: queries})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}
	var decoded feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, err
	}
	return decoded.Updates, nil
}
