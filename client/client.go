package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/podded/dashgate"
	"github.com/podded/dashgate/normalize"
)

type (
	// GatewayClient calls a dashgate server the way the dashboard does,
	// presenting its token as a bearer header.
	GatewayClient struct {
		serverAddress string
		client        http.Client
		token         string
	}

	// APIError is a gateway failure response.
	APIError struct {
		StatusCode int    `json:"-"`
		Message    string `json:"error"`
		Kind       string `json:"kind"`
	}
)

func (e *APIError) Error() string {
	return fmt.Sprintf("dashgate %d %s: %s", e.StatusCode, e.Kind, e.Message)
}

func NewClient(ServerAddress string, MaxTimeout time.Duration, Token string) (gatewayClient *GatewayClient, version string, err error) {

	// Set up our http client
	client := http.Client{
		Timeout: MaxTimeout,
	}

	// Make sure that we have a connection to the gateway.
	res, err := client.Get(ServerAddress + "/ping")
	if err != nil {
		return nil, "", errors.Wrap(err, "Failed to contact dashgate server")
	}
	defer res.Body.Close()

	var ver dashgate.Version
	if err = json.NewDecoder(res.Body).Decode(&ver); err != nil {
		return nil, "", errors.Wrap(err, "Failed to decode dashgate server version")
	}

	return &GatewayClient{
		serverAddress: ServerAddress,
		client:        client,
		token:         Token,
	}, ver.String(), nil
}

func (gc *GatewayClient) Suppliers(search string) ([]normalize.Supplier, error) {
	q := url.Values{}
	if search != "" {
		q.Set("search", search)
	}
	var out []normalize.Supplier
	return out, gc.do(http.MethodGet, "/api/suppliers", q, nil, &out)
}

// Bookings lists the bookings for date, formatted YYYY-MM-DD. An empty date
// lists whatever the upstream returns by default.
func (gc *GatewayClient) Bookings(date string) ([]normalize.Booking, error) {
	q := url.Values{}
	if date != "" {
		q.Set("date", date)
	}
	var out []normalize.Booking
	return out, gc.do(http.MethodGet, "/api/bookings", q, nil, &out)
}

func (gc *GatewayClient) BookingByCode(code string) (normalize.Booking, error) {
	var out normalize.Booking
	return out, gc.do(http.MethodGet, "/api/bookings/code/"+url.PathEscape(code), nil, nil, &out)
}

func (gc *GatewayClient) CheckIn(id string) (normalize.Booking, error) {
	var out normalize.Booking
	return out, gc.do(http.MethodPost, "/api/bookings/"+url.PathEscape(id)+"/checkin", nil, struct{}{}, &out)
}

func (gc *GatewayClient) RubberTypes() ([]normalize.Lookup, error) {
	var out []normalize.Lookup
	return out, gc.do(http.MethodGet, "/api/rubber-types", nil, nil, &out)
}

func (gc *GatewayClient) Me() (normalize.User, error) {
	var out normalize.User
	return out, gc.do(http.MethodGet, "/api/auth/me", nil, nil, &out)
}

func (gc *GatewayClient) do(method, path string, query url.Values, payload any, out any) error {
	target := gc.serverAddress + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "Failed to marshal request into json")
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, target, body)
	if err != nil {
		return errors.Wrap(err, "Failed to build http request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if gc.token != "" {
		req.Header.Set("Authorization", "Bearer "+gc.token)
	}

	response, err := gc.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "Error making request to dashgate")
	}
	defer response.Body.Close()

	resbytes, err := io.ReadAll(response.Body)
	if err != nil {
		return errors.Wrap(err, "Error reading response from dashgate")
	}

	if response.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: response.StatusCode}
		if json.Unmarshal(resbytes, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(response.StatusCode)
		}
		return apiErr
	}

	return errors.Wrapf(json.Unmarshal(resbytes, out), "Failed to decode %s response", path)
}
