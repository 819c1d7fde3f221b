package keyclient

import (
	"net/http"
	"time"
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
// The client's Timeout is overridden by WithTimeout (or the default 10s).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithTimeout sets the request timeout. Default is 10 seconds.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		cl.timeout = d
	}
}

// WithUserAgent sets the User-Agent header sent with requests.
func WithUserAgent(ua string) Option {
	return func(cl *Client) {
		cl.userAgent = ua
	}
}

// WithDeviceID fixes the device id used by ValidateDevice and by Validate
// requests that leave DeviceID empty. It takes precedence over KEYSERVER_DEVICE_ID.
func WithDeviceID(id string) Option {
	return func(cl *Client) {
		cl.deviceID = id
	}
}
