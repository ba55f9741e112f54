package cubic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// CubicAccessClient controls the water valve of a single CubicSecure
// device.
type CubicAccessClient struct {
	session      *Session
	serialNumber string
}

// NewCubicAccessClient creates a valve control client for the device
// with the given serial number.
func NewCubicAccessClient(session *Session, serialNumber string) *CubicAccessClient {
	return &CubicAccessClient{session: session, serialNumber: serialNumber}
}

// GetValve returns the current valve state.
func (c *CubicAccessClient) GetValve(ctx context.Context) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("control/cubic/secure/%s/valve", c.serialNumber)

	return c.session.Request(ctx, http.MethodGet, endpoint, nil)
}

// OpenValve opens the valve.
func (c *CubicAccessClient) OpenValve(ctx context.Context) (json.RawMessage, error) {
	return c.SetValveState(ctx, true)
}

// CloseValve closes the valve.
func (c *CubicAccessClient) CloseValve(ctx context.Context) (json.RawMessage, error) {
	return c.SetValveState(ctx, false)
}

// SetValveState opens or closes the valve and returns the vendor's
// confirmation payload. Repeated calls simply repeat the POST; the API
// applies no idempotency guard.
func (c *CubicAccessClient) SetValveState(ctx context.Context, open bool) (json.RawMessage, error) {
	state := "close"
	if open {
		state = "open"
	}

	endpoint := fmt.Sprintf("control/cubic/secure/%s/valve/%s", c.serialNumber, state)

	return c.session.Request(ctx, http.MethodPost, endpoint, nil)
}
