package cubic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// CubicClient reads measurement and configuration data for a single
// CubicSecure device. It is stateless beyond the serial number.
type CubicClient struct {
	session      *Session
	serialNumber string
}

// NewCubicClient creates a device client for the device with the
// given serial number.
func NewCubicClient(session *Session, serialNumber string) *CubicClient {
	return &CubicClient{session: session, serialNumber: serialNumber}
}

// GetMeasurement returns the device's current measurement data (water
// volume, flow, temperature and pressure readings).
func (c *CubicClient) GetMeasurement(ctx context.Context, bypass bool) (json.RawMessage, error) {
	return c.deviceData(ctx, "measurement", bypass)
}

// GetConfiguration returns the device's configuration.
func (c *CubicClient) GetConfiguration(ctx context.Context, bypass bool) (json.RawMessage, error) {
	return c.deviceData(ctx, "configuration", bypass)
}

func (c *CubicClient) deviceData(ctx context.Context, kind string, bypass bool) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("service/cubic/secure/%s/%s/%s", c.serialNumber, kind, bypassSegment(bypass))

	return c.session.Request(ctx, http.MethodGet, endpoint, nil)
}
