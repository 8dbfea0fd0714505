package rideAuth

import "context"

type deviceIDContextKey struct{}

// WithDeviceID attaches an installation identifier to ctx. The controller
// copies it into audit events so attempts from one device can be correlated.
func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	return context.WithValue(ctx, deviceIDContextKey{}, deviceID)
}

func deviceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	deviceID, _ := ctx.Value(deviceIDContextKey{}).(string)
	return deviceID
}
