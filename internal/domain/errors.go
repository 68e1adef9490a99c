package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNoToken        = errors.New("no auth token")
	ErrUpstreamFault  = errors.New("upstream service fault")
	ErrWSDisconnect   = errors.New("websocket disconnected")
	ErrFeedStopped    = errors.New("feed stopped")
	ErrRotationFailed = errors.New("credential rotation failed")
	ErrPurchaseDenied = errors.New("purchase rejected by marketplace")
	ErrInvalidPayload = errors.New("unusable payload")
)
