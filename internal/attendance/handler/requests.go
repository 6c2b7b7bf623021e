package handler

import (
	"time"

	"github.com/asaskevich/govalidator"

	dErrors "fieldwatch/pkg/domain-errors"
)

// clockRequest is the JSON body of POST /v1/clock/in and /v1/clock/out.
// The device ID travels in the X-Device-ID header, not the body, so the
// binding check covers every request the app makes, not just clock calls.
type clockRequest struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Fingerprint string  `json:"fingerprint,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"` // RFC 3339; empty means server time
}

func (r clockRequest) validate() (time.Time, error) {
	if !govalidator.InRangeFloat64(r.Latitude, -90, 90) {
		return time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "latitude must be within [-90, 90]")
	}
	if !govalidator.InRangeFloat64(r.Longitude, -180, 180) {
		return time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "longitude must be within [-180, 180]")
	}
	if r.Fingerprint != "" && !govalidator.StringLength(r.Fingerprint, "1", "1024") {
		return time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "fingerprint sample too large")
	}
	if r.Timestamp == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeInvalidInput, "timestamp must be RFC 3339")
	}
	return ts, nil
}
