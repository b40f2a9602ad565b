package output

import (
	"context"

	"github.com/crimson-sun/netsentry/internal/model"
)

// Output defines the interface for alert destinations.
type Output interface {
	Write(ctx context.Context, alert model.Alert) error
	Close() error
}
