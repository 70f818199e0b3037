//go:build !k4a || !cgo

package native

import (
	"github.com/pkg/errors"

	"go.viam.com/kinect/k4a"
)

// ErrUnavailable is returned by New in builds without the SDK.
var ErrUnavailable = errors.New("built without Azure Kinect support; rebuild with cgo and -tags k4a")

// New returns ErrUnavailable.
func New() (k4a.Provider, error) {
	return nil, ErrUnavailable
}
