package device

import (
	"testing"

	"go.viam.com/kinect/testutils"
)

func TestMain(m *testing.M) {
	testutils.VerifyTestMain(m)
}
