package opcua

import (
	"context"
	"errors"
	"net"
	"os"

	"github.com/IndustryFusion/fusionopcuadataservice/internal/domain"

	"github.com/gopcua/opcua/ua"
)

var pointStatuses = map[ua.StatusCode]struct{}{
	ua.StatusBadNodeIDUnknown:      {},
	ua.StatusBadNodeIDInvalid:      {},
	ua.StatusBadAttributeIDInvalid: {},
	ua.StatusBadNotReadable:        {},
	ua.StatusBadUserAccessDenied:   {},
}

var timeoutStatuses = map[ua.StatusCode]struct{}{
	ua.StatusBadTimeout:        {},
	ua.StatusBadRequestTimeout: {},
}

// classifyReadError maps a failed read onto the three read error kinds. Any
// failure not attributable to the point itself invalidates the session.
func classifyReadError(nodeID string, err error) *domain.ReadError {
	var code ua.StatusCode
	if errors.As(err, &code) {
		if _, ok := pointStatuses[code]; ok {
			return domain.NewReadError(domain.PointNotFound, nodeID, err)
		}
		if _, ok := timeoutStatuses[code]; ok {
			return domain.NewReadError(domain.Timeout, nodeID, err)
		}
		return domain.NewReadError(domain.SessionInvalid, nodeID, err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return domain.NewReadError(domain.Timeout, nodeID, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.NewReadError(domain.Timeout, nodeID, err)
	}
	return domain.NewReadError(domain.SessionInvalid, nodeID, err)
}
