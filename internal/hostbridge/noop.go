package hostbridge

import (
	"context"

	"github.com/faasm/accless-attest/internal/report"
)

// NoopBridge is a canned test double for Bridge, following veil's
// NoopTunneler pattern: it returns fixed buffers instead of making any real
// untrusted transition, so the engine can be exercised without a host
// process or a vsock transport.
type NoopBridge struct {
	TargetInfo [report.TargetInfoSize]byte
	Buffer     *TransferBuffer
	Status     Status
	Err        error
}

// NewNoop returns a Bridge that always succeeds with canned data, unless Err
// is set.
func NewNoop() *NoopBridge {
	return &NoopBridge{}
}

func (n *NoopBridge) GetQETargetInfo(_ context.Context) ([report.TargetInfoSize]byte, Status, error) {
	return n.TargetInfo, n.Status, n.Err
}

func (n *NoopBridge) SubmitQuote(_ context.Context, _ *report.Quote) (*TransferBuffer, Status, error) {
	return n.Buffer, n.Status, n.Err
}
