package hostbridge

import (
	"context"
	"testing"

	"github.com/faasm/accless-attest/internal/report"
	"github.com/stretchr/testify/require"
)

func TestNoopBridgeReturnsCannedData(t *testing.T) {
	n := NewNoop()
	n.TargetInfo[0] = 0xAB
	n.Buffer = &TransferBuffer{Data: make([]byte, 10+64), ResponseSize: 10}

	ti, status, err := n.GetQETargetInfo(context.Background())
	require.NoError(t, err)
	require.True(t, status.OK())
	require.Equal(t, byte(0xAB), ti[0])

	buf, status, err := n.SubmitQuote(context.Background(), &report.Quote{})
	require.NoError(t, err)
	require.True(t, status.OK())
	require.Len(t, buf.JWEBase64(), 10)
	require.Len(t, buf.ServerPubKeyRaw(), 64)
}

func TestTransferBufferSlices(t *testing.T) {
	data := make([]byte, 5+64)
	for i := range data {
		data[i] = byte(i)
	}
	buf := &TransferBuffer{Data: data, ResponseSize: 5}

	require.Equal(t, data[:5], buf.JWEBase64())
	require.Equal(t, data[5:69], buf.ServerPubKeyRaw())
}

func TestStatusOK(t *testing.T) {
	require.True(t, Status{}.OK())
	require.False(t, Status{Transport: 1}.OK())
	require.False(t, Status{Inner: 1}.OK())
}
