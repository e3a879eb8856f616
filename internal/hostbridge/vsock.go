package hostbridge

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/faasm/accless-attest/internal/errs"
	"github.com/faasm/accless-attest/internal/report"
	"github.com/mdlayher/vsock"
)

// hostCID is the CID (analogous to an IP address) of the parent instance
// that hosts the untrusted bridge process, matching the convention AWS
// documents for its own hypervisor: the parent is always reachable at CID 3.
const hostCID = 3

// opcodes for the tiny length-prefixed RPC this bridge speaks over vsock.
const (
	opGetQETargetInfo byte = 1
	opSubmitQuote     byte = 2
)

// VsockBridge reaches the untrusted host bridge process over AF_VSOCK, the
// same transport veil's tunnel package uses to reach its host-side proxy.
type VsockBridge struct {
	port uint32
}

// NewVsockBridge returns a Bridge that dials the host bridge listening on
// port on the parent CID.
func NewVsockBridge(port uint32) *VsockBridge {
	return &VsockBridge{port: port}
}

func (b *VsockBridge) dial(ctx context.Context) (net.Conn, error) {
	conn, err := vsock.Dial(hostCID, b.port, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to host bridge: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	return conn, nil
}

func readStatus(r io.Reader) (Status, error) {
	var raw [8]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return Status{}, err
	}
	return Status{
		Transport: int(int32(binary.BigEndian.Uint32(raw[:4]))),
		Inner:     int(int32(binary.BigEndian.Uint32(raw[4:]))),
	}, nil
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeFrame(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// GetQETargetInfo implements Bridge.
func (b *VsockBridge) GetQETargetInfo(ctx context.Context) (out [report.TargetInfoSize]byte, status Status, err error) {
	defer errs.Wrap(&err, "failed to get qe target info over vsock")

	conn, err := b.dial(ctx)
	if err != nil {
		return out, status, err
	}
	defer conn.Close()

	if _, err = conn.Write([]byte{opGetQETargetInfo}); err != nil {
		return out, status, err
	}
	status, err = readStatus(conn)
	if err != nil {
		return out, status, err
	}
	if !status.OK() {
		return out, status, nil
	}

	frame, err := readFrame(conn)
	if err != nil {
		return out, status, err
	}
	if len(frame) != report.TargetInfoSize {
		return out, status, errs.MalformedReport
	}
	copy(out[:], frame)
	return out, status, nil
}

// SubmitQuote implements Bridge.
func (b *VsockBridge) SubmitQuote(ctx context.Context, q *report.Quote) (buf *TransferBuffer, status Status, err error) {
	defer errs.Wrap(&err, "failed to submit quote over vsock")

	conn, err := b.dial(ctx)
	if err != nil {
		return nil, status, err
	}
	defer conn.Close()

	if _, err = conn.Write([]byte{opSubmitQuote}); err != nil {
		return nil, status, err
	}
	if err = writeFrame(conn, q.Bytes()); err != nil {
		return nil, status, err
	}
	status, err = readStatus(conn)
	if err != nil {
		return nil, status, err
	}
	if !status.OK() {
		return nil, status, nil
	}

	var respSizeBuf [4]byte
	if _, err = io.ReadFull(conn, respSizeBuf[:]); err != nil {
		return nil, status, err
	}
	responseSize := int(binary.BigEndian.Uint32(respSizeBuf[:]))

	data, err := readFrame(conn)
	if err != nil {
		return nil, status, err
	}
	if len(data) != responseSize+64 {
		return nil, status, errs.MalformedAsResponse
	}

	return &TransferBuffer{Data: data, ResponseSize: responseSize}, status, nil
}
