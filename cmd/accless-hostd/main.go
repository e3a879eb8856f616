// Command accless-hostd runs the untrusted host bridge process: it listens
// on AF_VSOCK for requests from the TEE-side attestation engine, forwards
// them to the local platform (the Quoting Enclave) and the remote
// attestation service, and relays the results back over the same
// connection. It never sees plaintext application data; its job ends at
// shuttling opaque quotes and encrypted responses.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"

	"github.com/faasm/accless-attest/internal/asclient"
	"github.com/faasm/accless-attest/internal/codec"
	"github.com/faasm/accless-attest/internal/config"
	"github.com/faasm/accless-attest/internal/engine"
	"github.com/faasm/accless-attest/internal/errs"
	"github.com/faasm/accless-attest/internal/report"
	"github.com/mdlayher/vsock"
)

const (
	opGetQETargetInfo byte = 1
	opSubmitQuote     byte = 2

	defaultVSOCKPort = 5005
)

// qeProvider is the local capability accless-hostd needs from the platform's
// Quoting Enclave: target info to hand the TEE, on request. Production
// deployments back this with the platform's AESM/QE client; tests and
// development back it with a canned value.
type qeProvider interface {
	TargetInfo() [report.TargetInfoSize]byte
}

// staticQEProvider returns a fixed target info blob, e.g. one read once at
// startup from the local QE socket. It stands in for a real AESM client,
// which is outside this module's dependency surface.
type staticQEProvider struct {
	info [report.TargetInfoSize]byte
}

func (p *staticQEProvider) TargetInfo() [report.TargetInfoSize]byte {
	return p.info
}

// hostdFlags bundles accless-hostd's own operator-facing flags alongside the
// shared config.Config.
type hostdFlags struct {
	cfg        *config.Config
	statusAddr string
	debug      bool
}

func parseFlags(out io.Writer, args []string) (*hostdFlags, error) {
	fs := flag.NewFlagSet("accless-hostd", flag.ContinueOnError)
	fs.SetOutput(out)

	asURL := fs.String(
		"attestation-service-url",
		"",
		"the attestation service endpoint, e.g. https://as.example.com:8443",
	)
	vsockPort := fs.Uint(
		"vsock-port",
		defaultVSOCKPort,
		"the vsock port to listen on for enclave connections",
	)
	testing := fs.Bool(
		"insecure",
		false,
		"enable testing mode",
	)
	statusAddr := fs.String(
		"status-addr",
		"localhost:9090",
		"address for the operator-facing health/status HTTP server",
	)
	debug := fs.Bool(
		"debug",
		false,
		"enable debug logging on the status server",
	)

	if err := fs.Parse(args); err != nil {
		fs.PrintDefaults()
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	return &hostdFlags{
		cfg: &config.Config{
			AttestationServiceURL: *asURL,
			AttestationEnabled:    !*testing,
			Testing:               *testing,
			VSOCKPort:             uint32(*vsockPort),
		},
		statusAddr: *statusAddr,
		debug:      *debug,
	}, nil
}

// bridgeServer serves connections from the TEE-side hostbridge.VsockBridge.
type bridgeServer struct {
	qe qeProvider
	as *asclient.Client
}

func (s *bridgeServer) serve(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				log.Printf("accept failed: %v", err)
				continue
			}
		}
		go s.handle(conn)
	}
}

func (s *bridgeServer) handle(conn net.Conn) {
	defer conn.Close()

	var op [1]byte
	if _, err := io.ReadFull(conn, op[:]); err != nil {
		log.Printf("failed to read opcode: %v", err)
		return
	}

	var err error
	switch op[0] {
	case opGetQETargetInfo:
		err = s.handleGetQETargetInfo(conn)
	case opSubmitQuote:
		err = s.handleSubmitQuote(conn)
	default:
		err = fmt.Errorf("unknown opcode %d", op[0])
	}
	if err != nil {
		log.Printf("failed to handle request: %v", err)
	}
}

func writeStatus(w io.Writer, transport, inner int) error {
	var raw [8]byte
	binary.BigEndian.PutUint32(raw[:4], uint32(int32(transport)))
	binary.BigEndian.PutUint32(raw[4:], uint32(int32(inner)))
	_, err := w.Write(raw[:])
	return err
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

func (s *bridgeServer) handleGetQETargetInfo(conn net.Conn) error {
	info := s.qe.TargetInfo()
	if err := writeStatus(conn, 0, 0); err != nil {
		return err
	}
	return writeFrame(conn, info[:])
}

func (s *bridgeServer) handleSubmitQuote(conn net.Conn) (err error) {
	defer errs.Wrap(&err, "failed to handle submit-quote")

	quoteBytes, err := readFrame(conn)
	if err != nil {
		return err
	}
	quote, err := report.ParseQuote(quoteBytes)
	if err != nil {
		_ = writeStatus(conn, 0, 1)
		return err
	}

	respBody, err := s.as.AttestEnclave(quote, quote.Body.ReportData)
	if err != nil {
		_ = writeStatus(conn, 0, 1)
		return err
	}

	encryptedToken, serverPubKeyB64, err := engine.ParseASResponse(respBody)
	if err != nil {
		_ = writeStatus(conn, 0, 1)
		return err
	}
	serverPubKeyRaw := codec.DecodeStd(serverPubKeyB64)
	if len(serverPubKeyRaw) != report.ReportDataSize {
		_ = writeStatus(conn, 0, 1)
		return errs.MalformedAsResponse
	}

	if err := writeStatus(conn, 0, 0); err != nil {
		return err
	}
	var respSizeBuf [4]byte
	binary.BigEndian.PutUint32(respSizeBuf[:], uint32(len(encryptedToken)))
	if _, err := conn.Write(respSizeBuf[:]); err != nil {
		return err
	}

	data := make([]byte, 0, len(encryptedToken)+report.ReportDataSize)
	data = append(data, encryptedToken...)
	data = append(data, serverPubKeyRaw...)
	return writeFrame(conn, data)
}

func run(ctx context.Context, out io.Writer, args []string) (err error) {
	defer errs.Wrap(&err, "failed to run accless-hostd")

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	log.SetFlags(log.LstdFlags | log.Lshortfile | log.LUTC)
	log.SetOutput(out)

	flags, err := parseFlags(out, args)
	if err != nil {
		return err
	}
	cfg := flags.cfg
	if problems := cfg.Validate(ctx); len(problems) > 0 {
		for field, problem := range problems {
			log.Printf("invalid configuration: field %q: %v", field, problem)
		}
		return fmt.Errorf("invalid configuration")
	}

	asClient, err := asclient.New(cfg.AttestationServiceURL)
	if err != nil {
		return err
	}

	ln, err := vsock.Listen(cfg.VSOCKPort, nil)
	if err != nil {
		return fmt.Errorf("failed to listen on vsock port %d: %w", cfg.VSOCKPort, err)
	}
	defer ln.Close()

	log.Printf("accless-hostd listening on vsock port %d", cfg.VSOCKPort)

	statusSrv := &http.Server{
		Addr:    flags.statusAddr,
		Handler: newStatusRouter(cfg.AttestationServiceURL, cfg.VSOCKPort, flags.debug),
	}
	go func() {
		if err := statusSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("status server stopped: %v", err)
		}
	}()

	srv := &bridgeServer{qe: &staticQEProvider{}, as: asClient}
	go func() {
		<-ctx.Done()
		ln.Close()
		_ = statusSrv.Close()
	}()
	srv.serve(ctx, ln)
	return nil
}

func main() {
	if err := run(context.Background(), os.Stdout, os.Args[1:]); err != nil {
		log.Fatalf("accless-hostd: %v", err)
	}
}
