// Command accless-measure reproducibly rebuilds a workload's container image
// with kaniko and computes the measurement a genuine instance of that
// workload would report, so a relying party can check accless-verify's
// output against a value it computed itself rather than one the workload
// operator supplied.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/docker/docker/client"
	"github.com/fatih/color"

	"github.com/faasm/accless-attest/internal/errs"
)

type measureConfig struct {
	dir        string
	dockerfile string
	want       string
}

func parseFlags(out io.Writer, args []string) (*measureConfig, error) {
	fs := flag.NewFlagSet("accless-measure", flag.ContinueOnError)
	fs.SetOutput(out)

	dir := fs.String("dir", ".", "build context directory for the workload image")
	dockerfile := fs.String("dockerfile", "Dockerfile", "path to the Dockerfile, relative to -dir")
	want := fs.String("expect", "", "expected measurement, hex-encoded (optional)")

	if err := fs.Parse(args); err != nil {
		fs.PrintDefaults()
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}
	return &measureConfig{dir: *dir, dockerfile: *dockerfile, want: *want}, nil
}

func run(ctx context.Context, out io.Writer, args []string) (err error) {
	defer errs.Wrap(&err, "failed to run accless-measure")

	log.SetFlags(log.LstdFlags | log.Lshortfile | log.LUTC)
	log.SetOutput(out)

	cfg, err := parseFlags(out, args)
	if err != nil {
		return err
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("failed to create docker client: %w", err)
	}
	defer cli.Close()

	if err := buildWorkloadImage(ctx, cli, cfg, out); err != nil {
		return err
	}
	measurement, err := computeMeasurement(cfg)
	if err != nil {
		return err
	}
	got := hex.EncodeToString(measurement[:])

	if cfg.want == "" {
		fmt.Fprintf(out, "measurement: %s\n", got)
		return nil
	}
	if got != cfg.want {
		color.Red("Rebuilt image measurement does NOT match: got %s, want %s", got, cfg.want)
		return fmt.Errorf("measurement mismatch")
	}
	color.Green("Rebuilt image measurement matches: %s", got)
	return nil
}

func main() {
	if err := run(context.Background(), os.Stdout, os.Args[1:]); err != nil {
		log.Fatalf("accless-measure: %v", err)
	}
}
