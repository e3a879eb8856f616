package main

import (
	"bufio"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log"
	"os"
	"path"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/fatih/color"
	"github.com/moby/term"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/faasm/accless-attest/internal/addr"
	"github.com/faasm/accless-attest/internal/errs"
	"github.com/faasm/accless-attest/internal/report"
)

const (
	builderImage     = "gcr.io/kaniko-project/executor:v1.9.2"
	builderContainer = "accless-measure-builder"
	workloadTarImage = "workload.tar"
)

func removeContainer(cli *client.Client, id string) {
	ctx := context.Background()
	if err := cli.ContainerStop(ctx, id, container.StopOptions{Timeout: addr.Of(0)}); err != nil {
		log.Printf("failed to stop container %s: %v", id, err)
		return
	}
	if err := cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		log.Printf("failed to remove container %s: %v", id, err)
		return
	}
}

// buildWorkloadImage rebuilds the workload's image with kaniko in
// reproducible mode and saves it as a tar archive in cfg.dir, following
// veil-verify's kaniko-based enclave image rebuild, adapted from the Nitro
// enclave target to a generic linux/amd64 workload image.
func buildWorkloadImage(ctx context.Context, cli *client.Client, cfg *measureConfig, out io.Writer) (err error) {
	defer errs.Wrap(&err, "failed to build workload image")

	pullOut, err := cli.ImagePull(ctx, builderImage, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull kaniko image: %w", err)
	}
	defer closeQuiet(pullOut)
	if err := printDockerLogs(pullOut, out); err != nil {
		return err
	}

	containerConfig := &container.Config{
		Tty:   true,
		Image: builderImage,
		Cmd: []string{
			"--dockerfile", cfg.dockerfile,
			"--reproducible",
			"--no-push",
			"--log-format", "text",
			"--verbosity", "warn",
			"--tarPath", workloadTarImage,
			"--destination", "workload",
			"--custom-platform", "linux/amd64",
		},
	}
	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: cfg.dir, Target: "/workspace"},
		},
	}

	resp, err := cli.ContainerCreate(ctx, containerConfig, hostConfig, &network.NetworkingConfig{}, &v1.Platform{}, builderContainer)
	if err != nil {
		return fmt.Errorf("failed to create builder container: %w", err)
	}
	defer removeContainer(cli, resp.ID)

	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start builder container: %w", err)
	}

	logs, err := cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true, Follow: true})
	if err != nil {
		return fmt.Errorf("failed to get container logs: %w", err)
	}
	defer closeQuiet(logs)
	printLogs(logs, out)

	return exitCode(ctx, cli, resp.ID)
}

func exitCode(ctx context.Context, cli *client.Client, id string) error {
	inspect, err := cli.ContainerInspect(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to inspect container: %w", err)
	}
	if inspect.State.ExitCode != 0 {
		return fmt.Errorf("builder container failed with exit code %d", inspect.State.ExitCode)
	}
	return nil
}

// computeMeasurement hashes the tar image kaniko produced, using the same
// digest size as report.MeasurementSize so the result can be compared
// directly against a workload's advertised MRENCLAVE-equivalent value.
func computeMeasurement(cfg *measureConfig) ([report.MeasurementSize]byte, error) {
	var out [report.MeasurementSize]byte

	f, err := os.Open(path.Join(cfg.dir, workloadTarImage))
	if err != nil {
		return out, fmt.Errorf("failed to open built image: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return out, fmt.Errorf("failed to hash built image: %w", err)
	}
	copy(out[:], h.Sum(nil))
	return out, nil
}

func printLogs(from io.Reader, to io.Writer) {
	scanner := bufio.NewScanner(from)
	for scanner.Scan() {
		fmt.Fprintln(to, color.CyanString(scanner.Text()))
	}
}

func printDockerLogs(from io.Reader, to io.Writer) error {
	r, w := io.Pipe()
	go printLogs(r, to)

	termFd, isTerm := term.GetFdInfo(os.Stderr)
	if err := jsonmessage.DisplayJSONMessagesStream(from, w, termFd, isTerm, nil); err != nil {
		return fmt.Errorf("error in docker logs: %w", err)
	}
	return nil
}

func closeQuiet(c io.Closer) {
	if err := c.Close(); err != nil {
		log.Printf("failed to close reader: %v", err)
	}
}
