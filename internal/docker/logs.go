package docker

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"zeroone.host/internal/core/logger"
)

const logPollInterval = 500 * time.Millisecond

// Pairing codes appear in two forms: a labeled header-style line and a boxed
// display with the code between box-drawing borders.
var (
	pairingHeaderRe = regexp.MustCompile(`X-Pairing-Code:\s*(\d{6})`)
	pairingBoxRe    = regexp.MustCompile(`│\s+(\d{6})\s+│`)
)

// parseLogStream de-frames the engine's multiplexed log format into plain
// lines. Each frame is an 8-byte header (1 byte stream type, 3 bytes
// padding, 4-byte big-endian payload length) followed by the payload. Both
// stdout and stderr frames are kept. If the buffer carries no recognizable
// frames (TTY containers, plain-text log drivers) it falls back to naive
// newline splitting.
func parseLogStream(buf []byte) []string {
	var lines []string
	offset := 0

	for offset+8 <= len(buf) {
		size := int(binary.BigEndian.Uint32(buf[offset+4 : offset+8]))
		offset += 8
		if size == 0 {
			continue
		}
		if offset+size > len(buf) {
			break
		}

		chunk := string(buf[offset : offset+size])
		offset += size

		for _, line := range strings.Split(chunk, "\n") {
			if clean := strings.TrimRight(line, "\r \t"); clean != "" {
				lines = append(lines, clean)
			}
		}
	}

	if len(lines) == 0 && len(buf) > 0 {
		for _, line := range strings.Split(string(buf), "\n") {
			if clean := strings.TrimRight(line, "\r \t"); clean != "" {
				lines = append(lines, clean)
			}
		}
	}

	return lines
}

// latestPairingCode scans lines for 6-digit pairing codes in either
// recognized format and returns the most recently emitted match. Retries
// inside the agent process can print several distinct codes; the last one
// wins.
func latestPairingCode(lines []string) (string, bool) {
	code := ""
	for _, line := range lines {
		if m := pairingHeaderRe.FindStringSubmatch(line); m != nil {
			code = m[1]
		}
		if m := pairingBoxRe.FindStringSubmatch(line); m != nil {
			code = m[1]
		}
	}
	return code, code != ""
}

// ContainerLogs returns the last tail lines of the container's combined
// stdout/stderr, de-framed into plain text.
func (e *Engine) ContainerLogs(ctx context.Context, containerID string, tail int) ([]string, error) {
	opts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	}
	if tail > 0 {
		opts.Tail = strconv.Itoa(tail)
	}

	reader, err := e.cli.ContainerLogs(ctx, containerID, opts)
	if err != nil {
		return nil, fmt.Errorf("fetching container logs: %w", err)
	}
	defer reader.Close()

	buf, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading container logs: %w", err)
	}
	return parseLogStream(buf), nil
}

// WaitForPairingCode polls the container's recent logs until a pairing code
// appears or the timeout elapses.
func (e *Engine) WaitForPairingCode(ctx context.Context, containerID string, timeout time.Duration) (string, error) {
	return e.waitForCode(ctx, containerID, timeout, "")
}

// WaitForNewPairingCode waits for a code strictly different from
// previousCode. Codes printed before and after a restart can land in the
// same one-second log timestamp, so filtering logs by time is unreliable;
// comparing code values is the correct disambiguation.
func (e *Engine) WaitForNewPairingCode(ctx context.Context, containerID string, timeout time.Duration, previousCode string) (string, error) {
	return e.waitForCode(ctx, containerID, timeout, previousCode)
}

func (e *Engine) waitForCode(ctx context.Context, containerID string, timeout time.Duration, previousCode string) (string, error) {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		lines, err := e.ContainerLogs(ctx, containerID, 100)
		if err != nil {
			logger.Warn("pairing code scan failed", "container", containerID, "error", err)
		} else if code, ok := latestPairingCode(lines); ok && code != previousCode {
			return code, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(logPollInterval):
		}
	}

	if previousCode != "" {
		return "", fmt.Errorf("timed out waiting for new pairing code after restart")
	}
	return "", fmt.Errorf("timed out waiting for pairing code")
}
