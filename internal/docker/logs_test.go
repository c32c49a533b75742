package docker

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frame wraps payload in the engine's 8-byte multiplex header.
func frame(streamType byte, payload string) []byte {
	buf := make([]byte, 8+len(payload))
	buf[0] = streamType
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[8:], payload)
	return buf
}

func TestParseLogStreamFramed(t *testing.T) {
	var buf []byte
	buf = append(buf, frame(1, "gateway listening\n")...)
	buf = append(buf, frame(2, "warn: no config found\r\n")...)
	buf = append(buf, frame(1, "X-Pairing-Code: 123456\n")...)

	lines := parseLogStream(buf)
	assert.Equal(t, []string{
		"gateway listening",
		"warn: no config found",
		"X-Pairing-Code: 123456",
	}, lines)
}

func TestParseLogStreamMultiLineFrame(t *testing.T) {
	lines := parseLogStream(frame(1, "one\ntwo\nthree\n"))
	assert.Equal(t, []string{"one", "two", "three"}, lines)
}

func TestParseLogStreamPlainTextFallback(t *testing.T) {
	framed := parseLogStream(frame(1, "alpha\nbeta\n"))
	plain := parseLogStream([]byte("alpha\nbeta\n"))
	assert.Equal(t, framed, plain)
}

func TestParseLogStreamSkipsEmptyFrames(t *testing.T) {
	var buf []byte
	buf = append(buf, frame(1, "")...)
	buf = append(buf, frame(1, "hello\n")...)
	assert.Equal(t, []string{"hello"}, parseLogStream(buf))
}

func TestParseLogStreamTruncatedFrame(t *testing.T) {
	full := frame(1, "complete\n")
	partial := frame(1, "partial line that got cut")
	buf := append(append([]byte{}, full...), partial[:12]...)

	assert.Equal(t, []string{"complete"}, parseLogStream(buf))
}

func TestParseLogStreamEmpty(t *testing.T) {
	assert.Empty(t, parseLogStream(nil))
}

func TestLatestPairingCodeFormats(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  string
		found bool
	}{
		{
			name:  "header format",
			lines: []string{"boot", "X-Pairing-Code: 654321"},
			want:  "654321",
			found: true,
		},
		{
			name:  "boxed format",
			lines: []string{"┌──────────┐", "│  111222  │", "└──────────┘"},
			want:  "111222",
			found: true,
		},
		{
			name:  "most recent of several wins",
			lines: []string{"X-Pairing-Code: 111111", "retrying pairing", "X-Pairing-Code: 222222"},
			want:  "222222",
			found: true,
		},
		{
			name:  "five digits is not a code",
			lines: []string{"X-Pairing-Code: 12345"},
			found: false,
		},
		{
			name:  "no code",
			lines: []string{"nothing to see"},
			found: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, ok := latestPairingCode(tt.lines)
			require.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, code)
		})
	}
}

// A restart can reprint the pre-restart code within the same log second, so
// new-code detection must compare values, not timestamps.
func TestNewCodeDisambiguation(t *testing.T) {
	logs := []string{
		"X-Pairing-Code: 100200",
		"shutting down",
		"booting",
		"X-Pairing-Code: 100200", // pre-restart code still in the tail
	}

	code, ok := latestPairingCode(logs)
	require.True(t, ok)
	// Same as the previous code: a caller holding previous=100200 must keep
	// waiting rather than accept this.
	assert.Equal(t, "100200", code)

	logs = append(logs, "X-Pairing-Code: 300400")
	code, ok = latestPairingCode(logs)
	require.True(t, ok)
	assert.Equal(t, "300400", code)
}
