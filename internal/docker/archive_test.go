package docker

import (
	"archive/tar"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildArchiveRoundTrip(t *testing.T) {
	files := []archiveFile{
		{Name: ".zeroclaw/config.toml", Content: "default_temperature = 0.7\n"},
		{Name: "workspace/IDENTITY.md", Content: "# IDENTITY.md — Who Am I?\n"},
		{Name: "workspace/EMPTY.md", Content: ""},
		{Name: "workspace/BIG.md", Content: strings.Repeat("x", 513)},
	}

	raw, err := buildArchive(files)
	require.NoError(t, err)

	tr := tar.NewReader(bytes.NewReader(raw))
	var got []archiveFile
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.Equal(t, byte(tar.TypeReg), hdr.Typeflag)
		assert.EqualValues(t, 0o644, hdr.Mode)

		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		got = append(got, archiveFile{Name: hdr.Name, Content: string(content)})
	}

	assert.Equal(t, files, got)
}

func TestBuildArchiveTerminator(t *testing.T) {
	raw, err := buildArchive([]archiveFile{{Name: "a", Content: "b"}})
	require.NoError(t, err)

	// header + one data block + two zero end blocks
	require.Len(t, raw, 4*tarBlockSize)
	assert.Equal(t, make([]byte, 2*tarBlockSize), raw[2*tarBlockSize:])
}

func TestBuildArchiveRejectsLongNames(t *testing.T) {
	_, err := buildArchive([]archiveFile{{Name: strings.Repeat("d/", 51), Content: ""}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 100 bytes")
}

func TestBuildArchiveRejectsEmptyName(t *testing.T) {
	_, err := buildArchive([]archiveFile{{Name: "", Content: "x"}})
	assert.Error(t, err)
}
