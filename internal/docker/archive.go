package docker

import (
	"bytes"
	"fmt"
	"time"
)

const tarBlockSize = 512

// archiveFile is one regular file to place into a container.
type archiveFile struct {
	Name    string
	Content string
}

// buildArchive produces a minimal POSIX ustar archive of regular files with
// mode 0644 and the current timestamp. Containers are injected with files
// via the engine's copy API, which works even for scratch/distroless images
// with no shell — this is the only portable write path.
//
// Paths must fit the legacy 100-byte name field; longer names fail rather
// than silently truncate.
func buildArchive(files []archiveFile) ([]byte, error) {
	var buf bytes.Buffer
	mtime := time.Now().Unix()

	for _, f := range files {
		if len(f.Name) > 100 {
			return nil, fmt.Errorf("tar entry name %q exceeds 100 bytes", f.Name)
		}
		if f.Name == "" {
			return nil, fmt.Errorf("tar entry name must not be empty")
		}

		hdr := make([]byte, tarBlockSize)
		copy(hdr[0:100], f.Name)
		copy(hdr[100:108], "0000644\x00")
		copy(hdr[108:116], "0000000\x00")
		copy(hdr[116:124], "0000000\x00")
		copy(hdr[124:136], fmt.Sprintf("%011o\x00", len(f.Content)))
		copy(hdr[136:148], fmt.Sprintf("%011o\x00", mtime))
		// Checksum is computed with the checksum field itself set to spaces.
		for i := 148; i < 156; i++ {
			hdr[i] = ' '
		}
		hdr[156] = '0' // regular file
		copy(hdr[257:265], "ustar  \x00")

		var sum int
		for _, b := range hdr {
			sum += int(b)
		}
		copy(hdr[148:156], fmt.Sprintf("%06o\x00 ", sum))

		buf.Write(hdr)

		if len(f.Content) > 0 {
			buf.WriteString(f.Content)
			if pad := len(f.Content) % tarBlockSize; pad != 0 {
				buf.Write(make([]byte, tarBlockSize-pad))
			}
		}
	}

	// End of archive: two all-zero blocks.
	buf.Write(make([]byte, 2*tarBlockSize))
	return buf.Bytes(), nil
}
