package zmodem

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// unixRegular is S_IFREG, which lrzsz includes in the mode it announces.
const unixRegular = 0100000

// FileHeader is the ZFILE subpacket: the file name, then the space
// separated "size mtime mode serial filesleft bytesleft" fields. mtime and
// mode are octal.
type FileHeader struct {
	Name      string
	Size      int64
	ModTime   time.Time
	Mode      os.FileMode
	FilesLeft int
	BytesLeft int64
}

// BuildFileHeader encodes h for a ZFILE data subpacket.
func BuildFileHeader(h FileHeader) []byte {
	var b bytes.Buffer
	b.WriteString(h.Name)
	b.WriteByte(0)

	var mtime int64
	if !h.ModTime.IsZero() {
		mtime = h.ModTime.Unix()
	}
	mode := h.Mode.Perm()
	if mode == 0 {
		mode = 0644
	}
	fmt.Fprintf(&b, "%d %o %o 0 %d %d", h.Size, mtime, uint32(mode)|unixRegular, h.FilesLeft, h.BytesLeft)
	b.WriteByte(0)
	return b.Bytes()
}

// ParseFileHeader decodes a ZFILE subpacket. Only the name is mandatory;
// missing or garbled numeric fields stay zero.
func ParseFileHeader(data []byte) (FileHeader, error) {
	var h FileHeader
	nul := bytes.IndexByte(data, 0)
	if nul < 0 {
		return h, NewFrameError(ErrInvalidFrame, "no NUL after file name", ZFILE)
	}
	h.Name = string(data[:nul])
	if h.Name == "" {
		return h, NewFrameError(ErrInvalidFrame, "empty file name", ZFILE)
	}

	info := data[nul+1:]
	if end := bytes.IndexByte(info, 0); end >= 0 {
		info = info[:end]
	}
	fields := strings.Fields(string(info))
	field := func(i, base int) int64 {
		if i >= len(fields) {
			return 0
		}
		v, err := strconv.ParseInt(fields[i], base, 64)
		if err != nil {
			return 0
		}
		return v
	}

	h.Size = field(0, 10)
	if mtime := field(1, 8); mtime > 0 {
		h.ModTime = time.Unix(mtime, 0)
	}
	h.Mode = os.FileMode(field(2, 8)) & os.ModePerm
	h.FilesLeft = int(field(4, 10))
	h.BytesLeft = field(5, 10)
	return h, nil
}
