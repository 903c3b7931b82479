package artifact

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
	"slices"
)

var (
	// ErrNotPNG is returned when the data lacks the PNG signature.
	ErrNotPNG = errors.New("not a png stream")
	// ErrNotJPEG is returned when the data lacks the JPEG SOI marker.
	ErrNotJPEG = errors.New("not a jpeg stream")
	// ErrTruncated is returned when a chunk or segment overruns the data.
	ErrTruncated = errors.New("truncated stream")
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

type pngChunk struct {
	typ  string
	data []byte
	// end is the offset just past the chunk CRC.
	end int
}

func walkPNG(data []byte, fn func(c pngChunk) bool) error {
	if !bytes.HasPrefix(data, pngSignature) {
		return ErrNotPNG
	}
	off := len(pngSignature)
	for off < len(data) {
		if len(data)-off < 12 {
			return ErrTruncated
		}
		n := int(binary.BigEndian.Uint32(data[off:]))
		end := off + 12 + n
		if n < 0 || end > len(data) {
			return ErrTruncated
		}
		c := pngChunk{typ: string(data[off+4 : off+8]), data: data[off+8 : off+8+n], end: end}
		if !fn(c) || c.typ == "IEND" {
			return nil
		}
		off = end
	}
	return nil
}

// ReadPNGText returns the tEXt key/value pairs of a PNG stream.
func ReadPNGText(data []byte) (map[string]string, error) {
	out := map[string]string{}
	err := walkPNG(data, func(c pngChunk) bool {
		if c.typ != "tEXt" {
			return true
		}
		k, v, ok := bytes.Cut(c.data, []byte{0})
		if ok && len(k) > 0 {
			out[string(k)] = string(v)
		}
		return true
	})
	return out, err
}

// WritePNGText inserts one tEXt chunk per entry right after IHDR.
// Entries are written in key order.
func WritePNGText(data []byte, text map[string]string) ([]byte, error) {
	ihdrEnd := -1
	err := walkPNG(data, func(c pngChunk) bool {
		if c.typ == "IHDR" {
			ihdrEnd = c.end
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if ihdrEnd < 0 {
		return nil, ErrTruncated
	}
	if len(text) == 0 {
		return data, nil
	}

	var buf bytes.Buffer
	buf.Write(data[:ihdrEnd])
	keys := make([]string, 0, len(text))
	for k := range text {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		payload := append([]byte(k), 0)
		payload = append(payload, text[k]...)
		writeChunk(&buf, "tEXt", payload)
	}
	buf.Write(data[ihdrEnd:])
	return buf.Bytes(), nil
}

func writeChunk(buf *bytes.Buffer, typ string, payload []byte) {
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(len(payload)))
	copy(hdr[4:], typ)
	buf.Write(hdr[:])
	buf.Write(payload)

	crc := crc32.NewIEEE()
	crc.Write(hdr[4:])
	crc.Write(payload)
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())
	buf.Write(sum[:])
}

const (
	jpegSOI = 0xD8
	jpegSOS = 0xDA
	jpegEOI = 0xD9
	jpegCOM = 0xFE
)

// WriteJPEGComment inserts a COM segment holding the JSON encoding of
// meta directly after the SOI marker.
func WriteJPEGComment(data []byte, meta map[string]string) ([]byte, error) {
	if len(data) < 2 || data[0] != 0xFF || data[1] != jpegSOI {
		return nil, ErrNotJPEG
	}
	if len(meta) == 0 {
		return data, nil
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	if len(payload)+2 > 0xFFFF {
		return nil, errors.New("metadata too large for a jpeg comment")
	}

	var buf bytes.Buffer
	buf.Grow(len(data) + len(payload) + 4)
	buf.Write(data[:2])
	buf.Write([]byte{0xFF, jpegCOM})
	var size [2]byte
	binary.BigEndian.PutUint16(size[:], uint16(len(payload)+2))
	buf.Write(size[:])
	buf.Write(payload)
	buf.Write(data[2:])
	return buf.Bytes(), nil
}

// ReadJPEGComment decodes the first COM segment whose payload is a JSON object.
// It returns an empty map when there is none.
func ReadJPEGComment(data []byte) (map[string]string, error) {
	if len(data) < 2 || data[0] != 0xFF || data[1] != jpegSOI {
		return nil, ErrNotJPEG
	}
	off := 2
	for off+4 <= len(data) {
		if data[off] != 0xFF {
			return nil, ErrTruncated
		}
		marker := data[off+1]
		if marker == jpegSOS || marker == jpegEOI {
			break
		}
		n := int(binary.BigEndian.Uint16(data[off+2:]))
		if n < 2 || off+2+n > len(data) {
			return nil, ErrTruncated
		}
		if marker == jpegCOM {
			out := map[string]string{}
			if json.Unmarshal(data[off+4:off+2+n], &out) == nil {
				return out, nil
			}
		}
		off += 2 + n
	}
	return map[string]string{}, nil
}
