// Copyright © 2018 One Concern

package objectpack

import (
	"bufio"
	"bytes"
	"crypto/sha1" //nolint:gosec // the gateway expects a SHA-1 payload digest
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/oneconcern/packpub/pkg/objectpack/status"
)

const (
	formatVersion = "V2"

	// header fields are not trusted when reading back a pack
	maxPreallocatedObjects = 1024
)

// Producer serializes a sealed pack.
//
// The serialized stream is consumed in chunks with ProduceNext or as an io.Reader.
type Producer struct {
	segments [][]byte
	segment  int
	offset   int
	total    int64
	digest   []byte
}

// NewProducer prepares the serialization of a pack.
//
// The pack must not be modified while the producer is in use.
func NewProducer(p *Pack) *Producer {
	objects := p.Objects()

	var header bytes.Buffer
	fmt.Fprintf(&header, "%s\nS%d\nN%d\n--\n", formatVersion, p.Size(), len(objects))
	for _, b := range objects {
		switch b.ContentType() {
		case Named:
			fmt.Fprintf(&header, "%s %s %d %s\n",
				Named, b.ID(), b.Size(), base64.StdEncoding.EncodeToString([]byte(b.Name())))
		default:
			fmt.Fprintf(&header, "%s %s %d\n", CAS, b.ID(), b.Size())
		}
	}

	segments := make([][]byte, 0, len(objects)+1)
	segments = append(segments, header.Bytes())
	hasher := sha1.New() //nolint:gosec
	_, _ = hasher.Write(header.Bytes())
	total := int64(header.Len())
	for _, b := range objects {
		content := b.Bytes()
		segments = append(segments, content)
		_, _ = hasher.Write(content)
		total += int64(len(content))
	}

	return &Producer{
		segments: segments,
		total:    total,
		digest:   hasher.Sum(nil),
	}
}

// ProduceNext copies the next chunk of the serialized stream into buf.
//
// It returns 0 once the stream is exhausted.
func (p *Producer) ProduceNext(buf []byte) int {
	n := 0
	for n < len(buf) && p.segment < len(p.segments) {
		current := p.segments[p.segment]
		copied := copy(buf[n:], current[p.offset:])
		n += copied
		p.offset += copied
		if p.offset >= len(current) {
			p.segment++
			p.offset = 0
		}
	}
	return n
}

// Read implements io.Reader over the serialized stream
func (p *Producer) Read(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	n := p.ProduceNext(buf)
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Len is the total size of the serialized stream
func (p *Producer) Len() int64 {
	return p.total
}

// Digest is the SHA-1 digest of the serialized stream
func (p *Producer) Digest() []byte {
	return p.digest
}

// DigestString is the hex representation of the digest
func (p *Producer) DigestString() string {
	return hex.EncodeToString(p.digest)
}

// Object describes an object read back from a serialized pack
type Object struct {
	ContentType ContentType
	ID          Hash
	Name        string
	Content     []byte
}

// Parse reads back a serialized pack
func Parse(r io.Reader) ([]Object, error) {
	rdr := bufio.NewReader(r)

	line := func() (string, error) {
		l, err := rdr.ReadString('\n')
		if err != nil {
			return "", status.ErrMalformedPack.Wrap(err)
		}
		return strings.TrimSuffix(l, "\n"), nil
	}
	numeric := func(prefix string) (uint64, error) {
		l, err := line()
		if err != nil {
			return 0, err
		}
		if !strings.HasPrefix(l, prefix) {
			return 0, status.ErrMalformedPack.Wrap(errString("expected header field " + prefix))
		}
		v, err := strconv.ParseUint(strings.TrimPrefix(l, prefix), 10, 64)
		if err != nil {
			return 0, status.ErrMalformedPack.Wrap(err)
		}
		return v, nil
	}

	version, err := line()
	if err != nil {
		return nil, err
	}
	if version != formatVersion {
		return nil, status.ErrMalformedPack.Wrap(errString("unsupported version " + version))
	}
	payloadSize, err := numeric("S")
	if err != nil {
		return nil, err
	}
	count, err := numeric("N")
	if err != nil {
		return nil, err
	}
	sep, err := line()
	if err != nil {
		return nil, err
	}
	if sep != "--" {
		return nil, status.ErrMalformedPack.Wrap(errString("missing header separator"))
	}

	capacity := count
	if capacity > maxPreallocatedObjects {
		capacity = maxPreallocatedObjects
	}
	objects := make([]Object, 0, capacity)
	sizes := make([]uint64, 0, capacity)
	var sum uint64
	for i := uint64(0); i < count; i++ {
		l, err := line()
		if err != nil {
			return nil, err
		}
		obj, size, err := parseObjectLine(l)
		if err != nil {
			return nil, err
		}
		if size > math.MaxInt64 || sum+size < sum {
			return nil, status.ErrMalformedPack.Wrap(errString("object size out of range"))
		}
		objects = append(objects, obj)
		sizes = append(sizes, size)
		sum += size
	}
	if sum != payloadSize {
		return nil, status.ErrMalformedPack.Wrap(errString("object sizes do not add up to the payload size"))
	}

	// declared sizes are not trusted: content grows with the bytes actually read
	for i := range objects {
		var content bytes.Buffer
		n, err := io.Copy(&content, io.LimitReader(rdr, int64(sizes[i])))
		if err != nil {
			return nil, status.ErrMalformedPack.Wrap(err)
		}
		if uint64(n) != sizes[i] {
			return nil, status.ErrMalformedPack.Wrap(io.ErrUnexpectedEOF)
		}
		objects[i].Content = content.Bytes()
	}
	if _, err := rdr.ReadByte(); err != io.EOF {
		return nil, status.ErrMalformedPack.Wrap(errString("trailing data after payload"))
	}

	return objects, nil
}

func parseObjectLine(l string) (Object, uint64, error) {
	fields := strings.Split(l, " ")
	if len(fields) < 3 {
		return Object{}, 0, status.ErrMalformedPack.Wrap(errString("invalid object line"))
	}

	var obj Object
	switch fields[0] {
	case CAS.String():
		if len(fields) != 3 {
			return Object{}, 0, status.ErrMalformedPack.Wrap(errString("invalid CAS object line"))
		}
		obj.ContentType = CAS
	case Named.String():
		if len(fields) != 4 {
			return Object{}, 0, status.ErrMalformedPack.Wrap(errString("invalid named object line"))
		}
		obj.ContentType = Named
		name, err := base64.StdEncoding.DecodeString(fields[3])
		if err != nil {
			return Object{}, 0, status.ErrMalformedPack.Wrap(err)
		}
		obj.Name = string(name)
	default:
		return Object{}, 0, status.ErrMalformedPack.Wrap(status.ErrInvalidContentType)
	}

	id, err := ParseHash(fields[1])
	if err != nil {
		return Object{}, 0, status.ErrMalformedPack.Wrap(err)
	}
	obj.ID = id

	size, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return Object{}, 0, status.ErrMalformedPack.Wrap(err)
	}
	return obj, size, nil
}
