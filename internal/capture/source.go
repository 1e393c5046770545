// Package capture runs packets from a live interface or a capture file
// through decode, flow aggregation and the detector battery.
package capture

import (
	"bufio"
	"encoding/binary"
	"io"
	"io/fs"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"netsentry/internal/errors"
)

// Source yields raw frames. ReadPacketData returns ErrTimeout when no
// frame arrived within the source's read timeout and io.EOF when the
// source is exhausted.
type Source interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
	Close()
}

// Opener opens a live source on iface with a BPF filter expression.
type Opener func(iface, filter string) (Source, error)

// ErrTimeout signals an idle read; callers simply read again.
var ErrTimeout = errors.New(errors.KindTimeout, "capture read timeout")

const pcapngMagic = 0x0A0D0D0A

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

type fileSource struct {
	packetReader
	f *os.File
}

func (s *fileSource) Close() { s.f.Close() }

// OpenFile opens a pcap or pcapng file, chosen by its magic number.
func OpenFile(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(err, errors.KindNotFound, "open capture file %s", path)
		}
		return nil, errors.Wrapf(err, errors.KindUnavailable, "open capture file %s", path)
	}

	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, errors.KindValidation, "read capture header of %s", path)
	}

	var r packetReader
	if binary.BigEndian.Uint32(magic) == pcapngMagic {
		r, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		r, err = pcapgo.NewReader(br)
	}
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, errors.KindValidation, "%s is not a pcap or pcapng file", path)
	}
	return &fileSource{packetReader: r, f: f}, nil
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}
