package pcap

import (
	"errors"
	"fmt"
	"io"
	"os"

	"FlowRadar/internal/engine/protocol"
	"FlowRadar/internal/model"

	"github.com/google/gopacket/pcapgo"
	log "github.com/sirupsen/logrus"
)

// Reader reads packets from a pcap file without libpcap.
type Reader struct {
	file   *os.File
	reader *pcapgo.Reader
}

// NewReader creates a new pcap reader for the given file path.
func NewReader(filePath string) (*Reader, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file: %w", err)
	}
	r, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read pcap header: %w", err)
	}
	return &Reader{file: f, reader: r}, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadPackets parses every packet of the file and sends it to out, skipping
// packets that carry no IPv4 flow. It closes out when the file is exhausted and
// returns the number of skipped packets.
func (r *Reader) ReadPackets(out chan<- *model.PacketInfo) (skipped int, err error) {
	defer close(out)
	for {
		data, ci, err := r.reader.ReadPacketData()
		if err != nil {
			// A truncated last record ends the capture like a clean EOF.
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return skipped, nil
			}
			return skipped, fmt.Errorf("failed to read packet: %w", err)
		}
		info, err := protocol.ParsePacket(data, ci.Timestamp)
		if err != nil {
			// Unsupported link or transport types are expected in real captures.
			log.WithError(err).Trace("Skipping packet")
			skipped++
			continue
		}
		if ci.Length > info.Length {
			info.Length = ci.Length
		}
		out <- info
	}
}

// ReadAll returns every parsed packet of the file.
func (r *Reader) ReadAll() ([]*model.PacketInfo, error) {
	out := make(chan *model.PacketInfo, 1024)
	var (
		skipped int
		err     error
		done    = make(chan struct{})
	)
	go func() {
		skipped, err = r.ReadPackets(out)
		close(done)
	}()

	var packets []*model.PacketInfo
	for p := range out {
		packets = append(packets, p)
	}
	<-done
	if skipped > 0 {
		log.WithField("skipped", skipped).Debug("Skipped packets without an IPv4 flow")
	}
	return packets, err
}
