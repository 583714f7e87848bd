package main

import (
	"flag"
	"math/rand"
	"net"
	"os"
	"time"

	"FlowRadar/pkg/pcap"

	"github.com/google/gopacket/layers"
	log "github.com/sirupsen/logrus"
)

// Generates a capture with background traffic, one port scanner fanning out over
// many hosts with SYNs, and one bulk transfer. nad-report -pcap flags the scanner;
// raise -bulk-packets past ~72000 (100 MiB of 1450 byte segments) to also see a
// high-volume flow.
func main() {
	outputFile := flag.String("o", "scenario.pcap", "Output pcap file path")
	background := flag.Int("c", 1000, "Number of random background packets")
	scanTargets := flag.Int("scan-targets", 60, "Distinct hosts probed by the scanner")
	scanProbes := flag.Int("scan-probes", 150, "SYN probes sent by the scanner")
	bulkPackets := flag.Int("bulk-packets", 2000, "Full-size packets in the bulk transfer")
	flag.Parse()

	if *scanTargets <= 0 {
		log.Fatal("-scan-targets must be positive")
	}

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	w, err := pcap.NewWriter(f)
	if err != nil {
		log.Fatal(err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	start := time.Now().Add(-30 * time.Minute)
	at := func(i, n int) time.Time {
		return start.Add(time.Duration(i) * 20 * time.Minute / time.Duration(max(n, 1)))
	}

	log.Infof("Generating %d background packets into %s...", *background, *outputFile)
	for i := 0; i < *background; i++ {
		proto := layers.IPProtocolTCP
		if rng.Intn(4) == 0 {
			proto = layers.IPProtocolUDP
		}
		p := pcap.Packet{
			Timestamp: at(i, *background),
			SrcIP:     net.IP{10, 0, byte(rng.Intn(4)), byte(rng.Intn(254) + 1)},
			DstIP:     net.IP{172, 16, byte(rng.Intn(4)), byte(rng.Intn(254) + 1)},
			SrcPort:   uint16(rng.Intn(65535-1024) + 1024),
			DstPort:   []uint16{53, 80, 443, 8080}[rng.Intn(4)],
			Protocol:  proto,
			Payload:   rng.Intn(1400) + 50,
		}
		if err := w.WritePacket(p); err != nil {
			log.Fatalf("Failed to write packet: %v", err)
		}
	}

	scanner := net.IP{192, 168, 1, 66}
	log.Infof("Generating scan from %s: %d probes over %d hosts", scanner, *scanProbes, *scanTargets)
	for i := 0; i < *scanProbes; i++ {
		p := pcap.Packet{
			Timestamp: at(i, *scanProbes),
			SrcIP:     scanner,
			DstIP:     net.IP{10, 1, byte(i % *scanTargets / 254), byte(i%*scanTargets%254 + 1)},
			SrcPort:   uint16(40000 + i%20000),
			DstPort:   []uint16{22, 23, 80, 443, 3389}[i%5],
			Protocol:  layers.IPProtocolTCP,
			SYN:       true,
		}
		if err := w.WritePacket(p); err != nil {
			log.Fatalf("Failed to write packet: %v", err)
		}
	}

	log.Infof("Generating bulk transfer of %d packets", *bulkPackets)
	for i := 0; i < *bulkPackets; i++ {
		p := pcap.Packet{
			Timestamp: at(i, *bulkPackets),
			SrcIP:     net.IP{10, 0, 9, 9},
			DstIP:     net.IP{203, 0, 113, 10},
			SrcPort:   50000,
			DstPort:   873,
			Protocol:  layers.IPProtocolTCP,
			Payload:   1450,
		}
		if err := w.WritePacket(p); err != nil {
			log.Fatalf("Failed to write packet: %v", err)
		}
	}

	log.Infof("Successfully generated %d packets into %s.", *background+*scanProbes+*bulkPackets, *outputFile)
}
