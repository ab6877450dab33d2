package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/spf13/cobra"

	"github.com/haukened/rr-bytes/internal/match/common/log"
	"github.com/haukened/rr-bytes/internal/match/domain"
)

// macTally counts frames per hardware address in first-seen order.
type macTally struct {
	order  []string
	frames map[string]int
	accept map[string]bool
}

func newScanCmd() *cobra.Command {
	var src sourceFlags
	var pcapPath, field string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Evaluate the Ethernet addresses of a pcap capture against a matcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pcapPath == "" {
				return errors.New("pcap path is required")
			}
			if field != "src" && field != "dst" {
				return fmt.Errorf("unknown field %q", field)
			}
			m, err := src.load()
			if err != nil {
				return err
			}
			f, err := os.Open(pcapPath)
			if err != nil {
				return err
			}
			defer f.Close()

			tally, err := scanCapture(f, m, field)
			if err != nil {
				return err
			}
			return tally.write(cmd.OutOrStdout())
		},
	}

	src.bind(cmd)
	cmd.Flags().StringVar(&pcapPath, "pcap", "", "Path to a pcap capture with Ethernet link type")
	cmd.Flags().StringVar(&field, "field", "src", "Address to evaluate: src|dst")
	return cmd
}

func scanCapture(r io.Reader, m *domain.Matcher, field string) (*macTally, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("read pcap header: %w", err)
	}
	if pr.LinkType() != layers.LinkTypeEthernet {
		return nil, fmt.Errorf("unsupported link type %s", pr.LinkType())
	}

	t := &macTally{frames: make(map[string]int), accept: make(map[string]bool)}
	skipped := 0
	for {
		data, _, err := pr.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read packet: %w", err)
		}
		packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
		ethLayer := packet.Layer(layers.LayerTypeEthernet)
		if ethLayer == nil {
			skipped++
			continue
		}
		eth, _ := ethLayer.(*layers.Ethernet)
		addr := eth.SrcMAC
		if field == "dst" {
			addr = eth.DstMAC
		}
		t.add(addr, m)
	}
	if skipped > 0 {
		log.Debug(map[string]any{"skipped": skipped}, "frames without an ethernet layer")
	}
	return t, nil
}

func (t *macTally) add(addr net.HardwareAddr, m *domain.Matcher) {
	key := addr.String()
	if _, ok := t.frames[key]; !ok {
		t.order = append(t.order, key)
		t.accept[key] = m.TestMACAddress(addr)
	}
	t.frames[key]++
}

func (t *macTally) write(w io.Writer) error {
	var accepted, rejected int
	for _, key := range t.order {
		verdict := "reject"
		if t.accept[key] {
			verdict = "accept"
			accepted += t.frames[key]
		} else {
			rejected += t.frames[key]
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%d\n", key, verdict, t.frames[key]); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "frames=%d accepted=%d rejected=%d\n", accepted+rejected, accepted, rejected)
	return err
}
