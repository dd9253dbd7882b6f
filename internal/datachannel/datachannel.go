// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package datachannel

import (
	"github.com/sjhorn/webrtc/internal/sctp"
)

// Config is used to configure a DataChannel.
type Config struct {
	ChannelType          ChannelType
	Negotiated           bool
	Priority             uint16
	ReliabilityParameter uint32
	Label                string
	Protocol             string
}

// DataChannel is one channel riding an SCTP stream, created either by the
// DCEP handshake or out-of-band negotiation.
type DataChannel struct {
	Config
	stream *sctp.Stream
}

// Dial opens a channel on the stream: it sends DATA_CHANNEL_OPEN and waits
// for the ACK (unless the channel was negotiated out-of-band).
func Dial(stream *sctp.Stream, config *Config) (*DataChannel, error) {
	applyReliability(stream, config)
	dc := &DataChannel{Config: *config, stream: stream}
	if config.Negotiated {
		return dc, nil
	}

	open := &channelOpen{
		ChannelType:          config.ChannelType,
		Priority:             config.Priority,
		ReliabilityParameter: config.ReliabilityParameter,
		Label:                []byte(config.Label),
		Protocol:             []byte(config.Protocol),
	}
	raw, err := open.Marshal()
	if err != nil {
		return nil, err
	}
	if _, err := stream.WriteSCTP(raw, sctp.PayloadTypeWebRTCDCEP); err != nil {
		return nil, err
	}

	// wait for DATA_CHANNEL_ACK
	buf := make([]byte, 4096)
	for {
		n, ppi, err := stream.ReadSCTP(buf)
		if err != nil {
			return nil, err
		}
		if ppi != sctp.PayloadTypeWebRTCDCEP {
			continue
		}
		msg, err := parse(buf[:n])
		if err != nil {
			return nil, err
		}
		if _, ok := msg.(*channelAck); ok {
			return dc, nil
		}
	}
}

// Accept waits for the peer's DATA_CHANNEL_OPEN on the stream and answers
// with an ACK.
func Accept(stream *sctp.Stream) (*DataChannel, error) {
	buf := make([]byte, 4096)
	for {
		n, ppi, err := stream.ReadSCTP(buf)
		if err != nil {
			return nil, err
		}
		if ppi != sctp.PayloadTypeWebRTCDCEP {
			continue
		}

		msg, err := parse(buf[:n])
		if err != nil {
			return nil, err
		}
		open, ok := msg.(*channelOpen)
		if !ok {
			return nil, errUnexpectedDataChannelType
		}

		config := &Config{
			ChannelType:          open.ChannelType,
			Priority:             open.Priority,
			ReliabilityParameter: open.ReliabilityParameter,
			Label:                string(open.Label),
			Protocol:             string(open.Protocol),
		}
		applyReliability(stream, config)

		ack := &channelAck{}
		rawAck, err := ack.Marshal()
		if err != nil {
			return nil, err
		}
		if _, err := stream.WriteSCTP(rawAck, sctp.PayloadTypeWebRTCDCEP); err != nil {
			return nil, err
		}

		return &DataChannel{Config: *config, stream: stream}, nil
	}
}

func applyReliability(stream *sctp.Stream, config *Config) {
	unordered := config.ChannelType&0x80 != 0
	switch config.ChannelType & 0x7f {
	case 0x01:
		stream.SetReliabilityParams(unordered, sctp.ReliabilityTypeRexmit, config.ReliabilityParameter)
	case 0x02:
		stream.SetReliabilityParams(unordered, sctp.ReliabilityTypeTimed, config.ReliabilityParameter)
	default:
		stream.SetReliabilityParams(unordered, sctp.ReliabilityTypeReliable, 0)
	}
}

// StreamIdentifier returns the underlying SCTP stream id.
func (c *DataChannel) StreamIdentifier() uint16 {
	return c.stream.StreamIdentifier()
}

// ReadDataChannel returns the next application message and whether it was a
// string message.
func (c *DataChannel) ReadDataChannel(p []byte) (int, bool, error) {
	for {
		n, ppi, err := c.stream.ReadSCTP(p)
		if err != nil {
			return 0, false, err
		}
		switch ppi {
		case sctp.PayloadTypeWebRTCDCEP:
			// stray DCEP retransmission
			continue
		case sctp.PayloadTypeWebRTCString:
			return n, true, nil
		case sctp.PayloadTypeWebRTCStringEmpty:
			return 0, true, nil
		case sctp.PayloadTypeWebRTCBinaryEmpty:
			return 0, false, nil
		default:
			return n, false, nil
		}
	}
}

// WriteDataChannel sends one message, marking it as string or binary.
func (c *DataChannel) WriteDataChannel(p []byte, isString bool) (int, error) {
	var ppi sctp.PayloadProtocolIdentifier
	switch {
	case isString && len(p) == 0:
		ppi = sctp.PayloadTypeWebRTCStringEmpty
	case isString:
		ppi = sctp.PayloadTypeWebRTCString
	case len(p) == 0:
		ppi = sctp.PayloadTypeWebRTCBinaryEmpty
	default:
		ppi = sctp.PayloadTypeWebRTCBinary
	}
	return c.stream.WriteSCTP(p, ppi)
}

// Close shuts the channel's stream.
func (c *DataChannel) Close() error {
	return c.stream.Close()
}
