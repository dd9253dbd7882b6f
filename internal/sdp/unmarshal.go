// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sdp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	errSDPInvalidSyntax    = errors.New("sdp: invalid syntax")
	errSDPInvalidValue     = errors.New("sdp: invalid value")
	errSDPMissingSession   = errors.New("sdp: missing mandatory session fields")
)

// Unmarshal parses raw SDP text. Lines before the first m= section belong to
// the session; every following line belongs to the most recent media
// description. Unknown line types are ignored for forward compatibility.
func (s *SessionDescription) Unmarshal(raw string) error { //nolint:gocognit
	var currentMedia *MediaDescription
	sawVersion, sawOrigin := false, false

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if len(line) < 2 || line[1] != '=' {
			return fmt.Errorf("%w: %q", errSDPInvalidSyntax, line)
		}

		typ, value := line[0], line[2:]
		switch typ {
		case 'v':
			version, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("%w: v=%q", errSDPInvalidValue, value)
			}
			s.Version = Version(version)
			sawVersion = true

		case 'o':
			origin, err := parseOrigin(value)
			if err != nil {
				return err
			}
			s.Origin = origin
			sawOrigin = true

		case 's':
			s.SessionName = SessionName(value)

		case 'i':
			info := Information(value)
			if currentMedia != nil {
				currentMedia.MediaTitle = &info
			} else {
				s.SessionInformation = &info
			}

		case 'c':
			conn, err := parseConnectionInformation(value)
			if err != nil {
				return err
			}
			if currentMedia != nil {
				currentMedia.ConnectionInformation = conn
			} else {
				s.ConnectionInformation = conn
			}

		case 't':
			fields := strings.Fields(value)
			if len(fields) != 2 {
				return fmt.Errorf("%w: t=%q", errSDPInvalidValue, value)
			}
			start, err := strconv.ParseUint(fields[0], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: t=%q", errSDPInvalidValue, value)
			}
			stop, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				return fmt.Errorf("%w: t=%q", errSDPInvalidValue, value)
			}
			s.TimeDescriptions = append(s.TimeDescriptions, TimeDescription{Timing{start, stop}})

		case 'a':
			attr := parseAttribute(value)
			if currentMedia != nil {
				currentMedia.Attributes = append(currentMedia.Attributes, attr)
			} else {
				s.Attributes = append(s.Attributes, attr)
			}

		case 'm':
			media, err := parseMediaName(value)
			if err != nil {
				return err
			}
			currentMedia = &MediaDescription{MediaName: media}
			s.MediaDescriptions = append(s.MediaDescriptions, currentMedia)

		default:
			// b=, k=, r=, z=, u=, e=, p= and any extension lines are
			// tolerated and dropped.
		}
	}

	if !sawVersion || !sawOrigin {
		return errSDPMissingSession
	}
	return nil
}

func parseOrigin(value string) (Origin, error) {
	fields := strings.Fields(value)
	if len(fields) != 6 {
		return Origin{}, fmt.Errorf("%w: o=%q", errSDPInvalidValue, value)
	}

	sessionID, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return Origin{}, fmt.Errorf("%w: o=%q", errSDPInvalidValue, value)
	}
	sessionVersion, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return Origin{}, fmt.Errorf("%w: o=%q", errSDPInvalidValue, value)
	}

	return Origin{
		Username:       fields[0],
		SessionID:      sessionID,
		SessionVersion: sessionVersion,
		NetworkType:    fields[3],
		AddressType:    fields[4],
		UnicastAddress: fields[5],
	}, nil
}

func parseConnectionInformation(value string) (*ConnectionInformation, error) {
	fields := strings.Fields(value)
	if len(fields) < 3 {
		return nil, fmt.Errorf("%w: c=%q", errSDPInvalidValue, value)
	}

	parts := strings.Split(fields[2], "/")
	addr := &Address{Address: parts[0]}
	if len(parts) > 1 {
		ttl, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("%w: c=%q", errSDPInvalidValue, value)
		}
		addr.TTL = &ttl
	}
	if len(parts) > 2 {
		rng, err := strconv.Atoi(parts[2])
		if err != nil {
			return nil, fmt.Errorf("%w: c=%q", errSDPInvalidValue, value)
		}
		addr.Range = &rng
	}

	return &ConnectionInformation{
		NetworkType: fields[0],
		AddressType: fields[1],
		Address:     addr,
	}, nil
}

func parseAttribute(value string) Attribute {
	if idx := strings.IndexRune(value, ':'); idx > 0 {
		return NewAttribute(value[:idx], value[idx+1:])
	}
	return NewPropertyAttribute(value)
}

func parseMediaName(value string) (MediaName, error) {
	fields := strings.Fields(value)
	if len(fields) < 3 {
		return MediaName{}, fmt.Errorf("%w: m=%q", errSDPInvalidValue, value)
	}

	var port RangedPort
	portParts := strings.Split(fields[1], "/")
	v, err := strconv.Atoi(portParts[0])
	if err != nil {
		return MediaName{}, fmt.Errorf("%w: m=%q", errSDPInvalidValue, value)
	}
	port.Value = v
	if len(portParts) > 1 {
		rng, err := strconv.Atoi(portParts[1])
		if err != nil {
			return MediaName{}, fmt.Errorf("%w: m=%q", errSDPInvalidValue, value)
		}
		port.Range = &rng
	}

	return MediaName{
		Media:   fields[0],
		Port:    port,
		Protos:  strings.Split(fields[2], "/"),
		Formats: fields[3:],
	}, nil
}
