// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package sdp

import (
	"strconv"
	"strings"
)

// Marshal serializes the session description following the field order of
// RFC 4566 §5. Attributes are emitted in insertion order, which keeps
// repeated negotiations byte-stable.
func (s *SessionDescription) Marshal() string {
	var b strings.Builder

	writeField(&b, "v", strconv.Itoa(int(s.Version)))
	writeField(&b, "o", s.Origin.String())
	writeField(&b, "s", string(s.SessionName))

	if s.SessionInformation != nil {
		writeField(&b, "i", string(*s.SessionInformation))
	}
	if s.ConnectionInformation != nil {
		writeField(&b, "c", s.ConnectionInformation.String())
	}
	if len(s.TimeDescriptions) == 0 {
		writeField(&b, "t", "0 0")
	}
	for _, td := range s.TimeDescriptions {
		writeField(&b, "t", td.Timing.String())
	}
	for _, a := range s.Attributes {
		writeField(&b, "a", a.String())
	}

	for _, md := range s.MediaDescriptions {
		mLine := md.MediaName.Media + " " + md.MediaName.Port.String() + " " + strings.Join(md.MediaName.Protos, "/")
		if len(md.MediaName.Formats) > 0 {
			mLine += " " + strings.Join(md.MediaName.Formats, " ")
		}
		writeField(&b, "m", mLine)

		if md.MediaTitle != nil {
			writeField(&b, "i", string(*md.MediaTitle))
		}
		if md.ConnectionInformation != nil {
			writeField(&b, "c", md.ConnectionInformation.String())
		}
		for _, a := range md.Attributes {
			writeField(&b, "a", a.String())
		}
	}

	return b.String()
}

func writeField(b *strings.Builder, key, value string) {
	b.WriteString(key)
	b.WriteString("=")
	b.WriteString(value)
	b.WriteString("\r\n")
}
