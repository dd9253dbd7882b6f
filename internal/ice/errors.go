// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package ice

import "errors"

var errPacketTooLarge = errors.New("ice: inbound packet larger than read buffer")
