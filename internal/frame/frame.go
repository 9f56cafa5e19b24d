// Package frame builds outgoing request frames and parses incoming
// response frames for the bus protocol: a leading '!' (on responses),
// a 2-hex-digit device id, ':', a kind letter, '|'-separated payload
// fields, and a trailing '|' + 4 hex CRC digits. The line driver has
// already stripped the 0xff sync byte and the CRLF terminator by the
// time these functions see a buffer.
package frame

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs485bus/busmaster/internal/crc16"
	"github.com/rs485bus/busmaster/internal/devtable"
	"github.com/rs485bus/busmaster/internal/hexcodec"
)

// Kind is the single-letter request/response discriminator.
type Kind byte

const (
	Discover Kind = 'D'
	Poll     Kind = 'P'
)

// Sentinel errors for the "bad response" category of spec §7. All of
// them are non-fatal: the caller feeds them to the liveness state
// machine as a failed exchange.
var (
	ErrMalformed   = errors.New("malformed frame")
	ErrIDMismatch  = errors.New("device id echo mismatch")
	ErrCRCMismatch = errors.New("crc mismatch")
	ErrFieldTooBig = errors.New("field exceeds maximum length")
)

// BuildRequest renders "?DD:Q|HHHH" for the given device id (masked
// to 7 bits) and kind. The result does not include the leading 0xff
// sync byte or the trailing CRLF; busline.Send adds both.
func BuildRequest(dev byte, kind Kind) []byte {
	id := dev & 0x7f
	body := make([]byte, 0, 6)
	body = append(body, '?')
	idHex := make([]byte, 2)
	hexcodec.Encode8(idHex, id)
	body = append(body, idHex...)
	body = append(body, ':', byte(kind), '|')

	crc := crc16.Buf(body)
	crcHex := make([]byte, 4)
	hexcodec.Encode16(crcHex, crc)
	return append(body, crcHex...)
}

// DiscoverReply is the parsed payload of a discover response.
type DiscoverReply struct {
	PollIntervalS uint16
	Description   string
	Unit          string
}

// PollReply is the parsed payload of a poll response.
type PollReply struct {
	// ValueText is the exact substring that was verified to parse as
	// a float; it's what gets reported verbatim in the POLL line.
	ValueText string
}

// commonChecks validates the header shared by discover and poll
// responses: minimum length, the leading '!', the ':' separator, the
// expected kind letter and the echoed device id. The trailing CRC is
// checked separately by verifyTrailingCRC.
func commonChecks(buf []byte, dev byte, kind Kind) error {
	if len(buf) < 9 {
		return fmt.Errorf("%w: too short", ErrMalformed)
	}
	if buf[0] != '!' {
		return fmt.Errorf("%w: missing start-of-frame", ErrMalformed)
	}
	if buf[3] != ':' {
		return fmt.Errorf("%w: missing kind separator", ErrMalformed)
	}
	if buf[4] != byte(kind) {
		return fmt.Errorf("%w: unexpected kind letter %q", ErrMalformed, buf[4])
	}
	id := hexcodec.Decode8(buf[1:3])
	if id != dev&0x7f {
		return ErrIDMismatch
	}
	return nil
}

// verifyTrailingCRC checks that buf ends with "|HHHH" and that the
// CRC over everything up to and including that '|' matches. It
// returns the index of the '|' on success.
func verifyTrailingCRC(buf []byte) (int, error) {
	if len(buf) < 5 {
		return 0, fmt.Errorf("%w: too short for CRC trailer", ErrMalformed)
	}
	pipeIdx := len(buf) - 5
	if buf[pipeIdx] != '|' {
		return 0, fmt.Errorf("%w: missing CRC separator", ErrMalformed)
	}
	want := crc16.Buf(buf[:pipeIdx+1])
	got := hexcodec.Decode16(buf[pipeIdx+1:])
	if want != got {
		return 0, ErrCRCMismatch
	}
	return pipeIdx, nil
}

// ParseDiscover parses a "!DD:D<interval>|<description>|<unit>|HHHH"
// response addressed to dev.
func ParseDiscover(buf []byte, dev byte) (DiscoverReply, error) {
	var reply DiscoverReply
	if err := commonChecks(buf, dev, Discover); err != nil {
		return reply, err
	}
	crcPipe, err := verifyTrailingCRC(buf)
	if err != nil {
		return reply, err
	}

	rest := buf[5:crcPipe]

	intervalEnd := indexByte(rest, '|')
	if intervalEnd < 0 {
		return reply, fmt.Errorf("%w: missing interval separator", ErrMalformed)
	}
	intervalText := string(rest[:intervalEnd])
	interval, err := strconv.ParseUint(intervalText, 10, 16)
	if err != nil || intervalText == "" {
		return reply, fmt.Errorf("%w: bad poll interval %q", ErrMalformed, intervalText)
	}
	rest = rest[intervalEnd+1:]

	descEnd := indexByte(rest, '|')
	if descEnd < 0 {
		return reply, fmt.Errorf("%w: missing description separator", ErrMalformed)
	}
	if descEnd > devtable.MaxDescription {
		return reply, fmt.Errorf("%w: description", ErrFieldTooBig)
	}
	description := string(rest[:descEnd])
	rest = rest[descEnd+1:]

	// Whatever remains is the unit: there is no further separator
	// because crcPipe was already excised above.
	if len(rest) > devtable.MaxUnit {
		return reply, fmt.Errorf("%w: unit", ErrFieldTooBig)
	}
	unit := string(rest)

	reply.PollIntervalS = uint16(interval)
	reply.Description = description
	reply.Unit = unit
	return reply, nil
}

// ParsePoll parses a "!DD:P<value>|HHHH" response addressed to dev.
func ParsePoll(buf []byte, dev byte) (PollReply, error) {
	var reply PollReply
	if err := commonChecks(buf, dev, Poll); err != nil {
		return reply, err
	}
	crcPipe, err := verifyTrailingCRC(buf)
	if err != nil {
		return reply, err
	}

	valueText := string(buf[5:crcPipe])
	if !isFiniteFloat(valueText) {
		return reply, fmt.Errorf("%w: value %q is not a float", ErrMalformed, valueText)
	}
	reply.ValueText = valueText
	return reply, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// isFiniteFloat reports whether s parses as a float, consuming the
// whole string, per the "terminator is exactly the | before the CRC"
// rule: a trailing unparsed suffix (including NaN/Inf spellings,
// which strconv.ParseFloat otherwise accepts) is rejected.
func isFiniteFloat(s string) bool {
	if s == "" {
		return false
	}
	lower := strings.ToLower(s)
	if strings.Contains(lower, "nan") || strings.Contains(lower, "inf") {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
