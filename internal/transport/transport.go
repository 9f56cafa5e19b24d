// Package transport composes the frame codec and the line driver into
// the two exchanges the scheduler issues: Discover and Poll. This is
// the "Scheduler → Frame codec (build) → Line driver (transmit+receive)
// → Frame codec (parse+CRC)" data flow from the system overview.
package transport

import (
	"errors"
	"fmt"

	"github.com/rs485bus/busmaster/internal/busline"
	"github.com/rs485bus/busmaster/internal/frame"
)

// maxResponse bounds the receive buffer. A discover response carries
// up to a description (140) + unit (20) + interval digits + framing,
// comfortably under this.
const maxResponse = 512

// Transport issues discover/poll exchanges over a line driver.
type Transport struct {
	driver *busline.Driver
}

// New wraps a busline.Driver.
func New(driver *busline.Driver) *Transport {
	return &Transport{driver: driver}
}

// Discover sends a discover request for dev and parses the response.
// A timeout surfaces as busline.ErrNoResponse; any other protocol
// violation surfaces as one of the frame package's sentinel errors.
// Both are "bad response" in the sense of spec §7: the caller feeds
// either into the liveness state machine as a failure.
func (t *Transport) Discover(dev byte) (frame.DiscoverReply, error) {
	req := frame.BuildRequest(dev, frame.Discover)
	if err := t.driver.Send(req); err != nil {
		return frame.DiscoverReply{}, fmt.Errorf("send discover: %w", err)
	}
	buf := make([]byte, maxResponse)
	n, err := t.driver.Recv(buf)
	if err != nil {
		if errors.Is(err, busline.ErrNoResponse) {
			return frame.DiscoverReply{}, err
		}
		return frame.DiscoverReply{}, fmt.Errorf("recv discover: %w", err)
	}
	return frame.ParseDiscover(buf[:n], dev)
}

// Poll sends a poll request for dev and parses the response.
func (t *Transport) Poll(dev byte) (frame.PollReply, error) {
	req := frame.BuildRequest(dev, frame.Poll)
	if err := t.driver.Send(req); err != nil {
		return frame.PollReply{}, fmt.Errorf("send poll: %w", err)
	}
	buf := make([]byte, maxResponse)
	n, err := t.driver.Recv(buf)
	if err != nil {
		if errors.Is(err, busline.ErrNoResponse) {
			return frame.PollReply{}, err
		}
		return frame.PollReply{}, fmt.Errorf("recv poll: %w", err)
	}
	return frame.ParsePoll(buf[:n], dev)
}
