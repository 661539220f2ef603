package bgapi

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/srg/thermo/internal/ncp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// NodeTestSuite runs a Node against a scripted peer over an in-memory pipe.
type NodeTestSuite struct {
	suite.Suite

	node *Node
	peer net.Conn
	fr   *FrameReader
	hook *test.Hook
}

func (s *NodeTestSuite) SetupTest() {
	local, peer := net.Pipe()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	s.node = NewNode(local, nil, NodeOptions{Logger: logger, EventBuffer: 4})
	s.peer = peer
	s.fr = NewFrameReader(peer)
	s.hook = hook
}

func (s *NodeTestSuite) TearDownTest() {
	_ = s.node.Close()
	_ = s.peer.Close()
}

// expectCommand runs send and returns the frame the peer received.
func (s *NodeTestSuite) expectCommand(send func() error) Frame {
	errCh := make(chan error, 1)
	go func() { errCh <- send() }()

	f, err := s.fr.ReadFrame()
	s.Require().NoError(err)
	s.Require().NoError(<-errCh)
	s.Require().False(f.Event, "commands MUST NOT carry the event flag")
	return f
}

func (s *NodeTestSuite) writeFrame(f Frame) {
	b, err := f.MarshalBinary()
	s.Require().NoError(err)
	_, err = s.peer.Write(b)
	s.Require().NoError(err)
}

func (s *NodeTestSuite) nextEvent() ncp.Event {
	select {
	case e, ok := <-s.node.Events():
		s.Require().True(ok, "event channel MUST stay open")
		return e
	case <-time.After(2 * time.Second):
		s.FailNow("timed out waiting for event")
		return nil
	}
}

func (s *NodeTestSuite) TestCommandEncoding() {
	addr := ncp.Address{0xcc, 0xbb, 0xaa, 0x57, 0x0b, 0x00}

	tests := []struct {
		name    string
		send    func() error
		id      MessageID
		payload []byte
	}{
		{"reset", func() error { return s.node.Reset(ncp.ResetNormal) }, MessageID{0x01, 0x01}, []byte{0}},
		{"start scan", func() error {
			return s.node.StartScan(ncp.ScanParams{Phy: ncp.Phy1M, Mode: ncp.DiscoverObservation})
		}, MessageID{0x05, 0x03}, []byte{1, 2}},
		{"stop scan", s.node.StopScan, MessageID{0x05, 0x05}, nil},
		{"open connection", func() error {
			return s.node.OpenConnection(addr, ncp.AddressRandom, ncp.Phy1M)
		}, MessageID{0x06, 0x04}, []byte{0xcc, 0xbb, 0xaa, 0x57, 0x0b, 0x00, 1, 1}},
		{"discover services", func() error { return s.node.DiscoverPrimaryServices(1) }, MessageID{0x09, 0x01}, []byte{1}},
		{"discover characteristics", func() error {
			return s.node.DiscoverCharacteristics(1, 0x00010020)
		}, MessageID{0x09, 0x03}, []byte{1, 0x20, 0x00, 0x01, 0x00}},
		{"enable indications", func() error {
			return s.node.SetCharacteristicNotification(1, 0x12, ncp.Indication)
		}, MessageID{0x09, 0x05}, []byte{1, 0x12, 0x00, 2}},
		{"confirm", func() error { return s.node.SendCharacteristicConfirmation(1) }, MessageID{0x09, 0x0d}, []byte{1}},
		{"rssi", func() error { return s.node.GetRssi(1) }, MessageID{0x06, 0x02}, []byte{1}},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			f := s.expectCommand(tt.send)
			s.Equal(tt.id, f.ID)
			s.Equal(tt.payload, f.Payload)
		})
	}
}

func (s *NodeTestSuite) TestEventsArriveInOrder() {
	go func() {
		s.writeFrame(Frame{Event: true, ID: MessageID{0x01, 0x00}, Payload: []byte{3, 0, 2, 0, 0, 0, 0, 0}})
		s.writeFrame(Frame{Event: true, ID: MessageID{0x06, 0x03}, Payload: []byte{1, 0, 0xd0}})
	}()

	s.Equal(&ncp.BootEvent{Major: 3, Minor: 2}, s.nextEvent())
	s.Equal(&ncp.RssiEvent{Connection: 1, RSSI: -48}, s.nextEvent())
}

func (s *NodeTestSuite) TestRejectedCommandIsLoggedNotDelivered() {
	// GOAL: Verify that a failed command response only produces a warning
	//
	// TEST SCENARIO: Peer answers scanner_start with result 0x0181 then sends an event → warning logged, only the event delivered

	go func() {
		s.writeFrame(Frame{ID: MessageID{0x05, 0x03}, Payload: []byte{0x81, 0x01}})
		s.writeFrame(Frame{Event: true, ID: MessageID{0x09, 0x00}, Payload: []byte{1, 0xf7, 0x00}})
	}()

	s.Equal(&ncp.MtuExchangedEvent{Connection: 1, MTU: 247}, s.nextEvent())

	var warned bool
	for _, entry := range s.hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warned = true
			var cmdErr *CommandError
			s.Require().ErrorAs(entry.Data[logrus.ErrorKey].(error), &cmdErr)
			s.Equal(CmdScannerStart, cmdErr.Command)
			s.Equal(uint16(0x0181), cmdErr.Result)
		}
	}
	s.True(warned, "a non-zero result MUST be logged as a warning")
}

func (s *NodeTestSuite) TestUndecodableEventIsSkipped() {
	go func() {
		s.writeFrame(Frame{Event: true, ID: MessageID{0x09, 0x00}, Payload: []byte{1}})
		s.writeFrame(Frame{Event: true, ID: MessageID{0x06, 0x01}, Payload: []byte{0x13, 0x02, 1}})
	}()

	s.Equal(&ncp.ConnectionClosedEvent{Reason: 0x0213, Connection: 1}, s.nextEvent())
}

func (s *NodeTestSuite) TestPeerHangupClosesEvents() {
	s.Require().NoError(s.peer.Close())

	_, ok := <-s.node.Events()
	s.False(ok, "events MUST close when the link drops")
	s.ErrorIs(s.node.Err(), io.EOF)
}

func (s *NodeTestSuite) TestCloseStopsNode() {
	s.Require().NoError(s.node.Close())

	_, ok := <-s.node.Events()
	s.False(ok)
	s.ErrorIs(s.node.Err(), ErrClosed)
	s.ErrorIs(s.node.GetRssi(1), ErrClosed, "commands after Close MUST fail")
	s.NoError(s.node.Close(), "Close MUST be idempotent")
}

func TestNodeTestSuite(t *testing.T) {
	suite.Run(t, new(NodeTestSuite))
}

func TestNode_WriteFailure(t *testing.T) {
	local, peer := net.Pipe()
	require.NoError(t, peer.Close())

	node := NewNode(local, nil, NodeOptions{})
	defer node.Close()

	err := node.StopScan()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "write "+CmdScannerStop)
}
