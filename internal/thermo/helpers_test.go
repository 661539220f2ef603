package thermo

import (
	"fmt"

	"github.com/srg/thermo/internal/ncp"
	"github.com/stretchr/testify/mock"
)

// mockCommander is a testify mock of ncp.Commander.
type mockCommander struct {
	mock.Mock
}

func (m *mockCommander) StartScan(params ncp.ScanParams) error {
	return m.Called(params).Error(0)
}

func (m *mockCommander) StopScan() error {
	return m.Called().Error(0)
}

func (m *mockCommander) OpenConnection(addr ncp.Address, addrType ncp.AddressType, phy ncp.Phy) error {
	return m.Called(addr, addrType, phy).Error(0)
}

func (m *mockCommander) DiscoverPrimaryServices(conn ncp.Connection) error {
	return m.Called(conn).Error(0)
}

func (m *mockCommander) DiscoverCharacteristics(conn ncp.Connection, svc ncp.Service) error {
	return m.Called(conn, svc).Error(0)
}

func (m *mockCommander) SetCharacteristicNotification(conn ncp.Connection, ch ncp.Characteristic, mode ncp.NotificationMode) error {
	return m.Called(conn, ch, mode).Error(0)
}

func (m *mockCommander) SendCharacteristicConfirmation(conn ncp.Connection) error {
	return m.Called(conn).Error(0)
}

func (m *mockCommander) GetRssi(conn ncp.Connection) error {
	return m.Called(conn).Error(0)
}

func (m *mockCommander) Reset(mode ncp.ResetMode) error {
	return m.Called(mode).Error(0)
}

// recorder implements both ncp.Commander and Reporter and appends every call
// to one log, so tests can assert ordering across the two interfaces.
type recorder struct {
	log []string
	err error
}

func (r *recorder) add(format string, args ...any) error {
	r.log = append(r.log, fmt.Sprintf(format, args...))
	return r.err
}

func (r *recorder) StartScan(p ncp.ScanParams) error {
	return r.add("StartScan(phy=%d,mode=%d)", p.Phy, p.Mode)
}
func (r *recorder) StopScan() error { return r.add("StopScan") }
func (r *recorder) OpenConnection(addr ncp.Address, t ncp.AddressType, phy ncp.Phy) error {
	return r.add("OpenConnection(%s,%s,%d)", addr, t, phy)
}
func (r *recorder) DiscoverPrimaryServices(conn ncp.Connection) error {
	return r.add("DiscoverPrimaryServices(%d)", conn)
}
func (r *recorder) DiscoverCharacteristics(conn ncp.Connection, svc ncp.Service) error {
	return r.add("DiscoverCharacteristics(%d,0x%x)", conn, svc)
}
func (r *recorder) SetCharacteristicNotification(conn ncp.Connection, ch ncp.Characteristic, mode ncp.NotificationMode) error {
	return r.add("SetCharacteristicNotification(%d,0x%x,%s)", conn, ch, mode)
}
func (r *recorder) SendCharacteristicConfirmation(conn ncp.Connection) error {
	return r.add("SendCharacteristicConfirmation(%d)", conn)
}
func (r *recorder) GetRssi(conn ncp.Connection) error { return r.add("GetRssi(%d)", conn) }
func (r *recorder) Reset(mode ncp.ResetMode) error    { return r.add("Reset(%d)", mode) }

func (r *recorder) Booted(e *ncp.BootEvent) { _ = r.add("report:boot %d.%d", e.Major, e.Minor) }
func (r *recorder) Milestone(msg string)    { _ = r.add("report:%s", msg) }
func (r *recorder) Temperature(_ ncp.Connection, t TemperatureReading) {
	_ = r.add("report:%s", t)
}
func (r *recorder) RSSI(_ ncp.Connection, rssi int8) { _ = r.add("report:%d dBm", rssi) }
func (r *recorder) Unhandled(e ncp.Event)            { _ = r.add("report:unhandled %s", e.Name()) }

// fakeSource is an EventSource backed by a channel.
type fakeSource struct {
	ch  chan ncp.Event
	err error
}

func newFakeSource(events ...ncp.Event) *fakeSource {
	ch := make(chan ncp.Event, len(events))
	for _, e := range events {
		ch <- e
	}
	return &fakeSource{ch: ch}
}

func (s *fakeSource) Events() <-chan ncp.Event { return s.ch }
func (s *fakeSource) Err() error               { return s.err }

var (
	peerAddress = ncp.Address{0xcc, 0xbb, 0xaa, 0x57, 0x0b, 0x00}

	// Flags + complete list of 16-bit UUIDs holding 0x1809.
	thermometerAdvertisement = []byte{0x02, 0x01, 0x06, 0x03, 0x03, 0x09, 0x18}
	// Flags + complete list of 16-bit UUIDs holding 0x180D.
	heartRateAdvertisement = []byte{0x02, 0x01, 0x06, 0x03, 0x03, 0x0d, 0x18}
)

func bootEvent() *ncp.BootEvent { return &ncp.BootEvent{Major: 3, Minor: 2} }

func matchingReport() *ncp.ScanReportEvent {
	return &ncp.ScanReportEvent{Address: peerAddress, AddressType: ncp.AddressPublic, RSSI: -52, Data: thermometerAdvertisement}
}

func serviceFound(conn ncp.Connection, uuid uint16, handle ncp.Service) *ncp.ServiceFoundEvent {
	return &ncp.ServiceFoundEvent{Connection: conn, Service: handle, UUID: uuid16(uuid)}
}

func characteristicFound(conn ncp.Connection, uuid uint16, handle ncp.Characteristic) *ncp.CharacteristicFoundEvent {
	return &ncp.CharacteristicFoundEvent{Connection: conn, Characteristic: handle, UUID: uuid16(uuid)}
}

func uuid16(u uint16) []byte { return []byte{byte(u), byte(u >> 8)} }
