// Package thermo implements the Health Thermometer client: a state machine that
// drives an NCP from boot through scanning, connection, GATT discovery and
// indication subscription, and then decodes the temperature indications it
// receives.
//
// The Client is fed one ncp.Event at a time and is not safe for concurrent use.
// All waiting happens outside of it, between HandleEvent calls.
package thermo

import (
	"fmt"
	"io"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/thermo/internal/advscan"
	"github.com/srg/thermo/internal/ncp"
)

var (
	// TargetService is the Health Thermometer service (0x1809).
	TargetService = ble.UUID16(0x1809)
	// TargetCharacteristic is the Temperature Measurement characteristic (0x2A1C).
	TargetCharacteristic = ble.UUID16(0x2A1C)
)

// DiscoveryState tells which discovery procedure a ProcedureCompleted event ends.
type DiscoveryState int

const (
	Idle DiscoveryState = iota
	AwaitingServiceDiscoveryResult
	AwaitingCharacteristicDiscoveryResult
)

func (s DiscoveryState) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingServiceDiscoveryResult:
		return "awaiting_service_discovery"
	case AwaitingCharacteristicDiscoveryResult:
		return "awaiting_characteristic_discovery"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures a Client. A zero Scan means 1M PHY observation scanning
// and a zero ConnectionPhy means 1M.
type Options struct {
	Scan          ncp.ScanParams
	ConnectionPhy ncp.Phy

	Logger   *logrus.Logger
	Reporter Reporter
}

// Client is the GATT client state machine.
type Client struct {
	cmd      ncp.Commander
	reporter Reporter
	logger   *logrus.Logger
	matches  advscan.Filter

	scanParams    ncp.ScanParams
	connectionPhy ncp.Phy

	state    DiscoveryState
	scanning bool

	connection    ncp.Connection
	hasConnection bool

	service    ncp.Service
	hasService bool

	characteristic    ncp.Characteristic
	hasCharacteristic bool
}

var _ ncp.Handler = (*Client)(nil)

var discardLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

// NewClient creates a Client issuing commands through cmd.
func NewClient(cmd ncp.Commander, opts Options) *Client {
	c := &Client{
		cmd:           cmd,
		reporter:      opts.Reporter,
		logger:        opts.Logger,
		matches:       advscan.ForService(TargetService),
		scanParams:    opts.Scan,
		connectionPhy: opts.ConnectionPhy,
	}
	if c.logger == nil {
		c.logger = discardLogger
	}
	if c.reporter == nil {
		c.reporter = NewConsoleReporter(io.Discard, false)
	}
	if c.scanParams == (ncp.ScanParams{}) {
		c.scanParams = ncp.ScanParams{Phy: ncp.Phy1M, Mode: ncp.DiscoverObservation}
	}
	if c.connectionPhy == 0 {
		c.connectionPhy = ncp.Phy1M
	}
	return c
}

// State returns the current discovery state.
func (c *Client) State() DiscoveryState { return c.state }

// Connection returns the active connection, if any.
func (c *Client) Connection() (ncp.Connection, bool) { return c.connection, c.hasConnection }

// Service returns the discovered Health Thermometer service handle, if any.
func (c *Client) Service() (ncp.Service, bool) { return c.service, c.hasService }

// Characteristic returns the discovered Temperature Measurement handle, if any.
func (c *Client) Characteristic() (ncp.Characteristic, bool) {
	return c.characteristic, c.hasCharacteristic
}

// HandleEvent processes one event to completion, issuing any commands it calls for.
// The returned error is always a command failure on the NCP link.
func (c *Client) HandleEvent(e ncp.Event) error {
	c.logger.WithFields(logrus.Fields{
		"event": e.Name(),
		"state": c.state,
	}).Debug("Handling event")
	return e.Dispatch(c)
}

func (c *Client) setState(s DiscoveryState) {
	if s == c.state {
		return
	}
	c.logger.WithFields(logrus.Fields{
		"from": c.state,
		"to":   s,
	}).Debug("Discovery state changed")
	c.state = s
}

func (c *Client) forgetDiscovery() {
	c.hasService = false
	c.hasCharacteristic = false
	c.service = 0
	c.characteristic = 0
}

func (c *Client) OnBoot(e *ncp.BootEvent) error {
	c.reporter.Booted(e)

	// A boot means the NCP lost every link and procedure.
	c.setState(Idle)
	c.hasConnection = false
	c.forgetDiscovery()

	c.logger.WithFields(logrus.Fields{
		"phy":  c.scanParams.Phy,
		"mode": c.scanParams.Mode,
	}).Debug("Starting scan")
	if err := c.cmd.StartScan(c.scanParams); err != nil {
		return fmt.Errorf("start scan: %w", err)
	}
	c.scanning = true
	return nil
}

func (c *Client) OnScanReport(e *ncp.ScanReportEvent) error {
	if c.state != Idle || !c.scanning {
		return nil
	}
	if !c.matches(e.Data) {
		return nil
	}

	c.reporter.Milestone("Health thermometer service found - connecting...")
	c.logger.WithFields(logrus.Fields{
		"address":      e.Address,
		"address_type": e.AddressType,
		"rssi":         e.RSSI,
	}).Info("Found health thermometer")

	// Further reports may still be queued behind this one.
	c.scanning = false
	if err := c.cmd.StopScan(); err != nil {
		return fmt.Errorf("stop scan: %w", err)
	}
	if err := c.cmd.OpenConnection(e.Address, e.AddressType, c.connectionPhy); err != nil {
		return fmt.Errorf("open connection to %s: %w", e.Address, err)
	}
	return nil
}

func (c *Client) OnConnectionOpened(e *ncp.ConnectionOpenedEvent) error {
	c.connection = e.Connection
	c.hasConnection = true
	c.reporter.Milestone("connection opened")
	c.logger.WithFields(logrus.Fields{
		"connection": e.Connection,
		"address":    e.Address,
	}).Info("Connection opened")
	return nil
}

func (c *Client) OnConnectionClosed(e *ncp.ConnectionClosedEvent) error {
	if !c.hasConnection || c.connection != e.Connection {
		c.logger.WithField("connection", e.Connection).Debug("Ignoring close of unknown connection")
		return nil
	}

	// No reconnection: the link is gone until the process restarts.
	c.logger.WithFields(logrus.Fields{
		"connection": e.Connection,
		"reason":     fmt.Sprintf("0x%04x", e.Reason),
	}).Warn("Connection closed")
	c.reporter.Milestone(fmt.Sprintf("connection closed (reason 0x%04x)", e.Reason))

	c.hasConnection = false
	c.forgetDiscovery()
	c.setState(Idle)
	return nil
}

func (c *Client) OnMtuExchanged(e *ncp.MtuExchangedEvent) error {
	c.logger.WithFields(logrus.Fields{
		"connection": e.Connection,
		"mtu":        e.MTU,
	}).Debug("MTU exchanged, discovering services")

	// Handles from an earlier discovery must not leak into this one.
	c.forgetDiscovery()
	if err := c.cmd.DiscoverPrimaryServices(e.Connection); err != nil {
		return fmt.Errorf("discover primary services: %w", err)
	}
	c.setState(AwaitingServiceDiscoveryResult)
	return nil
}

func (c *Client) OnServiceFound(e *ncp.ServiceFoundEvent) error {
	if c.state != AwaitingServiceDiscoveryResult {
		return nil
	}
	if !TargetService.Equal(e.UUID) {
		c.logger.WithField("uuid", e.UUID).Debug("Skipping service")
		return nil
	}

	c.service = e.Service
	c.hasService = true
	c.reporter.Milestone("Service found...")
	c.logger.WithField("service", e.Service).Info("Health thermometer service found")
	return nil
}

func (c *Client) OnCharacteristicFound(e *ncp.CharacteristicFoundEvent) error {
	if c.state != AwaitingCharacteristicDiscoveryResult {
		return nil
	}
	if !TargetCharacteristic.Equal(e.UUID) {
		c.logger.WithField("uuid", e.UUID).Debug("Skipping characteristic")
		return nil
	}

	c.characteristic = e.Characteristic
	c.hasCharacteristic = true
	c.reporter.Milestone("Characteristic found...")
	c.logger.WithField("characteristic", e.Characteristic).Info("Temperature measurement characteristic found")
	return nil
}

func (c *Client) OnProcedureCompleted(e *ncp.ProcedureCompletedEvent) error {
	if e.Result != 0 {
		c.logger.WithFields(logrus.Fields{
			"connection": e.Connection,
			"result":     fmt.Sprintf("0x%04x", e.Result),
			"state":      c.state,
		}).Warn("GATT procedure completed with error")
	}

	switch c.state {
	case AwaitingServiceDiscoveryResult:
		if !c.hasService {
			c.logger.WithField("connection", e.Connection).Warn("Health thermometer service not found on peer")
			c.reporter.Milestone("Health thermometer service not found")
			c.setState(Idle)
			return nil
		}
		if err := c.cmd.DiscoverCharacteristics(e.Connection, c.service); err != nil {
			return fmt.Errorf("discover characteristics: %w", err)
		}
		c.setState(AwaitingCharacteristicDiscoveryResult)

	case AwaitingCharacteristicDiscoveryResult:
		if !c.hasCharacteristic {
			c.logger.WithField("connection", e.Connection).Warn("Temperature measurement characteristic not found on peer")
			c.reporter.Milestone("Temperature measurement characteristic not found")
			c.setState(Idle)
			return nil
		}
		if err := c.cmd.SetCharacteristicNotification(e.Connection, c.characteristic, ncp.Indication); err != nil {
			return fmt.Errorf("enable indications: %w", err)
		}
		c.logger.WithField("characteristic", c.characteristic).Debug("Indications requested")
		c.setState(Idle)

	case Idle:
		// Completion of a procedure nobody is waiting on, e.g. the
		// notification-enable write.
	}
	return nil
}

func (c *Client) OnCharacteristicValue(e *ncp.CharacteristicValueEvent) error {
	reading, err := DecodeTemperature(e.Value)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"connection":     e.Connection,
			"characteristic": e.Characteristic,
		}).Warn("Dropping undecodable temperature value")
	} else {
		c.reporter.Temperature(e.Connection, reading)
		c.logger.WithFields(logrus.Fields{
			"connection": e.Connection,
			"raw":        reading.Raw,
		}).Debug("Temperature decoded")
	}

	// The indication is confirmed even if it could not be decoded.
	if err := c.cmd.SendCharacteristicConfirmation(e.Connection); err != nil {
		return fmt.Errorf("confirm indication: %w", err)
	}
	if err := c.cmd.GetRssi(e.Connection); err != nil {
		return fmt.Errorf("get rssi: %w", err)
	}
	return nil
}

func (c *Client) OnRssi(e *ncp.RssiEvent) error {
	c.reporter.RSSI(e.Connection, e.RSSI)
	return nil
}

func (c *Client) OnUnknown(e *ncp.UnknownEvent) error {
	c.logger.WithFields(logrus.Fields{
		"class":   e.Class,
		"message": e.Message,
	}).Debug("Unhandled event")
	c.reporter.Unhandled(e)
	return nil
}
