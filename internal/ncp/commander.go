package ncp

// Commander issues commands to the NCP.
//
// Calls are fire-and-forget: a nil error only means the command was handed to
// the link. Results arrive later as events. A non-nil error means the link
// itself failed.
type Commander interface {
	StartScan(params ScanParams) error
	StopScan() error
	OpenConnection(addr Address, addrType AddressType, phy Phy) error
	DiscoverPrimaryServices(conn Connection) error
	DiscoverCharacteristics(conn Connection, svc Service) error
	SetCharacteristicNotification(conn Connection, ch Characteristic, mode NotificationMode) error
	SendCharacteristicConfirmation(conn Connection) error
	GetRssi(conn Connection) error

	// Reset restarts the NCP. Used by drivers at startup and on shutdown.
	Reset(mode ResetMode) error
}
