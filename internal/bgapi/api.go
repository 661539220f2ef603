package bgapi

import (
	"fmt"
	"os"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"
)

// Command names.
const (
	CmdSystemReset                        = "system_reset"
	CmdScannerStart                       = "scanner_start"
	CmdScannerStop                        = "scanner_stop"
	CmdConnectionOpen                     = "connection_open"
	CmdConnectionGetRssi                  = "connection_get_rssi"
	CmdGattDiscoverPrimaryServices        = "gatt_discover_primary_services"
	CmdGattDiscoverCharacteristics        = "gatt_discover_characteristics"
	CmdGattSetCharacteristicNotification  = "gatt_set_characteristic_notification"
	CmdGattSendCharacteristicConfirmation = "gatt_send_characteristic_confirmation"
)

// Event names.
const (
	EvtSystemBoot              = "system_boot"
	EvtScannerScanReport       = "scanner_scan_report"
	EvtConnectionOpened        = "connection_opened"
	EvtConnectionClosed        = "connection_closed"
	EvtConnectionRssi          = "connection_rssi"
	EvtGattMtuExchanged        = "gatt_mtu_exchanged"
	EvtGattService             = "gatt_service"
	EvtGattCharacteristic      = "gatt_characteristic"
	EvtGattCharacteristicValue = "gatt_characteristic_value"
	EvtGattProcedureCompleted  = "gatt_procedure_completed"
)

// MessageID addresses a command or event within the API.
type MessageID struct {
	Class   uint8 `yaml:"class"`
	Message uint8 `yaml:"message"`
}

func (id MessageID) key() uint16 {
	return uint16(id.Class)<<8 | uint16(id.Message)
}

func (id MessageID) String() string {
	return fmt.Sprintf("0x%02x/0x%02x", id.Class, id.Message)
}

// API is the table of message IDs the client knows how to encode and decode.
// Entries keep insertion order so listings are stable.
type API struct {
	Version  string
	Commands *orderedmap.OrderedMap[string, MessageID]
	Events   *orderedmap.OrderedMap[string, MessageID]
}

// DefaultAPI returns the message IDs of the Bluetooth API v3 NCP firmware.
func DefaultAPI() *API {
	a := &API{
		Version:  "3",
		Commands: orderedmap.New[string, MessageID](),
		Events:   orderedmap.New[string, MessageID](),
	}

	a.Commands.Set(CmdSystemReset, MessageID{0x01, 0x01})
	a.Commands.Set(CmdScannerStart, MessageID{0x05, 0x03})
	a.Commands.Set(CmdScannerStop, MessageID{0x05, 0x05})
	a.Commands.Set(CmdConnectionOpen, MessageID{0x06, 0x04})
	a.Commands.Set(CmdConnectionGetRssi, MessageID{0x06, 0x02})
	a.Commands.Set(CmdGattDiscoverPrimaryServices, MessageID{0x09, 0x01})
	a.Commands.Set(CmdGattDiscoverCharacteristics, MessageID{0x09, 0x03})
	a.Commands.Set(CmdGattSetCharacteristicNotification, MessageID{0x09, 0x05})
	a.Commands.Set(CmdGattSendCharacteristicConfirmation, MessageID{0x09, 0x0d})

	a.Events.Set(EvtSystemBoot, MessageID{0x01, 0x00})
	a.Events.Set(EvtScannerScanReport, MessageID{0x05, 0x01})
	a.Events.Set(EvtConnectionOpened, MessageID{0x06, 0x00})
	a.Events.Set(EvtConnectionClosed, MessageID{0x06, 0x01})
	a.Events.Set(EvtConnectionRssi, MessageID{0x06, 0x03})
	a.Events.Set(EvtGattMtuExchanged, MessageID{0x09, 0x00})
	a.Events.Set(EvtGattService, MessageID{0x09, 0x01})
	a.Events.Set(EvtGattCharacteristic, MessageID{0x09, 0x02})
	a.Events.Set(EvtGattCharacteristicValue, MessageID{0x09, 0x04})
	a.Events.Set(EvtGattProcedureCompleted, MessageID{0x09, 0x06})

	return a
}

// apiFile is the on-disk shape of an API override.
type apiFile struct {
	Version  string               `yaml:"version"`
	Commands map[string]MessageID `yaml:"commands"`
	Events   map[string]MessageID `yaml:"events"`
}

// LoadAPI returns DefaultAPI with the IDs listed in the YAML file at path
// overriding the defaults. Only known message names may be overridden.
func LoadAPI(path string) (*API, error) {
	a := DefaultAPI()
	if path == "" {
		return a, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read API file: %w", err)
	}
	if err := a.Apply(data); err != nil {
		return nil, fmt.Errorf("API file %s: %w", path, err)
	}
	return a, nil
}

// Apply overlays YAML-encoded IDs onto the table.
func (a *API) Apply(data []byte) error {
	var f apiFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	if f.Version != "" {
		a.Version = f.Version
	}
	for name, id := range f.Commands {
		if _, ok := a.Commands.Get(name); !ok {
			return fmt.Errorf("%w: command %q", ErrUnknownMessage, name)
		}
		a.Commands.Set(name, id)
	}
	for name, id := range f.Events {
		if _, ok := a.Events.Get(name); !ok {
			return fmt.Errorf("%w: event %q", ErrUnknownMessage, name)
		}
		a.Events.Set(name, id)
	}
	return a.Validate()
}

// Validate checks that no two commands and no two events share an ID.
func (a *API) Validate() error {
	if err := uniqueIDs("command", a.Commands); err != nil {
		return err
	}
	return uniqueIDs("event", a.Events)
}

func uniqueIDs(kind string, m *orderedmap.OrderedMap[string, MessageID]) error {
	seen := make(map[uint16]string, m.Len())
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		if other, dup := seen[pair.Value.key()]; dup {
			return fmt.Errorf("%s %q and %q share ID %s", kind, other, pair.Key, pair.Value)
		}
		seen[pair.Value.key()] = pair.Key
	}
	return nil
}

// MarshalYAML renders the table in the same shape LoadAPI reads.
func (a *API) MarshalYAML() (interface{}, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	root.Content = append(root.Content,
		scalar("version"), &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: a.Version},
		scalar("commands"), idTable(a.Commands),
		scalar("events"), idTable(a.Events),
	)
	return root, nil
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: v}
}

func hexInt(v uint8) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprintf("0x%02x", v)}
}

func idTable(m *orderedmap.OrderedMap[string, MessageID]) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		id := &yaml.Node{Kind: yaml.MappingNode, Style: yaml.FlowStyle}
		id.Content = append(id.Content,
			scalar("class"), hexInt(pair.Value.Class),
			scalar("message"), hexInt(pair.Value.Message),
		)
		n.Content = append(n.Content, scalar(pair.Key), id)
	}
	return n
}
