package mcu

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Dictionary is the identify data an MCU publishes: its build, constants and
// the IDs of every command and response it knows.
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`

	commandIDs  map[string]uint16
	responseIDs map[string]uint16
	formats     map[uint16]string
}

// ParseDictionary decodes identify data, inflating it first when it is a
// zlib stream.
func ParseDictionary(data []byte) (*Dictionary, error) {
	if len(data) >= 2 && data[0] == 0x78 {
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Wrap(err, "inflating dictionary")
		}
		inflated, err := io.ReadAll(r)
		if err != nil {
			return nil, errors.Wrap(err, "inflating dictionary")
		}
		data = inflated
	}

	d := &Dictionary{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, errors.Wrap(err, "decoding dictionary")
	}
	d.index()
	return d, nil
}

func (d *Dictionary) index() {
	d.commandIDs = make(map[string]uint16, len(d.Commands))
	d.responseIDs = make(map[string]uint16, len(d.Responses))
	d.formats = make(map[uint16]string, len(d.Commands)+len(d.Responses))
	for sig, id := range d.Commands {
		d.commandIDs[messageName(sig)] = uint16(id)
		d.formats[uint16(id)] = sig
	}
	for sig, id := range d.Responses {
		d.responseIDs[messageName(sig)] = uint16(id)
		d.formats[uint16(id)] = sig
	}
}

// CommandID returns the ID of a command by name.
func (d *Dictionary) CommandID(name string) (uint16, error) {
	id, ok := d.commandIDs[name]
	if !ok {
		return 0, errors.Errorf("MCU has no command %q", name)
	}
	return id, nil
}

// ResponseID returns the ID of a response by name.
func (d *Dictionary) ResponseID(name string) (uint16, error) {
	id, ok := d.responseIDs[name]
	if !ok {
		return 0, errors.Errorf("MCU has no response %q", name)
	}
	return id, nil
}

// Format returns the signature registered under id.
func (d *Dictionary) Format(id uint16) string {
	return d.formats[id]
}

// Enumeration returns the values of one enumeration, for example the
// hardware SPI buses by name.
func (d *Dictionary) Enumeration(name string) map[string]int {
	return d.Enumerations[name]
}

func messageName(sig string) string {
	name, _, _ := strings.Cut(sig, " ")
	return name
}
