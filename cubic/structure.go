package cubic

import (
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

// ErrNoMachines is returned when a structure payload contains no
// machines to extract a serial number from.
var ErrNoMachines = errors.New("structure contains no machines")

// FirstSerialNumber extracts the serial number of the first machine in
// the first real estate of a structure payload, the common case for
// single-device accounts.
func FirstSerialNumber(structure json.RawMessage) (string, error) {
	serial := gjson.GetBytes(structure, "0.realestateMachines.0.identity")
	if !serial.Exists() || serial.String() == "" {
		return "", ErrNoMachines
	}

	return serial.String(), nil
}

// SerialNumbers extracts the serial numbers of every machine across
// all real estates in a structure payload, in document order.
func SerialNumbers(structure json.RawMessage) []string {
	var serials []string

	gjson.ParseBytes(structure).ForEach(func(_, estate gjson.Result) bool {
		estate.Get("realestateMachines").ForEach(func(_, machine gjson.Result) bool {
			if serial := machine.Get("identity").String(); serial != "" {
				serials = append(serials, serial)
			}

			return true
		})

		return true
	})

	return serials
}
