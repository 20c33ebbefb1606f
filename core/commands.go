package core

import (
	"sync/atomic"

	"spibus/protocol"
)

// FirmwareState is the configuration and shutdown state the host polls
// with get_config.
type FirmwareState struct {
	configCRC  atomic.Uint32
	isShutdown atomic.Bool
	moveCount  uint16
}

var globalState = &FirmwareState{moveCount: 16}

var resetHandler func()

// InitCoreCommands registers the bootstrap and configuration commands. The
// host hardcodes identify_response as ID 0 and identify as ID 1, so this
// must run before any other registration.
func InitCoreCommands() {
	RegisterResponse("identify_response", "offset=%u data=%*s")
	RegisterCommand("identify", "offset=%u count=%c", handleIdentify)

	RegisterCommand("get_config", "", handleGetConfig)
	RegisterCommand("config_reset", "", handleConfigReset)
	RegisterCommand("finalize_config", "crc=%u", handleFinalizeConfig)
	RegisterCommand("allocate_oids", "count=%c", handleAllocateOids)
	RegisterCommand("emergency_stop", "", handleEmergencyStop)
	RegisterCommand("reset", "", handleReset)

	RegisterResponse("config", "is_config=%c crc=%u is_shutdown=%c move_count=%hu")
	RegisterResponse("shutdown", "reason=%*s")

	RegisterConstant("PROTOCOL_MESSAGE_MAX", uint32(protocol.MessageLengthMax))
}

func handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	chunk := GetGlobalDictionary().GetChunk(offset, uint8(count))
	SendResponse("identify_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})
	return nil
}

func handleGetConfig(*[]byte) error {
	crc := globalState.configCRC.Load()
	SendResponse("config", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, boolArg(crc != 0))
		protocol.EncodeVLQUint(output, crc)
		protocol.EncodeVLQUint(output, boolArg(globalState.isShutdown.Load()))
		protocol.EncodeVLQUint(output, uint32(globalState.moveCount))
	})
	return nil
}

func handleConfigReset(*[]byte) error {
	globalState.configCRC.Store(0)
	ResetSPI()
	ResetDigitalOut()
	return nil
}

func handleFinalizeConfig(data *[]byte) error {
	crc, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	globalState.configCRC.Store(crc)
	return nil
}

func handleAllocateOids(data *[]byte) error {
	_, err := protocol.DecodeVLQUint(data)
	return err
}

func handleEmergencyStop(*[]byte) error {
	Shutdown("emergency stop")
	return nil
}

func handleReset(*[]byte) error {
	if resetHandler != nil {
		resetHandler()
	}
	return nil
}

// Shutdown puts the firmware in shutdown: SPI devices get their shutdown
// messages, digital outputs go to their defaults and the host is told why.
func Shutdown(reason string) {
	if globalState.isShutdown.Swap(true) {
		return
	}
	ShutdownSPI()
	ShutdownAllDigitalOut()
	SendResponse("shutdown", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQString(output, reason)
	})
}

// IsShutdown reports whether the firmware is shut down.
func IsShutdown() bool {
	return globalState.isShutdown.Load()
}

// ResetFirmwareState clears configuration and shutdown after the host
// reconnects.
func ResetFirmwareState() {
	globalState.configCRC.Store(0)
	globalState.isShutdown.Store(false)
	ResetSPI()
	ResetDigitalOut()
}

// SetResetHandler registers the target's reboot function.
func SetResetHandler(handler func()) {
	resetHandler = handler
}

func boolArg(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
