package core

import (
	"errors"
	"strings"
	"testing"

	"go.viam.com/test"

	"spibus/protocol"
)

func TestCommandRegistry(t *testing.T) {
	registry := NewCommandRegistry()

	var called bool
	id := registry.Register("test_command", "arg=%u", func(data *[]byte) error {
		called = true
		return nil
	})
	test.That(t, id, test.ShouldEqual, uint16(0))

	cmd, ok := registry.GetCommand(id)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, cmd.Name, test.ShouldEqual, "test_command")
	test.That(t, cmd.Signature(), test.ShouldEqual, "test_command arg=%u")

	var data []byte
	test.That(t, registry.Dispatch(id, &data), test.ShouldBeNil)
	test.That(t, called, test.ShouldBeTrue)

	err := registry.Dispatch(999, &data)
	test.That(t, errors.Is(err, ErrUnknownCommand), test.ShouldBeTrue)
}

func TestCommandRegistrySequentialIDs(t *testing.T) {
	registry := NewCommandRegistry()
	noop := func(*[]byte) error { return nil }

	test.That(t, registry.Register("command1", "a=%u", noop), test.ShouldEqual, uint16(0))
	test.That(t, registry.Register("command2", "b=%u", noop), test.ShouldEqual, uint16(1))
	test.That(t, registry.Register("command1", "a=%u", noop), test.ShouldEqual, uint16(0))
	test.That(t, registry.Count(), test.ShouldEqual, 2)

	cmd, ok := registry.GetCommandByName("command2")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, cmd.ID, test.ShouldEqual, uint16(1))
}

func TestCommandsAndResponses(t *testing.T) {
	registry := NewCommandRegistry()
	registry.Register("identify_response", "offset=%u data=%*s", nil)
	registry.Register("identify", "offset=%u count=%c", func(*[]byte) error { return nil })

	commands, responses := registry.CommandsAndResponses()
	test.That(t, commands, test.ShouldResemble, map[string]int{"identify offset=%u count=%c": 1})
	test.That(t, responses, test.ShouldResemble, map[string]int{"identify_response offset=%u data=%*s": 0})

	var data []byte
	test.That(t, errors.Is(registry.Dispatch(0, &data), ErrUnknownCommand), test.ShouldBeTrue)
	test.That(t, strings.Split(registry.Text(), "\n")[1], test.ShouldEqual, "identify offset=%u count=%c")
}

func TestCommandArguments(t *testing.T) {
	registry := NewCommandRegistry()

	var got uint32
	id := registry.Register("test_args", "value=%u", func(data *[]byte) error {
		v, err := protocol.DecodeVLQUint(data)
		got = v
		return err
	})

	output := protocol.NewScratchOutput()
	protocol.EncodeVLQUint(output, 12345)
	data := output.Result()

	test.That(t, registry.Dispatch(id, &data), test.ShouldBeNil)
	test.That(t, got, test.ShouldEqual, uint32(12345))

	var empty []byte
	err := registry.Dispatch(id, &empty)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "test_args")
}
