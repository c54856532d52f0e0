package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// ErrUnknownCommand is returned when an envelope names no known command.
var ErrUnknownCommand = errors.New("command: unknown command type")

// Decoder turns the JSON body of an envelope into a command.
type Decoder func(data []byte) (Command, error)

func decodeInto[T Command](newCmd func() T) Decoder {
	return func(data []byte) (Command, error) {
		cmd := newCmd()
		if err := json.Unmarshal(data, cmd); err != nil {
			return nil, err
		}
		return cmd, nil
	}
}

var decoders map[string]Decoder

// decodeMeta recurses into Decode, so the table is filled in init.
func init() {
	decoders = map[string]Decoder{
		"add_node":          decodeInto(func() *AddNode { return &AddNode{} }),
		"delete_node":       decodeInto(func() *DeleteNode { return &DeleteNode{} }),
		"rename_node":       decodeInto(func() *RenameNode { return &RenameNode{} }),
		"move_box":          decodeInto(func() *MoveBox { return &MoveBox{} }),
		"set_node_enabled":  decodeInto(func() *SetNodeEnabled { return &SetNodeEnabled{} }),
		"add_connection":    decodeInto(func() *AddConnection { return &AddConnection{} }),
		"delete_connection": decodeInto(func() *DeleteConnection { return &DeleteConnection{} }),
		"move_connection":   decodeInto(func() *MoveConnection { return &MoveConnection{} }),
		"modify_fulcrums":   decodeInto(func() *ModifyFulcrums { return &ModifyFulcrums{} }),
		"create_thread":     decodeInto(func() *CreateThread { return &CreateThread{} }),
		"switch_thread":     decodeInto(func() *SwitchThread { return &SwitchThread{} }),
		"set_parameter":     decodeSetParameter,
		"meta":              decodeMeta,
	}
}

// Types returns the command types Decode understands.
func Types() []string {
	return slices.Sorted(maps.Keys(decoders))
}

// Decode reads an envelope of the form {"type": "...", ...}.
func Decode(data []byte) (Command, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("invalid command envelope: %w", err)
	}
	dec, ok := decoders[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, env.Type)
	}
	cmd, err := dec(data)
	if err != nil {
		return nil, fmt.Errorf("invalid %s command: %w", env.Type, err)
	}
	return cmd, nil
}

// decodeSetParameter reads the value with the type implied by its JSON.
func decodeSetParameter(data []byte) (Command, error) {
	var raw struct {
		SetParameter
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if len(raw.Value) == 0 {
		return nil, errors.New("missing value")
	}
	ty, err := ctyjson.ImpliedType(raw.Value)
	if err != nil {
		return nil, err
	}
	v, err := ctyjson.Unmarshal(raw.Value, ty)
	if err != nil {
		return nil, err
	}
	return &SetParameter{UUID: raw.UUID, Name: raw.Name, Value: v}, nil
}

func decodeMeta(data []byte) (Command, error) {
	var raw struct {
		Name     string            `json:"name"`
		Children []json.RawMessage `json:"children"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	m := NewMeta(raw.Name)
	for i, child := range raw.Children {
		cmd, err := Decode(child)
		if err != nil {
			return nil, fmt.Errorf("child %d: %w", i, err)
		}
		m.Add(cmd)
	}
	return m, nil
}
