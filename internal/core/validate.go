package core

import (
	"github.com/yanun0323/errors"

	"exchange/internal/codec"
	"exchange/internal/schema"
	"exchange/pkg/exception"
)

// validate rejects malformed commands before they are sequenced.
func validate(cmd *schema.Command) error {
	if cmd == nil {
		return errors.Wrap(exception.ErrInvalidCommand, "nil command")
	}
	if !cmd.Kind.Valid() {
		return errors.Wrapf(exception.ErrInvalidCommand, "unknown kind %d", cmd.Kind)
	}

	switch cmd.Kind {
	case schema.CommandPlaceOrder:
		if cmd.Size <= 0 {
			return errors.Wrapf(exception.ErrInvalidCommand, "order %d: size %d", cmd.OrderID, cmd.Size)
		}
		if cmd.Price <= 0 {
			return errors.Wrapf(exception.ErrInvalidCommand, "order %d: price %d", cmd.OrderID, cmd.Price)
		}
		if !cmd.Side.Valid() {
			return errors.Wrapf(exception.ErrInvalidCommand, "order %d: side %d", cmd.OrderID, cmd.Side)
		}
		if cmd.OrderType != 0 && !cmd.OrderType.Valid() {
			return errors.Wrapf(exception.ErrInvalidCommand, "order %d: type %d", cmd.OrderID, cmd.OrderType)
		}
	case schema.CommandReduceOrder:
		if cmd.Size <= 0 {
			return errors.Wrapf(exception.ErrInvalidCommand, "reduce order %d: size %d", cmd.OrderID, cmd.Size)
		}
	case schema.CommandBinaryData:
		specs, ok := codec.DecodeSymbolBatch(cmd.Data)
		if !ok {
			return errors.Wrapf(exception.ErrInvalidCommand, "transfer %d: undecodable payload", cmd.TransferID)
		}
		for _, spec := range specs {
			if err := spec.Validate(); err != nil {
				return errors.Wrapf(exception.ErrInvalidCommand, "transfer %d: %v", cmd.TransferID, err)
			}
		}
	case schema.CommandPersistStateMatching, schema.CommandPersistStateRisk:
		if cmd.StateID <= 0 {
			return errors.Wrapf(exception.ErrInvalidCommand, "state id %d", cmd.StateID)
		}
	}
	return nil
}
