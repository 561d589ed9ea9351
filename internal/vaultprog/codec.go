// Package vaultprog encodes instructions for and decodes account state of the
// DMD vault program. The wire format is anchor-compatible: an 8-byte
// discriminator derived from the operation or account name followed by
// borsh-encoded fields. Monetary amounts stay u64 end to end; there is no
// float path through the codec.
package vaultprog

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

type argKind uint8

const (
	argU64 argKind = iota
	argI64
	argBool
)

type argSpec struct {
	name string
	kind argKind
}

// operationSchemas is the full instruction surface of the vault program.
// Adding an operation is a table edit, not new encoding code.
var operationSchemas = map[string][]argSpec{
	"initialize":             {{name: "initial_price_sol", kind: argU64}},
	"toggle_public_sale":     {{name: "active", kind: argBool}},
	"whitelist_add":          {{name: "status", kind: argBool}},
	"set_manual_price":       {{name: "lamports_per_10k", kind: argU64}},
	"auto_whitelist_self":    {},
	"buy_dmd":                {{name: "sol_contribution", kind: argU64}},
	"claim_reward_v2":        {},
	"swap_exact_sol_for_dmd": {{name: "amount_in_lamports", kind: argU64}, {name: "min_out_dmd", kind: argU64}},
	"swap_exact_dmd_for_sol": {{name: "amount_in_dmd", kind: argU64}, {name: "min_out_sol", kind: argU64}},
	"sell_dmd_v2":            {{name: "amount_tokens", kind: argU64}},
}

// EncodeInstructionData produces discriminator plus borsh-encoded args for a
// named operation. Args are matched by name against the operation schema;
// extra, missing or mistyped args fail before any bytes are produced.
func EncodeInstructionData(operation string, args map[string]any) ([]byte, error) {
	schema, ok := operationSchemas[operation]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, operation)
	}
	if len(args) != len(schema) {
		return nil, fmt.Errorf("%w: operation %q takes %d args, got %d", ErrSchemaMismatch, operation, len(schema), len(args))
	}

	disc := instructionDiscriminator(operation)
	buf := bytes.NewBuffer(disc[:])
	encoder := bin.NewBorshEncoder(buf)

	for _, spec := range schema {
		raw, ok := args[spec.name]
		if !ok {
			return nil, fmt.Errorf("%w: operation %q missing arg %q", ErrSchemaMismatch, operation, spec.name)
		}
		switch spec.kind {
		case argU64:
			value, ok := raw.(uint64)
			if !ok {
				return nil, fmt.Errorf("%w: arg %q of %q must be uint64, got %T", ErrSchemaMismatch, spec.name, operation, raw)
			}
			if err := encoder.WriteUint64(value, bin.LE); err != nil {
				return nil, fmt.Errorf("encode %s.%s: %w", operation, spec.name, err)
			}
		case argI64:
			value, ok := raw.(int64)
			if !ok {
				return nil, fmt.Errorf("%w: arg %q of %q must be int64, got %T", ErrSchemaMismatch, spec.name, operation, raw)
			}
			if err := encoder.WriteInt64(value, bin.LE); err != nil {
				return nil, fmt.Errorf("encode %s.%s: %w", operation, spec.name, err)
			}
		case argBool:
			value, ok := raw.(bool)
			if !ok {
				return nil, fmt.Errorf("%w: arg %q of %q must be bool, got %T", ErrSchemaMismatch, spec.name, operation, raw)
			}
			if err := encoder.WriteBool(value); err != nil {
				return nil, fmt.Errorf("encode %s.%s: %w", operation, spec.name, err)
			}
		}
	}

	return buf.Bytes(), nil
}

// DecodeInstructionData inverts EncodeInstructionData: it resolves the
// discriminator to an operation and decodes the borsh args by schema.
// Trailing bytes beyond the schema are a mismatch, not padding.
func DecodeInstructionData(data []byte) (string, map[string]any, error) {
	if len(data) < 8 {
		return "", nil, fmt.Errorf("%w: instruction data %d bytes, discriminator needs 8", ErrTruncatedData, len(data))
	}
	var disc [8]byte
	copy(disc[:], data[:8])

	operation, schema, ok := operationForDiscriminator(disc)
	if !ok {
		return "", nil, fmt.Errorf("%w: discriminator %x", ErrUnknownOperation, disc)
	}

	decoder := bin.NewBorshDecoder(data[8:])
	args := make(map[string]any, len(schema))
	for _, spec := range schema {
		switch spec.kind {
		case argU64:
			value, err := decoder.ReadUint64(bin.LE)
			if err != nil {
				return "", nil, fmt.Errorf("%w: %s.%s", ErrTruncatedData, operation, spec.name)
			}
			args[spec.name] = value
		case argI64:
			value, err := decoder.ReadInt64(bin.LE)
			if err != nil {
				return "", nil, fmt.Errorf("%w: %s.%s", ErrTruncatedData, operation, spec.name)
			}
			args[spec.name] = value
		case argBool:
			value, err := decoder.ReadBool()
			if err != nil {
				return "", nil, fmt.Errorf("%w: %s.%s", ErrTruncatedData, operation, spec.name)
			}
			args[spec.name] = value
		}
	}
	if remaining := decoder.Remaining(); remaining > 0 {
		return "", nil, fmt.Errorf("%w: %d trailing bytes after %q args", ErrSchemaMismatch, remaining, operation)
	}
	return operation, args, nil
}

func operationForDiscriminator(disc [8]byte) (string, []argSpec, bool) {
	for operation, schema := range operationSchemas {
		if instructionDiscriminator(operation) == disc {
			return operation, schema, true
		}
	}
	return "", nil, false
}

func instructionDiscriminator(operation string) [8]byte {
	hash := sha256.Sum256([]byte("global:" + operation))
	var out [8]byte
	copy(out[:], hash[:8])
	return out
}

func accountDiscriminator(accountName string) [8]byte {
	hash := sha256.Sum256([]byte("account:" + accountName))
	var out [8]byte
	copy(out[:], hash[:8])
	return out
}
