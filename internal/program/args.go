package program

import "slices"

// builtins are VM-provided parameter types that never carry user input.
var builtins = [...]string{
	"Pedersen",
	"RangeCheck",
	"Bitwise",
	"EcOp",
	"Poseidon",
	"SegmentArena",
	"GasBuiltin",
	"System",
	"RangeCheck96",
	"AddMod",
	"MulMod",
}

// IsBuiltin reports whether genericID names a builtin type.
func IsBuiltin(genericID string) bool {
	return slices.Contains(builtins[:], genericID)
}

// FunctionArgs returns the user-meaningful parameter types of fn in signature
// order. Builtin parameters and parameters whose type is missing from decls
// are dropped.
func FunctionArgs(fn *Function, decls map[TypeID]*TypeDeclaration) []ConcreteTypeLongID {
	if fn == nil {
		return nil
	}
	args := make([]ConcreteTypeLongID, 0, len(fn.Signature.ParamTypes))
	for _, id := range fn.Signature.ParamTypes {
		decl, ok := decls[id]
		if !ok || decl == nil {
			continue
		}
		if IsBuiltin(decl.LongID.GenericID) {
			continue
		}
		args = append(args, decl.LongID)
	}
	return args
}
