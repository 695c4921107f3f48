package program

import (
	"encoding/json"
	"fmt"
	"os"
)

// TypeID identifies a concrete type inside a program artifact.
type TypeID uint64

// GenericArg is a single generic argument of a concrete type.
// Exactly one of Type or Value is meaningful.
type GenericArg struct {
	Type  *TypeID `json:"type,omitempty"`
	Value string  `json:"value,omitempty"`
}

// ConcreteTypeLongID is the full description of a concrete type:
// its generic type name plus the generic arguments it was instantiated with.
type ConcreteTypeLongID struct {
	GenericID   string       `json:"generic_id"`
	GenericArgs []GenericArg `json:"generic_args,omitempty"`
}

// String renders the long id as Name<arg, ...>.
func (l ConcreteTypeLongID) String() string {
	if len(l.GenericArgs) == 0 {
		return l.GenericID
	}
	out := l.GenericID + "<"
	for i, arg := range l.GenericArgs {
		if i > 0 {
			out += ", "
		}
		switch {
		case arg.Type != nil:
			out += fmt.Sprintf("T%d", uint64(*arg.Type))
		default:
			out += arg.Value
		}
	}
	return out + ">"
}

// TypeDeclaration binds a TypeID to its long id.
type TypeDeclaration struct {
	ID     TypeID             `json:"id"`
	LongID ConcreteTypeLongID `json:"long_id"`
}

// Signature lists parameter and return types of a function.
type Signature struct {
	ParamTypes []TypeID `json:"param_types"`
	RetTypes   []TypeID `json:"ret_types"`
}

// Function is an entry point of the program.
type Function struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Signature Signature `json:"signature"`
}

// Program is the compiled program artifact shared by every trial of a test.
type Program struct {
	Name      string            `json:"name"`
	Types     []TypeDeclaration `json:"type_declarations"`
	Functions []Function        `json:"functions"`
	Assembled []byte            `json:"assembled,omitempty"`
}

// Load reads a JSON program artifact from path.
func Load(path string) (*Program, error) {
	// #nosec G304 -- path is provided by the user via manifest or flag
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read program %q: %w", path, err)
	}
	var p Program
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%s: failed to decode program: %w", path, err)
	}
	return &p, nil
}

// TypeIndex builds the id -> declaration lookup table.
func (p *Program) TypeIndex() map[TypeID]*TypeDeclaration {
	if p == nil {
		return nil
	}
	index := make(map[TypeID]*TypeDeclaration, len(p.Types))
	for i := range p.Types {
		decl := &p.Types[i]
		index[decl.ID] = decl
	}
	return index
}

// Function looks up an entry point by name.
func (p *Program) Function(name string) (*Function, bool) {
	if p == nil {
		return nil, false
	}
	for i := range p.Functions {
		if p.Functions[i].Name == name {
			return &p.Functions[i], true
		}
	}
	return nil, false
}
