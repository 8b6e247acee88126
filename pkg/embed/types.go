package embed

import (
	"errors"
	"fmt"

	"github.com/sanonone/grl/pkg/core/vecmath"
)

var (
	// ErrUnknownEmbeddingType is returned when parsing an unsupported type name.
	ErrUnknownEmbeddingType = errors.New("unknown embedding type")
	// ErrUnknownActivation is returned when parsing an unsupported activation.
	ErrUnknownActivation = errors.New("unknown activation")
)

// EmbeddingType selects the factorisation learned by a model.
type EmbeddingType uint8

const (
	// Asymmetric learns A ≈ act(L·Rᵗ) with separate source and target matrices.
	Asymmetric EmbeddingType = iota
	// Symmetric learns A ≈ act(E·Eᵗ).
	Symmetric
	// Diagonal learns A ≈ act(E·diag(D)·Eᵗ).
	Diagonal
)

// Roles of the parameter buffers of each embedding type.
const (
	RoleL = "L"
	RoleR = "R"
	RoleE = "E"
	RoleD = "D"
)

// EmbeddingTypes lists every supported type.
var EmbeddingTypes = []EmbeddingType{Asymmetric, Symmetric, Diagonal}

func (t EmbeddingType) String() string {
	switch t {
	case Asymmetric:
		return "asymmetric"
	case Symmetric:
		return "symmetric"
	case Diagonal:
		return "diagonal"
	}
	return fmt.Sprintf("embedding(%d)", uint8(t))
}

// ParseEmbeddingType resolves a type name.
func ParseEmbeddingType(s string) (EmbeddingType, error) {
	for _, t := range EmbeddingTypes {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownEmbeddingType, s)
}

// Roles returns the parameter roles of the type, in allocation order.
func (t EmbeddingType) Roles() []string {
	switch t {
	case Asymmetric:
		return []string{RoleL, RoleR}
	case Symmetric:
		return []string{RoleE}
	case Diagonal:
		return []string{RoleE, RoleD}
	}
	return nil
}

// Shape returns the shape of the parameter buffer with the given role. Node
// matrices reserve row 0 so that node ids index them directly.
func (t EmbeddingType) Shape(role string, obs Obs, dim int) []int {
	switch role {
	case RoleL:
		return []int{obs.N + 1, dim}
	case RoleE:
		return []int{max(obs.N, obs.targets()) + 1, dim}
	case RoleR:
		return []int{obs.targets() + 1, dim}
	case RoleD:
		return []int{dim}
	}
	return nil
}

// Activation maps a raw score to a prediction.
type Activation uint8

const (
	// Sigmoid pairs with the logistic loss.
	Sigmoid Activation = iota
	// Identity pairs with the squared error loss.
	Identity
)

// Activations lists every supported activation.
var Activations = []Activation{Sigmoid, Identity}

func (a Activation) String() string {
	switch a {
	case Sigmoid:
		return "sigmoid"
	case Identity:
		return "identity"
	}
	return fmt.Sprintf("activation(%d)", uint8(a))
}

// ParseActivation resolves an activation name. The loss names "logistic" and
// "mse" are accepted as aliases.
func ParseActivation(s string) (Activation, error) {
	switch s {
	case "sigmoid", "logistic":
		return Sigmoid, nil
	case "identity", "mse":
		return Identity, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownActivation, s)
}

// Func returns the scalar function of the activation.
func (a Activation) Func() func(float32) float32 {
	if a == Identity {
		return vecmath.Identity
	}
	return vecmath.Sigmoid
}

// Obs describes the node universes of a model. N2 is the number of target
// nodes of a bimodal graph and 0 for ordinary graphs.
type Obs struct {
	N  int `yaml:"n" json:"n"`
	N2 int `yaml:"n2,omitempty" json:"n2,omitempty"`
}

func (o Obs) targets() int {
	if o.N2 > 0 {
		return o.N2
	}
	return o.N
}

// MarshalText implements encoding.TextMarshaler.
func (t EmbeddingType) MarshalText() ([]byte, error) {
	if t > Diagonal {
		return nil, fmt.Errorf("%w: %d", ErrUnknownEmbeddingType, uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *EmbeddingType) UnmarshalText(b []byte) error {
	v, err := ParseEmbeddingType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (a Activation) MarshalText() ([]byte, error) {
	if a > Identity {
		return nil, fmt.Errorf("%w: %d", ErrUnknownActivation, uint8(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Activation) UnmarshalText(b []byte) error {
	v, err := ParseActivation(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
