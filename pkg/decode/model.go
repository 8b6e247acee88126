package decode

import (
	"fmt"

	"github.com/sanonone/grl/pkg/embed"
	"gonum.org/v1/gonum/mat"
)

// Model decodes the parameters of m with its own activation.
func Model(m *embed.Model, dim int) (*mat.Dense, error) {
	act := Activation(m.Activation.Func())
	params := m.Params()
	switch m.Type {
	case embed.Asymmetric:
		return Asymmetric(params[0], params[1], dim, act)
	case embed.Symmetric:
		return Symmetric(params[0], dim, act)
	case embed.Diagonal:
		return Diagonal(params[0], params[1], dim, act)
	}
	return nil, fmt.Errorf("%w: embedding type %d", ErrShapeMismatch, m.Type)
}
