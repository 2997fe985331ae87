// Package arith registers numeric callables.
package arith

import (
	"errors"

	"github.com/specialistvlad/condordag/callable"
)

// ErrDivisionByZero is returned by Div.
var ErrDivisionByZero = errors.New("division by zero")

// Module implements the callable.Module interface for this package.
type Module struct{}

func Add(a, b float64) float64 { return a + b }

func Square(x float64) float64 { return x * x }

// Sum adds the elements of xs. It accepts the outputs of a counted job.
func Sum(xs []float64) float64 {
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total
}

// Product multiplies the elements of xs. The product of none is 1.
func Product(xs []float64) float64 {
	total := 1.0
	for _, x := range xs {
		total *= x
	}
	return total
}

func Div(a, b float64) (float64, error) {
	if b == 0 {
		return 0, ErrDivisionByZero
	}
	return a / b, nil
}

// Register registers the callables with the registry.
func (m *Module) Register(r *callable.Registry) {
	r.RegisterFunc("add", Add)
	r.RegisterFunc("div", Div)
	r.RegisterFunc("product", Product)
	r.RegisterFunc("square", Square)
	r.RegisterFunc("sum", Sum)
}
