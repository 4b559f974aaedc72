package domain

import "errors"

var (
	// ErrInvalidConfiguration indica limites não positivos na construção
	// (ou uso de um limiter que não foi construído corretamente).
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidArgument indica um identificador de cliente vazio ou só com espaços.
	ErrInvalidArgument = errors.New("invalid argument")
)

func IsInvalidConfiguration(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}

func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}
