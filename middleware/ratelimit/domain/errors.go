package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidArgument é retornado de forma síncrona para entrada malformada
	// (ex.: duração negativa), nunca dentro do loop de espera.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrCapacityTimeout indica que o prazo de AwaitCapacity venceu sem admissão.
	// Quem chama deve tratar como "não envie", não como falha transitória.
	ErrCapacityTimeout = errors.New("capacity wait timed out")
)

// CapacityTimeoutError carrega o contexto do timeout de espera por capacidade.
type CapacityTimeoutError struct {
	Key     Key
	Timeout time.Duration
	Waited  time.Duration
}

func (e *CapacityTimeoutError) Error() string {
	return fmt.Sprintf("%s: key=%s timeout=%s waited=%s", ErrCapacityTimeout, e.Key, e.Timeout, e.Waited)
}

func (e *CapacityTimeoutError) Is(target error) bool { return target == ErrCapacityTimeout }

// InvalidArgument embrulha ErrInvalidArgument com uma mensagem.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
