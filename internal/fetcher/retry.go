package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"time"
)

// ErrTransient marca un error de red o de servidor que vale la pena reintentar
var ErrTransient = errors.New("transient error")

// RetryPolicy es el techo de intentos y el delay inicial; el delay se duplica en cada intento
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
}

// Delay devuelve la espera antes del intento attempt+1: initialDelay * 2^(attempt-1)
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.InitialDelay * time.Duration(1<<(attempt-1))
}

// StatusError es una respuesta HTTP no exitosa
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Unwrap hace que 429 y 5xx cuenten como transitorios
func (e *StatusError) Unwrap() error {
	if e.Code == 429 || e.Code >= 500 {
		return ErrTransient
	}
	return nil
}

// IsTransient clasifica errores de red (timeout, reset, DNS, EOF) como reintentables
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransient) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "fetch failed") || strings.Contains(msg, "connection reset")
}

// Retry ejecuta fn hasta MaxAttempts veces mientras el error sea transitorio.
// Un error no transitorio, o el último, se devuelve tal cual.
func Retry(ctx context.Context, p RetryPolicy, onRetry func(attempt int, err error, delay time.Duration), fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !IsTransient(err) || attempt == attempts {
			break
		}

		delay := p.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, err, delay)
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
