package errors

import (
	"errors"
	"testing"
)

var errWrapped = errors.New("balance row missing")

func BenchmarkWrap(b *testing.B) {
	b.Run("wrap nil", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			err := Wrap(nil, "load pending orders")
			_ = err
		}
	})

	b.Run("wrap error", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			err := Wrap(errWrapped, "load pending orders")
			_ = err.Error()
		}
	})

	b.Run("wrapf error", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			err := Wrapf(errWrapped, "flush %d bars", 12)
			_ = err.Error()
		}
	})

	b.Run("errorf", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			err := Errorf("instrument %q not registered", "EURUSD")
			_ = err.Error()
		}
	})

	b.Run("stdlib new", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			err := errors.New("balance row missing")
			_ = err.Error()
		}
	})
}
