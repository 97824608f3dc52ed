package steperrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_FromPanic(t *testing.T) {
	tests := []struct {
		name string
		r    any
		want string
	}{
		{name: "string", r: "boom", want: "panic: boom"},
		{name: "error", r: errors.New("bad"), want: "panic: bad"},
		{name: "int", r: 42, want: "panic: 42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pe *PanicError
			func() {
				defer func() {
					pe = FromPanic(recover())
				}()
				panic(tt.r)
			}()

			require.Equal(t, tt.want, pe.Error())
			require.Contains(t, pe.Stacktrace(), "Test_FromPanic")
		})
	}
}
