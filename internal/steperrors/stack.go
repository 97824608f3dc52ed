package steperrors

import goerrors "github.com/go-errors/errors"

// stack returns the stack of the caller, skipping the given number of frames.
func stack(skip int) string {
	goerr := goerrors.Wrap("", skip+1)
	return string(goerr.Stack())
}
