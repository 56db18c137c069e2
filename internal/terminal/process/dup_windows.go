//go:build windows

package process

import (
	"errors"
	"os"
)

func dupFile(*os.File) (*os.File, error) {
	return nil, errors.ErrUnsupported
}
