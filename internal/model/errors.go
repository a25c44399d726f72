package model

import (
	"errors"
)

var (
	ErrNoInputs  = errors.New("no compatible input files")
	ErrNoRules   = errors.New("no rules directory")
	ErrNoOutputs = errors.New("no outputs produced")
)
