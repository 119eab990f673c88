package storage

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrProjectNotFound = errors.New("project not found")
	ErrPrinterNotFound = errors.New("printer not found")
	ErrCycleNotFound   = errors.New("cycle not found")
	ErrProductNotFound = errors.New("product not found")
)
