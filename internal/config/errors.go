package config

import "errors"

// ErrInvalidValue — значение переменной окружения не разобрано.
var ErrInvalidValue = errors.New("invalid config value")
