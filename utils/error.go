package utils

import "errors"

var ErrorObjectNotFound = errors.New("object not found")
