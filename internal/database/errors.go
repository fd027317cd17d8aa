package database

import "errors"

// ErrNotFound is returned by repositories when no record matches the requested id
var ErrNotFound = errors.New("not found")
