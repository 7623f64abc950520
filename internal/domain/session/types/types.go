package types

import "errors"

// ErrNotFound 键不存在或已过期
var ErrNotFound = errors.New("session: not found")

// ErrFull 内存存储已达到最大条目数
var ErrFull = errors.New("session: store is full")
