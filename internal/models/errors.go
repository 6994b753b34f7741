package models

import "errors"

// ErrIncompleteWeek rejects business-hours saves that do not cover exactly
// one entry per weekday 0..6.
var ErrIncompleteWeek = errors.New("business hours must cover each weekday exactly once")
