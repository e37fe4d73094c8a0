package domain

import "errors"

var (
	ErrGuestWithAuthor  = errors.New("message cannot carry both an author and a guest name")
	ErrSystemWithAuthor = errors.New("system message cannot have an author")
)
