package crawler

import (
	"errors"
	"fmt"
)

var (
	ErrFetch     = errors.New("fetch failed")
	ErrChallenge = errors.New("anti-bot challenge not cleared")
	ErrParse     = errors.New("parse failed")
)

// FetchFailure is returned by Client.Fetch once every retry is used up.
type FetchFailure struct {
	URL       string
	Reason    string
	Attempts  int
	Status    int
	Challenge bool
	Err       error
}

func (f *FetchFailure) Error() string {
	if f.Status != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d, %d attempts)", f.URL, f.Reason, f.Status, f.Attempts)
	}
	return fmt.Sprintf("fetch %s: %s (%d attempts)", f.URL, f.Reason, f.Attempts)
}

func (f *FetchFailure) Is(target error) bool {
	return target == ErrFetch || (f.Challenge && target == ErrChallenge)
}

func (f *FetchFailure) Unwrap() error {
	return f.Err
}

// ParseFailure means a page did not contain the fields a product needs.
type ParseFailure struct {
	URL    string
	Reason string
	Err    error
}

func (f *ParseFailure) Error() string {
	if f.URL == "" {
		return "parse: " + f.Reason
	}
	return fmt.Sprintf("parse %s: %s", f.URL, f.Reason)
}

func (f *ParseFailure) Is(target error) bool {
	return target == ErrParse
}

func (f *ParseFailure) Unwrap() error {
	return f.Err
}
