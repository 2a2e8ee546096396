package collection

import (
	"fmt"
	"strings"

	"github.com/franz/djsync/internal/util"
)

// ParseError reports a catalog document that could not be decoded
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse catalog %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NotFoundError reports a required node missing from the document, which
// means the catalog is corrupt or built from the wrong template
type NotFoundError struct {
	Selector string
	Path     string
}

func (e *NotFoundError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("catalog node %q not found", e.Selector)
	}
	return fmt.Sprintf("catalog node %q not found in %s", e.Selector, e.Path)
}

func (e *NotFoundError) Unwrap() error { return util.ErrNotFound }

// IntegrityError reports structural inconsistencies such as playlist
// references to tracks that do not exist
type IntegrityError struct {
	Path     string
	Problems []string
}

func (e *IntegrityError) Error() string {
	where := e.Path
	if where == "" {
		where = "catalog"
	}
	return fmt.Sprintf("%s integrity: %s", where, strings.Join(e.Problems, "; "))
}
