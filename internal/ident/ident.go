// Package ident generates identifiers for process runs and client sessions.
package ident

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

func MakeRunID() string {
	// Avoid embedding timestamps in identifiers. Use a random UUID.
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Sprintf("run-%d", time.Now().UTC().UnixNano())
	}
	return "run-" + id.String()
}

// NewClientName returns a random 32-character hex name, which exactly fills a
// fixed-width string field on the wire.
func NewClientName() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Sprintf("client-%d", time.Now().UTC().UnixNano())
	}
	return strings.ReplaceAll(id.String(), "-", "")
}
