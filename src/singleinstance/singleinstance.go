package singleinstance

// This file defines the API for single-instance ownership and command delegation.

import (
	"context"
)

// Commands a client may delegate to the resident.
const (
	CommandCapture = "CAPTURE"
	CommandSave    = "SAVE"
	CommandDiscard = "DISCARD"
	CommandStatus  = "STATUS"
)

// Server owns the TCP endpoint and answers delegated commands.
type Server interface {
	// Start binds the first port of the configured range and accepts client requests.
	Start(ctx context.Context) error
	// Port returns the bound TCP port, or 0 if not started.
	Port() int
	// Next returns the next accepted connection as a Conn, or ctx error.
	Next(ctx context.Context) (Conn, error)
	// Close releases ownership and stops accepting clients.
	Close() error
}

// Conn represents one client connection and exposes request + response API.
type Conn interface {
	// Request returns the parsed client request.
	Request() Request
	// RespondSuccess sends success followed by an optional status text.
	RespondSuccess(text string) error
	// RespondError sends an error with human-readable message.
	RespondError(msg string) error
	// Close closes the underlying connection.
	Close() error
}

// Request represents a single delegated command.
type Request struct {
	Command string
}

// Client delegates a command to a resident server.
type Client interface {
	// Delegate scans the port range, performs the PING handshake and sends command.
	// If no resident is found, returns delegated=false, err=nil.
	Delegate(ctx context.Context, command string) (delegated bool, text string, err error)
}

// NewServer returns TCP implementation.
func NewServer() Server { return newTcpServer() }

// NewClient returns TCP implementation.
func NewClient() Client { return newTcpClient() }
