// Package client is the remote side of the sync engine.
//
// # Overview
//
// The package provides:
//  1. The API interface consumed by the puller and the push queue: paged,
//     incremental List; Update and UpdateUser returning the server's
//     canonical record; Delete; plus Ping, Register, Login and DownloadURL
//     for the REPL.
//  2. GRPCClient, which speaks comicsync.v1.Library (see package api),
//     injects the access token through a unary interceptor, refreshes an
//     expired token transparently and maps gRPC status codes to sentinel
//     errors.
//
// # Error Handling
//
// Unavailable and DeadlineExceeded map to ErrUnavailable (retriable).
// Unauthenticated and PermissionDenied map to ErrUnauthorized.
// InvalidArgument and FailedPrecondition map to a *common.FieldError, which
// unwraps to common.ErrValidation. NotFound maps to common.ErrNotFound. A
// payload that does not decode into rows yields common.ErrMalformedRow.
//
// GRPCClient is safe for concurrent use.
package client
