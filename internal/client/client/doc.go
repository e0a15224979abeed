// Package client contains the docsync side of the store protocol.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic contract (see the Client interface) for reading the
//     shared document together with its content hash, and for writing a new
//     version conditioned on the hash that was read.
//  2. A concrete HTTP implementation (see HTTPClient) of the repository
//     contents dialect. Reads accept both inline (base64) metadata and the
//     out-of-band raw shape the store uses for large bodies; which one is
//     used is decided by what the store returned, never by a size estimate.
//     Writes up to the inline limit go through the contents endpoint, larger
//     ones through the git data endpoints with a fast-forward-only ref
//     update.
//  3. Credential, the bearer token passed explicitly to every call. Expiry is
//     part of the value; an expired credential fails before any request is
//     sent.
//
// # Error Handling
//
// Every failure is one of the typed errors of package common:
// *common.ConflictError when the precondition hash no longer holds (409,
// 412 or a 422 that says so), *common.PermissionError on 401/403,
// *common.ShapeError when a well-formed body is not a record array, and
// *common.TransferError for everything else.
//
// Concurrency & Contexts
//
// HTTPClient is safe for concurrent use. All operations accept
// context.Context and honor cancellation and the per-request timeout.
//
// See Also
//
//   - Interface:  Client
//   - HTTP impl:  HTTPClient
//   - Auth:       Credential, ParseCredential
package client
