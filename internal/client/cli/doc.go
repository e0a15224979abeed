// Package cli provides the docsync command-line client.
//
// It wires configuration, the remote document client and the concurrency
// controller into a cobra command tree. Every editing command runs one
// controller operation and exits with a code derived from the error class:
//
//	0  success
//	1  the edit was rejected (record not found, invalid change, permission)
//	2  the store was unavailable, or any other failure
//	3  too much contention, try again later
//	4  an integrity check refused to write (corruption risk)
//
// Commands:
//   - get / list: read the document
//   - update / delete: edit one record by id
//   - upload / attach: store media files and reference them from a record
//   - scan: report (and with --repair, fix) double-encoded text
//   - config init: write a starter config file
//
// See NewRootCommand and Execute.
package cli
