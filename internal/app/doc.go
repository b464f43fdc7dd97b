// Package app wires the cleaning pipeline and its HTTP surface together
// and manages the server lifecycle.
//
// The initialization sequence:
//
//	1. Load configuration from environment and files
//	2. Initialize logging and observability
//	3. Register the pipeline steps on the operation manager
//	4. Set up HTTP handlers and middleware
//	5. Configure and start the HTTP server
//	6. Handle SIGINT/SIGTERM for graceful shutdown
//
// All initialization errors are returned to the caller; the package does
// not call os.Exit() directly.
package app
