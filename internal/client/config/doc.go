// Package config loads runtime configuration for the docsync CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see Default).
//  2. Optional config file given with --config; JSON or YAML by extension.
//  3. DOCSYNC_* environment variables; nested keys use underscores, so
//     s3.bucket is DOCSYNC_S3_BUCKET.
//  4. Command-line flags bound through FlagKeys.
//
// # File schema
//
// Durations are strings such as "500ms" or "3s":
//
//	api_url: https://api.github.com
//	owner: acme
//	repo: site
//	branch: main
//	path: data/projects.json
//	max_retries: 3
//	backoff_base: 500ms
//	backoff_cap: 3s
//	s3:
//	  bucket: media
//
// The token is best supplied as DOCSYNC_TOKEN; when it is missing and stdin
// is a terminal the CLI prompts for it.
package config
