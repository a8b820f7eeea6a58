// Package contracts holds the types shared with clients of the pipeline:
// build information here and the HTTP request and response bodies in
// api/v1.
package contracts
