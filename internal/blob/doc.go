// Package blob transfers media between the S3-compatible object store and the
// local staging directories.
//
// Fetch never hides failure: it returns a FetchResult that separates a missing
// object from a failed transfer. Publish uploads a processed file and marks it
// publicly readable through the object ACL.
package blob
