// Package keyhash parses partner API keys and verifies their secrets against
// stored Argon2id hashes in PHC string format.
//
// An API key looks like "pk_<keyID>_<secret>". The key ID is the lookup
// handle and is not secret; only the secret part is hashed.
//
// # What this package must NOT do
//
//   - Log or return raw secrets.
//   - Look up partners; callers own that.
package keyhash
