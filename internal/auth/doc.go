// Package auth implements the Spotify authorization code handshake.
//
// # Credential Vault
//
// [Encrypt] and [Decrypt] seal tokens with AES-256-GCM. Blobs are a 12-byte nonce followed by the
// ciphertext and tag. The key is always supplied by the caller.
//
// # CSRF State
//
// [StateStore] issues single-use state tokens bound to an owner. A token is removed on its first
// lookup, expired or not, so a replayed callback is always rejected with [shared.ErrStateUnknown].
//
// # Handshake
//
// [Handshake] composes the two with a [Provider] (the Spotify client) and a [CredentialStore]:
//
//	Authorize(owner)      → state issued, authorize URL returned
//	Callback(code, state) → state consumed, code exchanged, tokens encrypted and stored
//	Status(owner)         → credential exists and has not expired
package auth
