package aead

import "errors"

// Sentinel errors for the AEAD codec. All of these are session-fatal: the
// caller must tear down both sides of the relay and must never surface
// which of these occurred to the remote peer — an authentication failure
// must look identical to any other transport error on the wire.
var (
	// ErrAuthenticationFailed is returned when an AEAD tag fails to verify,
	// for either the length cell or the payload cell of a frame.
	ErrAuthenticationFailed = errors.New("aead: authentication failed")

	// ErrInvalidPayloadLength is returned when a decrypted length cell
	// declares more than MaxPayload bytes.
	ErrInvalidPayloadLength = errors.New("aead: payload length exceeds maximum")

	// ErrEmptyPayload is returned when a decrypted length cell declares
	// zero bytes; no legitimate sender ever emits an empty frame.
	ErrEmptyPayload = errors.New("aead: empty payload frame")

	// ErrDecryptorHeld is returned by Read when the decryptor is in hold
	// mode and ReadFirstPayload/Resume have not yet been called.
	ErrDecryptorHeld = errors.New("aead: decryptor is holding, call Resume first")

	// ErrAlreadyResumed is returned by Resume if called more than once.
	ErrAlreadyResumed = errors.New("aead: decryptor already resumed")

	// ErrPayloadTooLarge is returned by Write-path helpers if asked to seal
	// a chunk bigger than MaxPayload in one frame.
	ErrPayloadTooLarge = errors.New("aead: payload chunk exceeds maximum frame size")
)
