package config

const (
	// MaxCommentLength bounds comment and reply bodies.
	MaxCommentLength = 5000

	// MaxCommitMessageLength bounds the message stored with a major version.
	MaxCommitMessageLength = 500

	// MaxContentBytes is the largest serialized document content accepted
	// over either the websocket or the REST draft endpoint.
	MaxContentBytes = 5 * 1024 * 1024

	// MaxFormIDLength bounds the form section identifier sent with updates.
	MaxFormIDLength = 100
)
