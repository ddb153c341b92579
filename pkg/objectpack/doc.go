// Copyright © 2018 One Concern

// Package objectpack provides size-bounded batches of content-addressed objects.
//
// Objects are written into buckets opened inside a pack. A bucket is committed
// into the pack with a content type and an identity hash, provided the pack
// remains within its size limit. Buckets still open when a pack fills up may be
// transferred to a fresh pack.
//
// A sealed pack is serialized by a Producer, as a text header describing all
// objects followed by the concatenated object contents:
//
//	V2
//	S<payload size>
//	N<number of objects>
//	--
//	C <hash> <size>
//	N <hash> <size> <base64 name>
//	<payload>
//
// The Producer also yields the SHA-1 digest of the whole serialized stream.
package objectpack
