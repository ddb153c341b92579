/*
Package packpub provides tooling to publish content to a repository gateway.

Content is batched into size-bounded object packs, which are uploaded in the
background within a publish session. A session holds a lease on the published
path, and is finalized only when every committed byte has been acknowledged by
the gateway.
*/
package packpub
