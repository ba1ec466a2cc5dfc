/*
Package state implements the shared key/value store visible across chains.

A Manager owns the table (through a ports.StateBackend) and the subscriber
lists. Mutations run synchronously: Set returns after every subscriber of the
key has been notified, in subscription order. Writers to the same key are
serialized with a per-key lock; unrelated keys never wait on each other.

Subscriber callbacks run after the key lock is released, from a per-key
delivery queue. A callback may write any key, including the one it observes.
When such a write lands on a key whose queue is already being delivered, it
is appended and delivered by the outer call before that call returns.
*/
package state
