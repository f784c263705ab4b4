// Package session manages bounded in-memory conversation history.
//
// Invariants:
// - A session never holds more than MaxMessages turns; oldest are dropped.
// - LastAccessed is monotonically non-decreasing and touched on every read or write.
// - All map and message-log access serializes through a single store lock.
// - Sessions idle past the TTL are swept opportunistically on session creation.
//
// Usage:
//
//	store := session.NewStore(session.DefaultOptions())
//	sess, _ := store.GetOrCreate(context.Background(), "session:1")
//	_ = sess
//	_ = store.AddMessage(context.Background(), "session:1", "user", "hello")
//	ctxMsgs := store.Context("session:1", 10)
//	_ = ctxMsgs
package session
