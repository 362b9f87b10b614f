// Package session is the reference implementation of entity.Session.
//
// A Session turns stored records into entities and back. It keeps an
// identity map so every Load of the same (type, id) returns the same
// *entity.Entity, and it binds everything it hands out (entities and the
// lazy references in their relationship slots) to itself, so following a
// relationship loads through the same session.
//
//	sess := session.New(st, reg)
//	post, err := sess.Find(ctx, postType, "p1")
//	author := post.BelongsTo("author") // unresolved *entity.LazyRef
//	name := author.Get("name")         // Null now; starts loading
//
// Loads for a supertype also find records stored under any registered
// subtype.
//
// Thread-safety: Session is safe for concurrent use; lazy references load
// on background goroutines.
package session
