// Package harness runs entity fixture scenarios.
//
// A scenario seeds a record store, then runs checks that load entities
// through a session, optionally copy and mutate them, and compare the two
// sides with Diff and IsEqual.
//
// # Scenario Format
//
//	name: edit_copy
//	description: "Editing a copy produces deltas against the original"
//	schema: ../schema          # directory of CUE entity declarations
//	entities:
//	  - type: Post
//	    id: p1
//	    client_id: c-p1
//	    attributes: { title: Hello }
//	    belongs_to: { author: User/u1 }
//	    has_many: { tags: [Tag/t1, Tag/t2] }
//	checks:
//	  - name: retitle
//	    left: Post/p1
//	    copy_of: Post/p1       # or right: Post/p2
//	    mutate:
//	      - set: title
//	        value: Goodbye
//	      - belongs_to: author
//	        ref: User/u2       # empty ref clears the slot
//	      - add: tags
//	        ref: Tag/t3
//	      - remove: tags
//	        ref: Tag/t1
//	      - delete: true
//	    follow: [author]       # wait for these belongsTo refs on left
//	    equal: true            # expected left.IsEqual(right)
//	    expect: [attr:title, belongsTo:author, hasMany:tags]
//
// Entity references are written "Type/id". Expected deltas are written
// "attr:<name>", "belongsTo:<name>" or "hasMany:<name>" and compared as a set.
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory store, and every check gets
// a fresh session with sequential client ids, so reports are byte-identical
// across runs and can be compared against golden files.
package harness
