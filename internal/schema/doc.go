// Package schema declares entity types: their names, inheritance, attributes
// and relationships.
//
// Types are written in CUE under a top-level "entity" struct:
//
//	entity: Post: {
//		attributes: {
//			title:       string
//			votes:       int
//			publishedAt: "time"
//		}
//		relationships: {
//			author:   belongsTo: "User"
//			comments: hasMany:   "Comment"
//		}
//	}
//
//	entity: FeaturedPost: {
//		extends: "Post"
//		attributes: rank: int
//	}
//
// A Registry links parents and relationship targets and rejects invalid
// declarations with coded ValidationErrors (E2xx). Type matching is
// covariant: (*Type).Detects reports whether a type is the other type or one
// of its ancestors.
package schema
