// Package records persists the outcome of every bake.
//
// A MultiRecord is one generation: a Record per content source, each holding
// one Entry per content item. Generations are saved as versioned JSON next to
// the baker cache, rotated into numbered backups before each save and diffed
// against each other to find stale outputs.
package records
