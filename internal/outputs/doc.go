// Package outputs allocates collision-free output filenames for a job and
// tracks user edits to the resulting plan.
//
// GenerateNames is the pure allocator: earlier desired outputs get priority
// on undecorated names, later ones receive a " (n)" disambiguator before the
// extension. Plan layers rename and override bookkeeping on top of it, and
// Session runs plan updates on a single serial executor whose pending counter
// drives the Processing flag observers see.
package outputs
