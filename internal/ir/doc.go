// Package ir provides the value-level foundation of strata: the closed type
// model, runtime values, datasets and the native (in-memory) dataset engine.
//
// This package contains no expression logic. All other internal packages
// import ir; ir imports nothing internal. This keeps the type model and the
// native engine a leaf layer with no circular dependencies.
//
// Key design constraints:
//   - Values are immutable once constructed; dataset operations return new
//     datasets and never modify their receiver
//   - Every Value reports its Type; the type of a value never depends on
//     the context it is used in
//   - Grouping is by KeyOf, so two values group together iff they are Equal
//   - Errors raised anywhere in the compiler use the *Error taxonomy so
//     callers can classify them with errors.As
package ir
