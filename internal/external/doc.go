// Package external models remote relations as expression sources.
//
// An External starts as the raw rows of a table or Druid datasource and
// absorbs the actions of the chain built on it (filters, splits, applies,
// having filters, sorts and limits) for as long as its backend can still
// render the combined state as one query. Whatever it cannot absorb stays
// in the chain and is evaluated natively over the External's result.
//
// QueryAndPostProcess compiles the state into SQL for the dialects in
// package dialect or into a Druid native query, together with the function
// that converts the backend's flat rows into the External's value.
package external
