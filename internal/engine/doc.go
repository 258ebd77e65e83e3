// Package engine executes prepared query plans against remote backends.
//
// A plan is an expression whose sources have been bound to Externals and
// simplified, so each External carries as much of the query as its backend
// can express. Preparation (resolve, bind, simplify) is synchronous and
// pure; see Prepare.
//
// EXECUTION:
//
// Executor.Evaluate sends the plan's Externals through a Requester, all at
// once, and evaluates what remains of the expression natively. Results are
// kept in plan order, never in the order backends answer. Externals that
// only come into being once a row is bound (nested queries per split group)
// are sent as evaluation reaches them.
//
// Requesters are decorated with two middlewares:
//   - Retry: bounded attempts with a fixed delay; timeouts are retried only
//     when asked for. Compilation and post-processing errors are never retried.
//   - ConcurrentLimit: at most n requests in flight, the rest queued FIFO.
//
// SimulateQueryPlan runs the same pipeline against simulated rows and
// returns the queries that would be sent, in execution order. It never
// touches a network and is the way compiled queries are tested.
//
// Every request gets a UUIDv7 ID and a sequence number from the
// evaluation's Clock. A QueryQuota bounds the number of queries a single
// evaluation may issue.
package engine
